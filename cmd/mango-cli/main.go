package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"github.com/vrsandeep/mango-tracker/internal/core"
	"github.com/vrsandeep/mango-tracker/internal/jobs"
	"github.com/vrsandeep/mango-tracker/internal/transfer"
)

func main() {
	// Initialize the core application components
	app, err := core.New()
	if err != nil {
		log.Fatalf("Fatal error during application setup: %v", err)
	}
	if app.GeneratedToken != "" {
		fmt.Fprintf(os.Stderr, "API token created, shown only once: %s\n", app.GeneratedToken)
	}

	cliApp := &cli.App{
		Name:  "mango-cli",
		Usage: "Maintain the reading tracker library from the command line",
		Commands: []*cli.Command{
			{
				Name:  "export",
				Usage: "write a snapshot of the library",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "output file, stdout when empty"},
					&cli.BoolFlag{Name: "gzip", Usage: "gzip the snapshot"},
					&cli.StringFlag{Name: "categories", Usage: "comma separated categories, all when empty"},
				},
				Action: func(c *cli.Context) error {
					cats, err := transfer.ParseCategories(c.String("categories"))
					if err != nil {
						return err
					}
					snap, err := app.Transfer().Export(c.Context, cats)
					if err != nil {
						return err
					}
					var w io.Writer = os.Stdout
					if out := c.String("out"); out != "" {
						f, err := os.Create(out)
						if err != nil {
							return errors.Wrap(err, "create output file")
						}
						defer f.Close()
						w = f
					}
					return transfer.Encode(w, snap, c.Bool("gzip"))
				},
			},
			{
				Name:      "import",
				Usage:     "import a snapshot file",
				ArgsUsage: "FILE",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "mode", Value: string(transfer.ModeMerge), Usage: "merge or overwrite"},
				},
				Action: func(c *cli.Context) error {
					mode, err := transfer.ParseMode(c.String("mode"))
					if err != nil {
						return err
					}
					data, err := readArg(c)
					if err != nil {
						return err
					}
					res, err := app.Transfer().Import(c.Context, data, mode)
					if err != nil {
						return err
					}
					fmt.Printf("Imported %d entries (%s), %d duplicates removed\n", res.Entries, res.Mode, res.DuplicatesCut)
					return nil
				},
			},
			{
				Name:      "import-mal",
				Usage:     "import a MyAnimeList XML export into the bookmark list",
				ArgsUsage: "FILE",
				Action: func(c *cli.Context) error {
					data, err := readArg(c)
					if err != nil {
						return err
					}
					n, err := app.Transfer().ImportMAL(c.Context, data)
					if err != nil {
						return err
					}
					fmt.Printf("Imported %d bookmarks\n", n)
					return nil
				},
			},
			jobCommand("sweep", "look up metadata for entries that need it", jobs.RunSweep, app),
			jobCommand("resync", "look up metadata for every entry", jobs.RunResync, app),
			jobCommand("dedupe", "remove duplicate library entries", jobs.RunDedupe, app),
			jobCommand("reconcile", "fold stored bookmarks into the library", jobs.RunReconcile, app),
			jobCommand("scrape", "import bookmarks from the configured sites", jobs.RunScrapeBookmarks, app),
			{
				Name:  "backup",
				Usage: "cloud backup",
				Subcommands: []*cli.Command{
					jobCommand("upload", "replace the remote backup with the local state", jobs.RunBackupUpload, app),
					jobCommand("sync", "merge the remote backup and upload the result", jobs.RunBackupSync, app),
				},
			},
		},
	}

	err = cliApp.Run(os.Args)
	app.Close()
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
}

// jobCommand runs a job task in the foreground and prints its message.
func jobCommand(name, usage string, task jobs.Task, app *core.App) *cli.Command {
	return &cli.Command{
		Name:  name,
		Usage: usage,
		Action: func(c *cli.Context) error {
			msg, err := task(c.Context, app)
			if err != nil {
				return err
			}
			fmt.Println(msg)
			return nil
		},
	}
}

func readArg(c *cli.Context) ([]byte, error) {
	if c.NArg() != 1 {
		return nil, errors.New("expected exactly one FILE argument")
	}
	data, err := os.ReadFile(c.Args().First())
	return data, errors.Wrap(err, "read input file")
}
