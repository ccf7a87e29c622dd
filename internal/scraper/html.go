package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"github.com/antchfx/xpath"
	"github.com/pkg/errors"
	"github.com/vrsandeep/mango-tracker/internal/config"
	"github.com/vrsandeep/mango-tracker/internal/models"
	"github.com/vrsandeep/mango-tracker/internal/util"
	"golang.org/x/net/html"
	"golang.org/x/net/publicsuffix"
)

// Selector types accepted in the source configuration.
const (
	SelectorCSS   = "css"
	SelectorXPath = "xpath"
)

const userAgent = "Mozilla/5.0 (X11; Linux x86_64) mango-tracker"

// HTMLSource scrapes a paginated HTML bookmark listing with either CSS
// selectors or XPath expressions.
type HTMLSource struct {
	cfg    config.SourceConfig
	client *http.Client

	item, title, status *xpath.Expr
}

// NewHTMLSource validates the selectors and prepares a cookie-aware client.
func NewHTMLSource(cfg config.SourceConfig) (*HTMLSource, error) {
	if !strings.Contains(cfg.URL, "{page}") {
		return nil, errors.Errorf("source %q: url must contain {page}", cfg.Name)
	}
	if cfg.ItemSelector == "" {
		return nil, errors.Errorf("source %q: item_selector is required", cfg.Name)
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	s := &HTMLSource{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second, Jar: jar},
	}

	if cfg.Cookie != "" {
		base, err := url.Parse(strings.ReplaceAll(cfg.URL, "{page}", "1"))
		if err != nil {
			return nil, errors.Wrapf(err, "source %q: bad url", cfg.Name)
		}
		header := http.Header{"Cookie": {cfg.Cookie}}
		jar.SetCookies(base, (&http.Request{Header: header}).Cookies())
	}

	switch strings.ToLower(cfg.SelectorType) {
	case "", SelectorCSS:
		s.cfg.SelectorType = SelectorCSS
	case SelectorXPath:
		s.cfg.SelectorType = SelectorXPath
		if s.item, err = xpath.Compile(cfg.ItemSelector); err != nil {
			return nil, errors.Wrapf(err, "source %q: item xpath", cfg.Name)
		}
		if cfg.TitleSelector != "" {
			if s.title, err = xpath.Compile(cfg.TitleSelector); err != nil {
				return nil, errors.Wrapf(err, "source %q: title xpath", cfg.Name)
			}
		}
		if cfg.StatusSelect != "" {
			if s.status, err = xpath.Compile(cfg.StatusSelect); err != nil {
				return nil, errors.Wrapf(err, "source %q: status xpath", cfg.Name)
			}
		}
	default:
		return nil, errors.Errorf("source %q: unknown selector_type %q", cfg.Name, cfg.SelectorType)
	}
	return s, nil
}

func (s *HTMLSource) Name() string { return s.cfg.Name }

func (s *HTMLSource) FetchPage(ctx context.Context, page int) ([]models.Bookmark, error) {
	pageURL := strings.ReplaceAll(s.cfg.URL, "{page}", strconv.Itoa(page))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		// Sites that 404 past the last page.
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	if s.cfg.SelectorType == SelectorXPath {
		root, err := htmlquery.Parse(resp.Body)
		if err != nil {
			return nil, err
		}
		return s.extractXPath(root), nil
	}
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, err
	}
	return s.extractCSS(doc), nil
}

func (s *HTMLSource) extractCSS(doc *goquery.Document) []models.Bookmark {
	var out []models.Bookmark
	doc.Find(s.cfg.ItemSelector).Each(func(i int, item *goquery.Selection) {
		titleSel := item
		if s.cfg.TitleSelector != "" {
			titleSel = item.Find(s.cfg.TitleSelector).First()
		}
		status := s.cfg.StatusValue
		if s.cfg.StatusSelect != "" {
			if v := strings.TrimSpace(item.Find(s.cfg.StatusSelect).First().Text()); v != "" {
				status = v
			}
		}
		out = s.appendBookmark(out, titleSel.Text(), status)
	})
	return out
}

func (s *HTMLSource) extractXPath(root *html.Node) []models.Bookmark {
	var out []models.Bookmark
	for _, node := range htmlquery.QuerySelectorAll(root, s.item) {
		title := htmlquery.InnerText(node)
		if s.title != nil {
			title = evaluate(s.title, node)
		}
		status := s.cfg.StatusValue
		if s.status != nil {
			if v := strings.TrimSpace(evaluate(s.status, node)); v != "" {
				status = v
			}
		}
		out = s.appendBookmark(out, title, status)
	}
	return out
}

func (s *HTMLSource) appendBookmark(out []models.Bookmark, title, status string) []models.Bookmark {
	title = strings.Join(strings.Fields(title), " ")
	if title == "" {
		return out
	}
	if status == "" {
		status = models.StatusPlanToRead
	}
	return append(out, models.Bookmark{Title: title, Status: util.NormalizeStatus(status)})
}

// evaluate runs expr relative to node and returns its string value. Node-set
// results yield the text of the first node.
func evaluate(expr *xpath.Expr, node *html.Node) string {
	switch v := expr.Evaluate(htmlquery.CreateXPathNavigator(node)).(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case *xpath.NodeIterator:
		if v.MoveNext() {
			if nav, ok := v.Current().(*htmlquery.NodeNavigator); ok {
				return htmlquery.InnerText(nav.Current())
			}
			return v.Current().Value()
		}
	}
	return ""
}
