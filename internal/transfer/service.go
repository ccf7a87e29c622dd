package transfer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/pkg/errors"
	"github.com/vrsandeep/mango-tracker/internal/events"
	"github.com/vrsandeep/mango-tracker/internal/kv"
	"github.com/vrsandeep/mango-tracker/internal/library"
	"github.com/vrsandeep/mango-tracker/internal/models"
	"github.com/vrsandeep/mango-tracker/internal/store"
	"go.uber.org/zap"
)

var (
	// ErrInvalidSnapshot rejects input that is not a usable export document.
	ErrInvalidSnapshot = errors.New("transfer: invalid snapshot")
	// ErrUnsupportedVersion rejects documents written by an incompatible
	// major format version.
	ErrUnsupportedVersion = errors.New("transfer: unsupported snapshot version")
)

// Mode selects how an import treats the local state.
type Mode string

const (
	// ModeOverwrite replaces local storage with the document.
	ModeOverwrite Mode = "overwrite"
	// ModeMerge folds the document into local storage.
	ModeMerge Mode = "merge"
)

// ParseMode accepts "merge" and "overwrite". Anything else is an error.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeMerge, ModeOverwrite:
		return Mode(s), nil
	}
	return "", errors.Errorf("transfer: unknown import mode %q", s)
}

// ImportResult summarizes an import.
type ImportResult struct {
	Mode          Mode `json:"mode"`
	Entries       int  `json:"entries"`
	Bookmarks     int  `json:"bookmarks"`
	HistoryKeys   int  `json:"historyKeys"`
	Markers       int  `json:"markers"`
	DuplicatesCut int  `json:"duplicatesRemoved"`
}

// Service exports and imports snapshots of the engine's store.
type Service struct {
	engine *library.Engine
	pub    events.Publisher
	log    *zap.Logger

	// Now is replaced in tests.
	Now func() time.Time
}

// NewService creates a Service. pub may be nil.
func NewService(engine *library.Engine, pub events.Publisher, log *zap.Logger) *Service {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Service{engine: engine, pub: pub, log: log.Named("transfer"), Now: time.Now}
}

// Export reads the selected collections into a snapshot.
func (s *Service) Export(ctx context.Context, cats Categories) (*Snapshot, error) {
	if len(cats) == 0 {
		cats = AllCategories
	}
	var snap *Snapshot
	err := s.engine.Exclusive(ctx, func(ctx context.Context, st *store.Store) error {
		var err error
		snap, err = load(ctx, st, cats)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "transfer: export")
	}
	snap.Metadata = &Metadata{
		Version:    FormatVersion,
		ExportDate: s.Now().UTC(),
		Categories: cats,
	}
	return snap, nil
}

// load reads the selected collections. Callers hold the engine lock.
func load(ctx context.Context, st *store.Store, cats Categories) (*Snapshot, error) {
	snap := &Snapshot{}
	var err error
	if cats[CategoryLibrary] {
		if snap.Entries, err = st.Entries(ctx); err != nil {
			return nil, err
		}
		if snap.Entries == nil {
			snap.Entries = []models.LibraryEntry{}
		}
	}
	if cats[CategoryBookmarks] {
		if snap.Bookmarks, err = st.Bookmarks(ctx); err != nil {
			return nil, err
		}
		if snap.Bookmarks == nil {
			snap.Bookmarks = []models.Bookmark{}
		}
	}
	if cats[CategoryHistory] {
		if snap.History, err = st.History(ctx); err != nil {
			return nil, err
		}
	}
	if cats[CategoryCache] {
		if snap.MangadexCache, err = st.MangadexCache(ctx); err != nil {
			return nil, err
		}
	}
	if cats[CategoryPersonalData] {
		if snap.PersonalData, err = st.PersonalData(ctx); err != nil {
			return nil, err
		}
	}
	if cats[CategoryMarkers] {
		if snap.Markers, err = st.Markers(ctx); err != nil {
			return nil, err
		}
		if snap.Markers == nil {
			snap.Markers = []models.Marker{}
		}
	}
	if cats[CategorySettings] {
		if snap.Settings, err = st.Settings(ctx); err != nil {
			return nil, err
		}
	}
	return snap, nil
}

// Parse decodes and validates an export document, gzip-compressed or not.
// Nothing is written.
func Parse(data []byte) (*Snapshot, error) {
	data, err := maybeDecompress(data)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidSnapshot, "decompress: %v", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, errors.Wrapf(ErrInvalidSnapshot, "%v", err)
	}
	if err := checkVersion(snap.Metadata); err != nil {
		return nil, err
	}
	if snap.Empty() {
		return nil, errors.Wrap(ErrInvalidSnapshot, "document carries no library data")
	}
	return &snap, nil
}

// checkVersion accepts documents without a version and any version with
// the current major.
func checkVersion(meta *Metadata) error {
	if meta == nil || meta.Version == "" {
		return nil
	}
	v, err := semver.NewVersion(meta.Version)
	if err != nil {
		return errors.Wrapf(ErrUnsupportedVersion, "unparseable version %q", meta.Version)
	}
	current := semver.MustParse(FormatVersion)
	if v.Major() != current.Major() {
		return errors.Wrapf(ErrUnsupportedVersion, "version %s, want %d.x", v, current.Major())
	}
	return nil
}

// Import validates data and then applies it in the given mode. Invalid
// input is refused before anything is written.
func (s *Service) Import(ctx context.Context, data []byte, mode Mode) (ImportResult, error) {
	if _, err := ParseMode(string(mode)); err != nil {
		return ImportResult{}, err
	}
	snap, err := Parse(data)
	if err != nil {
		return ImportResult{}, err
	}
	return s.Apply(ctx, *snap, mode)
}

// Apply writes an already validated snapshot.
func (s *Service) Apply(ctx context.Context, incoming Snapshot, mode Mode) (ImportResult, error) {
	res := ImportResult{Mode: mode}
	err := s.engine.Exclusive(ctx, func(ctx context.Context, st *store.Store) error {
		target := incoming
		if mode == ModeMerge {
			local, err := load(ctx, st, AllCategories)
			if err != nil {
				return err
			}
			target = MergeSnapshots(*local, incoming)
		}
		if target.Entries != nil {
			deduped := library.Dedupe(target.Entries)
			res.DuplicatesCut = len(target.Entries) - len(deduped)
			target.Entries = deduped
		}
		res.Entries = len(target.Entries)
		res.Bookmarks = len(target.Bookmarks)
		res.HistoryKeys = len(target.History)
		res.Markers = len(target.Markers)
		return write(ctx, st.KV(), target, mode == ModeOverwrite)
	})
	if err != nil {
		return ImportResult{}, errors.Wrap(err, "transfer: import")
	}

	s.log.Info("snapshot imported",
		zap.String("mode", string(mode)),
		zap.Int("entries", res.Entries),
		zap.Int("duplicates_removed", res.DuplicatesCut))
	s.engine.Notify(ctx, library.LibraryUpdate{Action: "imported", Count: res.Entries})
	if err := s.pub.Publish(ctx, events.TopicImportDone, res); err != nil {
		s.log.Debug("publish failed", zap.Error(err))
	}
	return res, nil
}

// write stores every collection present in snap in one Set. With replace,
// the owned collections snap does not carry are removed.
func write(ctx context.Context, st kv.Store, snap Snapshot, replace bool) error {
	values := map[string]any{}
	var absent []string
	put := func(key string, present bool, v any) {
		if present {
			values[key] = v
		} else {
			absent = append(absent, key)
		}
	}
	put(store.KeyEntries, snap.Entries != nil, snap.Entries)
	put(store.KeyBookmarks, snap.Bookmarks != nil, snap.Bookmarks)
	put(store.KeyHistory, snap.History != nil, snap.History)
	put(store.KeyMangadexCache, snap.MangadexCache != nil, snap.MangadexCache)
	put(store.KeyPersonalData, snap.PersonalData != nil, snap.PersonalData)
	put(store.KeyMarkers, snap.Markers != nil, snap.Markers)
	for k, v := range snap.Settings {
		values[k] = v
	}

	if len(values) > 0 {
		if err := st.Set(ctx, values); err != nil {
			return err
		}
	}
	if replace && len(absent) > 0 {
		return st.Remove(ctx, absent...)
	}
	return nil
}
