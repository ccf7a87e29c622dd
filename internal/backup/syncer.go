package backup

import (
	"context"

	"github.com/pkg/errors"
	"github.com/vrsandeep/mango-tracker/internal/transfer"
	"go.uber.org/zap"
)

// SyncResult summarizes a Sync.
type SyncResult struct {
	RemoteFound bool                  `json:"remoteFound"`
	Import      transfer.ImportResult `json:"import"`
	Bytes       int                   `json:"bytes"`
}

// Syncer uploads the local snapshot and merges it with the remote one.
type Syncer struct {
	svc   *transfer.Service
	blobs BlobStore
	key   string
	log   *zap.Logger
}

func NewSyncer(svc *transfer.Service, blobs BlobStore, key string, log *zap.Logger) *Syncer {
	if key == "" {
		key = "mango-tracker/backup.json.gz"
	}
	return &Syncer{svc: svc, blobs: blobs, key: key, log: log.Named("backup")}
}

// Upload replaces the remote snapshot with the full local state.
func (s *Syncer) Upload(ctx context.Context) (int, error) {
	snap, err := s.svc.Export(ctx, transfer.AllCategories)
	if err != nil {
		return 0, err
	}
	data, err := transfer.Marshal(snap, true)
	if err != nil {
		return 0, err
	}
	if err := s.blobs.Put(ctx, s.key, data); err != nil {
		return 0, err
	}
	s.log.Info("backup uploaded", zap.String("key", s.key), zap.Int("bytes", len(data)))
	return len(data), nil
}

// Sync downloads the remote snapshot, merges it into the local state and
// uploads the merged result. A missing remote object counts as empty.
func (s *Syncer) Sync(ctx context.Context) (SyncResult, error) {
	var res SyncResult
	data, err := s.blobs.Get(ctx, s.key)
	switch {
	case errors.Is(err, ErrObjectNotFound):
		s.log.Info("no remote backup yet", zap.String("key", s.key))
	case err != nil:
		return res, err
	default:
		remote, err := transfer.Parse(data)
		if err != nil {
			return res, errors.Wrap(err, "backup: remote snapshot")
		}
		res.RemoteFound = true
		if res.Import, err = s.svc.Apply(ctx, *remote, transfer.ModeMerge); err != nil {
			return res, err
		}
	}

	if res.Bytes, err = s.Upload(ctx); err != nil {
		return res, err
	}
	return res, nil
}
