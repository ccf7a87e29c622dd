// Package kv is the persisted key-value state of the tracker. It mirrors the
// browser extension's storage area: flat keys holding JSON documents, read
// and written whole.
package kv

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
)

// ErrClosed is returned by stores that have been closed.
var ErrClosed = errors.New("kv: store closed")

// Store is the storage contract the reconciliation core depends on. There is
// no compare-and-swap; callers serialize their own read-modify-write cycles.
type Store interface {
	// Get returns the raw JSON value of every requested key that exists.
	Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error)
	// Set writes all values, JSON-encoded, as one unit.
	Set(ctx context.Context, values map[string]any) error
	// Remove deletes the given keys. Missing keys are ignored.
	Remove(ctx context.Context, keys ...string) error
}

// GetJSON decodes a single key into out. It reports false if the key is
// absent.
func GetJSON(ctx context.Context, s Store, key string, out any) (bool, error) {
	values, err := s.Get(ctx, key)
	if err != nil {
		return false, err
	}
	raw, ok := values[key]
	if !ok || len(raw) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return true, errors.Wrapf(err, "kv: decode %q", key)
	}
	return true, nil
}

func encode(values map[string]any) (map[string][]byte, error) {
	out := make(map[string][]byte, len(values))
	for k, v := range values {
		if raw, ok := v.(json.RawMessage); ok {
			out[k] = append([]byte(nil), raw...)
			continue
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, errors.Wrapf(err, "kv: encode %q", k)
		}
		out[k] = b
	}
	return out, nil
}
