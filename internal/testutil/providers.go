package testutil

import (
	"context"
	"sync"

	"github.com/vrsandeep/mango-tracker/internal/models"
)

// FakeProvider is a scripted metadata provider. Lookups are answered from
// Results by exact title; unknown titles are not found.
type FakeProvider struct {
	mu      sync.Mutex
	Results map[string]*models.CatalogMetadata
	ByID    map[models.ProviderID]*models.CatalogMetadata
	calls   []string

	// Hook runs before every title lookup, outside the fake's lock.
	Hook func(ctx context.Context, title string)
}

// NewFakeProvider returns a provider that knows the given records.
func NewFakeProvider(results map[string]*models.CatalogMetadata) *FakeProvider {
	if results == nil {
		results = map[string]*models.CatalogMetadata{}
	}
	return &FakeProvider{Results: results, ByID: map[models.ProviderID]*models.CatalogMetadata{}}
}

func (f *FakeProvider) FetchByTitle(ctx context.Context, title string) (*models.CatalogMetadata, error) {
	f.mu.Lock()
	f.calls = append(f.calls, title)
	hook := f.Hook
	f.mu.Unlock()

	if hook != nil {
		hook(ctx, title)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Results[title].Clone(), nil
}

func (f *FakeProvider) FetchByID(ctx context.Context, id models.ProviderID) (*models.CatalogMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "id:"+id.String())
	return f.ByID[id].Clone(), nil
}

// Calls returns every lookup made so far, in order. ID lookups are
// prefixed with "id:".
func (f *FakeProvider) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// CallCount returns the number of lookups made so far.
func (f *FakeProvider) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// Set adds or replaces a record.
func (f *FakeProvider) Set(title string, meta *models.CatalogMetadata) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Results[title] = meta
}
