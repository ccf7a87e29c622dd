// A shared test server setup utility, which simplifies all API tests.

package testutil

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vrsandeep/mango-tracker/internal/api"
	"github.com/vrsandeep/mango-tracker/internal/backup"
	"github.com/vrsandeep/mango-tracker/internal/config"
	"github.com/vrsandeep/mango-tracker/internal/core"
	"github.com/vrsandeep/mango-tracker/internal/providers"
	"github.com/vrsandeep/mango-tracker/internal/store"
	"go.uber.org/zap"
)

// TestServer bundles an api.Server with the fakes behind it.
type TestServer struct {
	Server    *api.Server
	App       *core.App
	Primary   *FakeProvider
	Secondary *FakeProvider
	Blobs     *backup.MemoryStore
	// Token is the bearer token generated for this app.
	Token string
}

// SetupTestApp assembles a core.App over an in-memory database with fake
// providers and an in-memory backup target.
func SetupTestApp(t *testing.T) (*core.App, *FakeProvider, *FakeProvider, *backup.MemoryStore) {
	t.Helper()
	primary, secondary := NewFakeProvider(nil), NewFakeProvider(nil)
	blobs := backup.NewMemoryStore()

	app, err := core.Assemble(context.Background(), core.Options{
		Config: &config.Config{},
		DB:     SetupTestDB(t),
		Logger: zap.NewNop(),
		Providers: func(*store.Store) (providers.MetadataProvider, providers.MetadataProvider) {
			return primary, secondary
		},
		Blobs: blobs,
	})
	if err != nil {
		t.Fatalf("Failed to assemble app: %v", err)
	}
	t.Cleanup(app.Close)
	return app, primary, secondary, blobs
}

// SetupTestServer initializes a full core.App and api.Server for integration testing.
func SetupTestServer(t *testing.T) *TestServer {
	t.Helper()
	app, primary, secondary, blobs := SetupTestApp(t)
	return &TestServer{
		Server:    api.NewServer(app),
		App:       app,
		Primary:   primary,
		Secondary: secondary,
		Blobs:     blobs,
		Token:     app.GeneratedToken,
	}
}

// Do sends an authenticated request through the router and returns the
// recorded response.
func (ts *TestServer) Do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if ts.Token != "" {
		req.Header.Set("Authorization", "Bearer "+ts.Token)
	}
	rr := httptest.NewRecorder()
	ts.Server.Router().ServeHTTP(rr, req)
	return rr
}

// DoRaw is Do without the token.
func (ts *TestServer) DoRaw(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	ts.Server.Router().ServeHTTP(rr, req)
	return rr
}
