package models

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tnychn/instascrape/pkg/config"
	"github.com/tnychn/instascrape/pkg/instagram"
	"github.com/tnychn/instascrape/pkg/logger"
)

func testConfig(serverURL string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.HTTP.BaseURL = serverURL
	cfg.HTTP.APIBaseURL = serverURL
	cfg.HTTP.Timeout = 5 * time.Second
	cfg.Query.PageDelayMin = 0
	cfg.Query.PageDelayMax = 0
	return cfg
}

// authSession builds an authenticated session without network traffic, so
// GraphQL requests need no anonymous signature bootstrap.
func authSession(t *testing.T, serverURL string) *instagram.Session {
	t.Helper()
	s := instagram.NewSession(testConfig(serverURL), logger.NewTestLogger())
	blob := `{"cookies":{"csrftoken":"tok","ds_user_id":"42","sessionid":"sess"},"username":"johndoe","user_id":"42"}`
	require.NoError(t, s.Restore([]byte(blob)))
	return s
}

func anonSession(t *testing.T, serverURL string) *instagram.Session {
	t.Helper()
	return instagram.NewSession(testConfig(serverURL), logger.NewTestLogger())
}

// jsonHandler writes a fixed JSON body.
func jsonHandler(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, body)
	}
}

// countingHandler wraps a handler and counts how many requests it served.
func countingHandler(h http.HandlerFunc) (http.HandlerFunc, *int) {
	count := new(int)
	return func(w http.ResponseWriter, r *http.Request) {
		*count++
		h(w, r)
	}, count
}

func newServer(t *testing.T, mux *http.ServeMux) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}
