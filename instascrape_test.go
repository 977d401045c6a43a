package instascrape

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tnychn/instascrape/pkg/auth"
	"github.com/tnychn/instascrape/pkg/config"
	errs "github.com/tnychn/instascrape/pkg/errors"
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

// loginServer serves the minimal endpoints a full password login touches.
// Extra handlers extend the mux before the server starts.
func loginServer(t *testing.T, extra ...func(*http.ServeMux)) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "csrftoken", Value: "tok"})
		fmt.Fprint(w, `<html><script type="text/javascript">window._sharedData = {"rhx_gis":"gis"};</script></html>`)
	})
	mux.HandleFunc("/api/v1/users/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"user":{"username":"johndoe"}}`)
	})
	mux.HandleFunc(instagram.LoginPath, func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "ds_user_id", Value: "42"})
		http.SetCookie(w, &http.Cookie{Name: "sessionid", Value: "sess"})
		fmt.Fprint(w, `{"status":"ok","authenticated":true,"user":true}`)
	})
	for _, register := range extra {
		register(mux)
	}
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestNewDefaults(t *testing.T) {
	c := New(nil)
	require.NotNil(t, c.Session())
	require.NotNil(t, c.Downloader())
	assert.False(t, c.Session().Authenticated())
}

func TestMeRequiresAuthentication(t *testing.T) {
	c := New(config.DefaultConfig())
	_, err := c.Me()
	assert.Equal(t, errs.KindAuthRequired, errs.KindOf(err))

	_, err = c.Explore()
	assert.Equal(t, errs.KindAuthRequired, errs.KindOf(err))
}

func TestSessionPersistenceRoundTrip(t *testing.T) {
	server := loginServer(t)
	store := auth.NewMemoryStore()

	c := New(testConfig(server.URL), WithStore(store), WithLogger(logger.NewTestLogger()))
	require.NoError(t, c.Login("johndoe", "hunter2"))
	require.NoError(t, c.SaveSession())

	resumed := New(testConfig(server.URL), WithStore(store))
	require.NoError(t, resumed.ResumeSession("johndoe"))
	assert.True(t, resumed.Session().Authenticated())
	assert.Equal(t, "johndoe", resumed.Session().Username())
	assert.Equal(t, "42", resumed.Session().UserID())

	require.NoError(t, c.ForgetSession("johndoe"))
	assert.Error(t, New(testConfig(server.URL), WithStore(store)).ResumeSession("johndoe"))
}

func TestSaveSessionWithoutStore(t *testing.T) {
	server := loginServer(t)
	c := New(testConfig(server.URL))
	require.NoError(t, c.Login("johndoe", "hunter2"))

	assert.Error(t, c.SaveSession())
	assert.Error(t, c.ResumeSession("johndoe"))
	assert.Error(t, c.ForgetSession("johndoe"))
}

func TestMeFetchesOwnProfile(t *testing.T) {
	server := loginServer(t, func(mux *http.ServeMux) {
		mux.HandleFunc("/johndoe/", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"graphql":{"user":{"username":"johndoe","edge_followed_by":{"count":7}}}}`)
		})
	})

	c := New(testConfig(server.URL))
	require.NoError(t, c.Login("johndoe", "hunter2"))

	me, err := c.Me()
	require.NoError(t, err)
	assert.Equal(t, "johndoe", me.Username())

	count, err := me.FollowersCount()
	require.NoError(t, err)
	assert.Equal(t, int64(7), count)
}

func TestDumpInfoWritesEntityFields(t *testing.T) {
	c := New(config.DefaultConfig())
	dest := t.TempDir()

	require.NoError(t, c.DumpInfo(dest, "stub", stubPost{likes: 5}))

	data, err := os.ReadFile(filepath.Join(dest, "stub.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"likes_count": 5`)
}

func TestPostFilterEvaluatesFields(t *testing.T) {
	f, err := PostFilter("likes_count > 100")
	require.NoError(t, err)

	keep, err := f(stubPost{likes: 250})
	require.NoError(t, err)
	assert.True(t, keep)

	keep, err = f(stubPost{likes: 3})
	require.NoError(t, err)
	assert.False(t, keep)
}

func TestPostFilterRejectsUnknownAttribute(t *testing.T) {
	_, err := PostFilter("follower_count > 100")
	var attrErr *errs.AttributeError
	require.ErrorAs(t, err, &attrErr)
	assert.Equal(t, "Post", attrErr.Entity)
	assert.Equal(t, "follower_count", attrErr.Name)
}

func TestFilterPassesNonExportingItems(t *testing.T) {
	f, err := ProfileFilter("is_private == false")
	require.NoError(t, err)

	keep, err := f(opaqueItem{})
	require.NoError(t, err)
	assert.True(t, keep)
}

// stubPost exports fields without hitting the network.
type stubPost struct {
	likes int64
}

func (p stubPost) Label() string       { return "Post(:stub)" }
func (p stubPost) EnsureLoaded() error { return nil }
func (p stubPost) Fields() (map[string]interface{}, error) {
	return map[string]interface{}{"likes_count": p.likes}, nil
}

// opaqueItem satisfies group.Item but exports nothing.
type opaqueItem struct{}

func (opaqueItem) Label() string       { return "opaque" }
func (opaqueItem) EnsureLoaded() error { return nil }
