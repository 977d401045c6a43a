package instagram

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tnychn/instascrape/pkg/config"
	errs "github.com/tnychn/instascrape/pkg/errors"
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

// restoredSession builds an authenticated session without network traffic.
func restoredSession(t *testing.T, cfg *config.Config) *Session {
	t.Helper()
	blob, err := json.Marshal(sessionBlob{
		Cookies:  map[string]string{"csrftoken": "tok", "ds_user_id": "42", "sessionid": "sess"},
		Username: "johndoe",
		UserID:   "42",
	})
	require.NoError(t, err)

	s := NewSession(cfg, logger.NewTestLogger())
	require.NoError(t, s.Restore(blob))
	return s
}

func landingPage(csrf string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if csrf != "" {
			http.SetCookie(w, &http.Cookie{Name: "csrftoken", Value: csrf})
		}
		fmt.Fprint(w, `<html><script type="text/javascript">window._sharedData = {"rhx_gis":"gisvalue"};</script></html>`)
	}
}

func userInfo(username string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"user":{"username":%q}}`, username)
	}
}

func TestLoginSuccess(t *testing.T) {
	var loginCSRF string
	mux := http.NewServeMux()
	mux.HandleFunc("/", landingPage("csrf-1"))
	mux.HandleFunc("/api/v1/users/", userInfo("johndoe"))
	mux.HandleFunc(LoginPath, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "johndoe", r.PostForm.Get("username"))
		assert.Equal(t, "hunter2", r.PostForm.Get("password"))
		loginCSRF = r.Header.Get("X-CSRFToken")
		http.SetCookie(w, &http.Cookie{Name: "ds_user_id", Value: "42"})
		http.SetCookie(w, &http.Cookie{Name: "csrftoken", Value: "csrf-2"})
		fmt.Fprint(w, `{"status":"ok","authenticated":true,"user":true}`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	s := NewSession(testConfig(server.URL), logger.NewTestLogger())
	require.NoError(t, s.Login("johndoe", "hunter2"))

	assert.Equal(t, "csrf-1", loginCSRF)
	assert.Equal(t, StateAuthenticated, s.State())
	assert.Equal(t, "42", s.UserID())
	assert.Equal(t, "johndoe", s.Username())
	assert.Equal(t, "csrf-2", s.client.Header("X-CSRFToken"))
}

func TestLoginFailures(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		wantUserExists bool
	}{
		{"wrong password", `{"status":"ok","authenticated":false,"user":true}`, true},
		{"user does not exist", `{"status":"ok","authenticated":false,"user":false}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("/", landingPage("csrf-1"))
			mux.HandleFunc(LoginPath, func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, tt.body)
			})
			server := httptest.NewServer(mux)
			defer server.Close()

			s := NewSession(testConfig(server.URL), logger.NewTestLogger())
			err := s.Login("johndoe", "wrong")

			var loginErr *errs.LoginError
			require.ErrorAs(t, err, &loginErr)
			assert.Equal(t, tt.wantUserExists, loginErr.UserExists)
			assert.Equal(t, StateAnonymous, s.State())
		})
	}
}

func TestLoginCSRFBootstrapFallsBackToMid(t *testing.T) {
	var midHit bool
	mux := http.NewServeMux()
	mux.HandleFunc("/", landingPage(""))
	mux.HandleFunc("/api/v1/users/", userInfo("johndoe"))
	mux.HandleFunc(MidPath, func(w http.ResponseWriter, r *http.Request) {
		midHit = true
		http.SetCookie(w, &http.Cookie{Name: "csrftoken", Value: "mid-csrf"})
	})
	mux.HandleFunc(LoginPath, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "mid-csrf", r.Header.Get("X-CSRFToken"))
		http.SetCookie(w, &http.Cookie{Name: "ds_user_id", Value: "42"})
		fmt.Fprint(w, `{"status":"ok","authenticated":true,"user":true}`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	s := NewSession(testConfig(server.URL), logger.NewTestLogger())
	require.NoError(t, s.Login("johndoe", "hunter2"))
	assert.True(t, midHit)
}

func TestLoginCSRFBootstrapFails(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", landingPage(""))
	mux.HandleFunc(MidPath, func(w http.ResponseWriter, r *http.Request) {})
	server := httptest.NewServer(mux)
	defer server.Close()

	s := NewSession(testConfig(server.URL), logger.NewTestLogger())
	err := s.Login("johndoe", "hunter2")
	assert.Equal(t, errs.KindExtraction, errs.KindOf(err))
}

func TestTwoFactorLoginFlow(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", landingPage("csrf-1"))
	mux.HandleFunc("/api/v1/users/", userInfo("johndoe"))
	mux.HandleFunc(LoginPath, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"fail","two_factor_required":true,"two_factor_info":{"username":"johndoe","two_factor_identifier":"tfid","obfuscated_phone_number":"1234"}}`)
	})
	mux.HandleFunc(TwoFactorPath, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "johndoe", r.PostForm.Get("username"))
		assert.Equal(t, "tfid", r.PostForm.Get("identifier"))
		assert.Equal(t, "123456", r.PostForm.Get("verificationCode"))
		http.SetCookie(w, &http.Cookie{Name: "ds_user_id", Value: "42"})
		fmt.Fprint(w, `{"status":"ok","authenticated":true}`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	s := NewSession(testConfig(server.URL), logger.NewTestLogger())

	err := s.Login("johndoe", "hunter2")
	var tfErr *errs.TwoFactorRequiredError
	require.ErrorAs(t, err, &tfErr)
	assert.Equal(t, "1234", tfErr.ObfuscatedPhone)
	assert.Equal(t, StateTwoFactorPending, s.State())

	require.NoError(t, s.TwoFactorLogin("123456"))
	assert.Equal(t, StateAuthenticated, s.State())
	assert.Equal(t, "johndoe", s.Username())
}

func TestTwoFactorLoginWithoutPending(t *testing.T) {
	s := NewSession(testConfig("http://unused"), logger.NewTestLogger())
	assert.Error(t, s.TwoFactorLogin("123456"))
}

func TestCheckpointLoginFlow(t *testing.T) {
	var choice string
	mux := http.NewServeMux()
	mux.HandleFunc("/", landingPage("csrf-1"))
	mux.HandleFunc("/api/v1/users/", userInfo("johndoe"))
	mux.HandleFunc(LoginPath, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"fail","checkpoint_url":"/challenge/42/abcdef/"}`)
	})
	mux.HandleFunc("/challenge/42/abcdef/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			http.SetCookie(w, &http.Cookie{Name: "csrftoken", Value: "challenge-csrf"})
			return
		}
		require.NoError(t, r.ParseForm())
		if c := r.PostForm.Get("choice"); c != "" {
			choice = c
			fmt.Fprint(w, `{"status":"ok"}`)
			return
		}
		assert.Equal(t, "654321", r.PostForm.Get("security_code"))
		http.SetCookie(w, &http.Cookie{Name: "ds_user_id", Value: "42"})
		fmt.Fprint(w, `{"status":"ok"}`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	s := NewSession(testConfig(server.URL), logger.NewTestLogger())

	err := s.Login("johndoe", "hunter2")
	var cpErr *errs.CheckpointRequiredError
	require.ErrorAs(t, err, &cpErr)
	assert.Equal(t, "/challenge/42/abcdef/", cpErr.URL)
	assert.Equal(t, StateCheckpointPending, s.State())

	resume, err := s.CheckpointLogin(ChallengeEmail)
	require.NoError(t, err)
	assert.Equal(t, "1", choice)

	require.NoError(t, resume("654321"))
	assert.Equal(t, StateAuthenticated, s.State())
}

func TestCheckpointLoginInvalidMode(t *testing.T) {
	s := NewSession(testConfig("http://unused"), logger.NewTestLogger())
	_, err := s.CheckpointLogin(ChallengeMode(3))
	assert.Error(t, err)
}

func TestLoginWithCookies(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/users/", userInfo("johndoe"))
	server := httptest.NewServer(mux)
	defer server.Close()

	s := NewSession(testConfig(server.URL), logger.NewTestLogger())
	err := s.LoginWithCookies(map[string]string{
		"csrftoken":  "tok",
		"ds_user_id": "42",
		"sessionid":  "sess",
	})

	require.NoError(t, err)
	assert.Equal(t, StateAuthenticated, s.State())
	assert.Equal(t, "42", s.UserID())
	assert.Equal(t, "johndoe", s.Username())
}

func TestLogout(t *testing.T) {
	t.Run("requires authentication", func(t *testing.T) {
		s := NewSession(testConfig("http://unused"), logger.NewTestLogger())
		err := s.Logout(true)
		assert.Equal(t, errs.KindAuthRequired, errs.KindOf(err))
	})

	t.Run("real logout hits the endpoint", func(t *testing.T) {
		var logoutHit bool
		mux := http.NewServeMux()
		mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {})
		mux.HandleFunc(LogoutPath, func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "tok", r.PostForm.Get("csrfmiddlewaretoken"))
			logoutHit = true
		})
		server := httptest.NewServer(mux)
		defer server.Close()

		s := restoredSession(t, testConfig(server.URL))
		require.NoError(t, s.Logout(true))

		assert.True(t, logoutHit)
		assert.Equal(t, StateAnonymous, s.State())
		assert.Empty(t, s.Username())
		assert.Empty(t, s.UserID())
	})

	t.Run("local logout skips the endpoint", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Error("local logout must not contact the server")
		}))
		defer server.Close()

		s := restoredSession(t, testConfig(server.URL))
		require.NoError(t, s.Logout(false))
		assert.Equal(t, StateAnonymous, s.State())
	})
}

func TestExportRestoreRoundTrip(t *testing.T) {
	cfg := testConfig("http://unused")
	s := restoredSession(t, cfg)

	blob, err := s.Export()
	require.NoError(t, err)

	restored := NewSession(cfg, logger.NewTestLogger())
	require.NoError(t, restored.Restore(blob))

	assert.Equal(t, StateAuthenticated, restored.State())
	assert.Equal(t, s.Username(), restored.Username())
	assert.Equal(t, s.UserID(), restored.UserID())
	assert.Equal(t, s.Cookies(), restored.Cookies())
}

func TestExportRequiresAuthentication(t *testing.T) {
	s := NewSession(testConfig("http://unused"), logger.NewTestLogger())
	_, err := s.Export()
	assert.Equal(t, errs.KindAuthRequired, errs.KindOf(err))
}

func TestAnonymousGraphQLIsSigned(t *testing.T) {
	var gotSig, variablesJSON string
	mux := http.NewServeMux()
	mux.HandleFunc("/", landingPage("csrf-1"))
	mux.HandleFunc("/graphql/query/", func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Instagram-Gis")
		variablesJSON = r.URL.Query().Get("variables")
		fmt.Fprint(w, `{"status":"ok","data":{"user":{"id":"1"}}}`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	s := NewSession(testConfig(server.URL), logger.NewTestLogger())
	data, err := s.GraphQL(QueryHashTimeline, map[string]interface{}{"id": "1"})

	require.NoError(t, err)
	assert.Equal(t, "1", data.Get("user.id").String())
	assert.Equal(t, gisSignature("gisvalue", variablesJSON), gotSig)
}

func TestAuthenticatedGraphQLIsNotSigned(t *testing.T) {
	var sawSig bool
	mux := http.NewServeMux()
	mux.HandleFunc("/graphql/query/", func(w http.ResponseWriter, r *http.Request) {
		sawSig = r.Header.Get("X-Instagram-Gis") != ""
		fmt.Fprint(w, `{"status":"ok","data":{}}`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	s := restoredSession(t, testConfig(server.URL))
	_, err := s.GraphQL(QueryHashTimeline, map[string]interface{}{"id": "1"})

	require.NoError(t, err)
	assert.False(t, sawSig)
}

func TestUsernameByIDUsesUserInfoEndpoint(t *testing.T) {
	var gotPath, gotAgent string
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/users/", func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAgent = r.Header.Get("User-Agent")
		userInfo("johndoe")(w, r)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	s := restoredSession(t, testConfig(server.URL))
	username, err := s.UsernameByID("42")
	require.NoError(t, err)
	assert.Equal(t, "johndoe", username)
	assert.Equal(t, "/api/v1/users/42/info/", gotPath)
	assert.Equal(t, mobileUserAgent, gotAgent)
}

func TestUsernameByIDNotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/users/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	s := restoredSession(t, testConfig(server.URL))
	_, err := s.UsernameByID("404")
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))
}
