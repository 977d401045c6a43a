package instagram

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"

	"github.com/tidwall/gjson"

	"github.com/tnychn/instascrape/pkg/config"
	errs "github.com/tnychn/instascrape/pkg/errors"
	"github.com/tnychn/instascrape/pkg/logger"
)

// State is the authentication state of a Session.
type State int

const (
	StateAnonymous State = iota
	StateTwoFactorPending
	StateCheckpointPending
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateTwoFactorPending:
		return "two_factor_pending"
	case StateCheckpointPending:
		return "checkpoint_pending"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// ChallengeMode selects how a checkpoint challenge code is delivered.
type ChallengeMode int

const (
	ChallengeSMS   ChallengeMode = 0
	ChallengeEmail ChallengeMode = 1
)

// Session manages authentication against Instagram's private API and
// supplies the transport used by the query engine. Exactly one Session is
// live per client instance; it is created anonymous, mutated in place by the
// login flows, and reset to anonymous defaults by Logout.
type Session struct {
	cfg    *config.Config
	logger logger.Logger

	client *Client
	state  State

	userID   string
	username string

	rhxGis string

	twoFactor  *twoFactorPending
	checkpoint *checkpointPending
}

// twoFactorPending carries the partial session captured when Login hit the
// two-factor branch.
type twoFactorPending struct {
	client     *Client
	username   string
	identifier string
}

// checkpointPending carries the partial session captured when Login hit the
// checkpoint branch.
type checkpointPending struct {
	client *Client
	url    string
}

// NewSession creates an anonymous session.
func NewSession(cfg *config.Config, log logger.Logger) *Session {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if log == nil {
		log = logger.Nop()
	}

	httpClient := &http.Client{Timeout: cfg.HTTP.Timeout}
	if cfg.HTTP.Proxy != "" {
		if proxyURL, err := url.Parse(cfg.HTTP.Proxy); err == nil {
			httpClient.Transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
		}
	}

	s := &Session{
		cfg:    cfg,
		logger: log,
		state:  StateAnonymous,
	}
	s.client = s.newAnonymousClient(httpClient)
	return s
}

func (s *Session) newAnonymousClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = s.client.httpClient
	}
	cl := newClient(httpClient, s.cfg.HTTP.UserAgent, s.cfg.HTTP.RetryAttempts, s.logger)
	cl.baseURL = s.cfg.HTTP.BaseURL
	return cl
}

// Logger returns the session's logger handle for collaborators that log
// alongside session-issued fetches.
func (s *Session) Logger() logger.Logger {
	return s.logger
}

// State returns the session's authentication state.
func (s *Session) State() State {
	return s.state
}

// Authenticated reports whether the session is fully authenticated.
func (s *Session) Authenticated() bool {
	return s.state == StateAuthenticated
}

// UserID returns the authenticated user's id, or empty when anonymous.
func (s *Session) UserID() string {
	return s.userID
}

// Username returns the authenticated user's username, or empty when anonymous.
func (s *Session) Username() string {
	return s.username
}

// Cookies returns a copy of the session's cookie set, for persistence.
func (s *Session) Cookies() map[string]string {
	return s.client.Cookies()
}

// Login authenticates with a username and password.
//
// The returned error is a control-flow signal when the account needs a
// second step: TwoFactorRequiredError (follow with TwoFactorLogin) or
// CheckpointRequiredError (follow with CheckpointLogin).
func (s *Session) Login(username, password string) error {
	s.logger.Info("logging in...")
	cl := s.newAnonymousClient(nil)

	token, err := s.bootstrapCSRF(cl)
	if err != nil {
		return err
	}
	cl.SetHeader("X-CSRFToken", token)

	resp, err := cl.PostForm(s.cfg.HTTP.BaseURL+LoginPath, url.Values{
		"username": {username},
		"password": {password},
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &errs.NetworkError{Err: fmt.Errorf("failed to read login response: %w", err)}
	}
	data := gjson.ParseBytes(body)
	s.logger.DebugWithFields("login response", map[string]interface{}{"status": data.Get("status").String()})

	switch {
	case data.Get("two_factor_required").Exists():
		info := data.Get("two_factor_info")
		s.twoFactor = &twoFactorPending{
			client:     cl,
			username:   info.Get("username").String(),
			identifier: info.Get("two_factor_identifier").String(),
		}
		s.state = StateTwoFactorPending
		phone := info.Get("obfuscated_phone_number").String()
		s.logger.InfoWithFields("security code sent to phone", map[string]interface{}{"phone": "XXXX " + phone})
		return &errs.TwoFactorRequiredError{ObfuscatedPhone: phone}

	case data.Get("checkpoint_url").Exists():
		checkpointURL := data.Get("checkpoint_url").String()
		s.checkpoint = &checkpointPending{client: cl, url: checkpointURL}
		s.state = StateCheckpointPending
		s.logger.InfoWithFields("checkpoint challenge required", map[string]interface{}{"url": checkpointURL})
		return &errs.CheckpointRequiredError{URL: checkpointURL}

	case data.Get("status").String() != "ok" || !data.Get("authenticated").Bool():
		if user := data.Get("user"); user.Exists() && !user.Bool() {
			return &errs.LoginError{Message: "user does not exist", UserExists: false}
		}
		msg := data.Get("message").String()
		if msg == "" {
			msg = "wrong password"
		}
		return &errs.LoginError{Message: msg, UserExists: true}
	}

	if token := cl.Cookie("csrftoken"); token != "" {
		cl.SetHeader("X-CSRFToken", token)
	}
	s.client = cl
	return s.postLogin()
}

// LoginWithCookies adopts a previously saved cookie set and transitions
// directly to Authenticated without a password round-trip.
func (s *Session) LoginWithCookies(cookies map[string]string) error {
	s.logger.Info("logging in with provided cookies...")
	cl := s.newAnonymousClient(nil)
	cl.SetCookies(cookies)
	if token, ok := cookies["csrftoken"]; ok {
		cl.SetHeader("X-CSRFToken", token)
	}
	s.client = cl
	return s.postLogin()
}

// bootstrapCSRF obtains a csrftoken cookie, trying the landing page first
// and the __mid endpoint second.
func (s *Session) bootstrapCSRF(cl *Client) (string, error) {
	resp, err := cl.Get(s.cfg.HTTP.BaseURL, nil)
	if err != nil {
		return "", err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if token := cl.Cookie("csrftoken"); token != "" {
		return token, nil
	}

	s.logger.Debug("csrftoken not found on landing page, trying __mid endpoint")
	resp, err = cl.Get(s.cfg.HTTP.BaseURL+MidPath, nil)
	if err != nil {
		return "", err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if token := cl.Cookie("csrftoken"); token != "" {
		return token, nil
	}
	return "", &errs.ExtractionError{Message: "cannot find csrftoken from cookies"}
}

// TwoFactorLogin completes a login that required two-factor authentication.
// Valid only after Login returned TwoFactorRequiredError.
func (s *Session) TwoFactorLogin(code string) error {
	if s.state != StateTwoFactorPending || s.twoFactor == nil {
		return fmt.Errorf("no two-factor authentication pending")
	}
	pending := s.twoFactor
	cl := pending.client

	resp, err := cl.PostForm(s.cfg.HTTP.BaseURL+TwoFactorPath, url.Values{
		"username":         {pending.username},
		"identifier":       {pending.identifier},
		"verificationCode": {code},
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &errs.NetworkError{Err: fmt.Errorf("failed to read two-factor response: %w", err)}
	}
	data := gjson.ParseBytes(body)

	if data.Get("status").String() != "ok" || !data.Get("authenticated").Bool() {
		msg := data.Get("message").String()
		if msg == "" {
			msg = "incorrect security code"
		}
		return &errs.LoginError{Message: msg, UserExists: true}
	}

	if token := cl.Cookie("csrftoken"); token != "" {
		cl.SetHeader("X-CSRFToken", token)
	}
	s.client = cl
	s.twoFactor = nil
	return s.postLogin()
}

// CheckpointLogin performs the first step of checkpoint challenge solving
// (choosing how the security code is delivered) and returns a continuation
// that performs the second step with the received code. Valid only after
// Login returned CheckpointRequiredError.
func (s *Session) CheckpointLogin(mode ChallengeMode) (func(code string) error, error) {
	if mode != ChallengeSMS && mode != ChallengeEmail {
		return nil, fmt.Errorf("invalid challenge mode: %d", mode)
	}
	if s.state != StateCheckpointPending || s.checkpoint == nil {
		return nil, fmt.Errorf("no checkpoint challenge pending")
	}
	pending := s.checkpoint
	cl := pending.client
	challengeURL := s.cfg.HTTP.BaseURL + pending.url

	resp, err := cl.Get(challengeURL, nil)
	if err != nil {
		return nil, err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if token := cl.Cookie("csrftoken"); token != "" {
		cl.SetHeader("X-CSRFToken", token)
	}
	cl.SetHeader("Referer", challengeURL)

	resp, err = cl.PostForm(challengeURL, url.Values{
		"choice": {strconv.Itoa(int(mode))},
	})
	if err != nil {
		return nil, err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if token := cl.Cookie("csrftoken"); token != "" {
		cl.SetHeader("X-CSRFToken", token)
	}

	continuation := func(code string) error {
		resp, err := cl.PostForm(challengeURL, url.Values{
			"security_code": {code},
		})
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return &errs.NetworkError{Err: fmt.Errorf("failed to read checkpoint response: %w", err)}
		}
		data := gjson.ParseBytes(body)
		if data.Get("status").String() != "ok" {
			msg := data.Get("message").String()
			if msg == "" {
				msg = "incorrect security code"
			}
			return &errs.LoginError{Message: msg, UserExists: true}
		}

		if token := cl.Cookie("csrftoken"); token != "" {
			cl.SetHeader("X-CSRFToken", token)
		}
		s.client = cl
		s.checkpoint = nil
		return s.postLogin()
	}
	return continuation, nil
}

// postLogin derives the user identity from the adopted cookie set and
// finalizes the transition to Authenticated.
func (s *Session) postLogin() error {
	s.rhxGis = ""
	s.userID = s.client.Cookie("ds_user_id")

	username, err := s.UsernameByID(s.userID)
	if err != nil {
		return fmt.Errorf("failed to resolve own username: %w", err)
	}
	s.username = username
	s.state = StateAuthenticated
	s.logger.InfoWithFields("logged in", map[string]interface{}{
		"username": s.username,
		"user_id":  s.userID,
	})
	return nil
}

// Logout drops the session. When real is false only the local state is
// reset (a local pause); when true the server-side session is invalidated
// first. Fails with AuthenticationRequiredError while anonymous.
func (s *Session) Logout(real bool) error {
	if s.state != StateAuthenticated {
		return &errs.AuthenticationRequiredError{}
	}
	s.logger.Info("logging out...")

	if real {
		resp, err := s.client.PostForm(s.cfg.HTTP.BaseURL+LogoutPath, url.Values{
			"csrfmiddlewaretoken": {s.client.Header("X-CSRFToken")},
		})
		if err != nil {
			return err
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}

	s.client = s.newAnonymousClient(nil)
	s.rhxGis = ""
	s.userID = ""
	s.username = ""
	s.state = StateAnonymous
	s.logger.Debug("logged out")
	return nil
}

// UsernameByID resolves a user id to a username through the mobile API.
func (s *Session) UsernameByID(id string) (string, error) {
	cl := s.client.Clone()
	resp, err := cl.Get(UserInfoURL(s.cfg.HTTP.APIBaseURL, id), map[string]string{
		"User-Agent": mobileUserAgent,
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", &errs.NotFoundError{Message: fmt.Sprintf("no user with ID %s is found", id)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &errs.NetworkError{Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &errs.NetworkError{Err: fmt.Errorf("failed to read user info response: %w", err)}
	}
	username := gjson.GetBytes(body, "user.username")
	if !username.Exists() {
		return "", &errs.ExtractionError{Message: "username not found in user info"}
	}
	return username.String(), nil
}

var sharedDataPattern = regexp.MustCompile(`window\._sharedData = (.+?);</script>`)

// rhxGIS returns the signing variable for anonymous GraphQL queries,
// fetching and memoizing it from the landing page's shared data on first use.
func (s *Session) rhxGIS() (string, error) {
	if s.rhxGis != "" {
		return s.rhxGis, nil
	}
	s.logger.Debug("fetching rhx_gis variable")

	resp, err := s.client.Clone().Get(s.cfg.HTTP.BaseURL, nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &errs.NetworkError{Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &errs.NetworkError{Err: fmt.Errorf("failed to read landing page: %w", err)}
	}
	match := sharedDataPattern.FindSubmatch(body)
	if match == nil {
		return "", &errs.ExtractionError{Message: "rhx_gis variable not found"}
	}
	gis := gjson.GetBytes(match[1], "rhx_gis")
	if !gis.Exists() {
		return "", &errs.ExtractionError{Message: "rhx_gis variable not found"}
	}
	s.rhxGis = gis.String()
	return s.rhxGis, nil
}

// gisSignature computes the X-Instagram-Gis header value for an anonymous
// GraphQL query over the serialized variables.
func gisSignature(rhxGis, variablesJSON string) string {
	sum := md5.Sum([]byte(rhxGis + ":" + variablesJSON))
	return hex.EncodeToString(sum[:])
}

// sessionBlob is the serialized form persisted to the blob store.
type sessionBlob struct {
	Cookies  map[string]string `json:"cookies"`
	Username string            `json:"username"`
	UserID   string            `json:"user_id"`
}

// Export serializes the authenticated session's cookies for persistence.
func (s *Session) Export() ([]byte, error) {
	if s.state != StateAuthenticated {
		return nil, &errs.AuthenticationRequiredError{}
	}
	return json.Marshal(sessionBlob{
		Cookies:  s.Cookies(),
		Username: s.username,
		UserID:   s.userID,
	})
}

// Restore adopts a previously exported session blob, transitioning to
// Authenticated without contacting the remote service.
func (s *Session) Restore(blob []byte) error {
	var saved sessionBlob
	if err := json.Unmarshal(blob, &saved); err != nil {
		return fmt.Errorf("failed to decode session blob: %w", err)
	}

	cl := s.newAnonymousClient(nil)
	cl.SetCookies(saved.Cookies)
	if token, ok := saved.Cookies["csrftoken"]; ok {
		cl.SetHeader("X-CSRFToken", token)
	}

	s.client = cl
	s.rhxGis = ""
	s.userID = saved.UserID
	s.username = saved.Username
	s.state = StateAuthenticated
	s.logger.InfoWithFields("session restored", map[string]interface{}{"username": s.username})
	return nil
}
