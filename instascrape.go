// Package instascrape is a client for Instagram's private web API. It wraps
// session management, paginated GraphQL queries, lazy entity collections,
// expression-based filtering and media downloading behind one entry point.
package instascrape

import (
	"fmt"

	"github.com/tnychn/instascrape/pkg/auth"
	"github.com/tnychn/instascrape/pkg/config"
	"github.com/tnychn/instascrape/pkg/download"
	errs "github.com/tnychn/instascrape/pkg/errors"
	"github.com/tnychn/instascrape/pkg/filter"
	"github.com/tnychn/instascrape/pkg/group"
	"github.com/tnychn/instascrape/pkg/instagram"
	"github.com/tnychn/instascrape/pkg/logger"
	"github.com/tnychn/instascrape/pkg/models"
)

// Client is the top-level entry point. It owns one session, one downloader
// and an optional blob store for session persistence.
type Client struct {
	cfg        *config.Config
	logger     logger.Logger
	session    *instagram.Session
	downloader *download.Downloader
	store      auth.Store
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger handle threaded through every component.
func WithLogger(log logger.Logger) Option {
	return func(c *Client) { c.logger = log }
}

// WithStore sets the blob store used to persist and resume sessions.
func WithStore(store auth.Store) Option {
	return func(c *Client) { c.store = store }
}

// New creates a client with an anonymous session.
func New(cfg *config.Config, opts ...Option) *Client {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	c := &Client{cfg: cfg}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logger.Nop()
	}
	c.session = instagram.NewSession(cfg, c.logger)
	c.downloader = download.New(cfg, c.logger)
	return c
}

// Session exposes the underlying session for advanced use.
func (c *Client) Session() *instagram.Session {
	return c.session
}

// Downloader exposes the media downloader.
func (c *Client) Downloader() *download.Downloader {
	return c.downloader
}

// Login authenticates with a username and password. See Session.Login for
// the two-factor and checkpoint control-flow errors.
func (c *Client) Login(username, password string) error {
	return c.session.Login(username, password)
}

// LoginWithCookies adopts a previously saved cookie set.
func (c *Client) LoginWithCookies(cookies map[string]string) error {
	return c.session.LoginWithCookies(cookies)
}

// TwoFactorLogin completes a login that required two-factor authentication.
func (c *Client) TwoFactorLogin(code string) error {
	return c.session.TwoFactorLogin(code)
}

// CheckpointLogin starts checkpoint challenge solving and returns the
// continuation that completes it with the received security code.
func (c *Client) CheckpointLogin(mode instagram.ChallengeMode) (func(code string) error, error) {
	return c.session.CheckpointLogin(mode)
}

// Logout drops the session, invalidating it server-side when real is true.
func (c *Client) Logout(real bool) error {
	return c.session.Logout(real)
}

// SaveSession persists the authenticated session to the blob store under
// the account's username.
func (c *Client) SaveSession() error {
	if c.store == nil {
		return fmt.Errorf("no session store configured")
	}
	blob, err := c.session.Export()
	if err != nil {
		return err
	}
	return c.store.Save(c.session.Username(), blob)
}

// ResumeSession restores a previously saved session for the given username
// without a password round-trip.
func (c *Client) ResumeSession(username string) error {
	if c.store == nil {
		return fmt.Errorf("no session store configured")
	}
	blob, err := c.store.Load(username)
	if err != nil {
		return err
	}
	return c.session.Restore(blob)
}

// ForgetSession removes a saved session from the blob store.
func (c *Client) ForgetSession(username string) error {
	if c.store == nil {
		return fmt.Errorf("no session store configured")
	}
	return c.store.Remove(username)
}

// Me returns the authenticated user's own profile. Requires an
// authenticated session.
func (c *Client) Me() (*models.Profile, error) {
	if !c.session.Authenticated() {
		return nil, &errs.AuthenticationRequiredError{}
	}
	return models.ProfileByUsername(c.session, c.session.Username())
}

// Profile fetches a profile by username.
func (c *Client) Profile(username string) (*models.Profile, error) {
	return models.ProfileByUsername(c.session, username)
}

// ProfileByID fetches a profile by user id, resolving the username first.
func (c *Client) ProfileByID(id string) (*models.Profile, error) {
	return models.ProfileByID(c.session, id)
}

// Post fetches a post by shortcode.
func (c *Client) Post(shortcode string) (*models.Post, error) {
	return models.PostByShortcode(c.session, shortcode)
}

// Hashtag fetches a hashtag by tag name.
func (c *Client) Hashtag(tagname string) (*models.Hashtag, error) {
	return models.HashtagByName(c.session, tagname)
}

// Explore returns the discover feed accessor. Requires an authenticated
// session.
func (c *Client) Explore() (*models.Explore, error) {
	if !c.session.Authenticated() {
		return nil, &errs.AuthenticationRequiredError{}
	}
	return models.NewExplore(c.session), nil
}

// fielder is satisfied by entities that export their informational fields.
type fielder interface {
	Fields() (map[string]interface{}, error)
}

// DumpInfo writes an entity's exported fields to destDir/name.json. The
// write is skipped when the file already holds identical data.
func (c *Client) DumpInfo(destDir, name string, entity fielder) error {
	fields, err := entity.Fields()
	if err != nil {
		return err
	}
	return c.downloader.DumpJSON(destDir, name, fields)
}

// compileFilter builds a group filter from a user expression and an entity
// field whitelist. Hydration happens on demand when the expression touches a
// field the item's initial node does not carry.
func compileFilter(expression, entity string, whitelist []string) (group.Filter, error) {
	predicate, err := filter.Compile(expression, entity, whitelist)
	if err != nil {
		return nil, err
	}
	return func(item group.Item) (bool, error) {
		f, ok := item.(fielder)
		if !ok {
			return true, nil
		}
		fields, err := f.Fields()
		if err != nil {
			return false, err
		}
		return predicate.Evaluate(fields)
	}, nil
}

// PostFilter compiles a filter expression over post fields, for use with
// post groups.
func PostFilter(expression string) (group.Filter, error) {
	return compileFilter(expression, "Post", models.PostFields)
}

// ProfileFilter compiles a filter expression over profile fields, for use
// with follower/following groups.
func ProfileFilter(expression string) (group.Filter, error) {
	return compileFilter(expression, "Profile", models.ProfileFields)
}

// CommentFilter compiles a filter expression over comment fields.
func CommentFilter(expression string) (group.Filter, error) {
	return compileFilter(expression, "Comment", models.CommentFields)
}
