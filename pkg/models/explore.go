package models

import (
	"github.com/tidwall/gjson"

	errs "github.com/tnychn/instascrape/pkg/errors"
	"github.com/tnychn/instascrape/pkg/instagram"
)

// Explore is the discover section's feed.
type Explore struct {
	session *instagram.Session
}

// NewExplore creates the explore feed accessor.
func NewExplore(session *instagram.Session) *Explore {
	return &Explore{session: session}
}

// Posts retrieves the explore feed. Requires an authenticated session.
func (e *Explore) Posts() (*PostGroup, error) {
	if !e.session.Authenticated() {
		return nil, &errs.AuthenticationRequiredError{}
	}
	e.session.Logger().Info("retrieving explore posts...")
	edges, err := e.session.QueryEdges(instagram.EdgeQuery{
		Hash:           instagram.QueryHashExplore,
		Variables:      map[string]interface{}{},
		ConnectionPath: "user.edge_web_discover_media",
	})
	if err != nil {
		return nil, err
	}
	return newPostGroup(e.session, edges, func(node gjson.Result) groupItem {
		return NewPost(e.session, node)
	}), nil
}
