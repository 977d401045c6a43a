package instagram

import (
	"math/rand"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	errs "github.com/tnychn/instascrape/pkg/errors"
)

// unknownTotal is reported when a connection carries no count field; the
// consumer treats it as "page until exhausted".
const unknownTotal = int(1e10)

// topPostsTotal is the fixed size of a hashtag's top posts section, which
// carries no count field of its own.
const topPostsTotal = 9

// GraphQL performs a single GraphQL query and returns its data subtree.
// Anonymous sessions sign the request with the rhx_gis variable.
func (s *Session) GraphQL(queryHash string, variables map[string]interface{}) (gjson.Result, error) {
	rawURL, variablesJSON, err := GraphQLURL(s.cfg.HTTP.BaseURL, queryHash, variables)
	if err != nil {
		return gjson.Result{}, err
	}

	var headers map[string]string
	if s.state != StateAuthenticated {
		gis, err := s.rhxGIS()
		if err != nil {
			return gjson.Result{}, err
		}
		headers = map[string]string{"X-Instagram-Gis": gisSignature(gis, variablesJSON)}
	}
	return s.client.FetchJSON(rawURL, headers)
}

// FetchProfile fetches a profile's full data node by username.
func (s *Session) FetchProfile(username string) (gjson.Result, error) {
	data, err := s.client.FetchJSON(ProfileURL(s.cfg.HTTP.BaseURL, username), nil)
	if err != nil {
		return gjson.Result{}, err
	}
	return data.Get("user"), nil
}

// FetchPost fetches a post's full data node by shortcode.
func (s *Session) FetchPost(shortcode string) (gjson.Result, error) {
	data, err := s.client.FetchJSON(PostURL(s.cfg.HTTP.BaseURL, shortcode), nil)
	if err != nil {
		return gjson.Result{}, err
	}
	return data.Get("shortcode_media"), nil
}

// FetchHashtag fetches a hashtag's full data node by tag name.
func (s *Session) FetchHashtag(tagname string) (gjson.Result, error) {
	data, err := s.client.FetchJSON(HashtagURL(s.cfg.HTTP.BaseURL, tagname), nil)
	if err != nil {
		return gjson.Result{}, err
	}
	return data.Get("hashtag"), nil
}

// EdgeQuery describes a paginated GraphQL connection.
type EdgeQuery struct {
	// Hash identifies the query.
	Hash string
	// Variables are the query's own variables; paging variables (first,
	// after) are managed by the engine and must not be set here.
	Variables map[string]interface{}
	// ConnectionPath locates the connection node inside the data subtree,
	// e.g. "user.edge_owner_to_timeline_media".
	ConnectionPath string
	// Seed optionally supplies the first page's connection node, typically
	// lifted from an entity's already-fetched full data, so the first page
	// needs no query of its own.
	Seed gjson.Result
}

// Edges pages lazily through a GraphQL connection. The total is known after
// QueryEdges returns; nodes are pulled one at a time with Next, which fetches
// subsequent pages on demand with a randomized delay between page requests.
type Edges struct {
	session *Session
	query   EdgeQuery

	total    int
	emitted  int
	pageSize int

	buf     []gjson.Result
	idx     int
	cursor  string
	hasNext bool
}

// QueryEdges starts a paginated query. It fetches the first page eagerly so
// the connection's total is available up front.
func (s *Session) QueryEdges(q EdgeQuery) (*Edges, error) {
	e := &Edges{
		session:  s,
		query:    q,
		pageSize: s.cfg.Query.PageSize,
	}

	var conn gjson.Result
	if q.Seed.Exists() {
		s.logger.Debug("using seeded first page")
		conn = q.Seed
		e.setPage(conn)
	} else {
		var err error
		conn, err = e.fetchPage("")
		if err != nil {
			return nil, err
		}
	}

	switch {
	case conn.Get("count").Exists():
		e.total = int(conn.Get("count").Int())
	case strings.HasSuffix(q.ConnectionPath, "edge_hashtag_to_top_posts"):
		e.total = topPostsTotal
	default:
		e.total = unknownTotal
	}

	if len(e.buf) == 0 && e.total > 0 && e.total != unknownTotal {
		return nil, &errs.PrivateAccessError{}
	}
	return e, nil
}

// Total returns the connection's reported node count. Connections without a
// count report an effectively unbounded total.
func (e *Edges) Total() int {
	return e.total
}

// Next returns the next edge node. The boolean is false when the connection
// is exhausted, which happens when the reported total has been emitted or no
// further page is available, whichever comes first.
func (e *Edges) Next() (gjson.Result, bool, error) {
	if e.emitted >= e.total {
		return gjson.Result{}, false, nil
	}
	if e.idx >= len(e.buf) {
		if !e.hasNext {
			return gjson.Result{}, false, nil
		}
		e.sleepBetweenPages()
		if _, err := e.fetchPage(e.cursor); err != nil {
			return gjson.Result{}, false, err
		}
		if len(e.buf) == 0 {
			return gjson.Result{}, false, nil
		}
	}
	node := e.buf[e.idx].Get("node")
	e.idx++
	e.emitted++
	return node, true, nil
}

// fetchPage fetches one page of the connection and resets the edge buffer.
// It returns the connection node so the caller can read its count.
func (e *Edges) fetchPage(after string) (gjson.Result, error) {
	variables := make(map[string]interface{}, len(e.query.Variables)+2)
	for k, v := range e.query.Variables {
		variables[k] = v
	}
	variables["first"] = e.pageSize
	if after != "" {
		variables["after"] = after
	}

	data, err := e.session.GraphQL(e.query.Hash, variables)
	if err != nil {
		return gjson.Result{}, err
	}
	conn := data.Get(e.query.ConnectionPath)
	if !conn.Exists() {
		return gjson.Result{}, &errs.ExtractionError{Message: "connection node not found: " + e.query.ConnectionPath}
	}
	e.setPage(conn)
	return conn, nil
}

// setPage resets the edge buffer and the continuation state from a
// connection node.
func (e *Edges) setPage(conn gjson.Result) {
	e.buf = conn.Get("edges").Array()
	e.idx = 0
	pageInfo := conn.Get("page_info")
	e.hasNext = pageInfo.Get("has_next_page").Bool()
	e.cursor = pageInfo.Get("end_cursor").String()
}

// sleepBetweenPages waits a uniformly random interval between consecutive
// page fetches.
func (e *Edges) sleepBetweenPages() {
	min := e.session.cfg.Query.PageDelayMin
	max := e.session.cfg.Query.PageDelayMax
	if max <= 0 || max < min {
		return
	}
	delay := min
	if max > min {
		delay = min + time.Duration(rand.Int63n(int64(max-min)))
	}
	e.session.logger.DebugWithFields("waiting before next page", map[string]interface{}{
		"delay": delay.String(),
	})
	time.Sleep(delay)
}
