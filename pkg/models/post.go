package models

import (
	"fmt"

	"github.com/tidwall/gjson"

	errs "github.com/tnychn/instascrape/pkg/errors"
	"github.com/tnychn/instascrape/pkg/instagram"
)

// PostFields is the informational field whitelist of a Post, in export order.
var PostFields = []string{
	"shortcode", "url", "typename", "id",
	"owner_username", "owner_id", "owner_profile_picture_url",
	"created_time", "caption", "media_count", "likes_count", "comments_count",
}

// Post is a single post, identified by its shortcode.
type Post struct {
	session   *instagram.Session
	shortcode string

	initData gjson.Result
	fullData gjson.Result
	loaded   bool
}

// NewPost wraps a post node yielded by a query edge. The full payload is
// fetched lazily on first access to a field the node does not carry.
func NewPost(session *instagram.Session, node gjson.Result) *Post {
	return &Post{
		session:   session,
		shortcode: node.Get("shortcode").String(),
		initData:  node,
	}
}

// PostByShortcode fetches a post's full data by shortcode.
func PostByShortcode(session *instagram.Session, shortcode string) (*Post, error) {
	p := &Post{session: session, shortcode: shortcode}
	if err := p.EnsureLoaded(); err != nil {
		return nil, err
	}
	return p, nil
}

// Label identifies this post in logs and error buckets.
func (p *Post) Label() string {
	return "Post(:" + p.shortcode + ")"
}

// EnsureLoaded fetches the post's full payload if it has not been fetched
// yet. The payload is fetched at most once.
func (p *Post) EnsureLoaded() error {
	if p.loaded {
		return nil
	}
	p.session.Logger().DebugWithFields("fetching full data of post", map[string]interface{}{
		"shortcode": p.shortcode,
	})
	data, err := p.session.FetchPost(p.shortcode)
	if err != nil {
		return err
	}
	p.fullData = data
	p.loaded = true
	return nil
}

// Reload discards the memoized payload and fetches it again.
func (p *Post) Reload() error {
	p.loaded = false
	return p.EnsureLoaded()
}

// find looks a path up in the initial node first, then in the full payload,
// hydrating on demand.
func (p *Post) find(path string) (gjson.Result, error) {
	if v := p.initData.Get(path); v.Exists() {
		return v, nil
	}
	if !p.loaded {
		if err := p.EnsureLoaded(); err != nil {
			return gjson.Result{}, err
		}
	}
	if v := p.fullData.Get(path); v.Exists() {
		return v, nil
	}
	return gjson.Result{}, &errs.ExtractionError{Message: fmt.Sprintf("post %s has no field %q", p.shortcode, path)}
}

// Shortcode returns the post's shortcode.
func (p *Post) Shortcode() string {
	return p.shortcode
}

// URL returns the post's web URL.
func (p *Post) URL() string {
	return "https://instagram.com/p/" + p.shortcode
}

// Typename returns one of GraphImage, GraphVideo or GraphSidecar.
func (p *Post) Typename() (string, error) {
	v, err := p.find("__typename")
	return v.String(), err
}

// ID returns the post's id.
func (p *Post) ID() (string, error) {
	v, err := p.find("id")
	return v.String(), err
}

// OwnerUsername returns the owning account's username.
func (p *Post) OwnerUsername() (string, error) {
	v, err := p.find("owner.username")
	return v.String(), err
}

// OwnerID returns the owning account's id.
func (p *Post) OwnerID() (string, error) {
	v, err := p.find("owner.id")
	return v.String(), err
}

// OwnerProfilePictureURL returns the URL of the owner's profile picture.
func (p *Post) OwnerProfilePictureURL() (string, error) {
	v, err := p.find("owner.profile_pic_url")
	return v.String(), err
}

// OwnerProfilePicture returns the owner's profile picture as a media item.
func (p *Post) OwnerProfilePicture() (MediaItem, error) {
	src, err := p.OwnerProfilePictureURL()
	if err != nil {
		return MediaItem{}, err
	}
	return MediaItem{Typename: "GraphImage", Src: src, Width: 150, Height: 150}, nil
}

// CreatedTime returns the creation timestamp of this post.
func (p *Post) CreatedTime() (int64, error) {
	v, err := p.find("taken_at_timestamp")
	return v.Int(), err
}

// Caption returns the post's caption, empty when there is none.
func (p *Post) Caption() (string, error) {
	v, err := p.find("edge_media_to_caption.edges")
	if err != nil {
		return "", err
	}
	edges := v.Array()
	if len(edges) == 0 {
		return "", nil
	}
	return edges[0].Get("node.text").String(), nil
}

// LikesCount returns the number of likes.
func (p *Post) LikesCount() (int64, error) {
	v, err := p.find("edge_media_preview_like.count")
	return v.Int(), err
}

// CommentsCount returns the number of comments.
func (p *Post) CommentsCount() (int64, error) {
	if v, err := p.find("edge_media_preview_comment.count"); err == nil {
		return v.Int(), nil
	}
	v, err := p.find("edge_media_to_parent_comment.count")
	return v.Int(), err
}

// MediaItems returns the post's media items.
func (p *Post) MediaItems() ([]MediaItem, error) {
	if err := p.EnsureLoaded(); err != nil {
		return nil, err
	}
	return ComposeMediaItems(p.fullData)
}

// MediaCount returns the number of media items in this post.
func (p *Post) MediaCount() (int, error) {
	items, err := p.MediaItems()
	if err != nil {
		return 0, err
	}
	return len(items), nil
}

// Fields exports the whitelisted informational fields, hydrating on demand.
func (p *Post) Fields() (map[string]interface{}, error) {
	typename, err := p.Typename()
	if err != nil {
		return nil, err
	}
	id, err := p.ID()
	if err != nil {
		return nil, err
	}
	ownerUsername, err := p.OwnerUsername()
	if err != nil {
		return nil, err
	}
	ownerID, err := p.OwnerID()
	if err != nil {
		return nil, err
	}
	ownerPicture, err := p.OwnerProfilePictureURL()
	if err != nil {
		return nil, err
	}
	createdTime, err := p.CreatedTime()
	if err != nil {
		return nil, err
	}
	caption, err := p.Caption()
	if err != nil {
		return nil, err
	}
	mediaCount, err := p.MediaCount()
	if err != nil {
		return nil, err
	}
	likes, err := p.LikesCount()
	if err != nil {
		return nil, err
	}
	comments, err := p.CommentsCount()
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"shortcode":                 p.shortcode,
		"url":                       p.URL(),
		"typename":                  typename,
		"id":                        id,
		"owner_username":            ownerUsername,
		"owner_id":                  ownerID,
		"owner_profile_picture_url": ownerPicture,
		"created_time":              createdTime,
		"caption":                   caption,
		"media_count":               mediaCount,
		"likes_count":               likes,
		"comments_count":            comments,
	}, nil
}

// Likes retrieves the profiles that liked this post.
func (p *Post) Likes() (*Group, error) {
	p.session.Logger().InfoWithFields("retrieving likes", map[string]interface{}{
		"shortcode": p.shortcode,
	})
	edges, err := p.session.QueryEdges(instagram.EdgeQuery{
		Hash:           instagram.QueryHashLikes,
		Variables:      map[string]interface{}{"shortcode": p.shortcode},
		ConnectionPath: "shortcode_media.edge_liked_by",
	})
	if err != nil {
		return nil, err
	}
	return newGroup(p.session, edges, func(node gjson.Result) groupItem {
		return NewProfile(p.session, node)
	}), nil
}

// Comments retrieves the comments on this post.
func (p *Post) Comments() (*Group, error) {
	p.session.Logger().InfoWithFields("retrieving comments", map[string]interface{}{
		"shortcode": p.shortcode,
	})
	edges, err := p.session.QueryEdges(instagram.EdgeQuery{
		Hash:           instagram.QueryHashComments,
		Variables:      map[string]interface{}{"shortcode": p.shortcode},
		ConnectionPath: "shortcode_media.edge_media_to_comment",
	})
	if err != nil {
		return nil, err
	}
	return newGroup(p.session, edges, func(node gjson.Result) groupItem {
		return &Comment{
			Author:      node.Get("owner.username").String(),
			Text:        node.Get("text").String(),
			CreatedTime: node.Get("created_at").Int(),
		}
	}), nil
}

// CommentFields is the informational field whitelist of a Comment.
var CommentFields = []string{"author", "text", "created_time"}

// Comment is a single comment on a post. It carries its complete data up
// front; hydration is a no-op.
type Comment struct {
	Author      string
	Text        string
	CreatedTime int64
}

func (c *Comment) Label() string {
	return "Comment(@" + c.Author + ")"
}

func (c *Comment) EnsureLoaded() error { return nil }

// Fields exports the whitelisted informational fields.
func (c *Comment) Fields() (map[string]interface{}, error) {
	return map[string]interface{}{
		"author":       c.Author,
		"text":         c.Text,
		"created_time": c.CreatedTime,
	}, nil
}

// IGTVFields is the informational field whitelist of an IGTV post.
var IGTVFields = append(append([]string{}, PostFields...), "title", "duration")

// IGTV is a long-form video post. It shares the post payload shape and adds
// title, duration and view count.
type IGTV struct {
	Post
}

// NewIGTV wraps an IGTV node yielded by a query edge.
func NewIGTV(session *instagram.Session, node gjson.Result) *IGTV {
	return &IGTV{Post: Post{
		session:   session,
		shortcode: node.Get("shortcode").String(),
		initData:  node,
	}}
}

func (v *IGTV) Label() string {
	return "IGTV(:" + v.shortcode + ")"
}

// Title returns the IGTV video's title.
func (v *IGTV) Title() (string, error) {
	r, err := v.find("title")
	return r.String(), err
}

// Duration returns the video duration in seconds.
func (v *IGTV) Duration() (float64, error) {
	r, err := v.find("video_duration")
	return r.Float(), err
}

// ViewCount returns the number of views.
func (v *IGTV) ViewCount() (int64, error) {
	r, err := v.find("video_view_count")
	return r.Int(), err
}

// Fields exports the whitelisted informational fields.
func (v *IGTV) Fields() (map[string]interface{}, error) {
	fields, err := v.Post.Fields()
	if err != nil {
		return nil, err
	}
	title, err := v.Title()
	if err != nil {
		return nil, err
	}
	duration, err := v.Duration()
	if err != nil {
		return nil, err
	}
	fields["title"] = title
	fields["duration"] = duration
	return fields, nil
}
