package models

import (
	"github.com/tidwall/gjson"

	"github.com/tnychn/instascrape/pkg/download"
	"github.com/tnychn/instascrape/pkg/group"
	"github.com/tnychn/instascrape/pkg/instagram"
)

type groupItem = group.Item

// Group adapts the generic lazy-collection machinery to entities built from
// query edges. Configuration calls chain and must precede the first
// iteration.
type Group struct {
	inner *group.Group
}

func newGroup(s *instagram.Session, edges *instagram.Edges, wrap func(gjson.Result) groupItem) *Group {
	next := func() (group.Item, bool, error) {
		node, ok, err := edges.Next()
		if err != nil || !ok {
			return nil, false, err
		}
		return wrap(node), true, nil
	}
	return &Group{inner: group.New(edges.Total(), next, s.Logger())}
}

// Length returns the expected number of items this group will yield.
func (g *Group) Length() int { return g.inner.Length() }

// Limit caps the number of items yielded.
func (g *Group) Limit(n int) *Group {
	g.inner.Limit(n)
	return g
}

// WithFilter sets the yield predicate. Rejected items do not count towards
// the limit.
func (g *Group) WithFilter(f group.Filter) *Group {
	g.inner.WithFilter(f)
	return g
}

// Preload toggles concurrent hydration of items ahead of iteration.
func (g *Group) Preload(on bool) *Group {
	g.inner.Preload(on)
	return g
}

// IgnoreErrors toggles whether item failures abort iteration or are
// collected and skipped.
func (g *Group) IgnoreErrors(on bool) *Group {
	g.inner.IgnoreErrors(on)
	return g
}

// HasErrors reports whether any item failures were recorded.
func (g *Group) HasErrors() bool { return g.inner.HasErrors() }

// Errors returns the item failures recorded during iteration.
func (g *Group) Errors() []group.ErrorItem { return g.inner.Errors() }

// Each iterates the group in order.
func (g *Group) Each(fn func(group.Item) error) error { return g.inner.Each(fn) }

// Collect iterates the group and returns every yielded item.
func (g *Group) Collect() ([]group.Item, error) { return g.inner.Collect() }

// Profiles iterates the group and returns the yielded profiles.
func (g *Group) Profiles() ([]*Profile, error) {
	items, err := g.Collect()
	if err != nil {
		return nil, err
	}
	profiles := make([]*Profile, 0, len(items))
	for _, item := range items {
		if p, ok := item.(*Profile); ok {
			profiles = append(profiles, p)
		}
	}
	return profiles, nil
}

// Comments iterates the group and returns the yielded comments.
func (g *Group) Comments() ([]*Comment, error) {
	items, err := g.Collect()
	if err != nil {
		return nil, err
	}
	comments := make([]*Comment, 0, len(items))
	for _, item := range items {
		if c, ok := item.(*Comment); ok {
			comments = append(comments, c)
		}
	}
	return comments, nil
}

// PostGroup is a Group of posts with a bulk download operation.
type PostGroup struct {
	Group
}

func newPostGroup(s *instagram.Session, edges *instagram.Edges, wrap func(gjson.Result) groupItem) *PostGroup {
	return &PostGroup{Group: *newGroup(s, edges, wrap)}
}

// Limit caps the number of posts yielded.
func (g *PostGroup) Limit(n int) *PostGroup {
	g.Group.Limit(n)
	return g
}

// WithFilter sets the yield predicate.
func (g *PostGroup) WithFilter(f group.Filter) *PostGroup {
	g.Group.WithFilter(f)
	return g
}

// Preload toggles concurrent hydration.
func (g *PostGroup) Preload(on bool) *PostGroup {
	g.Group.Preload(on)
	return g
}

// IgnoreErrors toggles the per-item failure policy.
func (g *PostGroup) IgnoreErrors(on bool) *PostGroup {
	g.Group.IgnoreErrors(on)
	return g
}

// EachPost iterates the group's posts in order.
func (g *PostGroup) EachPost(fn func(*Post) error) error {
	return g.Each(func(item group.Item) error {
		if post := asPost(item); post != nil {
			return fn(post)
		}
		return nil
	})
}

// Posts iterates the group and returns the yielded posts.
func (g *PostGroup) Posts() ([]*Post, error) {
	var posts []*Post
	err := g.EachPost(func(p *Post) error {
		posts = append(posts, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return posts, nil
}

// DownloadAll iterates the group and downloads every post's media items. A
// failure on one post is reported through the hooks and does not interrupt
// the remaining posts.
func (g *PostGroup) DownloadAll(d *download.Downloader, dest string, hooks *DownloadHooks) error {
	return g.EachPost(func(post *Post) error {
		hooks.postStart(post)
		if err := post.Download(d, dest, hooks); err != nil {
			post.session.Logger().ErrorWithFields("failed to download post", map[string]interface{}{
				"post":  post.Label(),
				"error": err.Error(),
			})
			hooks.postError(post, err)
			return nil
		}
		hooks.postFinish(post)
		return nil
	})
}

func asPost(item group.Item) *Post {
	switch v := item.(type) {
	case *Post:
		return v
	case *IGTV:
		return &v.Post
	default:
		return nil
	}
}

// DownloadHooks are the observation seams of a bulk download. Every hook is
// optional.
type DownloadHooks struct {
	OnPostStart  func(*Post)
	OnPostFinish func(*Post)
	OnPostError  func(*Post, error)

	OnItemStart  func(*Post, int, MediaItem)
	OnItemFinish func(*Post, int, MediaItem, string)
	OnItemError  func(*Post, int, MediaItem, error)
}

func (h *DownloadHooks) postStart(p *Post) {
	if h != nil && h.OnPostStart != nil {
		h.OnPostStart(p)
	}
}

func (h *DownloadHooks) postFinish(p *Post) {
	if h != nil && h.OnPostFinish != nil {
		h.OnPostFinish(p)
	}
}

func (h *DownloadHooks) postError(p *Post, err error) {
	if h != nil && h.OnPostError != nil {
		h.OnPostError(p, err)
	}
}

func (h *DownloadHooks) itemStart(p *Post, i int, item MediaItem) {
	if h != nil && h.OnItemStart != nil {
		h.OnItemStart(p, i, item)
	}
}

func (h *DownloadHooks) itemFinish(p *Post, i int, item MediaItem, path string) {
	if h != nil && h.OnItemFinish != nil {
		h.OnItemFinish(p, i, item, path)
	}
}

func (h *DownloadHooks) itemError(p *Post, i int, item MediaItem, err error) {
	if h != nil && h.OnItemError != nil {
		h.OnItemError(p, i, item, err)
	}
}
