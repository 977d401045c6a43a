package models

import (
	"fmt"

	"github.com/tidwall/gjson"

	errs "github.com/tnychn/instascrape/pkg/errors"
	"github.com/tnychn/instascrape/pkg/instagram"
)

// ProfileFields is the informational field whitelist of a Profile, in export
// order.
var ProfileFields = []string{
	"username", "url", "id", "fullname", "biography", "website",
	"followers_count", "followings_count", "mutual_followers_count",
	"is_verified", "is_private", "profile_picture_url",
}

// Profile is a user account, identified by its username.
type Profile struct {
	session  *instagram.Session
	username string

	initData gjson.Result
	fullData gjson.Result
	loaded   bool
}

// NewProfile wraps a profile node yielded by a query edge. The full payload
// is fetched lazily on first access to a field the node does not carry.
func NewProfile(session *instagram.Session, node gjson.Result) *Profile {
	return &Profile{
		session:  session,
		username: node.Get("username").String(),
		initData: node,
	}
}

// ProfileByUsername fetches a profile's full data by username.
func ProfileByUsername(session *instagram.Session, username string) (*Profile, error) {
	p := &Profile{session: session, username: username}
	if err := p.EnsureLoaded(); err != nil {
		return nil, err
	}
	return p, nil
}

// ProfileByID resolves a user id to a username first, then fetches the
// profile as usual.
func ProfileByID(session *instagram.Session, id string) (*Profile, error) {
	username, err := session.UsernameByID(id)
	if err != nil {
		return nil, err
	}
	return ProfileByUsername(session, username)
}

// Label identifies this profile in logs and error buckets.
func (p *Profile) Label() string {
	return "Profile(@" + p.username + ")"
}

// EnsureLoaded fetches the profile's full payload if it has not been fetched
// yet. The payload is fetched at most once.
func (p *Profile) EnsureLoaded() error {
	if p.loaded {
		return nil
	}
	p.session.Logger().DebugWithFields("fetching full data of profile", map[string]interface{}{
		"username": p.username,
	})
	data, err := p.session.FetchProfile(p.username)
	if err != nil {
		return err
	}
	p.fullData = data
	p.loaded = true
	return nil
}

// Reload discards the memoized payload and fetches it again.
func (p *Profile) Reload() error {
	p.loaded = false
	return p.EnsureLoaded()
}

func (p *Profile) find(path string) (gjson.Result, error) {
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
	return gjson.Result{}, &errs.ExtractionError{Message: fmt.Sprintf("profile %s has no field %q", p.username, path)}
}

// Username returns the profile's username.
func (p *Profile) Username() string {
	return p.username
}

// URL returns the profile's web URL.
func (p *Profile) URL() string {
	return "https://instagram.com/" + p.username
}

// ID returns the profile's user id.
func (p *Profile) ID() (string, error) {
	v, err := p.find("id")
	return v.String(), err
}

// Fullname returns the display name.
func (p *Profile) Fullname() (string, error) {
	v, err := p.find("full_name")
	return v.String(), err
}

// Biography returns the profile's biography text.
func (p *Profile) Biography() (string, error) {
	v, err := p.find("biography")
	return v.String(), err
}

// Website returns the profile's external URL, empty when not set.
func (p *Profile) Website() (string, error) {
	v, err := p.find("external_url")
	return v.String(), err
}

// FollowersCount returns the number of followers.
func (p *Profile) FollowersCount() (int64, error) {
	v, err := p.find("edge_followed_by.count")
	return v.Int(), err
}

// FollowingsCount returns the number of accounts this profile follows.
func (p *Profile) FollowingsCount() (int64, error) {
	v, err := p.find("edge_follow.count")
	return v.Int(), err
}

// MutualFollowersCount returns the number of mutual followers.
func (p *Profile) MutualFollowersCount() (int64, error) {
	v, err := p.find("edge_mutual_followed_by.count")
	return v.Int(), err
}

// IsVerified reports whether the profile is verified.
func (p *Profile) IsVerified() (bool, error) {
	v, err := p.find("is_verified")
	return v.Bool(), err
}

// IsPrivate reports whether the profile is private.
func (p *Profile) IsPrivate() (bool, error) {
	v, err := p.find("is_private")
	return v.Bool(), err
}

// ProfilePictureURL returns the URL of the profile picture.
func (p *Profile) ProfilePictureURL() (string, error) {
	v, err := p.find("profile_pic_url_hd")
	return v.String(), err
}

// ProfilePicture returns the profile picture as a media item.
func (p *Profile) ProfilePicture() (MediaItem, error) {
	src, err := p.ProfilePictureURL()
	if err != nil {
		return MediaItem{}, err
	}
	return MediaItem{Typename: "GraphImage", Src: src, Width: 320, Height: 320}, nil
}

// Fields exports the whitelisted informational fields, hydrating on demand.
func (p *Profile) Fields() (map[string]interface{}, error) {
	id, err := p.ID()
	if err != nil {
		return nil, err
	}
	fullname, err := p.Fullname()
	if err != nil {
		return nil, err
	}
	biography, err := p.Biography()
	if err != nil {
		return nil, err
	}
	website, err := p.Website()
	if err != nil {
		return nil, err
	}
	followers, err := p.FollowersCount()
	if err != nil {
		return nil, err
	}
	followings, err := p.FollowingsCount()
	if err != nil {
		return nil, err
	}
	mutual, err := p.MutualFollowersCount()
	if err != nil {
		return nil, err
	}
	verified, err := p.IsVerified()
	if err != nil {
		return nil, err
	}
	private, err := p.IsPrivate()
	if err != nil {
		return nil, err
	}
	picture, err := p.ProfilePictureURL()
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"username":               p.username,
		"url":                    p.URL(),
		"id":                     id,
		"fullname":               fullname,
		"biography":              biography,
		"website":                website,
		"followers_count":        followers,
		"followings_count":       followings,
		"mutual_followers_count": mutual,
		"is_verified":            verified,
		"is_private":             private,
		"profile_picture_url":    picture,
	}, nil
}

// TimelinePosts retrieves this profile's timeline posts, seeding the first
// page from the profile's full payload.
func (p *Profile) TimelinePosts() (*PostGroup, error) {
	if err := p.EnsureLoaded(); err != nil {
		return nil, err
	}
	id, err := p.ID()
	if err != nil {
		return nil, err
	}
	p.session.Logger().InfoWithFields("retrieving timeline posts", map[string]interface{}{
		"username": p.username,
	})
	edges, err := p.session.QueryEdges(instagram.EdgeQuery{
		Hash:           instagram.QueryHashTimeline,
		Variables:      map[string]interface{}{"id": id},
		ConnectionPath: "user.edge_owner_to_timeline_media",
		Seed:           p.fullData.Get("edge_owner_to_timeline_media"),
	})
	if err != nil {
		return nil, err
	}
	return newPostGroup(p.session, edges, func(node gjson.Result) groupItem {
		return NewPost(p.session, node)
	}), nil
}

// SavedPosts retrieves the posts this profile has saved. Requires an
// authenticated session.
func (p *Profile) SavedPosts() (*PostGroup, error) {
	if !p.session.Authenticated() {
		return nil, &errs.AuthenticationRequiredError{}
	}
	if err := p.EnsureLoaded(); err != nil {
		return nil, err
	}
	id, err := p.ID()
	if err != nil {
		return nil, err
	}
	p.session.Logger().InfoWithFields("retrieving saved posts", map[string]interface{}{
		"username": p.username,
	})
	edges, err := p.session.QueryEdges(instagram.EdgeQuery{
		Hash:           instagram.QueryHashSaved,
		Variables:      map[string]interface{}{"id": id},
		ConnectionPath: "user.edge_saved_media",
		Seed:           p.fullData.Get("edge_saved_media"),
	})
	if err != nil {
		return nil, err
	}
	return newPostGroup(p.session, edges, func(node gjson.Result) groupItem {
		return NewPost(p.session, node)
	}), nil
}

// TaggedPosts retrieves the posts this profile is tagged in.
func (p *Profile) TaggedPosts() (*PostGroup, error) {
	id, err := p.ID()
	if err != nil {
		return nil, err
	}
	p.session.Logger().InfoWithFields("retrieving tagged posts", map[string]interface{}{
		"username": p.username,
	})
	edges, err := p.session.QueryEdges(instagram.EdgeQuery{
		Hash:           instagram.QueryHashTagged,
		Variables:      map[string]interface{}{"id": id},
		ConnectionPath: "user.edge_user_to_photos_of_you",
	})
	if err != nil {
		return nil, err
	}
	return newPostGroup(p.session, edges, func(node gjson.Result) groupItem {
		return NewPost(p.session, node)
	}), nil
}

// IGTVPosts retrieves this profile's IGTV posts, seeding the first page from
// the profile's full payload.
func (p *Profile) IGTVPosts() (*PostGroup, error) {
	if err := p.EnsureLoaded(); err != nil {
		return nil, err
	}
	id, err := p.ID()
	if err != nil {
		return nil, err
	}
	p.session.Logger().InfoWithFields("retrieving IGTV posts", map[string]interface{}{
		"username": p.username,
	})
	edges, err := p.session.QueryEdges(instagram.EdgeQuery{
		Hash:           instagram.QueryHashIGTV,
		Variables:      map[string]interface{}{"id": id},
		ConnectionPath: "user.edge_felix_video_timeline",
		Seed:           p.fullData.Get("edge_felix_video_timeline"),
	})
	if err != nil {
		return nil, err
	}
	return newPostGroup(p.session, edges, func(node gjson.Result) groupItem {
		return NewIGTV(p.session, node)
	}), nil
}

// Followers retrieves this profile's followers. Requires an authenticated
// session.
func (p *Profile) Followers() (*Group, error) {
	if !p.session.Authenticated() {
		return nil, &errs.AuthenticationRequiredError{}
	}
	id, err := p.ID()
	if err != nil {
		return nil, err
	}
	p.session.Logger().InfoWithFields("retrieving followers", map[string]interface{}{
		"username": p.username,
	})
	edges, err := p.session.QueryEdges(instagram.EdgeQuery{
		Hash:           instagram.QueryHashFollowers,
		Variables:      map[string]interface{}{"id": id},
		ConnectionPath: "user.edge_followed_by",
	})
	if err != nil {
		return nil, err
	}
	return newGroup(p.session, edges, func(node gjson.Result) groupItem {
		return NewProfile(p.session, node)
	}), nil
}

// Followings retrieves the profiles this profile follows. Requires an
// authenticated session.
func (p *Profile) Followings() (*Group, error) {
	if !p.session.Authenticated() {
		return nil, &errs.AuthenticationRequiredError{}
	}
	id, err := p.ID()
	if err != nil {
		return nil, err
	}
	p.session.Logger().InfoWithFields("retrieving followings", map[string]interface{}{
		"username": p.username,
	})
	edges, err := p.session.QueryEdges(instagram.EdgeQuery{
		Hash:           instagram.QueryHashFollowings,
		Variables:      map[string]interface{}{"id": id},
		ConnectionPath: "user.edge_follow",
	})
	if err != nil {
		return nil, err
	}
	return newGroup(p.session, edges, func(node gjson.Result) groupItem {
		return NewProfile(p.session, node)
	}), nil
}
