package instagram

import (
	"encoding/json"
	"fmt"
	"net/url"
)

const (
	// BaseURL is the base URL for Instagram's web frontend.
	BaseURL = "https://www.instagram.com"

	// LoginPath and LogoutPath are the session endpoints.
	LoginPath     = "/accounts/login/ajax/"
	TwoFactorPath = "/accounts/login/ajax/two_factor/"
	LogoutPath    = "/accounts/logout"

	// MidPath is the secondary CSRF bootstrap endpoint, used when the
	// landing page does not hand out a csrftoken cookie.
	MidPath = "/web/__mid"

	mobileUserAgent = "Instagram 52.0.0.8.83 (iPhone; CPU iPhone OS 11_4 like Mac OS X; " +
		"en_US; en-US; scale=2.00; 750x1334) AppleWebKit/605.1.15"
)

// Query hashes identifying the paginated edge endpoints.
const (
	QueryHashComments   = "f0986789a5c5d17c2400faebf16efd0d"
	QueryHashLikes      = "e0f59e4a1c8d78d0161873bc2ee7ec44"
	QueryHashFollowers  = "56066f031e6239f35a904ac20c9f37d9"
	QueryHashFollowings = "c56ee0ae1f89cdbd1c89e2bc6b8f3d18"
	QueryHashReelItems  = "cda12de4f7fd3719c0569ce03589f4c4"
	QueryHashHighlights = "7c16654f22c819fb63d1183034a5162f"
	QueryHashTimeline   = "66eb9403e44cc12e5b5ecda48b667d41"
	QueryHashSaved      = "8c86fed24fa03a8a2eea2a70a80c7b6b"
	QueryHashTagged     = "ff260833edf142911047af6024eb634a"
	QueryHashIGTV       = "7a5416b9d9138c7a520a66f58a53132c"
	QueryHashHashtag    = "f92f56d47dc7a55b606908374b43a314"
	QueryHashExplore    = "ecd67af449fb6edab7c69a205413bfa7"
)

// ProfileURL returns the JSON endpoint for a profile's full data.
func ProfileURL(base, username string) string {
	return fmt.Sprintf("%s/%s/?__a=1", base, url.PathEscape(username))
}

// PostURL returns the JSON endpoint for a post's full data.
func PostURL(base, shortcode string) string {
	return fmt.Sprintf("%s/p/%s/?__a=1", base, url.PathEscape(shortcode))
}

// UserInfoURL returns the reverse user-id lookup endpoint. It lives on the
// mobile API host and expects a mobile user agent.
func UserInfoURL(base, id string) string {
	return fmt.Sprintf("%s/api/v1/users/%s/info/", base, url.PathEscape(id))
}

// HashtagURL returns the JSON endpoint for a hashtag's full data.
func HashtagURL(base, tagname string) string {
	return fmt.Sprintf("%s/explore/tags/%s/?__a=1", base, url.PathEscape(tagname))
}

// GraphQLURL builds a GraphQL query URL from a query hash and its variables.
// The variables are serialized once; the same serialization must be used for
// the anonymous request signature.
func GraphQLURL(base, queryHash string, variables map[string]interface{}) (string, string, error) {
	variablesJSON, err := json.Marshal(variables)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode query variables: %w", err)
	}
	params := url.Values{}
	params.Set("query_hash", queryHash)
	params.Set("variables", string(variablesJSON))
	return fmt.Sprintf("%s/graphql/query/?%s", base, params.Encode()), string(variablesJSON), nil
}
