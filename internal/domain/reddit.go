package domain

import (
	"encoding/json"
	"strings"
)

// DeletedAuthor is Reddit's own marker for a removed account. Raw payloads
// with an absent or null author resolve to this literal and it is preserved
// verbatim all the way into storage.
const DeletedAuthor = "[deleted]"

// Author handles the two shapes Reddit payloads use for the author field:
// a plain string ("someuser") or an object carrying a "name" key. The union
// is resolved once at the decoding boundary; downstream code only ever sees
// the resolved name.
type Author struct {
	Name string
}

// UnmarshalJSON resolves string, object, and null author representations.
func (a *Author) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" || trimmed == `""` {
		a.Name = DeletedAuthor
		return nil
	}
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		a.Name = s
		return nil
	}
	var obj struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	if obj.Name == "" {
		a.Name = DeletedAuthor
		return nil
	}
	a.Name = obj.Name
	return nil
}

// MarshalJSON renders the resolved name as a plain string.
func (a Author) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.Name)
}

// String returns the resolved author name, defaulting to the deletion marker.
func (a Author) String() string {
	if a.Name == "" {
		return DeletedAuthor
	}
	return a.Name
}

// RedditPost is the raw submission payload as returned by the Reddit API or
// the PullPush historical search. Only fields the pipeline consumes are
// modeled; everything else rides along in the stored JSON blob untouched.
type RedditPost struct {
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	Author        Author  `json:"author"`
	Selftext      string  `json:"selftext"`
	URL           string  `json:"url"`
	Permalink     string  `json:"permalink"`
	CreatedUTC    float64 `json:"created_utc"`
	Subreddit     string  `json:"subreddit"`
	Score         int     `json:"score"`
	NumComments   int     `json:"num_comments"`
	UpvoteRatio   float64 `json:"upvote_ratio"`
	IsSelf        bool    `json:"is_self"`
	Over18        bool    `json:"over_18"`
	Stickied      bool    `json:"stickied"`
	LinkFlairText string  `json:"link_flair_text,omitempty"`
}

// RedditComment is one node of a submission's reply tree. Replies nest
// arbitrarily deep; FlattenComments turns the tree into independent records.
type RedditComment struct {
	ID          string          `json:"id"`
	Author      Author          `json:"author"`
	Body        string          `json:"body"`
	Permalink   string          `json:"permalink"`
	CreatedUTC  float64         `json:"created_utc"`
	Score       int             `json:"score"`
	Subreddit   string          `json:"subreddit"`
	IsSubmitter bool            `json:"is_submitter"`
	ParentID    string          `json:"parent_id"`
	Depth       int             `json:"depth"`
	Replies     []RedditComment `json:"replies,omitempty"`
}
