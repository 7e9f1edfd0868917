package domain

import (
	"strings"
	"time"
)

// SiteOrigin prefixes relative permalinks coming out of raw payloads.
const SiteOrigin = "https://www.reddit.com"

// DataType distinguishes posts from comments inside the canonical record.
type DataType string

const (
	// DataTypePost marks a submission record.
	DataTypePost DataType = "post"
	// DataTypeComment marks a comment record.
	DataTypeComment DataType = "comment"
)

// RedditContent is the canonical normalized record produced from raw posts
// and comments. Its URL is the identity used for deduplication; the
// community keeps the display "r/" prefix (the storage layer strips it when
// deriving the persisted label).
type RedditContent struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Username  string    `json:"username"`
	Community string    `json:"community"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
	DataType  DataType  `json:"data_type"`
	Title     string    `json:"title,omitempty"`
	ParentID  string    `json:"parent_id,omitempty"`
}

// PostContent normalizes a raw submission into the canonical record.
func PostContent(p RedditPost) RedditContent {
	return RedditContent{
		ID:        p.ID,
		URL:       AbsolutePermalink(p.Permalink),
		Username:  p.Author.String(),
		Community: "r/" + p.Subreddit,
		Body:      p.Selftext,
		CreatedAt: timeFromUTC(p.CreatedUTC),
		DataType:  DataTypePost,
		Title:     p.Title,
	}
}

// CommentContent normalizes a single comment node into the canonical record.
// Replies are not descended here; use FlattenComments for whole trees.
func CommentContent(c RedditComment) RedditContent {
	return RedditContent{
		ID:        c.ID,
		URL:       AbsolutePermalink(c.Permalink),
		Username:  c.Author.String(),
		Community: "r/" + c.Subreddit,
		Body:      c.Body,
		CreatedAt: timeFromUTC(c.CreatedUTC),
		DataType:  DataTypeComment,
		ParentID:  c.ParentID,
	}
}

// FlattenComments walks a reply forest depth-first and emits one canonical
// record per node. Traversal is iterative with an explicit stack so deeply
// nested threads cannot exhaust the call stack. Parent linkage survives only
// as the plain parent_id string.
func FlattenComments(roots []RedditComment) []RedditContent {
	out := make([]RedditContent, 0, len(roots))

	// Push in reverse so the stack pops siblings in their original order.
	stack := make([]RedditComment, 0, len(roots))
	for i := len(roots) - 1; i >= 0; i-- {
		stack = append(stack, roots[i])
	}

	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		out = append(out, CommentContent(node))

		for i := len(node.Replies) - 1; i >= 0; i-- {
			stack = append(stack, node.Replies[i])
		}
	}
	return out
}

// AbsolutePermalink prefixes relative permalinks with the site origin.
// Already-absolute URLs pass through unchanged.
func AbsolutePermalink(permalink string) string {
	if permalink == "" {
		return permalink
	}
	if strings.HasPrefix(permalink, "http://") || strings.HasPrefix(permalink, "https://") {
		return permalink
	}
	if !strings.HasPrefix(permalink, "/") {
		permalink = "/" + permalink
	}
	return SiteOrigin + permalink
}

// timeFromUTC converts raw Unix seconds (Reddit sends them as a float) into
// a UTC time, preserving sub-second precision when present.
func timeFromUTC(sec float64) time.Time {
	whole := int64(sec)
	frac := int64((sec - float64(whole)) * 1e9)
	return time.Unix(whole, frac).UTC()
}
