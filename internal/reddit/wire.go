package reddit

import (
	"encoding/json"
	"fmt"

	"github.com/AhaCompany/crawl-reddit-sub000/internal/domain"
)

// thing is the generic kind/data envelope every Reddit payload uses.
type thing struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// listing is the paged container ("Listing" kind) wrapping things.
type listing struct {
	Kind string `json:"kind"`
	Data struct {
		Children []thing `json:"children"`
		After    string  `json:"after"`
	} `json:"data"`
}

// commentNode mirrors domain.RedditComment on the wire, except that replies
// arrive either as a nested listing or as an empty string when absent.
type commentNode struct {
	ID          string        `json:"id"`
	Author      domain.Author `json:"author"`
	Body        string        `json:"body"`
	Permalink   string        `json:"permalink"`
	CreatedUTC  float64       `json:"created_utc"`
	Score       int           `json:"score"`
	Subreddit   string        `json:"subreddit"`
	IsSubmitter bool          `json:"is_submitter"`
	ParentID    string        `json:"parent_id"`
	Depth       int           `json:"depth"`
	Replies     repliesField  `json:"replies"`
}

// repliesField absorbs the replies union: "" when a comment has none, a
// listing when it does.
type repliesField struct {
	Listing *listing
}

// UnmarshalJSON accepts "", null, or a listing object.
func (r *repliesField) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == `""` || s == "null" {
		return nil
	}
	var l listing
	if err := json.Unmarshal(data, &l); err != nil {
		return err
	}
	r.Listing = &l
	return nil
}

// decodeCommentsResponse unpacks the two-listing response of the comments
// endpoint: listing 0 holds the submission, listing 1 the reply forest.
func decodeCommentsResponse(pair []listing) (*domain.RedditPost, []domain.RedditComment, error) {
	if len(pair) < 2 {
		return nil, nil, fmt.Errorf("comments response has %d listings, want 2", len(pair))
	}
	if len(pair[0].Data.Children) == 0 {
		return nil, nil, fmt.Errorf("comments response has no submission")
	}

	var post domain.RedditPost
	if err := json.Unmarshal(pair[0].Data.Children[0].Data, &post); err != nil {
		return nil, nil, fmt.Errorf("decode submission: %w", err)
	}

	comments, err := decodeCommentForest(pair[1].Data.Children)
	if err != nil {
		return nil, nil, err
	}
	return &post, comments, nil
}

// decodeCommentForest converts wire comment things into the domain tree.
// Non-comment kinds ("more" continuation stubs) are skipped.
func decodeCommentForest(children []thing) ([]domain.RedditComment, error) {
	out := make([]domain.RedditComment, 0, len(children))
	for _, child := range children {
		if child.Kind != "t1" {
			continue
		}
		var node commentNode
		if err := json.Unmarshal(child.Data, &node); err != nil {
			return nil, fmt.Errorf("decode comment: %w", err)
		}

		comment := domain.RedditComment{
			ID:          node.ID,
			Author:      node.Author,
			Body:        node.Body,
			Permalink:   node.Permalink,
			CreatedUTC:  node.CreatedUTC,
			Score:       node.Score,
			Subreddit:   node.Subreddit,
			IsSubmitter: node.IsSubmitter,
			ParentID:    node.ParentID,
			Depth:       node.Depth,
		}
		if node.Replies.Listing != nil {
			replies, err := decodeCommentForest(node.Replies.Listing.Data.Children)
			if err != nil {
				return nil, err
			}
			comment.Replies = replies
		}
		out = append(out, comment)
	}
	return out, nil
}
