// Package backup mirrors every stored batch to timestamped JSON files on
// disk. The files are an operational safety net for re-imports and audits;
// the database remains the source of truth.
package backup

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/AhaCompany/crawl-reddit-sub000/internal/domain"
)

// Writer persists content batches under root/<subreddit>/.
type Writer struct {
	root string
}

// NewWriter builds a writer rooted at dir. Directories are created lazily
// on the first write.
func NewWriter(dir string) *Writer {
	return &Writer{root: dir}
}

// WriteBatch dumps a batch to <root>/<subreddit>/<kind>_<timestamp>.json
// and returns the written path. Empty batches write nothing.
func (w *Writer) WriteBatch(subreddit, kind string, contents []domain.RedditContent, now time.Time) (string, error) {
	if len(contents) == 0 {
		return "", nil
	}

	dir := filepath.Join(w.root, subreddit)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}

	name := fmt.Sprintf("%s_%s.json", kind, now.UTC().Format("20060102_150405"))
	path := filepath.Join(dir, name)

	data, err := json.MarshalIndent(contents, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal batch: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write backup file: %w", err)
	}
	return path, nil
}
