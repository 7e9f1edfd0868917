package repo

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/AhaCompany/crawl-reddit-sub000/internal/domain"
)

func sampleContent(id string) domain.RedditContent {
	return domain.RedditContent{
		ID:        id,
		URL:       "https://www.reddit.com/r/golang/comments/" + id + "/some_post/",
		Username:  "author",
		Community: "r/GoLang",
		Body:      "body of " + id,
		CreatedAt: time.Date(2025, 6, 1, 12, 34, 56, 789000000, time.UTC),
		DataType:  domain.DataTypePost,
		Title:     "title of " + id,
	}
}

func TestStoreEntity_WritesNormalizedRow(t *testing.T) {
	db := newRepoDB(t, &domain.DataEntity{})
	ctx := context.Background()

	content := sampleContent("abc123")
	if err := StoreEntity(ctx, db, content); err != nil {
		t.Fatalf("StoreEntity: %v", err)
	}

	var got domain.DataEntity
	if err := db.First(&got, "uri = ?", content.URL).Error; err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Label != "golang" {
		t.Fatalf("label = %q, want lowercased with r/ stripped", got.Label)
	}
	if got.Source != domain.SourceReddit {
		t.Fatalf("source = %d", got.Source)
	}
	// The column is truncated to the minute; the payload keeps the real time.
	if want := time.Date(2025, 6, 1, 12, 34, 0, 0, time.UTC); !got.Datetime.Equal(want) {
		t.Fatalf("datetime = %v, want minute-truncated %v", got.Datetime, want)
	}
	var stored domain.RedditContent
	if err := json.Unmarshal(got.Content, &stored); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if !stored.CreatedAt.Equal(content.CreatedAt) {
		t.Fatalf("payload timestamp = %v, want untruncated %v", stored.CreatedAt, content.CreatedAt)
	}
	if got.ContentSizeBytes != len(got.Content) {
		t.Fatalf("content_size_bytes = %d, len = %d", got.ContentSizeBytes, len(got.Content))
	}
}

func TestStoreEntity_SameURIIsIdempotent(t *testing.T) {
	db := newRepoDB(t, &domain.DataEntity{})
	ctx := context.Background()

	content := sampleContent("abc123")
	if err := StoreEntity(ctx, db, content); err != nil {
		t.Fatalf("first store: %v", err)
	}
	if err := StoreEntity(ctx, db, content); err != nil {
		t.Fatalf("second store: %v", err)
	}

	total, err := CountEntities(ctx, db)
	if err != nil {
		t.Fatalf("CountEntities: %v", err)
	}
	if total != 1 {
		t.Fatalf("re-storing the same record must not grow the table, got %d rows", total)
	}
}

func TestStoreEntity_UpsertFollowsLatestWrite(t *testing.T) {
	db := newRepoDB(t, &domain.DataEntity{})
	ctx := context.Background()

	content := sampleContent("abc123")
	if err := StoreEntity(ctx, db, content); err != nil {
		t.Fatalf("first store: %v", err)
	}

	content.Body = strings.Repeat("edited body ", 50)
	if err := StoreEntity(ctx, db, content); err != nil {
		t.Fatalf("second store: %v", err)
	}

	var got domain.DataEntity
	if err := db.First(&got, "uri = ?", content.URL).Error; err != nil {
		t.Fatalf("load: %v", err)
	}
	var stored domain.RedditContent
	if err := json.Unmarshal(got.Content, &stored); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if !strings.HasPrefix(stored.Body, "edited body") {
		t.Fatalf("content did not follow the latest write: %q", stored.Body)
	}
	if got.ContentSizeBytes != len(got.Content) {
		t.Fatalf("size not refreshed with the new payload: %d vs %d", got.ContentSizeBytes, len(got.Content))
	}
}

func TestStoreBatch_SkipsMalformedKeepsRest(t *testing.T) {
	db := newRepoDB(t, &domain.DataEntity{})
	ctx := context.Background()

	batch := []domain.RedditContent{
		sampleContent("one"),
		{ID: "broken"}, // no URI
		sampleContent("two"),
	}

	stored, err := StoreBatch(ctx, db, batch)
	if err != nil {
		t.Fatalf("StoreBatch: %v", err)
	}
	if stored != 2 {
		t.Fatalf("stored = %d, want 2", stored)
	}

	total, err := CountEntities(ctx, db)
	if err != nil {
		t.Fatalf("CountEntities: %v", err)
	}
	if total != 2 {
		t.Fatalf("expected the well-formed records to survive, got %d rows", total)
	}
}

func TestStoreBatch_EmptyIsNoOp(t *testing.T) {
	db := newRepoDB(t, &domain.DataEntity{})

	stored, err := StoreBatch(context.Background(), db, nil)
	if err != nil {
		t.Fatalf("StoreBatch: %v", err)
	}
	if stored != 0 {
		t.Fatalf("stored = %d, want 0", stored)
	}
}

func TestCountEntitiesByLabel_NormalizesInput(t *testing.T) {
	db := newRepoDB(t, &domain.DataEntity{})
	ctx := context.Background()

	if err := StoreEntity(ctx, db, sampleContent("one")); err != nil {
		t.Fatalf("store: %v", err)
	}
	other := sampleContent("two")
	other.Community = "r/rust"
	if err := StoreEntity(ctx, db, other); err != nil {
		t.Fatalf("store: %v", err)
	}

	for _, label := range []string{"golang", "GoLang", "r/GoLang"} {
		n, err := CountEntitiesByLabel(ctx, db, label)
		if err != nil {
			t.Fatalf("CountEntitiesByLabel(%q): %v", label, err)
		}
		if n != 1 {
			t.Fatalf("CountEntitiesByLabel(%q) = %d, want 1", label, n)
		}
	}
}
