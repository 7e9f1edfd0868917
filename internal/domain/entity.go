package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// MaxLabelLength caps the persisted community label.
const MaxLabelLength = 32

// Data sources recorded on DataEntity rows. Only Reddit is produced today;
// the column exists so other collectors can share the table.
const (
	SourceUnknown = 0
	SourceReddit  = 1
)

// TimeBucketID returns the hour-granularity bucket index for a timestamp:
// whole hours elapsed since the Unix epoch.
func TimeBucketID(t time.Time) int64 {
	return t.UnixMilli() / (1000 * 60 * 60)
}

// ObfuscateToMinute zeroes seconds and sub-second precision. Applied to the
// indexed datetime column only; stored blobs keep the exact timestamp.
func ObfuscateToMinute(t time.Time) time.Time {
	return t.Truncate(time.Minute)
}

// NormalizeLabel lower-cases a community name, strips the display "r/"
// prefix, and truncates to maxLen bytes.
func NormalizeLabel(label string, maxLen int) string {
	label = strings.ToLower(label)
	label = strings.TrimPrefix(label, "r/")
	if len(label) > maxLen {
		label = label[:maxLen]
	}
	return label
}

// EntityFromContent converts a canonical record into the persisted row shape.
//
// The time bucket is derived from the unredacted creation time, the datetime
// column is minute-truncated, and the content blob is the full record as
// UTF-8 JSON with the true timestamp intact.
func EntityFromContent(c RedditContent) (DataEntity, error) {
	if strings.TrimSpace(c.URL) == "" {
		return DataEntity{}, errors.New("content record has no uri")
	}
	blob, err := json.Marshal(c)
	if err != nil {
		return DataEntity{}, err
	}
	return DataEntity{
		URI:              c.URL,
		Datetime:         ObfuscateToMinute(c.CreatedAt),
		TimeBucketID:     TimeBucketID(c.CreatedAt),
		Source:           SourceReddit,
		Label:            NormalizeLabel(c.Community, MaxLabelLength),
		Content:          blob,
		ContentSizeBytes: len(blob),
	}, nil
}
