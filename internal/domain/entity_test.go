package domain

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestTimeBucketID_KnownTimestamp(t *testing.T) {
	ts := time.Unix(1700000000, 0).UTC()
	want := int64(1700000000000 / 3600000)
	if got := TimeBucketID(ts); got != want {
		t.Fatalf("TimeBucketID = %d, want %d", got, want)
	}
}

func TestObfuscateToMinute(t *testing.T) {
	ts := time.Date(2023, 11, 14, 12, 34, 56, 789_000_000, time.UTC)
	got := ObfuscateToMinute(ts)
	want := time.Date(2023, 11, 14, 12, 34, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("ObfuscateToMinute = %v, want %v", got, want)
	}
}

func TestNormalizeLabel_TruncateAndLowercase(t *testing.T) {
	long := "r/" + strings.Repeat("AbCdEfGh", 8) // 64 chars after prefix strip
	got := NormalizeLabel(long, MaxLabelLength)
	if len(got) != 32 {
		t.Fatalf("label length = %d, want exactly 32", len(got))
	}
	if got != strings.ToLower(got) {
		t.Fatalf("label %q not lower-cased", got)
	}
	if strings.HasPrefix(got, "r/") {
		t.Fatalf("label %q retains display prefix", got)
	}

	if got := NormalizeLabel("r/GoLang", MaxLabelLength); got != "golang" {
		t.Fatalf("NormalizeLabel(r/GoLang) = %q", got)
	}
}

func TestEntityFromContent_RedactionSplit(t *testing.T) {
	exact := time.Date(2023, 11, 14, 12, 34, 56, 789_000_000, time.UTC)
	c := RedditContent{
		ID:        "abc",
		URL:       "https://www.reddit.com/r/golang/comments/abc/t/",
		Username:  "u",
		Community: "r/golang",
		Body:      "hello",
		CreatedAt: exact,
		DataType:  DataTypePost,
	}

	e, err := EntityFromContent(c)
	if err != nil {
		t.Fatalf("EntityFromContent: %v", err)
	}

	// Indexed column is minute-truncated.
	if e.Datetime.Second() != 0 || e.Datetime.Nanosecond() != 0 {
		t.Fatalf("datetime not redacted: %v", e.Datetime)
	}
	if e.Datetime.Minute() != 34 || e.Datetime.Hour() != 12 {
		t.Fatalf("datetime over-redacted: %v", e.Datetime)
	}

	// Bucket comes from the unredacted instant.
	if e.TimeBucketID != TimeBucketID(exact) {
		t.Fatalf("bucket = %d, want %d", e.TimeBucketID, TimeBucketID(exact))
	}

	// Blob keeps the exact timestamp.
	var round RedditContent
	if err := json.Unmarshal(e.Content, &round); err != nil {
		t.Fatalf("unmarshal blob: %v", err)
	}
	if !round.CreatedAt.Equal(exact) {
		t.Fatalf("blob timestamp = %v, want %v verbatim", round.CreatedAt, exact)
	}

	if e.Source != SourceReddit {
		t.Fatalf("source = %d, want %d", e.Source, SourceReddit)
	}
	if e.Label != "golang" {
		t.Fatalf("label = %q", e.Label)
	}
	if e.ContentSizeBytes != len(e.Content) {
		t.Fatalf("size = %d, blob = %d", e.ContentSizeBytes, len(e.Content))
	}
}

func TestCredentialEligible(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	soon := now.Add(5 * time.Minute)
	past := now.Add(-time.Minute)

	cases := []struct {
		name string
		cred RedditCredential
		want bool
	}{
		{"fresh", RedditCredential{}, true},
		{"disabled", RedditCredential{IsDisabled: true}, false},
		{"cooling down", RedditCredential{CooldownUntil: &soon}, false},
		{"cooldown elapsed", RedditCredential{CooldownUntil: &past}, true},
		{"at daily cap", RedditCredential{DailyUsage: 800}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.cred.Eligible(now, 800); got != tc.want {
				t.Fatalf("Eligible = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestProxyEligible(t *testing.T) {
	now := time.Now().UTC()
	soon := now.Add(time.Minute)
	if (ProxyEndpoint{IsDisabled: true}).Eligible(now) {
		t.Fatal("disabled proxy must not be eligible")
	}
	if (ProxyEndpoint{CooldownUntil: &soon}).Eligible(now) {
		t.Fatal("cooling-down proxy must not be eligible")
	}
	if !(ProxyEndpoint{}).Eligible(now) {
		t.Fatal("plain proxy should be eligible")
	}
}
