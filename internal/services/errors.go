// Package services defines the business logic for the crawler: resource
// pool rotation, the retrying request executor, subreddit crawling, and
// comment tracking. This file centralizes the service-level error values and
// the failure classifier that drives pool penalties.
package services

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/AhaCompany/crawl-reddit-sub000/internal/reddit"
)

var (
	// ErrNoAvailableCredentials is returned when the credential pool has no
	// eligible entry. It is a hard stop: retrying cannot help until a
	// cooldown expires or the daily usage window rolls over.
	ErrNoAvailableCredentials = errors.New("no available reddit credentials")

	// ErrTrackingNotFound indicates that the referenced ledger entry does
	// not exist.
	ErrTrackingNotFound = errors.New("tracking entry not found")
)

// FailureKind buckets request failures for pool accounting. Rate limits put
// the bound credential and proxy on cooldown, network failures cool the
// proxy only, auth failures bump the credential's failure counter.
type FailureKind int

const (
	// FailureOther is any failure with no special pool handling.
	FailureOther FailureKind = iota
	// FailureRateLimit is an HTTP 429 or a rate-limit message.
	FailureRateLimit
	// FailureAuth is an HTTP 401/403 or an unauthorized message.
	FailureAuth
	// FailureNetwork is a transport-level failure (refused, reset, timeout).
	FailureNetwork
)

// String names the failure kind for logs.
func (k FailureKind) String() string {
	switch k {
	case FailureRateLimit:
		return "rate_limit"
	case FailureAuth:
		return "auth"
	case FailureNetwork:
		return "network"
	default:
		return "other"
	}
}

// Classify buckets an error into a FailureKind. Status codes are preferred;
// message heuristics cover errors that arrive as bare strings from deeper
// layers.
func Classify(err error) FailureKind {
	if err == nil {
		return FailureOther
	}

	var apiErr *reddit.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.IsRateLimited():
			return FailureRateLimit
		case apiErr.IsAuthFailure():
			return FailureAuth
		}
		return FailureOther
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ETIMEDOUT) ||
		errors.Is(err, context.DeadlineExceeded) {
		return FailureNetwork
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FailureNetwork
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "429"):
		return FailureRateLimit
	case strings.Contains(msg, "401") || strings.Contains(msg, "unauthorized"):
		return FailureAuth
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "no such host"),
		strings.Contains(msg, "timeout"):
		return FailureNetwork
	}
	return FailureOther
}
