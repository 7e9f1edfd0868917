// Package services – crawl metrics
//
// Prometheus instrumentation for the crawl pipeline. Labels stay low
// cardinality: subreddit names are operator-chosen and bounded, kinds are a
// fixed enum.
package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// crawlRequests counts Reddit API requests by outcome.
	crawlRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawl_requests_total",
			Help: "Total Reddit API requests issued through the rotating client.",
		},
		[]string{"outcome"},
	)

	// crawlStored counts canonical records written, by subreddit and kind.
	crawlStored = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawl_records_stored_total",
			Help: "Total content records stored, by subreddit and kind.",
		},
		[]string{"subreddit", "kind"},
	)

	// crawlNewComments counts new comments discovered by the tracker.
	crawlNewComments = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "crawl_tracked_new_comments_total",
			Help: "Total new comments discovered while re-polling tracked posts.",
		},
	)

	// crawlCycleDuration records the duration of whole crawl cycles.
	crawlCycleDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crawl_cycle_duration_seconds",
			Help:    "Duration of crawl cycles in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s..~4m
		},
		[]string{"subreddit"},
	)
)

func init() {
	prometheus.MustRegister(crawlRequests, crawlStored, crawlNewComments, crawlCycleDuration)
}
