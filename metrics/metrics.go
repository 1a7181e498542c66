// Package metrics holds the process-wide prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LedgerCalls counts contract calls by method and outcome.
	LedgerCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rewardhub",
		Name:      "ledger_calls_total",
		Help:      "Token contract calls by method and outcome.",
	}, []string{"op", "outcome"})

	// Awards counts award workflow resolutions by terminal status.
	Awards = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rewardhub",
		Name:      "awards_total",
		Help:      "Achievement awards by resolved status.",
	}, []string{"status"})

	// Redemptions counts redemption workflow outcomes by status.
	Redemptions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rewardhub",
		Name:      "redemptions_total",
		Help:      "Reward redemptions by resolved status.",
	}, []string{"status"})

	// HTTPRequests counts handled API requests by route group and code.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rewardhub",
		Name:      "http_requests_total",
		Help:      "HTTP requests by method, path and status code.",
	}, []string{"method", "path", "code"})
)
