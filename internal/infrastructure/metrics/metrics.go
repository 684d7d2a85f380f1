// Package metrics holds the domain counters exported on /metrics next to
// the HTTP request metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	RedirectFound    = "found"
	RedirectNotFound = "not_found"
	RedirectError    = "error"

	LoginSucceeded = "succeeded"
	LoginRejected  = "rejected"
	LoginError     = "error"
)

var (
	LinksCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shorturl_link_create_total",
			Help: "Short link create attempts by outcome",
		},
		[]string{"outcome"},
	)

	Redirects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shorturl_redirects_total",
			Help: "Short code lookups by result",
		},
		[]string{"result"},
	)

	Logins = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shorturl_logins_total",
			Help: "OAuth callbacks by outcome",
		},
		[]string{"outcome"},
	)

	AccountsProvisioned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shorturl_accounts_provisioned_total",
			Help: "Accounts created on first login",
		},
	)
)
