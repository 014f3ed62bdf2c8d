package prometheus

import (
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Application counters, registered on the default registry that the
// /metrics server exposes.
var (
	LinksCreatedTotal = promauto.NewCounter(
		prom.CounterOpts{
			Name: "snaplink_links_created_total",
			Help: "Total number of short links created",
		},
	)

	RedirectsTotal = promauto.NewCounterVec(
		prom.CounterOpts{
			Name: "snaplink_redirects_total",
			Help: "Total number of resolve attempts by outcome",
		},
		[]string{"outcome"},
	)

	LinkCacheHitsTotal = promauto.NewCounter(
		prom.CounterOpts{
			Name: "snaplink_link_cache_hits_total",
			Help: "Total number of resolve lookups served from Redis",
		},
	)

	LinkCacheMissesTotal = promauto.NewCounter(
		prom.CounterOpts{
			Name: "snaplink_link_cache_misses_total",
			Help: "Total number of resolve lookups that fell through to Postgres",
		},
	)

	ClickEventsPublishedTotal = promauto.NewCounter(
		prom.CounterOpts{
			Name: "snaplink_click_events_published_total",
			Help: "Total number of click events published to JetStream",
		},
	)

	ClickEventsStoredTotal = promauto.NewCounter(
		prom.CounterOpts{
			Name: "snaplink_click_events_stored_total",
			Help: "Total number of click events persisted to the event log",
		},
	)

	ClickEventsPrunedTotal = promauto.NewCounter(
		prom.CounterOpts{
			Name: "snaplink_click_events_pruned_total",
			Help: "Total number of click events deleted by retention",
		},
	)
)
