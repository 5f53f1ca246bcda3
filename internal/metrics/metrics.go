// Package metrics defines the Prometheus instruments for the pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ArticlesCollected counts records produced by the collector per source.
	ArticlesCollected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "newswire_articles_collected_total",
		Help: "Articles collected, by source.",
	}, []string{"source"})

	// ArticlesEnqueued counts records appended to the ingest stream.
	ArticlesEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "newswire_articles_enqueued_total",
		Help: "Articles appended to the ingest stream.",
	})

	// ArticlesProcessed counts records stored and broadcast by workers.
	ArticlesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "newswire_articles_processed_total",
		Help: "Articles enriched, stored, and broadcast.",
	})

	// EnrichmentFailures counts failed enrichment batches.
	EnrichmentFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "newswire_enrichment_failures_total",
		Help: "Enrichment batch calls that failed.",
	})

	// BroadcastsSent counts envelopes delivered to subscribers.
	BroadcastsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "newswire_broadcasts_sent_total",
		Help: "Envelopes delivered to connected subscribers.",
	})

	// ConnectedClients tracks currently connected subscribers.
	ConnectedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "newswire_connected_clients",
		Help: "Currently connected WebSocket subscribers.",
	})
)
