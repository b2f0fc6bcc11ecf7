package pagination

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// pagesFetched tracks page fetches by result ("ok", "error", "invalid")
	pagesFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ayda_pages_fetched_total",
			Help: "Total number of source pages fetched by result",
		},
		[]string{"result"},
	)

	// itemsFetched tracks items received from valid pages
	itemsFetched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ayda_items_fetched_total",
			Help: "Total number of source items received",
		},
	)
)
