package zotero

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// linkedAttachments counts attachments whose file lives outside Zotero storage
var linkedAttachments = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "ayda_zotero_linked_attachments_total",
		Help: "Total number of linked Zotero attachments skipped for upload",
	},
)
