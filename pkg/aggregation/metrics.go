package aggregation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	queryDuration        *prometheus.HistogramVec
	groupLimitRejections prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	return &metrics{
		queryDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "teable_aggregation_query_duration_seconds",
			Help:    "Duration of store queries issued by the aggregation service.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		groupLimitRejections: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "teable_aggregation_group_limit_rejections_total",
			Help: "Grouping requests rejected for exceeding the group point limit.",
		}),
	}
}
