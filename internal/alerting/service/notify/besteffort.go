package notify

import (
	"github.com/rs/zerolog/log"

	"github.com/skyenjuhneeruhng/vikingscada-api/internal/alerting/metrics"
)

// bestEffort runs one dispatch and swallows its error: a failed send must
// never abort the batch or retry. The failure stays visible through the
// log line and the dispatch_failures_total counter.
func bestEffort(channel string, fn func() error) {
	if err := fn(); err != nil {
		metrics.DispatchFailures.WithLabelValues(channel).Inc()
		log.Warn().Err(err).Str("channel", channel).Msg("notification dispatch failed")
	}
}
