package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler returns an HTTP handler serving the spooled totals in the
// Prometheus exposition format. When local is non-nil it is flushed into
// the spool before every scrape, so the serving process's own samples are
// included.
func (s *Spool) Handler(local prometheus.Gatherer) http.Handler {
	registry := prometheus.NewRegistry()
	registry.MustRegister(s)
	inner := promhttp.HandlerFor(
		registry,
		promhttp.HandlerOpts{
			EnableOpenMetrics: true,
			ErrorHandling:     promhttp.ContinueOnError,
		},
	)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if local != nil {
			if err := s.Flush(local); err != nil {
				s.logger.Warn("failed to flush local metrics", "error", err)
			}
		}
		inner.ServeHTTP(w, r)
	})
}
