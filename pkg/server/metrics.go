package server

import (
	"net/http"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"
)

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var families []*dto.MetricFamily

	if s.cache != nil {
		st := s.cache.Stats()
		families = append(families,
			counter("duckstack_cache_hits_total", "Cache lookups served from a live entry.", float64(st.Hits)),
			counter("duckstack_cache_misses_total", "Cache lookups that found no live entry.", float64(st.Misses)),
			counter("duckstack_cache_evictions_total", "Expired entries removed from the cache.", float64(st.Evictions)),
			gauge("duckstack_cache_entries", "Entries currently held by the cache.", float64(st.Entries)),
		)
	}
	families = append(families,
		counter("duckstack_upstream_requests_total", "Requests sent to upstream sources.", float64(s.fetcher.UpstreamRequests())),
		counter("duckstack_upstream_errors_total", "Upstream requests that failed.", float64(s.fetcher.UpstreamErrors())),
	)

	w.Header().Set("Content-Type", string(expfmt.NewFormat(expfmt.TypeTextPlain)))
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			s.log.Warn().Err(err).Str("metric", mf.GetName()).Msg("write metric failed")
			return
		}
	}
}

func counter(name, help string, v float64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   proto.String(name),
		Help:   proto.String(help),
		Type:   dto.MetricType_COUNTER.Enum(),
		Metric: []*dto.Metric{{Counter: &dto.Counter{Value: proto.Float64(v)}}},
	}
}

func gauge(name, help string, v float64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   proto.String(name),
		Help:   proto.String(help),
		Type:   dto.MetricType_GAUGE.Enum(),
		Metric: []*dto.Metric{{Gauge: &dto.Gauge{Value: proto.Float64(v)}}},
	}
}
