package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RestartsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "openattach_restarts_total",
			Help: "Total restart attempts by outcome",
		},
		[]string{"result"},
	)

	AttachRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "openattach_attach_requests_total",
			Help: "Total attach requests received by outcome",
		},
		[]string{"result"},
	)

	OutputBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "openattach_output_bytes_total",
			Help: "Bytes of child output mirrored to the terminal",
		},
	)

	SessionActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "openattach_session_active",
			Help: "Whether a supervised session is currently active (0 or 1)",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RestartsTotal,
		AttachRequestsTotal,
		OutputBytesTotal,
		SessionActive,
	)
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
