// Package metrics exposes routing counters on a dedicated Prometheus registry.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "volmixer"

// Unrouted reasons.
const (
	ReasonUnknownPin  = "unknown_pin"
	ReasonEmptyPin    = "empty_pin"
	ReasonNoProcesses = "no_processes"
	ReasonResolve     = "resolve_error"
)

// Metrics holds every collector for one engine. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	serialLines        prometheus.Counter
	decodeErrors       prometheus.Counter
	unrouted           *prometheus.CounterVec
	volumeApplied      prometheus.Counter
	volumeApplyErrors  prometheus.Counter
	resolutions        *prometheus.CounterVec
	serialOpenAttempts prometheus.Counter
	engineState        *prometheus.GaugeVec
}

// New registers the volmixer collectors plus Go runtime collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		serialLines: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "serial_lines_total",
			Help:      "Total number of lines read from the serial link",
		}),
		decodeErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Total number of serial lines that failed to decode",
		}),
		unrouted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unrouted_messages_total",
			Help:      "Total number of decoded messages that reached no process",
		}, []string{"reason"}),
		volumeApplied: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "volume_applied_total",
			Help:      "Total number of successful per-session volume changes",
		}),
		volumeApplyErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "volume_apply_errors_total",
			Help:      "Total number of per-process volume changes that failed",
		}),
		resolutions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mapping_resolutions_total",
			Help:      "Total number of application to process resolutions",
		}, []string{"trigger"}),
		serialOpenAttempts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "serial_open_attempts_total",
			Help:      "Total number of serial port open attempts",
		}),
		engineState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "engine_state",
			Help:      "1 for the engine's current lifecycle state, 0 otherwise",
		}, []string{"state"}),
	}
}

func (m *Metrics) SerialLine() {
	if m != nil {
		m.serialLines.Inc()
	}
}

func (m *Metrics) DecodeError() {
	if m != nil {
		m.decodeErrors.Inc()
	}
}

func (m *Metrics) Unrouted(reason string) {
	if m != nil {
		m.unrouted.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) VolumeApplied() {
	if m != nil {
		m.volumeApplied.Inc()
	}
}

func (m *Metrics) VolumeApplyError() {
	if m != nil {
		m.volumeApplyErrors.Inc()
	}
}

func (m *Metrics) Resolution(trigger string) {
	if m != nil {
		m.resolutions.WithLabelValues(trigger).Inc()
	}
}

func (m *Metrics) SerialOpenAttempt() {
	if m != nil {
		m.serialOpenAttempts.Inc()
	}
}

// State marks current as the only active state among states.
func (m *Metrics) State(current string, states []string) {
	if m == nil {
		return
	}
	for _, s := range states {
		v := 0.0
		if s == current {
			v = 1
		}
		m.engineState.WithLabelValues(s).Set(v)
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// Serve exposes /metrics on listen until ctx is done.
func (m *Metrics) Serve(ctx context.Context, listen string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics listener started", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
