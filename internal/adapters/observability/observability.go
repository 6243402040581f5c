// Package observability implements the logging/metrics port with zap and
// Prometheus. Logs go to stderr so decoded output owns stdout.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tuna-f1sh/cantools/internal/ports"
)

type ZapProm struct {
	log      *zap.Logger
	registry *prometheus.Registry
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	histos   map[string]prometheus.Observer
}

// New builds the observability stack. quiet raises the log level so only
// errors reach stderr. Each instance carries its own registry.
func New(quiet bool) (*ZapProm, error) {
	logCfg := zap.NewProductionConfig()
	logCfg.OutputPaths = []string{"stderr"}
	if quiet {
		logCfg.Level = zap.NewAtomicLevelAt(zapcore.ErrorLevel)
	}
	logger, err := logCfg.Build()
	if err != nil {
		return nil, err
	}

	parsed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cantools_frames_parsed_total",
		Help: "Lines successfully parsed into frame records.",
	})
	skipped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cantools_lines_skipped_total",
		Help: "Input lines that did not match the active grammar.",
	})
	unknown := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cantools_frames_unknown_total",
		Help: "Frames whose id the database does not define.",
	})
	filtered := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cantools_frames_filtered_total",
		Help: "Frames excluded by the id or message-name allow-lists.",
	})
	decoded := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cantools_points_decoded_total",
		Help: "Decoded points handed to the batch accumulator.",
	})
	published := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cantools_batches_published_total",
		Help: "Batches written to the sink.",
	})
	pubPoints := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cantools_points_published_total",
		Help: "Points contained in successfully written batches.",
	})
	failed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cantools_batches_failed_total",
		Help: "Batches the sink rejected.",
	})
	queueDepth := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cantools_publish_queue_depth",
		Help: "Batches currently waiting for the publisher worker.",
	})
	writeLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cantools_sink_write_seconds",
		Help:    "Sink write call latency.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	registry := prometheus.NewRegistry()
	registry.MustRegister(parsed, skipped, unknown, filtered, decoded,
		published, pubPoints, failed, queueDepth, writeLatency)

	return &ZapProm{
		log:      logger,
		registry: registry,
		counters: map[string]prometheus.Counter{
			"cantools_frames_parsed_total":     parsed,
			"cantools_lines_skipped_total":     skipped,
			"cantools_frames_unknown_total":    unknown,
			"cantools_frames_filtered_total":   filtered,
			"cantools_points_decoded_total":    decoded,
			"cantools_batches_published_total": published,
			"cantools_points_published_total":  pubPoints,
			"cantools_batches_failed_total":    failed,
		},
		gauges: map[string]prometheus.Gauge{
			"cantools_publish_queue_depth": queueDepth,
		},
		histos: map[string]prometheus.Observer{
			"cantools_sink_write_seconds": writeLatency,
		},
	}, nil
}

func (z *ZapProm) LogInfo(msg string, fields ...ports.Field) {
	z.log.Info(msg, zapFields(fields)...)
}

func (z *ZapProm) LogWarn(msg string, fields ...ports.Field) {
	z.log.Warn(msg, zapFields(fields)...)
}

func (z *ZapProm) LogError(msg string, err error, fields ...ports.Field) {
	z.log.Error(msg, append(zapFields(fields), zap.Error(err))...)
}

func (z *ZapProm) IncCounter(name string, v float64) {
	if c, ok := z.counters[name]; ok {
		c.Add(v)
	}
}

func (z *ZapProm) SetGauge(name string, v float64) {
	if g, ok := z.gauges[name]; ok {
		g.Set(v)
	}
}

func (z *ZapProm) ObserveLatency(name string, seconds float64) {
	if h, ok := z.histos[name]; ok {
		h.Observe(seconds)
	}
}

// MetricsHandler serves this instance's registry for the /metrics endpoint.
func (z *ZapProm) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(z.registry, promhttp.HandlerOpts{})
}

// Sync flushes buffered log entries. Called on exit.
func (z *ZapProm) Sync() error {
	return z.log.Sync()
}

func zapFields(fields []ports.Field) []zap.Field {
	out := make([]zap.Field, 0, len(fields))
	for _, f := range fields {
		out = append(out, zap.Any(f.Key, f.Value))
	}
	return out
}

var _ ports.Observability = (*ZapProm)(nil)
