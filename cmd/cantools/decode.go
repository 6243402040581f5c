package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/tuna-f1sh/cantools/internal/adapters/candb"
	"github.com/tuna-f1sh/cantools/internal/adapters/influx"
	"github.com/tuna-f1sh/cantools/internal/adapters/observability"
	"github.com/tuna-f1sh/cantools/internal/batch"
	"github.com/tuna-f1sh/cantools/internal/config"
	"github.com/tuna-f1sh/cantools/internal/decode"
	"github.com/tuna-f1sh/cantools/internal/domain"
	"github.com/tuna-f1sh/cantools/internal/filter"
	"github.com/tuna-f1sh/cantools/internal/parse"
	"github.com/tuna-f1sh/cantools/internal/pipeline"
	"github.com/tuna-f1sh/cantools/internal/ports"
	"github.com/tuna-f1sh/cantools/internal/publish"
)

// exitInterrupted signals interrupted-but-clean shutdown, 128+SIGINT.
const exitInterrupted = 130

func decodeCommand() *cli.Command {
	return &cli.Command{
		Name:      "decode",
		Usage:     "decode candump frames and optionally publish them to InfluxDB",
		ArgsUsage: "DATABASE",
		Description: `Reads candump output from stdin (or --input FILE), decodes each frame
against the DBC DATABASE and echoes the decoded signals. With --influxdb set,
decoded points are batched and published asynchronously.

In live mode a non-frame line ends the stream; in log mode it is skipped.`,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "YAML config `FILE`; flags override its fields"},
			&cli.StringFlag{Name: "input", Aliases: []string{"I"}, Usage: "capture `FILE`, or - for stdin (default)"},
			&cli.StringFlag{Name: "filetype", Aliases: []string{"f"}, Usage: "input encoding: live or log (default live)"},
			&cli.BoolFlag{Name: "no-decode-choices", Aliases: []string{"c"}, Usage: "do not convert scaled values to choice strings in the echo"},
			&cli.BoolFlag{Name: "single-line", Aliases: []string{"s"}, Usage: "print each decoded message on a single line"},
			&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "suppress decoded output on stdout"},
			&cli.BoolFlag{Name: "no-strict", Usage: "tolerate database consistency warnings"},
			&cli.StringFlag{Name: "frame-id-mask", Aliases: []string{"m"}, Usage: "only compare the masked id bits during database lookup"},
			&cli.StringSliceFlag{Name: "frame-id", Usage: "only decode these frame ids (hex or decimal, repeatable)"},
			&cli.StringSliceFlag{Name: "name", Usage: "only publish these message names (repeatable)"},
			&cli.StringFlag{Name: "influxdb", Aliases: []string{"i"}, Usage: "publish decoded signals to this InfluxDB `DATABASE`"},
			&cli.StringFlag{Name: "influxdb-host", Usage: "InfluxDB server host (default 127.0.0.1)"},
			&cli.IntFlag{Name: "influxdb-port", Usage: "InfluxDB server port (default 8086)"},
			&cli.StringFlag{Name: "influxdb-user", Usage: "InfluxDB username"},
			&cli.StringFlag{Name: "influxdb-password", Usage: "InfluxDB password"},
			&cli.BoolFlag{Name: "influxdb-tls", Usage: "connect to InfluxDB over TLS"},
			&cli.BoolFlag{Name: "influxdb-insecure", Usage: "skip TLS certificate verification"},
			&cli.StringFlag{Name: "influxdb-path", Usage: "URL path prefix for proxied InfluxDB endpoints"},
			&cli.StringFlag{Name: "metrics-addr", Usage: "expose Prometheus metrics on this `ADDR`"},
		},
		Action: runDecode,
	}
}

func runDecode(c *cli.Context) error {
	cfg, err := buildConfig(c)
	if err != nil {
		return cli.Exit(fmt.Sprintf("cantools decode: %v", err), 1)
	}

	obs, err := observability.New(cfg.Quiet)
	if err != nil {
		return cli.Exit(fmt.Sprintf("cantools decode: logger: %v", err), 1)
	}
	defer func() { _ = obs.Sync() }()

	mask, _ := cfg.Mask()
	frameIDs, _ := cfg.FrameIDSet()

	db, warnings, err := candb.Load(cfg.Database, mask, !cfg.NoStrict)
	for _, w := range warnings {
		obs.LogWarn("database_warning", ports.Field{Key: "warning", Value: w.Error()})
	}
	if err != nil {
		return cli.Exit(fmt.Sprintf("cantools decode: %v", err), 1)
	}

	in, closeIn, err := openInput(cfg.Input)
	if err != nil {
		return cli.Exit(fmt.Sprintf("cantools decode: %v", err), 1)
	}
	defer closeIn()

	// The sink connection is verified before a single record is read; a
	// failure here terminates with no partial work.
	var pub *publish.Publisher
	if cfg.PublishEnabled() {
		sink, err := influx.New(cfg.Influx)
		if err != nil {
			return cli.Exit(fmt.Sprintf("cantools decode: %v", err), 1)
		}
		defer func() { _ = sink.Close() }()
		pub = publish.New(sink, publish.DropPolicy{Obs: obs}, obs, cfg.QueueDepth)
	}

	session := domain.NewSession(cfg.Database)
	adapter := decode.NewAdapter(db, session,
		filter.NewNameFilter(cfg.Names), !cfg.NoDecodeChoices, cfg.SingleLine)

	mode := parse.Mode(cfg.Mode)
	pl := pipeline.New(parse.New(mode), mode.MismatchPolicy(),
		filter.NewIDFilter(frameIDs), adapter,
		batch.NewAccumulator(cfg.BatchSize), pub, obs, c.App.Writer, cfg.Quiet)

	stopMetrics := startMetrics(cfg.Metrics.Addr, obs)
	defer stopMetrics()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = pl.Run(ctx, in)
	if errors.Is(err, pipeline.ErrInterrupted) {
		if pub != nil {
			obs.LogInfo("interrupted, pending batches flushed",
				ports.Field{Key: "published", Value: pub.Published()},
				ports.Field{Key: "failed", Value: pub.Failed()})
		}
		return cli.Exit("", exitInterrupted)
	}
	if err != nil {
		return cli.Exit(fmt.Sprintf("cantools decode: %v", err), 1)
	}
	return nil
}

// buildConfig layers CLI flags over an optional YAML file, then applies
// defaults and validation once.
func buildConfig(c *cli.Context) (*config.Config, error) {
	cfg := &config.Config{}
	if path := c.String("config"); path != "" {
		loaded, err := config.LoadFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if c.Args().Len() > 0 {
		cfg.Database = c.Args().First()
	}
	if c.IsSet("input") {
		cfg.Input = c.String("input")
	}
	if c.IsSet("filetype") {
		cfg.Mode = c.String("filetype")
	}
	if c.IsSet("no-decode-choices") {
		cfg.NoDecodeChoices = c.Bool("no-decode-choices")
	}
	if c.IsSet("single-line") {
		cfg.SingleLine = c.Bool("single-line")
	}
	if c.IsSet("quiet") {
		cfg.Quiet = c.Bool("quiet")
	}
	if c.IsSet("no-strict") {
		cfg.NoStrict = c.Bool("no-strict")
	}
	if c.IsSet("frame-id-mask") {
		cfg.FrameIDMask = c.String("frame-id-mask")
	}
	if c.IsSet("frame-id") {
		cfg.FrameIDs = c.StringSlice("frame-id")
	}
	if c.IsSet("name") {
		cfg.Names = c.StringSlice("name")
	}
	if c.IsSet("influxdb") {
		cfg.Influx.Database = c.String("influxdb")
	}
	if c.IsSet("influxdb-host") {
		cfg.Influx.Host = c.String("influxdb-host")
	}
	if c.IsSet("influxdb-port") {
		cfg.Influx.Port = c.Int("influxdb-port")
	}
	if c.IsSet("influxdb-user") {
		cfg.Influx.Username = c.String("influxdb-user")
	}
	if c.IsSet("influxdb-password") {
		cfg.Influx.Password = c.String("influxdb-password")
	}
	if c.IsSet("influxdb-tls") {
		cfg.Influx.TLS = c.Bool("influxdb-tls")
	}
	if c.IsSet("influxdb-insecure") {
		cfg.Influx.InsecureSkipVerify = c.Bool("influxdb-insecure")
	}
	if c.IsSet("influxdb-path") {
		cfg.Influx.PathPrefix = c.String("influxdb-path")
	}
	if c.IsSet("metrics-addr") {
		cfg.Metrics.Addr = c.String("metrics-addr")
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openInput(input string) (io.Reader, func(), error) {
	if input == "" || input == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(input)
	if err != nil {
		return nil, nil, fmt.Errorf("open input: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

// startMetrics serves /metrics and /healthz when an address is configured.
// The returned func shuts the server down.
func startMetrics(addr string, obs *observability.ZapProm) func() {
	if addr == "" {
		return func() {}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", obs.MetricsHandler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			obs.LogError("metrics_server_exited", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
