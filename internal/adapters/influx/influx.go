// Package influx implements the sink port against an InfluxDB 1.x endpoint.
package influx

import (
	"fmt"
	"time"

	client "github.com/influxdata/influxdb1-client/v2"

	"github.com/tuna-f1sh/cantools/internal/config"
	"github.com/tuna-f1sh/cantools/internal/domain"
	"github.com/tuna-f1sh/cantools/internal/ports"
)

const pingTimeout = 5 * time.Second

// Sink writes point batches with nanosecond precision. It is constructed once
// at startup and owned by the publisher worker afterwards.
type Sink struct {
	client   client.Client
	database string
}

// New connects to the server, verifies it with a ping, and creates the target
// database if needed. Any failure here is fatal to the run: the pipeline must
// not ingest a single record against a sink it cannot reach.
func New(cfg config.InfluxConfig) (*Sink, error) {
	scheme := "http"
	if cfg.TLS {
		scheme = "https"
	}
	addr := fmt.Sprintf("%s://%s:%d%s", scheme, cfg.Host, cfg.Port, cfg.PathPrefix)

	c, err := client.NewHTTPClient(client.HTTPConfig{
		Addr:               addr,
		Username:           cfg.Username,
		Password:           cfg.Password,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	})
	if err != nil {
		return nil, fmt.Errorf("influxdb client: %w", err)
	}

	if _, _, err := c.Ping(pingTimeout); err != nil {
		c.Close()
		return nil, fmt.Errorf("connect influxdb %s: %w", addr, err)
	}

	s := &Sink{client: c, database: cfg.Database}
	if err := s.createDatabase(); err != nil {
		c.Close()
		return nil, err
	}
	return s, nil
}

func (s *Sink) createDatabase() error {
	q := client.NewQuery(fmt.Sprintf("CREATE DATABASE %q", s.database), "", "")
	resp, err := s.client.Query(q)
	if err != nil {
		return fmt.Errorf("create database %s: %w", s.database, err)
	}
	if resp.Error() != nil {
		return fmt.Errorf("create database %s: %w", s.database, resp.Error())
	}
	return nil
}

func (s *Sink) Name() string { return "influxdb" }

// WriteBatch persists one batch in a single write call. Point order within
// the batch is preserved.
func (s *Sink) WriteBatch(points []domain.Point) error {
	if len(points) == 0 {
		return nil
	}

	bp, err := client.NewBatchPoints(client.BatchPointsConfig{
		Database:  s.database,
		Precision: "ns",
	})
	if err != nil {
		return err
	}

	for _, p := range points {
		pt, err := client.NewPoint(p.Measurement, p.Tags, p.Fields, time.Unix(0, p.Timestamp))
		if err != nil {
			return fmt.Errorf("point %s: %w", p.Measurement, err)
		}
		bp.AddPoint(pt)
	}

	return s.client.Write(bp)
}

func (s *Sink) Close() error {
	return s.client.Close()
}

var _ ports.Sink = (*Sink)(nil)
