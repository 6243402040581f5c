// Package decode orchestrates the per-record database lookups: one rendering
// for the console echo and, independently, a raw numeric signal decode for the
// publish path. The two are deliberately decoupled so publishing stays
// deterministic while the echo stays human-friendly.
package decode

import (
	"errors"

	"github.com/tuna-f1sh/cantools/internal/domain"
	"github.com/tuna-f1sh/cantools/internal/filter"
	"github.com/tuna-f1sh/cantools/internal/ports"
)

// Status classifies the outcome of decoding one record. Every value is a
// normal control path; none is a pipeline failure.
type Status int

const (
	// StatusDecoded means the record produced a publishable point.
	StatusDecoded Status = iota
	// StatusUnknownFrame means the database has no message for the frame id.
	StatusUnknownFrame
	// StatusNameFiltered means the message name is outside the allow-list.
	// The echo is still produced.
	StatusNameFiltered
	// StatusNoSignals means the message decoded to an empty signal set, so
	// there is nothing to publish.
	StatusNoSignals
)

// Result carries the console echo text and, when Status is StatusDecoded, the
// point for the publish path.
type Result struct {
	Status Status
	Echo   string
	Point  *domain.Point
}

// Adapter binds the database handle, session tags and publish-path filters.
type Adapter struct {
	db            ports.Database
	session       domain.Session
	names         filter.NameFilter
	decodeChoices bool
	singleLine    bool
}

func NewAdapter(db ports.Database, session domain.Session, names filter.NameFilter, decodeChoices, singleLine bool) *Adapter {
	return &Adapter{
		db:            db,
		session:       session,
		names:         names,
		decodeChoices: decodeChoices,
		singleLine:    singleLine,
	}
}

// Decode runs both lookup paths for one record. It issues no retries; the
// database is a pure local lookup.
func (a *Adapter) Decode(rec domain.FrameRecord) (Result, error) {
	echo, err := a.db.Render(rec.FrameID, rec.Payload, a.decodeChoices, a.singleLine)
	if errors.Is(err, ports.ErrUnknownFrame) {
		return Result{Status: StatusUnknownFrame}, nil
	}
	if err != nil {
		return Result{}, err
	}

	name, ok := a.db.MessageName(rec.FrameID)
	if !ok {
		return Result{Status: StatusUnknownFrame, Echo: echo}, nil
	}
	if !a.names.Pass(name) {
		return Result{Status: StatusNameFiltered, Echo: echo}, nil
	}

	signals, err := a.db.DecodeSignals(rec.FrameID, rec.Payload)
	if err != nil && !errors.Is(err, ports.ErrUnknownFrame) {
		return Result{}, err
	}
	if len(signals) == 0 {
		return Result{Status: StatusNoSignals, Echo: echo}, nil
	}

	return Result{
		Status: StatusDecoded,
		Echo:   echo,
		Point: &domain.Point{
			Measurement: name,
			Tags:        a.session.Tags(rec.Link),
			Timestamp:   rec.Timestamp,
			Fields:      signals,
		},
	}, nil
}
