// Package candb implements the frame-definition database port on top of a
// compiled DBC file.
package candb

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.einride.tech/can"
	"go.einride.tech/can/pkg/descriptor"
	"go.einride.tech/can/pkg/generate"

	"github.com/tuna-f1sh/cantools/internal/ports"
)

// DBC answers frame lookups against a loaded DBC database. Lookups are
// read-only and safe for shared use.
type DBC struct {
	db   *descriptor.Database
	path string
	// mask limits which id bits must match between a captured frame and a
	// database message; zero means exact equality.
	mask uint32
	byID map[uint32]*descriptor.Message
}

// Load compiles the DBC file at path. Compiler warnings are returned via
// Warnings; with strict set they become a load error instead.
func Load(path string, mask uint32, strict bool) (*DBC, []error, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	result, err := generate.Compile(path, data)
	if err != nil {
		return nil, nil, fmt.Errorf("compile database %s: %w", path, err)
	}
	if strict && len(result.Warnings) > 0 {
		return nil, result.Warnings, fmt.Errorf("database %s has %d consistency warnings", path, len(result.Warnings))
	}
	return New(result.Database, path, mask), result.Warnings, nil
}

// New wraps an already compiled database. Used directly in tests.
func New(db *descriptor.Database, path string, mask uint32) *DBC {
	d := &DBC{db: db, path: path, mask: mask}
	if mask == 0 {
		d.byID = make(map[uint32]*descriptor.Message, len(db.Messages))
		for _, m := range db.Messages {
			d.byID[m.ID] = m
		}
	}
	return d
}

// Path returns the source file the database was compiled from.
func (d *DBC) Path() string {
	return d.path
}

func (d *DBC) lookup(frameID uint32) (*descriptor.Message, bool) {
	if d.mask == 0 {
		m, ok := d.byID[frameID]
		return m, ok
	}
	for _, m := range d.db.Messages {
		if m.ID&d.mask == frameID&d.mask {
			return m, true
		}
	}
	return nil, false
}

// MessageName resolves the symbolic message name for a frame id.
func (d *DBC) MessageName(frameID uint32) (string, bool) {
	m, ok := d.lookup(frameID)
	if !ok {
		return "", false
	}
	return m.Name, true
}

// DecodeSignals returns the numeric signal mapping for the publish path.
// Choice labels are never substituted here.
func (d *DBC) DecodeSignals(frameID uint32, payload []byte) (map[string]any, error) {
	m, ok := d.lookup(frameID)
	if !ok {
		return nil, ports.ErrUnknownFrame
	}

	var data can.Data
	copy(data[:], payload)

	fields := make(map[string]any, len(m.Signals))
	for _, sig := range m.Signals {
		if !muxActive(m, sig, data) {
			continue
		}
		fields[sig.Name] = sig.UnmarshalPhysical(data)
	}
	return fields, nil
}

// Render produces the console text for one frame: a leading space plus
// "Name(Sig: val unit, ...)" when singleLine, otherwise the signals spread
// over indented lines.
func (d *DBC) Render(frameID uint32, payload []byte, decodeChoices, singleLine bool) (string, error) {
	m, ok := d.lookup(frameID)
	if !ok {
		return "", ports.ErrUnknownFrame
	}

	var data can.Data
	copy(data[:], payload)

	parts := make([]string, 0, len(m.Signals))
	for _, sig := range m.Signals {
		if !muxActive(m, sig, data) {
			continue
		}
		parts = append(parts, sig.Name+": "+renderValue(sig, data, decodeChoices))
	}

	if singleLine {
		return fmt.Sprintf(" %s(%s)", m.Name, strings.Join(parts, ", ")), nil
	}
	if len(parts) == 0 {
		return fmt.Sprintf("\n%s()", m.Name), nil
	}
	return fmt.Sprintf("\n%s(\n    %s\n)", m.Name, strings.Join(parts, ",\n    ")), nil
}

func renderValue(sig *descriptor.Signal, data can.Data, decodeChoices bool) string {
	if decodeChoices {
		if label, ok := sig.UnmarshalValueDescription(data); ok {
			return label
		}
	}
	s := strconv.FormatFloat(sig.UnmarshalPhysical(data), 'g', -1, 64)
	if sig.Unit != "" {
		s += " " + sig.Unit
	}
	return s
}

// muxActive reports whether a signal is present in this frame, honoring the
// message's multiplexer if it has one.
func muxActive(m *descriptor.Message, sig *descriptor.Signal, data can.Data) bool {
	if !sig.IsMultiplexed {
		return true
	}
	mux, ok := m.MultiplexerSignal()
	if !ok {
		return true
	}
	return uint(mux.UnmarshalUnsigned(data)) == sig.MultiplexerValue
}

var _ ports.Database = (*DBC)(nil)
