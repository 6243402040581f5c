package domain

import "fmt"

// FrameRecord is one normalized CAN frame lifted out of a capture line.
type FrameRecord struct {
	// Timestamp is nanoseconds since the Unix epoch. In live mode it is the
	// arrival wall-clock time; in log mode it is the recorded capture time.
	Timestamp int64
	// Link is the bus/channel name the frame was seen on (e.g. "can0").
	Link string
	// FrameID is the 11- or 29-bit identifier, zero-extended to 32 bits.
	FrameID uint32
	// Payload holds 0-8 data bytes.
	Payload []byte
}

func (r FrameRecord) String() string {
	return fmt.Sprintf("%s %03X % X", r.Link, r.FrameID, r.Payload)
}

// Point is one decoded measurement ready for the sink.
type Point struct {
	Measurement string
	Tags        map[string]string
	// Timestamp is nanoseconds since the Unix epoch, copied from the frame.
	Timestamp int64
	Fields    map[string]any
}

func (p *Point) String() string {
	return fmt.Sprintf("%s tags=%v time=%d fields=%v", p.Measurement, p.Tags, p.Timestamp, p.Fields)
}
