// Frame extraction and decoding for the OWL serial protocol family.
// The stream is a sequence of fixed-length binary frames identified by a
// leading marker byte; anything that does not line up on a known marker is
// skipped one byte at a time until the stream resynchronizes.
package protocol

import (
	"bytes"
	"fmt"
	"math"
	"time"
)

var ErrMalformedFrame = fmt.Errorf("malformed frame")

// ReceiveBuffer accumulates raw serial reads and hands out complete frames.
// Bytes of a frame split across reads are retained until the rest arrives.
type ReceiveBuffer struct {
	data []byte
}

func (rb *ReceiveBuffer) Feed(chunk []byte) {
	rb.data = append(rb.data, chunk...)
}

func (rb *ReceiveBuffer) Len() int {
	return len(rb.data)
}

func (rb *ReceiveBuffer) Reset() {
	rb.data = rb.data[:0]
}

// NextFrame extracts the next classified frame from the buffer.
// Returns nil, false when no complete frame is available yet; the buffered
// bytes are kept so a later Feed can complete the frame. A byte that matches
// no marker is consumed alone and returned as a PacketUnrecognized frame.
func (rb *ReceiveBuffer) NextFrame(p *DeviceProfile) (*RawFrame, bool) {
	if len(rb.data) == 0 {
		return nil, false
	}

	marker := rb.data[0]
	if marker != p.IdentifierMarker && marker != p.HistoryMarker && marker != p.RealtimeMarker {
		// Resynchronize: skip a single byte, never a whole frame length.
		frame := &RawFrame{Kind: PacketUnrecognized, Data: []byte{marker}}
		rb.data = rb.data[1:]
		return frame, true
	}

	if len(rb.data) < p.FrameLength {
		// Partial frame, wait for more data.
		return nil, false
	}

	data := make([]byte, p.FrameLength)
	copy(data, rb.data[:p.FrameLength])
	rb.data = rb.data[p.FrameLength:]

	return &RawFrame{Kind: p.classify(data), Data: data}, true
}

// classify maps a complete frame to its packet kind. Frames in the
// identifier marker family carry either the device identity (payload tagged
// "IDT") or history/handshake traffic.
func (p *DeviceProfile) classify(data []byte) PacketKind {
	switch data[0] {
	case p.RealtimeMarker:
		return PacketRealtime
	case p.HistoryMarker:
		return PacketHistory
	case p.IdentifierMarker:
		if bytes.HasPrefix(data[1:], p.IdentifierTag) {
			return PacketIdentifier
		}
		return PacketHistory
	default:
		return PacketUnrecognized
	}
}

// DecodeMeasurement extracts the scaled current value from a realtime frame.
func (p *DeviceProfile) DecodeMeasurement(frame *RawFrame) (*Measurement, error) {
	current, err := p.decodeCurrent(frame.Data)
	if err != nil {
		return nil, err
	}
	return &Measurement{Current: current}, nil
}

// DecodeHistoryRecord extracts the timestamped reading from a history frame.
func (p *DeviceProfile) DecodeHistoryRecord(frame *RawFrame) (*HistoryRecord, error) {
	current, err := p.decodeCurrent(frame.Data)
	if err != nil {
		return nil, err
	}
	if p.TimestampOffset+5 > len(frame.Data) {
		return nil, fmt.Errorf("timestamp at offset %d: %w", p.TimestampOffset, ErrMalformedFrame)
	}

	ts := frame.Data[p.TimestampOffset : p.TimestampOffset+5]
	return &HistoryRecord{
		Timestamp: time.Date(
			2000+int(ts[0]), time.Month(ts[1]), int(ts[2]),
			int(ts[3]), int(ts[4]), 0, 0, time.UTC,
		),
		Current: current,
	}, nil
}

func (p *DeviceProfile) decodeCurrent(data []byte) (float64, error) {
	if p.CurrentOffset+2 > len(data) {
		return 0, fmt.Errorf("current field at offset %d exceeds frame length %d: %w",
			p.CurrentOffset, len(data), ErrMalformedFrame)
	}

	var raw uint16
	if p.ByteOrder == MSBFirst {
		raw = uint16(data[p.CurrentOffset])<<8 | uint16(data[p.CurrentOffset+1])
	} else {
		raw = uint16(data[p.CurrentOffset+1])<<8 | uint16(data[p.CurrentOffset])
	}

	// Readings are reported to one decimal of an ampere.
	return math.Round(float64(raw)*p.Multiplier*10) / 10, nil
}
