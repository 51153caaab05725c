package protocol

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildFrame returns an 11-byte frame with the raw current value placed
// little-endian at the CM160 offset.
func buildFrame(marker byte, raw uint16) []byte {
	frame := make([]byte, OwlCM160.FrameLength)
	frame[0] = marker
	frame[8] = byte(raw)
	frame[9] = byte(raw >> 8)
	return frame
}

func TestNextFrameNeedsMoreData(t *testing.T) {
	var rb ReceiveBuffer
	full := buildFrame(0x51, 41)

	// Frame split across two reads: nothing may be extracted or lost.
	rb.Feed(full[:5])
	frame, ok := rb.NextFrame(OwlCM160)
	assert.False(t, ok)
	assert.Nil(t, frame)
	assert.Equal(t, 5, rb.Len())

	rb.Feed(full[5:])
	frame, ok = rb.NextFrame(OwlCM160)
	require.True(t, ok)
	assert.Equal(t, PacketRealtime, frame.Kind)
	assert.Equal(t, full, frame.Data)
	assert.Equal(t, 0, rb.Len())
}

func TestNextFrameResync(t *testing.T) {
	var rb ReceiveBuffer
	rb.Feed([]byte{0x42})
	rb.Feed(buildFrame(0x51, 41))

	// Exactly one garbage byte is skipped, then classification resumes.
	frame, ok := rb.NextFrame(OwlCM160)
	require.True(t, ok)
	assert.Equal(t, PacketUnrecognized, frame.Kind)
	assert.Equal(t, []byte{0x42}, frame.Data)

	frame, ok = rb.NextFrame(OwlCM160)
	require.True(t, ok)
	assert.Equal(t, PacketRealtime, frame.Kind)
}

func TestNextFrameEmptyBuffer(t *testing.T) {
	var rb ReceiveBuffer
	frame, ok := rb.NextFrame(OwlCM160)
	assert.False(t, ok)
	assert.Nil(t, frame)
}

func TestClassifyKinds(t *testing.T) {
	identifier := []byte{0xA9, 'I', 'D', 'T', 'C', 'M', 'V', '0', '0', '1', 0x01}
	wait := []byte{0xA9, 'I', 'D', 'T', 'W', 'A', 'I', 'T', 'P', 'C', 'R'}

	assert.Equal(t, PacketRealtime, OwlCM160.classify(buildFrame(0x51, 0)))
	assert.Equal(t, PacketHistory, OwlCM160.classify(buildFrame(0x59, 0)))
	assert.Equal(t, PacketIdentifier, OwlCM160.classify(identifier))
	assert.Equal(t, PacketIdentifier, OwlCM160.classify(wait))
	// Identifier-marker frames without the tag are history/handshake traffic
	assert.Equal(t, PacketHistory, OwlCM160.classify(buildFrame(0xA9, 0)))
}

func TestDecodeMeasurementScale(t *testing.T) {
	profile := *OwlCM160
	profile.Multiplier = 0.1

	m, err := profile.DecodeMeasurement(&RawFrame{Kind: PacketRealtime, Data: buildFrame(0x51, 41)})
	require.NoError(t, err)
	assert.Equal(t, 4.1, m.Current)

	// CM160 factory multiplier
	m, err = OwlCM160.DecodeMeasurement(&RawFrame{Kind: PacketRealtime, Data: buildFrame(0x51, 100)})
	require.NoError(t, err)
	assert.Equal(t, 7.0, m.Current)
}

func TestDecodeMeasurementByteOrder(t *testing.T) {
	profile := *OwlCM160
	profile.ByteOrder = MSBFirst
	profile.Multiplier = 1

	frame := make([]byte, profile.FrameLength)
	frame[0] = 0x51
	frame[8] = 0x01
	frame[9] = 0x02

	m, err := profile.DecodeMeasurement(&RawFrame{Kind: PacketRealtime, Data: frame})
	require.NoError(t, err)
	assert.Equal(t, float64(0x0102), m.Current)
}

func TestDecodeMeasurementMalformed(t *testing.T) {
	profile := *OwlCM160
	profile.CurrentOffset = 10

	_, err := profile.DecodeMeasurement(&RawFrame{Kind: PacketRealtime, Data: buildFrame(0x51, 41)})
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

func TestDecodeHistoryRecord(t *testing.T) {
	frame := buildFrame(0x59, 41)
	frame[1] = 24 // 2024
	frame[2] = 6
	frame[3] = 15
	frame[4] = 13
	frame[5] = 30

	record, err := OwlCM160.DecodeHistoryRecord(&RawFrame{Kind: PacketHistory, Data: frame})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 15, 13, 30, 0, 0, time.UTC), record.Timestamp)
	assert.Equal(t, 2.9, record.Current) // 41 * 0.07 rounded to one decimal
}
