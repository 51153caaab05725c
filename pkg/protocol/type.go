package protocol

import "time"

// PacketKind classifies an extracted frame by its marker byte.
type PacketKind uint8

const (
	PacketUnrecognized PacketKind = iota
	PacketIdentifier
	PacketHistory
	PacketRealtime
)

func (k PacketKind) String() string {
	switch k {
	case PacketIdentifier:
		return "identifier"
	case PacketHistory:
		return "history"
	case PacketRealtime:
		return "realtime"
	default:
		return "unrecognized"
	}
}

// ConnectionState tracks where the device is in its transmission lifecycle.
// The device announces itself, replays buffered history, then settles into
// a steady stream of realtime frames. Disconnect resets to StateUnknown.
type ConnectionState uint8

const (
	StateUnknown ConnectionState = iota
	StateIdentifierReceived
	StateTransmittingHistory
	StateTransmittingRealtime
)

func (s ConnectionState) String() string {
	switch s {
	case StateIdentifierReceived:
		return "IdentifierReceived"
	case StateTransmittingHistory:
		return "TransmittingHistory"
	case StateTransmittingRealtime:
		return "TransmittingRealtime"
	default:
		return "Unknown"
	}
}

// ByteOrder of multi-byte fields inside a frame.
type ByteOrder uint8

const (
	LSBFirst ByteOrder = iota
	MSBFirst
)

// RawFrame is one classified unit of the device byte stream. Data holds the
// full frame for recognized kinds, or the single skipped byte for
// PacketUnrecognized.
type RawFrame struct {
	Kind PacketKind
	Data []byte
}

// Measurement is a single decoded realtime reading.
type Measurement struct {
	Current float64 // amperes
}

// HistoryRecord is one decoded history frame: a timestamped reading the
// device buffered while no host was listening.
type HistoryRecord struct {
	Timestamp time.Time
	Current   float64 // amperes
}

// DeviceProfile holds the static per-model protocol parameters. Profiles are
// immutable; adding a supported meter means adding one entry to
// SupportedDevices, not new logic.
type DeviceProfile struct {
	Model       string
	BaudRate    uint
	FrameLength int

	// Marker bytes at frame start. IdentifierMarker frames whose payload
	// begins with IdentifierTag carry the device identity; the rest of that
	// marker family is history/handshake traffic.
	IdentifierMarker byte
	HistoryMarker    byte
	RealtimeMarker   byte
	IdentifierTag    []byte

	// Current field layout.
	CurrentOffset int
	ByteOrder     ByteOrder
	Multiplier    float64

	// History frame timestamp layout: year (2000-based), month, day, hour,
	// minute as consecutive single bytes starting here.
	TimestampOffset int
}

// OwlCM160 is the profile for the OWL CM160 energy monitor.
// Frame layout: marker, year, month, day, hour, minute, cost (2 bytes),
// current (2 bytes), checksum.
var OwlCM160 = &DeviceProfile{
	Model:            "CM160",
	BaudRate:         250000,
	FrameLength:      11,
	IdentifierMarker: 0xA9,
	HistoryMarker:    0x59,
	RealtimeMarker:   0x51,
	IdentifierTag:    []byte("IDT"),
	CurrentOffset:    8,
	ByteOrder:        LSBFirst,
	Multiplier:       0.07,
	TimestampOffset:  1,
}

// SupportedDevices maps a model name to its protocol profile.
var SupportedDevices = map[string]*DeviceProfile{
	"CM160": OwlCM160,
}
