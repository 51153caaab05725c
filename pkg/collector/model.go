package collector

import (
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PBrunot/owlsensor-go/pkg/protocol"
	"github.com/PBrunot/owlsensor-go/pkg/serialport"
)

// CMDataCollector drives one serial energy meter: it owns the connection
// lifecycle, the receive buffer and the protocol state, and surfaces decoded
// realtime measurements.
//
// The receive buffer and connection state are owned by the single logical
// task calling Connect/ReadData; concurrent ReadData calls on one instance
// are not supported. The latest-reading cache has its own lock so other
// goroutines can poll it.
type CMDataCollector struct {
	port    string
	profile *protocol.DeviceProfile
	opener  serialport.Opener

	conn      io.ReadWriteCloser
	connected bool
	state     protocol.ConnectionState
	buf       protocol.ReceiveBuffer

	// History replayed by the device after connect, collected until the
	// first realtime frame arrives.
	history     []protocol.HistoryRecord
	historyDone bool

	lastReading  *protocol.Measurement
	lastPoll     time.Time
	readingMutex sync.RWMutex

	// Set by StopReading, polled by the background reader goroutine.
	stopSignal atomic.Bool
}
