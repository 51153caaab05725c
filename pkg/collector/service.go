package collector

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/PBrunot/owlsensor-go/pkg/protocol"
	"github.com/PBrunot/owlsensor-go/pkg/serialport"
)

var (
	ErrUnsupportedModel = fmt.Errorf("unsupported device model")
	ErrDisconnected     = fmt.Errorf("serial connection lost")
)

const (
	connectRetryDelay  = 5 * time.Second
	maxConnectAttempts = 10
	pollCacheValidity  = 15 * time.Second
	readChunkSize      = 64
)

// GetAsyncDataCollector returns a collector for the given device model on
// the given serial port. Fails fast for models absent from the profile table.
func GetAsyncDataCollector(model string, port string) (*CMDataCollector, error) {
	profile, ok := protocol.SupportedDevices[model]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedModel, model)
	}
	return New(profile, port, serialport.Open), nil
}

// New builds a collector with an explicit profile and port opener.
func New(profile *protocol.DeviceProfile, port string, opener serialport.Opener) *CMDataCollector {
	return &CMDataCollector{
		port:    port,
		profile: profile,
		opener:  opener,
	}
}

// Connect opens the serial port, retrying at a fixed delay until it succeeds,
// the attempt budget runs out, or ctx is cancelled. A successful connect
// resets the protocol state and receive buffer.
func (c *CMDataCollector) Connect(ctx context.Context) error {
	c.Disconnect()

	var lastErr error
	for attempt := 1; attempt <= maxConnectAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(connectRetryDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		conn, err := c.opener(c.port, c.profile.BaudRate)
		if err != nil {
			lastErr = err
			log.Printf("Connect attempt %d/%d failed: %v", attempt, maxConnectAttempts, err)
			continue
		}

		c.conn = conn
		c.connected = true
		c.state = protocol.StateUnknown
		c.buf.Reset()
		log.Printf("Connected to %s on %s", c.profile.Model, c.port)
		return nil
	}

	return fmt.Errorf("giving up after %d attempts: %w", maxConnectAttempts, lastErr)
}

// ReadData returns the next realtime measurement, connecting first if
// needed. History frames are consumed silently; the call suspends on serial
// I/O until a realtime frame arrives, the connection drops, or ctx is
// cancelled. A call within the poll cache window returns the previous
// measurement without touching the port.
func (c *CMDataCollector) ReadData(ctx context.Context) (*protocol.Measurement, error) {
	if c.connected {
		if cached := c.cachedReading(); cached != nil {
			return cached, nil
		}
	} else {
		if err := c.Connect(ctx); err != nil {
			return nil, err
		}
	}

	// A blocking serial read can only be interrupted by closing the port.
	// The callback touches nothing but the handle: connection state and the
	// receive buffer stay owned by this goroutine, which resets them itself
	// once Read returns the error.
	conn := c.conn
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	chunk := make([]byte, readChunkSize)
	for {
		n, err := conn.Read(chunk)
		if err != nil {
			c.dropConnection()
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: %v", ErrDisconnected, err)
		}

		c.buf.Feed(chunk[:n])
		for {
			frame, ok := c.buf.NextFrame(c.profile)
			if !ok {
				break
			}
			if m := c.handleFrame(frame); m != nil {
				c.setLatestReading(m)
				return m, nil
			}
		}
	}
}

// handleFrame advances the connection state machine with one classified
// frame. Only realtime frames produce a measurement; history is collected
// on the side and everything else is consumed.
func (c *CMDataCollector) handleFrame(frame *protocol.RawFrame) *protocol.Measurement {
	switch frame.Kind {
	case protocol.PacketIdentifier:
		if c.state == protocol.StateUnknown {
			log.Printf("Device identified (%s)", c.profile.Model)
			c.state = protocol.StateIdentifierReceived
		}

	case protocol.PacketHistory:
		if c.state == protocol.StateUnknown {
			break
		}
		c.state = protocol.StateTransmittingHistory
		if !c.historyDone {
			record, err := c.profile.DecodeHistoryRecord(frame)
			if err != nil {
				log.Printf("Dropping undecodable history frame: %v", err)
				break
			}
			c.history = append(c.history, *record)
		}

	case protocol.PacketRealtime:
		m, err := c.profile.DecodeMeasurement(frame)
		if err != nil {
			// Unreachable for a well-formed profile; drop the frame and
			// keep scanning rather than aborting the session.
			log.Printf("Dropping undecodable realtime frame: %v", err)
			break
		}
		c.state = protocol.StateTransmittingRealtime
		c.historyDone = true
		return m

	case protocol.PacketUnrecognized:
		// Resync byte, state unchanged.
	}

	return nil
}

// Disconnect releases the serial port and resets all protocol state.
// Safe to call repeatedly or before any Connect.
func (c *CMDataCollector) Disconnect() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
		log.Printf("Disconnected from %s", c.port)
	}
	c.connected = false
	c.state = protocol.StateUnknown
	c.buf.Reset()
}

// Close implements io.Closer so the collector can be released with defer.
func (c *CMDataCollector) Close() error {
	c.Disconnect()
	return nil
}

// State returns the current connection lifecycle state.
func (c *CMDataCollector) State() protocol.ConnectionState {
	return c.state
}

// HistoricalData returns the history records collected so far.
func (c *CMDataCollector) HistoricalData() []protocol.HistoryRecord {
	records := make([]protocol.HistoryRecord, len(c.history))
	copy(records, c.history)
	return records
}

// HistoryComplete reports whether the device has finished replaying history
// and settled into realtime transmission.
func (c *CMDataCollector) HistoryComplete() bool {
	return c.historyDone
}

// StartReading polls the meter in a goroutine and hands every measurement to
// handleReading. Runs until StopReading or too many consecutive errors, at
// which point handleError receives the last error.
func (c *CMDataCollector) StartReading(
	handleReading func(m *protocol.Measurement),
	handleError func(err error),
) {
	c.stopSignal.Store(false)

	go func() {
		// Tolerance before we report error.
		consecutiveErrors := 0
		maxErrors := 10
		var lastError error

		for consecutiveErrors < maxErrors {
			if c.stopSignal.Load() {
				log.Println("Stop signal received, disconnecting")
				c.Disconnect()
				return
			}

			m, err := c.ReadData(context.Background())
			if err != nil {
				consecutiveErrors++
				lastError = err
				log.Printf("Error reading meter (%d/%d): %v", consecutiveErrors, maxErrors, err)
				time.Sleep(time.Second)
				continue
			}

			go handleReading(m)
			consecutiveErrors = 0
			time.Sleep(time.Second)
		}

		log.Printf("Too many consecutive errors (%d), stopping reader: %v", maxErrors, lastError)
		handleError(lastError)
		c.Disconnect()
	}()
}

// StopReading signals the background reader to stop. Closing the port also
// unblocks a read in progress.
func (c *CMDataCollector) StopReading() {
	c.stopSignal.Store(true)
	c.Disconnect()
}

// GetLatestReading returns the most recent measurement, or nil before the
// first realtime frame.
func (c *CMDataCollector) GetLatestReading() *protocol.Measurement {
	c.readingMutex.RLock()
	defer c.readingMutex.RUnlock()
	return c.lastReading
}

func (c *CMDataCollector) setLatestReading(m *protocol.Measurement) {
	c.readingMutex.Lock()
	c.lastReading = m
	c.lastPoll = time.Now()
	c.readingMutex.Unlock()
}

func (c *CMDataCollector) cachedReading() *protocol.Measurement {
	c.readingMutex.RLock()
	defer c.readingMutex.RUnlock()
	if c.lastReading != nil && time.Since(c.lastPoll) <= pollCacheValidity {
		return c.lastReading
	}
	return nil
}

// dropConnection marks the connection lost after a failed read. A second
// Close on a handle already closed by a cancellation callback is harmless.
func (c *CMDataCollector) dropConnection() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connected = false
	c.state = protocol.StateUnknown
	c.buf.Reset()
}
