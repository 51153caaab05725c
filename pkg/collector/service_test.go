package collector

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/PBrunot/owlsensor-go/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePort feeds scripted chunks to the collector and fails reads once
// closed or drained, like a device that went away.
type fakePort struct {
	chunks    chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakePort(chunks ...[]byte) *fakePort {
	fp := &fakePort{
		chunks: make(chan []byte, len(chunks)),
		closed: make(chan struct{}),
	}
	for _, c := range chunks {
		fp.chunks <- c
	}
	return fp
}

func (f *fakePort) Read(p []byte) (int, error) {
	select {
	case <-f.closed:
		return 0, io.ErrClosedPipe
	case chunk := <-f.chunks:
		if chunk == nil {
			return 0, io.ErrUnexpectedEOF
		}
		return copy(p, chunk), nil
	}
}

func (f *fakePort) Write(p []byte) (int, error) { return len(p), nil }

func (f *fakePort) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakePort) opener() func(string, uint) (io.ReadWriteCloser, error) {
	return func(string, uint) (io.ReadWriteCloser, error) { return f, nil }
}

// noisyPort streams unrecognized bytes forever, keeping the reader busy in
// the classify loop until the port is closed.
type noisyPort struct {
	closed    chan struct{}
	closeOnce sync.Once
}

func newNoisyPort() *noisyPort {
	return &noisyPort{closed: make(chan struct{})}
}

func (f *noisyPort) Read(p []byte) (int, error) {
	select {
	case <-f.closed:
		return 0, io.ErrClosedPipe
	default:
		return copy(p, []byte{0xFF, 0xFE, 0xFD, 0xFC}), nil
	}
}

func (f *noisyPort) Write(p []byte) (int, error) { return len(p), nil }

func (f *noisyPort) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func buildFrame(marker byte, raw uint16) []byte {
	frame := make([]byte, protocol.OwlCM160.FrameLength)
	frame[0] = marker
	frame[8] = byte(raw)
	frame[9] = byte(raw >> 8)
	return frame
}

func identifierFrame() []byte {
	return []byte{0xA9, 'I', 'D', 'T', 'C', 'M', 'V', '0', '0', '1', 0x01}
}

func testProfile() *protocol.DeviceProfile {
	profile := *protocol.OwlCM160
	profile.Multiplier = 0.1
	return &profile
}

func TestGetAsyncDataCollectorUnsupportedModel(t *testing.T) {
	_, err := GetAsyncDataCollector("CM999", "/dev/ttyUSB0")
	assert.ErrorIs(t, err, ErrUnsupportedModel)

	c, err := GetAsyncDataCollector("CM160", "/dev/ttyUSB0")
	require.NoError(t, err)
	assert.NotNil(t, c)
}

func TestReadDataRealtimeOnly(t *testing.T) {
	fp := newFakePort(buildFrame(0x51, 41))
	c := New(testProfile(), "fake", fp.opener())
	defer c.Close()

	m, err := c.ReadData(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4.1, m.Current)
	assert.Equal(t, protocol.StateTransmittingRealtime, c.State())
}

func TestReadDataDiscardsHistory(t *testing.T) {
	fp := newFakePort(
		identifierFrame(),
		buildFrame(0x59, 10),
		buildFrame(0x59, 20),
		buildFrame(0x51, 41),
	)
	c := New(testProfile(), "fake", fp.opener())
	defer c.Close()

	m, err := c.ReadData(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4.1, m.Current)
	assert.Equal(t, protocol.StateTransmittingRealtime, c.State())

	// History frames were collected on the side, never returned
	assert.True(t, c.HistoryComplete())
	assert.Len(t, c.HistoricalData(), 2)
}

func TestReadDataResyncOnGarbage(t *testing.T) {
	fp := newFakePort(append([]byte{0xFF}, buildFrame(0x51, 41)...))
	c := New(testProfile(), "fake", fp.opener())
	defer c.Close()

	m, err := c.ReadData(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4.1, m.Current)
}

func TestReadDataFrameSplitAcrossReads(t *testing.T) {
	frame := buildFrame(0x51, 41)
	fp := newFakePort(frame[:5], frame[5:])
	c := New(testProfile(), "fake", fp.opener())
	defer c.Close()

	m, err := c.ReadData(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4.1, m.Current)
}

func TestReadDataPollCache(t *testing.T) {
	// Only one frame scripted: the second call must come from the cache.
	fp := newFakePort(buildFrame(0x51, 41))
	c := New(testProfile(), "fake", fp.opener())
	defer c.Close()

	first, err := c.ReadData(context.Background())
	require.NoError(t, err)

	second, err := c.ReadData(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestReadDataConnectionLost(t *testing.T) {
	fp := newFakePort(nil) // read errors immediately
	c := New(testProfile(), "fake", fp.opener())
	defer c.Close()

	_, err := c.ReadData(context.Background())
	assert.ErrorIs(t, err, ErrDisconnected)
	assert.Equal(t, protocol.StateUnknown, c.State())
}

func TestReadDataCancellation(t *testing.T) {
	fp := newFakePort() // no data, read blocks until port closes
	c := New(testProfile(), "fake", fp.opener())
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := c.ReadData(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReadDataCancelWhileStreaming(t *testing.T) {
	// Cancellation lands while the reader is actively feeding the buffer:
	// only the reading goroutine may touch connection state and buffer,
	// so this must stay clean under the race detector.
	fp := newNoisyPort()
	c := New(testProfile(), "fake", func(string, uint) (io.ReadWriteCloser, error) { return fp, nil })
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := c.ReadData(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, protocol.StateUnknown, c.State())
}

func TestConnectRetryCancellable(t *testing.T) {
	attempts := 0
	opener := func(string, uint) (io.ReadWriteCloser, error) {
		attempts++
		return nil, fmt.Errorf("no such device")
	}
	c := New(testProfile(), "fake", opener)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := c.Connect(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	// Cancelled during the first backoff wait: one attempt, no 5s delay served
	assert.Equal(t, 1, attempts)
	assert.Less(t, time.Since(start), time.Second)
}

func TestDisconnectIdempotent(t *testing.T) {
	c := New(testProfile(), "fake", newFakePort().opener())

	// Before any connect
	c.Disconnect()
	c.Disconnect()

	require.NoError(t, c.Connect(context.Background()))
	c.Disconnect()
	c.Disconnect()
	assert.Equal(t, protocol.StateUnknown, c.State())
}

func TestReadDataAutoConnects(t *testing.T) {
	fp := newFakePort(buildFrame(0x51, 50))
	c := New(testProfile(), "fake", fp.opener())
	defer c.Close()

	// No explicit Connect call
	m, err := c.ReadData(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5.0, m.Current)
}
