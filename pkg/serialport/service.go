// Thin boundary around the OS serial handle. Kept behind an Opener so the
// collector can be driven by a fake port in tests.
package serialport

import (
	"fmt"
	"io"

	"github.com/jacobsa/go-serial/serial"
)

var ErrPortUnavailable = fmt.Errorf("serial port unavailable")

// Opener opens a serial device at the given baud rate.
type Opener func(port string, baudrate uint) (io.ReadWriteCloser, error)

// Open opens a real serial port. 8 data bits, 1 stop bit, no parity;
// MinimumReadSize 1 makes Read block until at least one byte arrives.
func Open(port string, baudrate uint) (io.ReadWriteCloser, error) {
	options := serial.OpenOptions{
		PortName:        port,
		BaudRate:        baudrate,
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
	}

	handle, err := serial.Open(options)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrPortUnavailable, port, err)
	}
	return handle, nil
}
