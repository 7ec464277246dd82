package serialmux

import (
	"fmt"
	"io"
	"slices"

	"go.bug.st/serial"

	"github.com/banshee-data/wallnav/internal/monitoring"
)

// SerialPorter is what SerialMux needs from a port; tests use FakePort.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}

// listPorts is swapped in tests.
var listPorts = serial.GetPortsList

// OpenRobotLink opens the serial port at path and wraps it in a SerialMux.
// When the open fails and path is not among the ports the OS reports, the
// error names the ports that are present.
func OpenRobotLink(path string, opts PortOptions) (*SerialMux[serial.Port], error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		if available, lerr := listPorts(); lerr == nil && !slices.Contains(available, path) {
			return nil, fmt.Errorf("open serial port %s: %w (available: %v)", path, err, available)
		}
		return nil, fmt.Errorf("open serial port %s: %w", path, err)
	}

	monitoring.Logf("Serial link open on %s at %s", path, opts)
	return NewSerialMux[serial.Port](port), nil
}
