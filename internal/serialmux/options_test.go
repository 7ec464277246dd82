package serialmux

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

func TestPortOptions_SerialMode(t *testing.T) {
	tests := []struct {
		name string
		in   PortOptions
		want serial.Mode
	}{
		{"defaults", PortOptions{}, serial.Mode{BaudRate: DefaultBaudRate, DataBits: 8, Parity: serial.NoParity, StopBits: serial.OneStopBit}},
		{"explicit", PortOptions{BaudRate: 9600, Framing: "7e2"}, serial.Mode{BaudRate: 9600, DataBits: 7, Parity: serial.EvenParity, StopBits: serial.TwoStopBits}},
		{"odd parity", PortOptions{BaudRate: -1, Framing: " 8O1 "}, serial.Mode{BaudRate: DefaultBaudRate, DataBits: 8, Parity: serial.OddParity, StopBits: serial.OneStopBit}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.in.SerialMode()
			require.NoError(t, err)
			assert.Equal(t, tt.want, *got)
		})
	}
}

func TestPortOptions_SerialModeRejects(t *testing.T) {
	for _, framing := range []string{"9N1", "8M1", "8N3", "8N", "8N1x"} {
		_, err := PortOptions{Framing: framing}.SerialMode()
		assert.Error(t, err, framing)
	}
}

func TestPortOptions_String(t *testing.T) {
	assert.Equal(t, "115200/8N1", PortOptions{}.String())
	assert.Equal(t, "9600/7E2", PortOptions{BaudRate: 9600, Framing: "7e2"}.String())
	assert.Equal(t, "57600/8X1(invalid)", PortOptions{BaudRate: 57600, Framing: "8X1"}.String())
}

func TestOpenRobotLink_NamesAvailablePorts(t *testing.T) {
	saved := listPorts
	t.Cleanup(func() { listPorts = saved })
	listPorts = func() ([]string, error) { return []string{"/dev/ttyACM0"}, nil }

	_, err := OpenRobotLink("/nonexistent/tty-wallnav", PortOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "available: [/dev/ttyACM0]")

	listPorts = func() ([]string, error) { return nil, errors.New("no enumeration") }
	_, err = OpenRobotLink("/nonexistent/tty-wallnav", PortOptions{})
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "available")
}

func TestOpenRobotLink_BadFraming(t *testing.T) {
	_, err := OpenRobotLink("/nonexistent/tty-wallnav", PortOptions{Framing: "8Z1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parity")
}
