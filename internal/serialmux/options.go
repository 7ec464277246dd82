package serialmux

import (
	"fmt"
	"strings"

	"go.bug.st/serial"
)

// Link defaults for the robot base bridge.
const (
	DefaultBaudRate = 115200
	DefaultFraming  = "8N1"
)

// PortOptions configures the serial link. Framing is the usual compact
// data-bits/parity/stop-bits notation, e.g. "8N1" or "7E2".
type PortOptions struct {
	BaudRate int    `json:"baud_rate"`
	Framing  string `json:"framing"`
}

// SerialMode validates the options and converts them for serial.Open. Unset
// fields take the defaults above.
func (o PortOptions) SerialMode() (*serial.Mode, error) {
	baud := o.BaudRate
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	framing := strings.ToUpper(strings.TrimSpace(o.Framing))
	if framing == "" {
		framing = DefaultFraming
	}
	if len(framing) != 3 {
		return nil, fmt.Errorf("invalid framing %q: want e.g. 8N1", o.Framing)
	}

	mode := &serial.Mode{BaudRate: baud}

	switch d := framing[0]; d {
	case '5', '6', '7', '8':
		mode.DataBits = int(d - '0')
	default:
		return nil, fmt.Errorf("invalid framing %q: data bits must be 5-8", o.Framing)
	}

	switch framing[1] {
	case 'N':
		mode.Parity = serial.NoParity
	case 'E':
		mode.Parity = serial.EvenParity
	case 'O':
		mode.Parity = serial.OddParity
	default:
		return nil, fmt.Errorf("invalid framing %q: parity must be N, E or O", o.Framing)
	}

	switch framing[2] {
	case '1':
		mode.StopBits = serial.OneStopBit
	case '2':
		mode.StopBits = serial.TwoStopBits
	default:
		return nil, fmt.Errorf("invalid framing %q: stop bits must be 1 or 2", o.Framing)
	}
	return mode, nil
}

// String renders the options as they would be typed on the command line.
func (o PortOptions) String() string {
	mode, err := o.SerialMode()
	if err != nil {
		return fmt.Sprintf("%d/%s(invalid)", o.BaudRate, o.Framing)
	}
	parity := map[serial.Parity]string{serial.NoParity: "N", serial.EvenParity: "E", serial.OddParity: "O"}[mode.Parity]
	stop := 1
	if mode.StopBits == serial.TwoStopBits {
		stop = 2
	}
	return fmt.Sprintf("%d/%d%s%d", mode.BaudRate, mode.DataBits, parity, stop)
}
