// Package bridge connects the navigation engine to the robot base over the
// serial link: it decodes inbound JSON lines into engine updates, keeps the
// frame transforms, and encodes outbound velocity and pose messages.
package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/wallnav/internal/nav"
)

// Message type discriminators.
const (
	TypeScan      = "scan"
	TypeOdom      = "odom"
	TypeTargeting = "targeting_status"
	TypeNFC       = "nfc"
	TypeTransform = "tf"
	TypeMap       = "map"
	TypeCmdVel    = "cmd_vel"
	TypeMap2Base  = "map2base"
)

// Mission event payloads sent by the targeting and NFC nodes.
const (
	TargetDetectedText = "Detected"
	TargetFinishedText = "FINISHED SHOOTING"
	ZoneLocatedText    = "LOADING ZONE"
	ZoneFinishedText   = "FINISH LOADING"
)

// ErrUnknownType is returned for a well-formed line with an unknown type.
var ErrUnknownType = errors.New("unknown message type")

type envelope struct {
	Type string `json:"type"`
}

// ScanMessage carries one range sweep. A null or zero sample means no return.
type ScanMessage struct {
	Ranges []float64 `json:"ranges"`
}

// OdomMessage carries the odometry pose.
type OdomMessage struct {
	Position    nav.Position   `json:"position"`
	Orientation nav.Quaternion `json:"orientation"`
}

// TargetingMessage is a status line from the targeting node.
type TargetingMessage struct {
	Data string `json:"data"`
	Key  *int   `json:"key,omitempty"`
}

// NFCMessage is a status line from the loading-zone reader.
type NFCMessage struct {
	Data string `json:"data"`
}

// TransformMessage is one parent to child frame transform.
type TransformMessage struct {
	Parent      string         `json:"parent"`
	Child       string         `json:"child"`
	Stamp       float64        `json:"stamp"`
	Translation nav.Vector3    `json:"translation"`
	Rotation    nav.Quaternion `json:"rotation"`
}

// MapMessage is an occupancy grid snapshot in row-major order. Cells are -1
// for unknown or an occupancy probability from 0 to 100.
type MapMessage struct {
	Width      int          `json:"width"`
	Height     int          `json:"height"`
	Resolution float64      `json:"resolution"`
	Origin     nav.Position `json:"origin"`
	Data       []int8       `json:"data"`
}

// Decode parses one inbound line. It returns a pointer to one of the
// *Message types.
func Decode(line []byte) (any, error) {
	var env envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	var msg any
	switch env.Type {
	case TypeScan:
		msg = &ScanMessage{}
	case TypeOdom:
		msg = &OdomMessage{}
	case TypeTargeting:
		msg = &TargetingMessage{}
	case TypeNFC:
		msg = &NFCMessage{}
	case TypeTransform:
		msg = &TransformMessage{}
	case TypeMap:
		msg = &MapMessage{}
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownType, env.Type)
	}
	if err := json.Unmarshal(line, msg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", env.Type, err)
	}
	if m, ok := msg.(*MapMessage); ok && len(m.Data) != m.Width*m.Height {
		return nil, fmt.Errorf("decode map: %d cells for a %dx%d grid", len(m.Data), m.Width, m.Height)
	}
	return msg, nil
}

// TargetingStatus maps a targeting payload onto the engine's status.
func TargetingStatus(data string) nav.TargetingStatus {
	switch data {
	case TargetDetectedText:
		return nav.TargetingDetected
	case TargetFinishedText:
		return nav.TargetingFinished
	default:
		return nav.TargetingOther
	}
}

// ZoneStatus maps an NFC payload onto the engine's zone status. Other
// payloads report false.
func ZoneStatus(data string) (nav.ZoneStatus, bool) {
	switch data {
	case ZoneLocatedText:
		return nav.ZoneLocated, true
	case ZoneFinishedText:
		return nav.ZoneFinishedLoading, true
	}
	return 0, false
}

// StampTime converts a stamp in fractional unix seconds.
func StampTime(stamp float64) time.Time {
	sec := int64(stamp)
	nsec := int64((stamp - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC()
}

type velocityMessage struct {
	Type    string      `json:"type"`
	Linear  nav.Vector3 `json:"linear"`
	Angular nav.Vector3 `json:"angular"`
}

// EncodeVelocity encodes a cmd_vel line.
func EncodeVelocity(t nav.Twist) (string, error) {
	b, err := json.Marshal(velocityMessage{Type: TypeCmdVel, Linear: t.Linear, Angular: t.Angular})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

type map2BaseMessage struct {
	Type        string         `json:"type"`
	Position    nav.Vector3    `json:"position"`
	Orientation nav.Quaternion `json:"orientation"`
}

// EncodeMap2Base encodes the derived robot pose in the map frame.
func EncodeMap2Base(tf Transform) (string, error) {
	b, err := json.Marshal(map2BaseMessage{
		Type:        TypeMap2Base,
		Position:    nav.Vector3{X: tf.Translation.X, Y: tf.Translation.Y},
		Orientation: tf.Rotation,
	})
	if err != nil {
		return "", err
	}
	return string(b), nil
}
