// Package packet implements the base station's on-wire packet variants:
// decoding inbound frames and encoding outbound ones. A decoded frame
// is a logical packet, not yet split into 8-byte HID reports — that
// chunking is internal/transport's job.
package packet

import (
	"strings"

	"github.com/joecharamut/mx240a-driver/internal/codec"
)

// Packet is the marker interface every decoded inbound variant
// implements, letting Driver dispatch on a type switch.
type Packet interface {
	packet()
}

type baseRx struct{}

func (baseRx) packet() {}

// Unknown carries a frame whose first two bytes matched nothing in the
// dispatch table. It is logged, never fatal.
type Unknown struct {
	baseRx
	Raw []byte
}

// HandheldRegistration is a not-yet-assigned handheld announcing its
// 8-hex-digit id, asking to be registered.
type HandheldRegistration struct {
	baseRx
	HandheldID string
}

// MysteryACK is an E1/E2-prefixed frame whose purpose was never
// identified; treated like any other unrecognized acknowledgement.
type MysteryACK struct{ baseRx }

// BaseInitReply answers a BaseInit handshake frame.
type BaseInitReply struct{ baseRx }

// ACK updates the base station's last-acknowledgement clock.
type ACK struct{ baseRx }

// HandheldDisconnected reports a handheld falling out of range or
// powering off.
type HandheldDisconnected struct {
	baseRx
	ConnectionID int
}

// HandheldConnecting is a previously-registered handheld resuming its
// session on connection slot ConnectionID.
type HandheldConnecting struct {
	baseRx
	ConnectionID int
	HandheldID   string
}

// HandheldUsername carries the username typed on the handheld's login
// screen.
type HandheldUsername struct {
	baseRx
	ConnectionID int
	Username     string
}

// HandheldPassword carries the password typed on the handheld's login
// screen.
type HandheldPassword struct {
	baseRx
	ConnectionID int
	Password     string
}

// HandheldLogoff reports the user backing out of the login/session
// screen without disconnecting the radio link.
type HandheldLogoff struct {
	baseRx
	ConnectionID int
}

// OpenWindow reports a conversation window becoming the active one on
// the handheld's screen.
type OpenWindow struct {
	baseRx
	ConnectionID int
	WindowID     byte
}

// CloseWindow reports a conversation window being dismissed.
type CloseWindow struct {
	baseRx
	ConnectionID int
}

// HandheldAway carries the away message set from the handheld's menu.
type HandheldAway struct {
	baseRx
	ConnectionID int
	Message      string
}

// HandheldWarning reports the user invoking the "warn" buddy action.
type HandheldWarning struct {
	baseRx
	ConnectionID int
}

// HandheldInvite reports the user invoking the "invite" buddy action.
type HandheldInvite struct {
	baseRx
	ConnectionID int
}

// MessageFrame is one frame of a possibly multi-frame handheld-typed
// message. Continuation is true when the frame ended in 0xFE rather
// than 0xFF, meaning more frames follow and an Ack is owed before the
// next HID read.
type MessageFrame struct {
	baseRx
	ConnectionID int
	Data         []byte
	Continuation bool
}

// Decode classifies a frame (already stripped of its 0xFF terminator
// by the transport, with a trailing 0xFE retained) by its first two
// bytes and constructs the matching variant. Frames it cannot classify
// become Unknown.
func Decode(raw []byte) Packet {
	if len(raw) == 0 {
		return Unknown{Raw: raw}
	}
	b1 := raw[0]
	var b2 byte
	if len(raw) > 1 {
		b2 = raw[1]
	}
	hi1 := b1 & 0xF0
	lo1 := int(b1 & 0x0F)

	switch {
	case b1 == 0xE0:
		return decodeRegistration(raw)
	case (b1 == 0xE1 || b1 == 0xE2) && b2 == 0xFD:
		return MysteryACK{}
	case b1 == 0xEF && len(raw) >= 3 && raw[1] == 0x01 && raw[2] == 0x01:
		return BaseInitReply{}
	case hi1 == 0xE0 || hi1 == 0xF0:
		switch b2 {
		case 0xFD:
			return ACK{}
		case 0x8C:
			return HandheldDisconnected{ConnectionID: lo1}
		case 0x8E:
			return decodeConnecting(raw, lo1)
		case 0x91:
			return HandheldUsername{ConnectionID: lo1, Username: decodeASCII(raw)}
		case 0x92:
			return HandheldPassword{ConnectionID: lo1, Password: decodeASCII(raw)}
		case 0x93:
			return HandheldLogoff{ConnectionID: lo1}
		case 0x94:
			var windowID byte
			if len(raw) > 2 {
				windowID = raw[2]
			}
			return OpenWindow{ConnectionID: lo1, WindowID: windowID}
		case 0x95:
			return CloseWindow{ConnectionID: lo1}
		case 0x96:
			return HandheldAway{ConnectionID: lo1, Message: decodeASCII(raw)}
		case 0x9A:
			return HandheldWarning{ConnectionID: lo1}
		case 0x9B:
			return HandheldInvite{ConnectionID: lo1}
		default:
			// Second byte isn't one of the known function codes: this is
			// a continuation of a message frame already in progress.
			return decodeMessage(raw, lo1)
		}
	case hi1 == 0x80 || hi1 == 0xA0 || hi1 == 0xD0:
		return decodeMessage(raw, lo1)
	}
	return Unknown{Raw: raw}
}

func decodeRegistration(raw []byte) Packet {
	if len(raw) < 5 {
		return Unknown{Raw: raw}
	}
	return HandheldRegistration{HandheldID: codec.ToHex(raw[1:5])}
}

func decodeConnecting(raw []byte, connectionID int) Packet {
	if len(raw) < 6 {
		return Unknown{Raw: raw}
	}
	return HandheldConnecting{ConnectionID: connectionID, HandheldID: codec.ToHex(raw[2:6])}
}

func decodeASCII(raw []byte) string {
	if len(raw) <= 2 {
		return ""
	}
	return string(codec.FilterPrintableASCII(raw[2:]))
}

func decodeMessage(raw []byte, connectionID int) Packet {
	continuation := len(raw) > 0 && raw[len(raw)-1] == 0xFE
	data := raw[1:]
	if continuation {
		data = data[:len(data)-1]
	}
	return MessageFrame{
		ConnectionID: connectionID,
		Data:         codec.FilterPrintableASCII(data),
		Continuation: continuation,
	}
}

// StripEchoPrefix strips the "00" or "name:" prefix the device echoes
// on outbound-originated messages, so reassembled text never carries
// it back to the application layer.
func StripEchoPrefix(s string) string {
	if idx := strings.IndexByte(s, ':'); idx >= 0 {
		return s[idx+1:]
	}
	return strings.TrimPrefix(s, "\x00")
}
