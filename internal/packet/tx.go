package packet

import (
	"errors"
	"fmt"

	"github.com/joecharamut/mx240a-driver/internal/codec"
)

// ErrInvalidServiceID is returned by NewServiceInfo when the service id's
// second character isn't one of the firmware's recognized network
// markers.
var ErrInvalidServiceID = errors.New("mx240a: invalid service id")

// ErrInvalidConnectionID is returned by any outbound packet constructor
// given a connection id outside [1,7].
var ErrInvalidConnectionID = errors.New("mx240a: invalid connection id")

// ToneEventNames lists the nine ringtone events a connecting handheld
// is sent one RingtonePacket for, in a stable order.
var ToneEventNames = []string{
	"new_message",
	"contact_online",
	"contact_offline",
	"message_sent",
	"service_disconnected",
	"service_connected",
	"out_of_range",
	"return_to_in_range",
	"enter_sleep_mode",
}

var toneNameToID = map[string]byte{
	"new_message":           0x02,
	"contact_online":        0x03,
	"contact_offline":       0x04,
	"message_sent":          0x05,
	"service_disconnected":  0x06,
	"service_connected":     0x07,
	"out_of_range":          0x08,
	"return_to_in_range":    0x09,
	"enter_sleep_mode":      0x0A,
}

// Outbound is the interface every encodable Tx variant implements.
// Encode returns one or more logical frames; internal/transport splits
// each into 8-byte HID reports. Immediate reports whether the packet
// bypasses the outbound queue (see internal/base).
type Outbound interface {
	Encode() [][]byte
	Immediate() bool
}

func checkConnectionID(id int) error {
	if id < 1 || id > 7 {
		return fmt.Errorf("%w: %d", ErrInvalidConnectionID, id)
	}
	return nil
}

// Polling is the base's heartbeat frame; its arrival at the transport
// also triggers a queue drain (internal/base).
type Polling struct{}

func (Polling) Encode() [][]byte { return [][]byte{{0xAD}} }
func (Polling) Immediate() bool  { return true }

// BaseInit opens the handshake that establishes the HID link.
type BaseInit struct{}

func (BaseInit) Encode() [][]byte { return [][]byte{{0xAD, 0xEF, 0x8D, 0xFF}} }
func (BaseInit) Immediate() bool  { return true }

// BaseShutdown is sent once before the transport closes the device.
type BaseShutdown struct{}

func (BaseShutdown) Encode() [][]byte { return [][]byte{{0xEF, 0x8D, 0xFF}} }
func (BaseShutdown) Immediate() bool  { return true }

// HandheldRegistrationReply accepts or rejects a HandheldRegistration.
type HandheldRegistrationReply struct {
	Accept bool
}

func (p HandheldRegistrationReply) Encode() [][]byte {
	if p.Accept {
		return [][]byte{{0xEE, 0xD3}}
	}
	return [][]byte{{0xEE, 0xC5}}
}
func (HandheldRegistrationReply) Immediate() bool { return true }

// HandheldInfo names the handheld's owner for its session.
type HandheldInfo struct {
	ConnectionID int
	Name         string
}

func (p HandheldInfo) Encode() [][]byte {
	frame := []byte{0xC0 | byte(p.ConnectionID), 0xD9}
	frame = append(frame, []byte(p.Name)...)
	frame = append(frame, 0xFF)
	return [][]byte{frame}
}
func (HandheldInfo) Immediate() bool { return false }

// ServiceInfo names the chat network backing the session; the
// firmware reads the id's second character to pick its icon set.
type ServiceInfo struct {
	ConnectionID int
	ServiceID    string
}

// NewServiceInfo validates ServiceID before returning a packet, since a
// malformed id silently confuses the handheld firmware instead of
// erroring there.
func NewServiceInfo(connectionID int, serviceID string) (ServiceInfo, error) {
	if err := checkConnectionID(connectionID); err != nil {
		return ServiceInfo{}, err
	}
	if len(serviceID) < 2 || (serviceID[1] != 'A' && serviceID[1] != 'a' && serviceID[1] != 'M') {
		return ServiceInfo{}, ErrInvalidServiceID
	}
	return ServiceInfo{ConnectionID: connectionID, ServiceID: serviceID}, nil
}

func (p ServiceInfo) Encode() [][]byte {
	frame := []byte{0xC0 | byte(p.ConnectionID), 0xD7}
	frame = append(frame, []byte(p.ServiceID)...)
	frame = append(frame, 0xFF)
	return [][]byte{frame}
}
func (ServiceInfo) Immediate() bool { return false }

const ringtoneChunkSize = 20

// Ringtone delivers one event's tone bytes in up to 20-byte pieces. The
// primary frame carries the first piece; a tone longer than 20 bytes is
// then sent again in full, piece by piece from its start, on
// continuation frames addressed to the 0x8-class byte for the same
// connection.
type Ringtone struct {
	ConnectionID int
	ToneID       byte
	Tone         codec.Ringtone
}

// NewRingtone looks up toneName in ToneEventNames's id table.
func NewRingtone(connectionID int, toneName string, tone codec.Ringtone) (Ringtone, error) {
	if err := checkConnectionID(connectionID); err != nil {
		return Ringtone{}, err
	}
	id, ok := toneNameToID[toneName]
	if !ok {
		return Ringtone{}, fmt.Errorf("mx240a: invalid tone event name %q", toneName)
	}
	return Ringtone{ConnectionID: connectionID, ToneID: id, Tone: tone}, nil
}

func (p Ringtone) Encode() [][]byte {
	tb := p.Tone.Bytes
	first := tb
	if len(first) > ringtoneChunkSize {
		first = first[:ringtoneChunkSize]
	}
	frames := [][]byte{headerFrame(0xC0|byte(p.ConnectionID), 0xCD, p.ToneID, first)}

	if len(tb) > ringtoneChunkSize {
		for i := 0; i < len(tb); i += ringtoneChunkSize {
			end := i + ringtoneChunkSize
			if end > len(tb) {
				end = len(tb)
			}
			frames = append(frames, headerFrame(0x80|byte(p.ConnectionID), 0xCD, p.ToneID, tb[i:end]))
		}
	}
	return frames
}
func (Ringtone) Immediate() bool { return false }

func headerFrame(b1, b2, extra byte, payload []byte) []byte {
	frame := make([]byte, 0, len(payload)+4)
	frame = append(frame, b1, b2, extra)
	frame = append(frame, payload...)
	frame = append(frame, 0xFF)
	return frame
}

// BuddyStatus tells the handheld a buddy's presence summary.
type BuddyStatus struct {
	ConnectionID int
	Status       string // 3 chars, e.g. "AYN"
	BuddyID      byte
}

func (p BuddyStatus) Encode() [][]byte {
	frame := []byte{0xE0 | byte(p.ConnectionID), 0xCA}
	frame = append(frame, []byte(p.Status)...)
	frame = append(frame, p.BuddyID, 0xFF)
	return [][]byte{frame}
}
func (BuddyStatus) Immediate() bool { return false }

// BuddyInfo introduces a buddy's group and screen name, followed by the
// mandatory status-modifier trailer whose purpose the firmware never
// documented; byte-exact emission and ordering are preserved regardless.
type BuddyInfo struct {
	ConnectionID int
	Group        string // exactly 6 chars, space-padded
	ScreenName   string
}

func (p BuddyInfo) Encode() [][]byte {
	group := PadGroup(p.Group)
	frame := []byte{0xC0 | byte(p.ConnectionID), 0xC9}
	frame = append(frame, []byte(group)...)
	frame = append(frame, []byte(p.ScreenName)...)
	frame = append(frame, 0xFF, 0x00)

	trailer := []byte{0xA0 | byte(p.ConnectionID), 0xC9, 0x01, 0xFF}
	return [][]byte{frame, trailer}
}
func (BuddyInfo) Immediate() bool { return false }

// PadGroup returns group truncated or space-padded to the firmware's
// fixed 6-character buddy-group field width.
func PadGroup(group string) string {
	if len(group) > 6 {
		return group[:6]
	}
	for len(group) < 6 {
		group += " "
	}
	return group
}

// LoginSuccess confirms Service.Login approved the handheld's
// credentials.
type LoginSuccess struct {
	ConnectionID int
}

func (p LoginSuccess) Encode() [][]byte {
	return [][]byte{{0xE0 | byte(p.ConnectionID), 0xD3, 0xFF}}
}
func (LoginSuccess) Immediate() bool { return false }

// ErrorType enumerates the firmware's recognized error codes.
type ErrorType byte

const (
	LoginError                    ErrorType = 0x00
	InvalidNameOrPassword         ErrorType = 0x01
	ServiceTemporarilyUnavailable ErrorType = 0x03
	TooFrequently                 ErrorType = 0x04
	SignedInToAOLAlready          ErrorType = 0x05
	ErrorConnectingToService      ErrorType = 0x07
	SessionTerminated             ErrorType = 0x08
	InternetConnectionLost        ErrorType = 0x09
)

// Error reports a session-level failure to the handheld.
type Error struct {
	ConnectionID int
	Errno        ErrorType
}

func (p Error) Encode() [][]byte {
	return [][]byte{{0xE0 | byte(p.ConnectionID), 0xE5, byte(p.Errno), 0xFF}}
}
func (Error) Immediate() bool { return false }

const (
	groupMessageChunkSize  = 22
	directMessageChunkSize = 21
)

// MessageToHandheld delivers application text to a conversation
// window. Group messages are prefixed "screen-name:"; direct messages
// are prefixed with a single 0x00 byte, per the firmware's own echo
// convention.
type MessageToHandheld struct {
	ConnectionID int
	WindowID     byte
	ScreenName   string // non-empty for a group message
	Text         string
}

func (p MessageToHandheld) Encode() [][]byte {
	var payload []byte
	chunkSize := directMessageChunkSize
	if p.ScreenName != "" {
		payload = append([]byte(p.ScreenName+":"), []byte(p.Text)...)
		chunkSize = groupMessageChunkSize
	} else {
		payload = append([]byte{0x00}, []byte(p.Text)...)
	}

	var frames [][]byte
	for i := 0; i < len(payload); i += chunkSize {
		end := i + chunkSize
		if end > len(payload) {
			end = len(payload)
		}
		chunk := []byte{0x80 | byte(p.ConnectionID)}
		chunk = append(chunk, p.WindowID)
		chunk = append(chunk, payload[i:end]...)
		if end == len(payload) {
			chunk = append(chunk, 0xFF)
		}
		frames = append(frames, chunk)
	}
	if len(frames) == 0 {
		frames = append(frames, []byte{0x80 | byte(p.ConnectionID), p.WindowID, 0xFF})
	}
	frames = append(frames, []byte{0xE0 | byte(p.ConnectionID), 0xCE, p.WindowID})
	return frames
}
func (MessageToHandheld) Immediate() bool { return false }
