// Package transport owns the USB-HID link to the base station: device
// discovery, the chunked report write path, the terminator-delimited
// report read path, and the init handshake.
package transport

import (
	"errors"
	"fmt"
	"time"

	"github.com/karalabe/hid"
	"github.com/op/go-logging"

	"github.com/joecharamut/mx240a-driver/internal/codec"
	"github.com/joecharamut/mx240a-driver/internal/config"
)

var (
	ErrDeviceNotFound = errors.New("mx240a: base station not found")
	ErrInitFailed     = errors.New("mx240a: base station failed to initialize")
)

// frameEnd and frameContinue are the two terminator bytes a read-path
// buffer watches for; frameContinue additionally asks the caller to
// acknowledge before the handheld sends the rest of the frame.
const (
	frameEnd      = 0xFF
	frameContinue = 0xFE
)

// device is the subset of github.com/karalabe/hid's Device this package
// needs; narrowing it to an interface lets tests substitute a fake.
type device interface {
	Write(b []byte) (int, error)
	ReadTimeout(b []byte, timeoutMs int) (int, error)
	Close() error
}

// Transport is the open HID link. It holds no mutex: reads and writes
// are not serialized by Transport itself.
type Transport struct {
	dev device
	log *logging.Logger
}

// Open enumerates attached HID devices for the base station's VID/PID,
// verifies its manufacturer and product strings, opens it, and runs the
// init handshake. If config.DevicePathOverride is set, the enumerated
// device with that path is opened instead, without the manufacturer and
// product check.
func Open(log *logging.Logger) (*Transport, error) {
	info, err := findDevice()
	if err != nil {
		return nil, err
	}
	if err := checkDevicePermissions(info.Path); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceNotFound, err)
	}

	dev, err := info.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceNotFound, err)
	}

	log.Infof("opened base station at %s (mfr=%q product=%q)", info.Path, info.Manufacturer, info.Product)

	t := &Transport{dev: dev, log: log}
	if err := t.initHandshake(); err != nil {
		dev.Close()
		return nil, err
	}
	return t, nil
}

func findDevice() (hid.DeviceInfo, error) {
	if override := config.DevicePathOverride(); override != "" {
		infos, err := hid.Enumerate(config.VendorID, config.ProductID)
		if err != nil {
			return hid.DeviceInfo{}, fmt.Errorf("%w: %v", ErrDeviceNotFound, err)
		}
		for _, info := range infos {
			if info.Path == override {
				return info, nil
			}
		}
		return hid.DeviceInfo{}, fmt.Errorf("%w: path %q not among enumerated devices", ErrDeviceNotFound, override)
	}

	infos, err := hid.Enumerate(config.VendorID, config.ProductID)
	if err != nil {
		return hid.DeviceInfo{}, fmt.Errorf("%w: %v", ErrDeviceNotFound, err)
	}
	for _, info := range infos {
		if info.Manufacturer == config.ExpectedManufacturer && info.Product == config.ExpectedProduct {
			return info, nil
		}
	}
	return hid.DeviceInfo{}, ErrDeviceNotFound
}

// Close sends the shutdown frame and releases the device handle.
func (t *Transport) Close() error {
	t.log.Info("base station shutting down")
	t.writeRaw([]byte{0xEF, 0x8D, 0xFF})
	return t.dev.Close()
}

// WriteFrame splits data into 8-byte chunks, each right-padded with
// 0x00 and prefixed with the platform-specific leading 0x00 report-id
// byte, and writes each chunk as a single HID report.
func (t *Transport) WriteFrame(data []byte) error {
	for i := 0; i < len(data); i += 8 {
		end := i + 8
		if end > len(data) {
			end = len(data)
		}
		chunk := make([]byte, 8)
		copy(chunk, data[i:end])
		if err := t.writeRaw(chunk); err != nil {
			return err
		}
	}
	return nil
}

func (t *Transport) writeRaw(chunk []byte) error {
	report := make([]byte, 0, len(chunk)+1)
	report = append(report, 0x00)
	report = append(report, chunk...)
	t.log.Debugf("[SEND] %s", codec.HexDump(report))
	_, err := t.dev.Write(report)
	return err
}

// ReadFrame issues a single 1-second-timeout HID read and, if the
// result doesn't yet contain a terminator, keeps appending
// non-blocking reads until one appears or the device returns nothing.
// It returns nil with no error when nothing was waiting.
func (t *Transport) ReadFrame() ([]byte, error) {
	buf := make([]byte, 255)
	n, err := t.dev.ReadTimeout(buf, int(config.HIDReadTimeout/time.Millisecond))
	if err != nil {
		return nil, err
	}
	data := buf[:n]
	if len(data) == 0 {
		return nil, nil
	}

	for !containsTerminator(data) {
		more := make([]byte, 255)
		mn, err := t.dev.ReadTimeout(more, 0)
		if err != nil || mn == 0 {
			break
		}
		data = append(data, more[:mn]...)
	}

	if idx := indexByte(data, frameEnd); idx >= 0 {
		data = data[:idx]
	}
	t.log.Debugf("[RECV] %s", codec.HexDump(data))
	return data, nil
}

// Ack acknowledges a continuation frame (one ending in frameContinue),
// telling the base station it may send the message's remaining frames.
func (t *Transport) Ack() error {
	return t.writeRaw([]byte{0xAD, 0xFF})
}

func containsTerminator(data []byte) bool {
	for _, b := range data {
		if b == frameEnd || b == frameContinue {
			return true
		}
	}
	return false
}

func indexByte(data []byte, b byte) int {
	for i, v := range data {
		if v == b {
			return i
		}
	}
	return -1
}

// initHandshake writes BaseInit and waits up to 2 seconds for a
// BaseInitReply (EF 01 01...). Any other packet, or a timeout, causes
// a BaseShutdown, a 500ms pause, and a retry, up to three attempts.
func (t *Transport) initHandshake() error {
	for attempt := 0; attempt < config.InitMaxAttempts; attempt++ {
		if err := t.WriteFrame([]byte{0xAD, 0xEF, 0x8D, 0xFF}); err != nil {
			return fmt.Errorf("%w: %v", ErrInitFailed, err)
		}

		ok, err := t.waitInitReply()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInitFailed, err)
		}
		if ok {
			return nil
		}

		t.writeRaw([]byte{0xEF, 0x8D, 0xFF})
		time.Sleep(config.InitRetryDelay)
	}
	return ErrInitFailed
}

func (t *Transport) waitInitReply() (bool, error) {
	deadline := time.Now().Add(config.InitReplyTimeout)
	for time.Now().Before(deadline) {
		frame, err := t.ReadFrame()
		if err != nil {
			return false, err
		}
		if frame == nil {
			continue
		}
		if len(frame) >= 3 && frame[0] == 0xEF && frame[1] == 0x01 && frame[2] == 0x01 {
			return true, nil
		}
		t.log.Debugf("got packet before init reply: %s", codec.HexDump(frame))
		return false, nil
	}
	return false, nil
}
