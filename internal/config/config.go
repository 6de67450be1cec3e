// Package config holds the protocol's compile-time constants and the
// handful of knobs a deployment can tune at runtime.
package config

import (
	"os"
	"time"

	"github.com/blang/semver"
)

// Version is stamped into startup logs so field reports can be tied to a build.
var Version = semver.MustParse("0.1.0")

const (
	// VendorID and ProductID identify the base station over USB.
	VendorID  = 0x22B8
	ProductID = 0x7F01

	ExpectedManufacturer = "Giant Wireless Technology"
	ExpectedProduct      = "MX240a MOTOROLA MESSENGER"

	// MaxConnections is the number of handheld slots the base station multiplexes.
	MaxConnections = 7

	// Polling and pacing timing constants.
	PollIntervalBusy = 500 * time.Millisecond
	PollIntervalIdle = 3000 * time.Millisecond
	QueueGap         = 150 * time.Millisecond
	AckPacingWindow  = 500 * time.Millisecond
	ReadyDelay       = 500 * time.Millisecond
	TickOverrunWarn  = 20 * time.Millisecond

	InitReplyTimeout = 2 * time.Second
	InitRetryDelay   = 500 * time.Millisecond
	InitMaxAttempts  = 3

	HIDReadTimeout = 1 * time.Second
)

// LogLevelEnv is the environment variable that overrides the default log level.
const LogLevelEnv = "MX240A_LOG_LEVEL"

// DevicePathEnv, when set, overrides HID device auto-discovery with an
// explicit hidraw-style path — used in tests and when more than one
// compatible device is attached.
const DevicePathEnv = "MX240A_HID_PATH"

func DevicePathOverride() string {
	return os.Getenv(DevicePathEnv)
}
