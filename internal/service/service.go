// Package service defines the contracts a chat-service backend and a
// handheld registry implement to plug into the driver. Every method is
// called synchronously on the driver's event-loop goroutine.
package service

import (
	"github.com/joecharamut/mx240a-driver/internal/codec"
	"github.com/joecharamut/mx240a-driver/internal/registry"
)

// HandheldManager decides which handhelds may register with the base
// station and supplies the display name and ringtones for a connecting
// handheld.
type HandheldManager interface {
	// Register reports whether the not-yet-paired handheld identified
	// by its 8-hex-digit id may register with this base station.
	Register(handheldID string) bool

	// Connect supplies the session data for a registered handheld that
	// is (re)connecting. A nil return aborts the connection with
	// SessionTerminated.
	Connect(handheldID string) *HandheldConnectData
}

// HandheldConnectData is what HandheldManager.Connect supplies for a
// newly-connecting handheld.
type HandheldConnectData struct {
	Name  string
	Tones map[string]*codec.Ringtone
}

// Service is the chat-service backend mediating login and message
// delivery for one base station.
type Service interface {
	// ServiceID is the six-character label shown on the handheld; its
	// second character must be 'A', 'a', or 'M' so the firmware picks
	// the right icon set.
	ServiceID() string

	// Login authenticates the handheld's username/password against the
	// backend, returning whether the session may proceed.
	Login(conn *registry.Connection) bool

	// Logout notifies the backend the base station is shutting down.
	Logout()

	// Ready is called once a logged-in handheld's UI has had time to
	// settle, so the backend may start delivering buffered events.
	Ready(conn *registry.Connection)
}
