// Package registry tracks the base station's seven handheld connection
// slots and each slot's login state machine and buddy list.
package registry

import (
	"fmt"

	"github.com/joecharamut/mx240a-driver/internal/packet"
)

// State is a Connection's position in its login state machine.
type State int

const (
	Disconnected State = iota
	Connecting
	AwaitingUsername
	AwaitingPassword
	LoggedIn
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case AwaitingUsername:
		return "awaiting_username"
	case AwaitingPassword:
		return "awaiting_password"
	case LoggedIn:
		return "logged_in"
	default:
		return "unknown"
	}
}

// Status is a buddy's tri-state presence, matching the firmware's
// three-character status code (status char + mobile flag + a
// constant trailing "N" whose meaning was never documented upstream).
type Status int

const (
	Active Status = iota
	Idle
	Away
)

// Code renders the firmware's 3-char buddy status string for the given
// presence and mobile flag.
func (s Status) Code(mobile bool) string {
	var first byte
	switch s {
	case Idle:
		first = 'I'
	case Away:
		first = 'U'
	default:
		first = 'A'
	}
	second := byte('N')
	if mobile {
		second = 'Y'
	}
	return string([]byte{first, second, 'N'})
}

// Buddy is one entry in a Connection's buddy list.
type Buddy struct {
	ID         int
	ScreenName string
	Group      string
	Status     Status
	Mobile     bool
}

// Connection is one of the base station's seven handheld slots.
type Connection struct {
	ID         int
	HandheldID string
	Name       string
	Username   string
	Password   string
	State      State
	Windows    map[byte]bool

	nextBuddyID int
	buddies     map[string][]*Buddy
}

func newConnection(id int, handheldID string) *Connection {
	return &Connection{
		ID:          id,
		HandheldID:  handheldID,
		State:       Connecting,
		Windows:     make(map[byte]bool),
		nextBuddyID: 1,
		buddies:     make(map[string][]*Buddy),
	}
}

// OpenWindow marks windowID as the active conversation slot on the
// handheld's screen.
func (c *Connection) OpenWindow(windowID byte) {
	c.Windows[windowID] = true
}

// CloseWindow clears every open window; the firmware's CloseWindow
// frame does not name which window closed (see packet.CloseWindow).
func (c *Connection) CloseWindow() {
	for id := range c.Windows {
		delete(c.Windows, id)
	}
}

// WindowOpen reports whether the handheld has windowID on screen.
func (c *Connection) WindowOpen(windowID byte) bool {
	return c.Windows[windowID]
}

// AddBuddy assigns the next ordinal buddy id within this connection,
// pads the group to 6 characters, and files the buddy under its group.
func (c *Connection) AddBuddy(screenName, group string, status Status, mobile bool) *Buddy {
	b := &Buddy{
		ID:         c.nextBuddyID,
		ScreenName: screenName,
		Group:      packet.PadGroup(group),
		Status:     status,
		Mobile:     mobile,
	}
	c.nextBuddyID++
	c.buddies[b.Group] = append(c.buddies[b.Group], b)
	return b
}

// Buddies returns every buddy in Group, or nil if the group is empty.
func (c *Connection) Buddies(group string) []*Buddy {
	return c.buddies[packet.PadGroup(group)]
}

// Registry holds the fixed seven-slot Connection array; slot 0 is
// never used, matching the firmware's 1-indexed connection ids.
type Registry struct {
	slots [8]*Connection
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{}
}

// ErrInvalidSlot is returned for any connection id outside [1,7].
var ErrInvalidSlot = fmt.Errorf("mx240a: connection id must be in [1,7]")

// Connect allocates slot id for a newly-connecting handheld, replacing
// any prior occupant. Slot transitions begin at Connecting.
func (r *Registry) Connect(id int, handheldID string) (*Connection, error) {
	if id < 1 || id > 7 {
		return nil, ErrInvalidSlot
	}
	c := newConnection(id, handheldID)
	r.slots[id] = c
	return c, nil
}

// Get returns the Connection occupying slot id, or nil if the slot is
// empty or id is out of range.
func (r *Registry) Get(id int) *Connection {
	if id < 1 || id > 7 {
		return nil
	}
	return r.slots[id]
}

// Disconnect clears slot id, returning the Connection that occupied it
// (nil if already empty).
func (r *Registry) Disconnect(id int) *Connection {
	if id < 1 || id > 7 {
		return nil
	}
	c := r.slots[id]
	r.slots[id] = nil
	return c
}

// Count returns the number of occupied slots.
func (r *Registry) Count() int {
	n := 0
	for _, c := range r.slots {
		if c != nil {
			n++
		}
	}
	return n
}

// Active reports whether at least one slot is occupied, the signal
// that flips the driver's polling cadence from idle to busy.
func (r *Registry) Active() bool {
	return r.Count() > 0
}
