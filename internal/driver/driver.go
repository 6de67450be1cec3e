// Package driver implements the cooperative event loop that ties the
// base station, the connection registry, and the HandheldManager/
// Service collaborators together.
package driver

import (
	"errors"
	"time"

	"github.com/op/go-logging"
	uuid "github.com/satori/go.uuid"

	"github.com/joecharamut/mx240a-driver/internal/base"
	"github.com/joecharamut/mx240a-driver/internal/codec"
	"github.com/joecharamut/mx240a-driver/internal/config"
	"github.com/joecharamut/mx240a-driver/internal/packet"
	"github.com/joecharamut/mx240a-driver/internal/registry"
	"github.com/joecharamut/mx240a-driver/internal/service"
)

// ErrWindowNotOpen is returned by SendMessage when the target window
// isn't open on the handheld's screen.
var ErrWindowNotOpen = errors.New("mx240a: window not open on connection")

type deferredTask struct {
	remaining time.Duration
	fn        func()
}

// Driver runs the event loop: one packet read, dispatch, deferred
// tasks, ping timer, per tick.
type Driver struct {
	base     *base.Base
	registry *registry.Registry
	manager  service.HandheldManager
	svc      service.Service
	log      *logging.Logger

	lastTick  time.Time
	pingTimer time.Duration
	deferred  []*deferredTask

	messages map[int][]byte

	// MessageReceived, if set, is called with the fully reassembled
	// text of a handheld-originated message. Left nil, messages are
	// only logged — this driver core has no chat-delivery callback of
	// its own (see internal/service).
	MessageReceived func(connectionID int, text string)
}

// New builds a Driver around an already-handshaken Base.
func New(b *base.Base, manager service.HandheldManager, svc service.Service, log *logging.Logger) *Driver {
	return &Driver{
		base:     b,
		registry: registry.New(),
		manager:  manager,
		svc:      svc,
		log:      log,
		messages: make(map[int][]byte),
	}
}

// RunLater schedules fn to run on the event-loop goroutine no sooner
// than delay from now. Collaborators that need to do work off a
// callback should post it here rather than blocking the loop.
func (d *Driver) RunLater(delay time.Duration, fn func()) {
	d.deferred = append(d.deferred, &deferredTask{remaining: delay, fn: fn})
}

// Run drives the loop until stop is closed or a fatal transport error
// occurs, then sends the shutdown frame and releases the device.
func (d *Driver) Run(stop <-chan struct{}) error {
	d.lastTick = time.Now()
	for {
		select {
		case <-stop:
			return d.shutdown()
		default:
		}
		if err := d.Tick(); err != nil {
			d.shutdown()
			return err
		}
	}
}

func (d *Driver) shutdown() error {
	d.svc.Logout()
	return d.base.Close()
}

// Tick runs exactly one iteration of the loop: a read, dispatch,
// deferred-task decrement, and ping-timer check. Exported so tests can
// drive the loop deterministically instead of looping forever.
func (d *Driver) Tick() error {
	now := time.Now()
	var delta time.Duration
	if !d.lastTick.IsZero() {
		delta = now.Sub(d.lastTick)
	}
	d.lastTick = now

	p, err := d.base.Read()
	if err != nil {
		return err
	}
	if p != nil {
		d.dispatch(p)
	}

	d.runDeferred(delta)

	interval := config.PollIntervalIdle
	if d.registry.Active() {
		interval = config.PollIntervalBusy
	}
	d.pingTimer += delta
	if d.pingTimer >= interval {
		d.pingTimer = 0
		if err := d.base.Write(packet.Polling{}); err != nil {
			return err
		}
	}

	if delta > config.TickOverrunWarn {
		d.log.Warningf("tick overrun: %s", delta)
	}
	return nil
}

func (d *Driver) runDeferred(delta time.Duration) {
	if len(d.deferred) == 0 {
		return
	}
	remaining := d.deferred[:0]
	for _, t := range d.deferred {
		t.remaining -= delta
		if t.remaining <= 0 {
			t.fn()
		} else {
			remaining = append(remaining, t)
		}
	}
	d.deferred = remaining
}

func (d *Driver) dispatch(p packet.Packet) {
	switch pk := p.(type) {
	case packet.HandheldRegistration:
		d.handleRegistration(pk)
	case packet.HandheldConnecting:
		d.handleConnecting(pk)
	case packet.HandheldUsername:
		d.handleUsername(pk)
	case packet.HandheldPassword:
		d.handlePassword(pk)
	case packet.HandheldDisconnected:
		d.registry.Disconnect(pk.ConnectionID)
		delete(d.messages, pk.ConnectionID)
	case packet.HandheldLogoff:
		d.registry.Disconnect(pk.ConnectionID)
		delete(d.messages, pk.ConnectionID)
	case packet.OpenWindow:
		if conn := d.registry.Get(pk.ConnectionID); conn != nil {
			conn.OpenWindow(pk.WindowID)
		}
	case packet.CloseWindow:
		if conn := d.registry.Get(pk.ConnectionID); conn != nil {
			conn.CloseWindow()
		}
	case packet.MessageFrame:
		d.handleMessageFrame(pk)
	case packet.Unknown:
		d.log.Debugf("unknown packet: %s", codec.HexDump(pk.Raw))
	default:
		// Base.Read has already recorded an ACK's arrival time;
		// ACK/MysteryACK/BaseInitReply and HandheldAway/Warning/Invite
		// have no further core-layer effect.
	}
}

func (d *Driver) handleRegistration(pk packet.HandheldRegistration) {
	accept := d.manager.Register(pk.HandheldID)
	if err := d.base.Write(packet.HandheldRegistrationReply{Accept: accept}); err != nil {
		d.log.Errorf("writing registration reply: %v", err)
	}
}

func (d *Driver) handleConnecting(pk packet.HandheldConnecting) {
	conn, err := d.registry.Connect(pk.ConnectionID, pk.HandheldID)
	if err != nil {
		d.log.Warningf("connecting packet for invalid slot %d: %v", pk.ConnectionID, err)
		return
	}

	trace := uuid.NewV4().String()
	d.log.Infof("[%s] handheld %s connecting on slot %d", trace, pk.HandheldID, pk.ConnectionID)

	data := d.manager.Connect(pk.HandheldID)
	if data == nil {
		d.base.Write(packet.Error{ConnectionID: pk.ConnectionID, Errno: packet.SessionTerminated})
		d.registry.Disconnect(pk.ConnectionID)
		return
	}
	conn.Name = data.Name

	d.base.Write(packet.HandheldInfo{ConnectionID: pk.ConnectionID, Name: data.Name})

	svcID := d.svc.ServiceID()
	if svcInfo, err := packet.NewServiceInfo(pk.ConnectionID, svcID); err != nil {
		d.log.Errorf("[%s] invalid service id %q: %v", trace, svcID, err)
	} else {
		d.base.Write(svcInfo)
	}

	mute, _ := codec.ParseRTTTL("")
	for _, name := range packet.ToneEventNames {
		tone := mute
		if t := data.Tones[name]; t != nil {
			tone = *t
		}
		rp, err := packet.NewRingtone(pk.ConnectionID, name, tone)
		if err != nil {
			d.log.Errorf("[%s] building ringtone %q: %v", trace, name, err)
			continue
		}
		d.base.Write(rp)
	}

	conn.State = registry.AwaitingUsername
}

func (d *Driver) handleUsername(pk packet.HandheldUsername) {
	conn := d.registry.Get(pk.ConnectionID)
	if conn == nil || conn.State != registry.AwaitingUsername {
		return
	}
	conn.Username = pk.Username
	conn.State = registry.AwaitingPassword
}

func (d *Driver) handlePassword(pk packet.HandheldPassword) {
	conn := d.registry.Get(pk.ConnectionID)
	if conn == nil || conn.State != registry.AwaitingPassword {
		return
	}
	conn.Password = pk.Password

	if d.svc.Login(conn) {
		conn.State = registry.LoggedIn
		d.base.Write(packet.LoginSuccess{ConnectionID: pk.ConnectionID})
		d.RunLater(config.ReadyDelay, func() { d.svc.Ready(conn) })
		return
	}
	d.base.Write(packet.Error{ConnectionID: pk.ConnectionID, Errno: packet.ServiceTemporarilyUnavailable})
}

// AddBuddy adds screenName to connID's buddy list under group and sends
// the handheld the BuddyStatus/BuddyInfo sequence that puts it on
// screen, in the order the firmware expects: the buddy's presence
// first, then its group and name.
func (d *Driver) AddBuddy(connID int, screenName, group string, status registry.Status, mobile bool) *registry.Buddy {
	conn := d.registry.Get(connID)
	if conn == nil {
		return nil
	}
	b := conn.AddBuddy(screenName, group, status, mobile)

	d.base.Write(packet.BuddyStatus{ConnectionID: connID, Status: b.Status.Code(b.Mobile), BuddyID: byte(b.ID)})
	d.base.Write(packet.BuddyInfo{ConnectionID: connID, Group: b.Group, ScreenName: b.ScreenName})

	return b
}

// SendMessage delivers text to windowID on connID, refusing if the
// handheld hasn't opened that window. screenName non-empty selects the
// group-chat chunking/prefix convention over the direct one (see
// packet.MessageToHandheld), mirroring original_source/newdriver.py's
// Handset.send_message.
func (d *Driver) SendMessage(connID int, windowID byte, screenName, text string) error {
	conn := d.registry.Get(connID)
	if conn == nil {
		return registry.ErrInvalidSlot
	}
	if !conn.WindowOpen(windowID) {
		return ErrWindowNotOpen
	}
	return d.base.Write(packet.MessageToHandheld{
		ConnectionID: connID,
		WindowID:     windowID,
		ScreenName:   screenName,
		Text:         text,
	})
}

func (d *Driver) handleMessageFrame(pk packet.MessageFrame) {
	d.messages[pk.ConnectionID] = append(d.messages[pk.ConnectionID], pk.Data...)
	if pk.Continuation {
		if err := d.ackContinuation(); err != nil {
			d.log.Errorf("acking message continuation: %v", err)
		}
		return
	}

	text := packet.StripEchoPrefix(string(d.messages[pk.ConnectionID]))
	delete(d.messages, pk.ConnectionID)

	if d.MessageReceived != nil {
		d.MessageReceived(pk.ConnectionID, text)
	} else {
		d.log.Debugf("message from slot %d: %q", pk.ConnectionID, text)
	}
}

func (d *Driver) ackContinuation() error {
	return d.base.Ack()
}
