package driver

import (
	"bytes"
	"reflect"
	"testing"
	"time"

	"github.com/op/go-logging"

	"github.com/joecharamut/mx240a-driver/internal/base"
	"github.com/joecharamut/mx240a-driver/internal/codec"
	"github.com/joecharamut/mx240a-driver/internal/config"
	"github.com/joecharamut/mx240a-driver/internal/packet"
	"github.com/joecharamut/mx240a-driver/internal/registry"
	"github.com/joecharamut/mx240a-driver/internal/service"
)

type fakeTransport struct {
	writes [][]byte
	reads  [][]byte
	pos    int
	acks   int
}

func (f *fakeTransport) WriteFrame(data []byte) error {
	f.writes = append(f.writes, append([]byte(nil), data...))
	return nil
}

func (f *fakeTransport) ReadFrame() ([]byte, error) {
	if f.pos >= len(f.reads) {
		return nil, nil
	}
	frame := f.reads[f.pos]
	f.pos++
	return frame, nil
}

func (f *fakeTransport) Ack() error { f.acks++; return nil }

func (f *fakeTransport) Close() error { return nil }

func testLogger() *logging.Logger {
	logging.SetBackend(logging.NewLogBackend(new(bytes.Buffer), "", 0))
	return logging.MustGetLogger("test")
}

type fakeManager struct {
	registerResult bool
	connectData    *service.HandheldConnectData
}

func (m *fakeManager) Register(string) bool { return m.registerResult }
func (m *fakeManager) Connect(string) *service.HandheldConnectData { return m.connectData }

type fakeService struct {
	id         string
	loginOK    bool
	readyCalls []int
}

func (s *fakeService) ServiceID() string { return s.id }
func (s *fakeService) Login(conn *registry.Connection) bool { return s.loginOK }
func (s *fakeService) Logout()                              {}
func (s *fakeService) Ready(conn *registry.Connection) {
	s.readyCalls = append(s.readyCalls, conn.ID)
}

func newTestDriver(reads [][]byte, manager *fakeManager, svc *fakeService) (*Driver, *fakeTransport) {
	ft := &fakeTransport{reads: reads}
	b := base.New(ft, testLogger())
	d := New(b, manager, svc, testLogger())
	return d, ft
}

func TestRegistrationAccept(t *testing.T) {
	d, ft := newTestDriver([][]byte{{0xE0, 0xDE, 0xAD, 0xBE, 0xEF}}, &fakeManager{registerResult: true}, &fakeService{id: " AIM  "})

	if err := d.Tick(); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(ft.writes) != 1 || !bytes.Equal(ft.writes[0], []byte{0xEE, 0xD3}) {
		t.Fatalf("writes = %v, want [[EE D3]]", ft.writes)
	}
}

func TestRegistrationReject(t *testing.T) {
	d, ft := newTestDriver([][]byte{{0xE0, 0xDE, 0xAD, 0xBE, 0xEF}}, &fakeManager{registerResult: false}, &fakeService{id: " AIM  "})

	if err := d.Tick(); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(ft.writes) != 1 || !bytes.Equal(ft.writes[0], []byte{0xEE, 0xC5}) {
		t.Fatalf("writes = %v, want [[EE C5]]", ft.writes)
	}
}

func TestConnectHandshakeSequence(t *testing.T) {
	manager := &fakeManager{connectData: &service.HandheldConnectData{Name: "IMFree"}}
	svc := &fakeService{id: " AIM  "}
	d, ft := newTestDriver([][]byte{{0xE3, 0x8E, 0xDE, 0xAD, 0xBE, 0xEF}}, manager, svc)

	if err := d.Tick(); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(ft.writes) != 0 {
		t.Fatalf("HandheldInfo/ServiceInfo/Ringtone are Queued; got %d writes before any Polling drain", len(ft.writes))
	}

	if err := d.base.Write(packet.Polling{}); err != nil {
		t.Fatalf("Write(Polling): %v", err)
	}

	if len(ft.writes) != 1+2+len(packet.ToneEventNames) {
		t.Fatalf("got %d writes, want %d", len(ft.writes), 1+2+len(packet.ToneEventNames))
	}
	if !bytes.Equal(ft.writes[0], []byte{0xAD}) {
		t.Fatalf("writes[0] = %v, want Polling", ft.writes[0])
	}
	wantInfo := []byte{0xC3, 0xD9, 'I', 'M', 'F', 'r', 'e', 'e', 0xFF}
	if !bytes.Equal(ft.writes[1], wantInfo) {
		t.Fatalf("writes[1] = %v, want %v", ft.writes[1], wantInfo)
	}
	wantSvc := []byte{0xC3, 0xD7, ' ', 'A', 'I', 'M', ' ', ' ', 0xFF}
	if !bytes.Equal(ft.writes[2], wantSvc) {
		t.Fatalf("writes[2] = %v, want %v", ft.writes[2], wantSvc)
	}
	wantFirstTone := []byte{0xC3, 0xCD, 0x02, 0x01, 0x7F, 0xFF}
	if !bytes.Equal(ft.writes[3], wantFirstTone) {
		t.Fatalf("writes[3] (new_message) = %v, want %v", ft.writes[3], wantFirstTone)
	}
	for i, name := range packet.ToneEventNames {
		mute, _ := codec.ParseRTTTL("")
		rp, err := packet.NewRingtone(3, name, mute)
		if err != nil {
			t.Fatalf("NewRingtone: %v", err)
		}
		want := rp.Encode()[0]
		if !bytes.Equal(ft.writes[3+i], want) {
			t.Errorf("ringtone[%d] (%s) = %v, want %v", i, name, ft.writes[3+i], want)
		}
	}

	conn := d.registry.Get(3)
	if conn == nil || conn.State != registry.AwaitingUsername {
		t.Fatalf("conn state = %v, want AwaitingUsername", conn)
	}
}

func connectedAwaitingPassword(t *testing.T, svc *fakeService) (*Driver, *fakeTransport) {
	t.Helper()
	manager := &fakeManager{connectData: &service.HandheldConnectData{Name: "bob"}}
	d, ft := newTestDriver(nil, manager, svc)
	conn, err := d.registry.Connect(4, "deadbeef")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	conn.State = registry.AwaitingUsername
	d.handleUsername(packet.HandheldUsername{ConnectionID: 4, Username: "bob"})
	return d, ft
}

func TestLoginSuccessSchedulesReady(t *testing.T) {
	svc := &fakeService{id: " AIM  ", loginOK: true}
	d, ft := connectedAwaitingPassword(t, svc)

	d.dispatch(packet.HandheldPassword{ConnectionID: 4, Password: "pass"})
	d.base.Write(packet.Polling{})

	if len(ft.writes) != 2 {
		t.Fatalf("got %d writes, want 2 (Polling + LoginSuccess)", len(ft.writes))
	}
	want := []byte{0xE4, 0xD3, 0xFF}
	if !bytes.Equal(ft.writes[1], want) {
		t.Fatalf("got %v, want %v", ft.writes[1], want)
	}

	if len(svc.readyCalls) != 0 {
		t.Fatalf("Ready must not fire before its delay elapses")
	}
	d.runDeferred(config.ReadyDelay)
	if !reflect.DeepEqual(svc.readyCalls, []int{4}) {
		t.Fatalf("readyCalls = %v, want [4]", svc.readyCalls)
	}
}

func TestLoginFailureSendsErrorNoReady(t *testing.T) {
	svc := &fakeService{id: " AIM  ", loginOK: false}
	d, ft := connectedAwaitingPassword(t, svc)

	d.dispatch(packet.HandheldPassword{ConnectionID: 4, Password: "wrong"})
	d.base.Write(packet.Polling{})

	if len(ft.writes) != 2 {
		t.Fatalf("got %d writes, want 2 (Polling + Error)", len(ft.writes))
	}
	want := []byte{0xE4, 0xE5, 0x03, 0xFF}
	if !bytes.Equal(ft.writes[1], want) {
		t.Fatalf("got %v, want %v", ft.writes[1], want)
	}
	if len(svc.readyCalls) != 0 {
		t.Fatalf("Ready must not be scheduled on login failure")
	}
}

func TestPollingFiresAfterIdleInterval(t *testing.T) {
	d, ft := newTestDriver(nil, &fakeManager{}, &fakeService{id: " AIM  "})
	d.lastTick = time.Now().Add(-4 * time.Second)

	if err := d.Tick(); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(ft.writes) != 1 || !bytes.Equal(ft.writes[0], []byte{0xAD}) {
		t.Fatalf("writes = %v, want a single Polling frame", ft.writes)
	}
}

func TestPollingDoesNotFireBeforeInterval(t *testing.T) {
	d, ft := newTestDriver(nil, &fakeManager{}, &fakeService{id: " AIM  "})
	d.lastTick = time.Now()

	if err := d.Tick(); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(ft.writes) != 0 {
		t.Fatalf("writes = %v, want none", ft.writes)
	}
}

func TestAddBuddySendsStatusThenInfo(t *testing.T) {
	d, ft := newTestDriver(nil, &fakeManager{}, &fakeService{id: " AIM  "})
	if _, err := d.registry.Connect(2, "deadbeef"); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	b := d.AddBuddy(2, "alice", "fam", registry.Away, true)
	if b == nil || b.ID != 1 {
		t.Fatalf("AddBuddy returned %v, want a buddy with id 1", b)
	}
	d.base.Write(packet.Polling{})

	// BuddyStatus encodes to one frame, BuddyInfo to two (body + the
	// status-modifier trailer), plus the leading Polling frame.
	if len(ft.writes) != 4 {
		t.Fatalf("got %d writes, want 4 (Polling + BuddyStatus + BuddyInfo + status-modifier trailer)", len(ft.writes))
	}
	wantStatus := []byte{0xE2, 0xCA, 'U', 'Y', 'N', 0x01, 0xFF}
	if !bytes.Equal(ft.writes[1], wantStatus) {
		t.Fatalf("writes[1] (BuddyStatus) = %v, want %v", ft.writes[1], wantStatus)
	}
	wantInfo := []byte{0xC2, 0xC9, 'f', 'a', 'm', ' ', ' ', ' ', 'a', 'l', 'i', 'c', 'e', 0xFF, 0x00}
	if !bytes.Equal(ft.writes[2], wantInfo) {
		t.Fatalf("writes[2] (BuddyInfo) = %v, want %v", ft.writes[2], wantInfo)
	}
	wantTrailer := []byte{0xA2, 0xC9, 0x01, 0xFF}
	if !bytes.Equal(ft.writes[3], wantTrailer) {
		t.Fatalf("writes[3] (status modifier) = %v, want %v", ft.writes[3], wantTrailer)
	}

	if got := d.registry.Get(2).Buddies("fam"); len(got) != 1 || got[0].ScreenName != "alice" {
		t.Fatalf("registry.Buddies = %v, want [alice]", got)
	}
}

func TestAddBuddyUnknownConnectionReturnsNil(t *testing.T) {
	d, ft := newTestDriver(nil, &fakeManager{}, &fakeService{id: " AIM  "})
	if b := d.AddBuddy(5, "alice", "buddies", registry.Active, false); b != nil {
		t.Fatalf("AddBuddy on an empty slot = %v, want nil", b)
	}
	if len(ft.writes) != 0 {
		t.Fatalf("writes = %v, want none", ft.writes)
	}
}

func TestSendMessageRefusesClosedWindow(t *testing.T) {
	d, ft := newTestDriver(nil, &fakeManager{}, &fakeService{id: " AIM  "})
	if _, err := d.registry.Connect(2, "deadbeef"); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if err := d.SendMessage(2, 1, "", "hi"); err != ErrWindowNotOpen {
		t.Fatalf("err = %v, want ErrWindowNotOpen", err)
	}
	if len(ft.writes) != 0 {
		t.Fatalf("writes = %v, want none", ft.writes)
	}
}

func TestSendMessageDeliversToOpenWindow(t *testing.T) {
	d, ft := newTestDriver(nil, &fakeManager{}, &fakeService{id: " AIM  "})
	conn, err := d.registry.Connect(2, "deadbeef")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	conn.OpenWindow(1)

	if err := d.SendMessage(2, 1, "", "hi"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	d.base.Write(packet.Polling{})

	want := packet.MessageToHandheld{ConnectionID: 2, WindowID: 1, Text: "hi"}.Encode()
	if len(ft.writes) != 1+len(want) {
		t.Fatalf("got %d writes, want %d", len(ft.writes), 1+len(want))
	}
	for i, frame := range want {
		if !bytes.Equal(ft.writes[1+i], frame) {
			t.Errorf("writes[%d] = %v, want %v", 1+i, ft.writes[1+i], frame)
		}
	}
}

func TestMessageReassemblyAcksContinuationAndStripsPrefix(t *testing.T) {
	d, ft := newTestDriver(nil, &fakeManager{}, &fakeService{id: " AIM  "})
	var got string
	d.MessageReceived = func(_ int, text string) { got = text }

	d.dispatch(packet.MessageFrame{ConnectionID: 1, Data: []byte("bob:hel"), Continuation: true})
	if ft.acks != 1 {
		t.Fatalf("acks = %d, want 1 after a continuation frame", ft.acks)
	}
	d.dispatch(packet.MessageFrame{ConnectionID: 1, Data: []byte("lo"), Continuation: false})
	if got != "hello" {
		t.Fatalf("got %q, want %q", got, "hello")
	}
}
