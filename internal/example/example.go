// Package example provides a minimal in-memory HandheldManager/Service
// pair for manual testing against real hardware (cmd/mx240ad run) and
// for driver tests that don't need a real chat backend.
package example

import (
	"sync"

	"github.com/joecharamut/mx240a-driver/internal/registry"
	"github.com/joecharamut/mx240a-driver/internal/service"
)

// Manager accepts every handheld id it has not explicitly been told to
// reject, and hands a connecting handheld a display name built from its
// id only if that id has registered; otherwise Connect returns nil.
type Manager struct {
	sync.Mutex
	Allowed  map[string]bool
	Rejected map[string]bool
}

// NewManager returns a Manager that accepts any handheld not later
// added to Reject.
func NewManager() *Manager {
	return &Manager{
		Allowed:  map[string]bool{},
		Rejected: map[string]bool{},
	}
}

// Reject marks handheldID as permanently unregistrable.
func (m *Manager) Reject(handheldID string) {
	m.Lock()
	defer m.Unlock()
	m.Rejected[handheldID] = true
}

func (m *Manager) Register(handheldID string) bool {
	m.Lock()
	defer m.Unlock()
	if m.Rejected[handheldID] {
		return false
	}
	m.Allowed[handheldID] = true
	return true
}

func (m *Manager) Connect(handheldID string) *service.HandheldConnectData {
	m.Lock()
	defer m.Unlock()
	if !m.Allowed[handheldID] {
		return nil
	}
	return &service.HandheldConnectData{Name: "Handheld " + handheldID}
}

// Service is a chat-service stub that accepts any non-empty
// username/password pair and logs nothing anywhere.
type Service struct {
	sync.Mutex
	id         string
	loginCalls int
}

// NewService returns a Service advertising serviceID, which must
// satisfy the firmware's second-character network marker rule.
func NewService(serviceID string) *Service {
	return &Service{id: serviceID}
}

func (s *Service) ServiceID() string { return s.id }

func (s *Service) Login(conn *registry.Connection) bool {
	s.Lock()
	defer s.Unlock()
	s.loginCalls++
	return conn.Username != "" && conn.Password != ""
}

func (s *Service) Logout() {}

func (s *Service) Ready(conn *registry.Connection) {}
