package chat

import (
	"sync"

	"github.com/google/uuid"
)

// Manager holds the live chat sessions, one per (user, document) pair.
// Sessions are ephemeral; a restart starts every workspace from scratch.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

func sessionKey(userID, docID uuid.UUID) string {
	return userID.String() + "/" + docID.String()
}

// Session returns the existing session for the pair or creates one.
func (m *Manager) Session(userID, docID uuid.UUID, pdfName, extractedText string) *Session {
	key := sessionKey(userID, docID)
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[key]; ok {
		return s
	}
	s := NewSession(pdfName, extractedText)
	m.sessions[key] = s
	return s
}

// Drop discards the session for a deleted document.
func (m *Manager) Drop(userID, docID uuid.UUID) {
	m.mu.Lock()
	delete(m.sessions, sessionKey(userID, docID))
	m.mu.Unlock()
}
