// Package session keeps the bearer token between runs, sealed on disk.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var (
	ErrNoSession      = errors.New("not logged in")
	ErrSessionExpired = errors.New("session expired")
)

// Sealer encrypts the session file. encription.Enc implements it.
type Sealer interface {
	Encrypt(data string) (string, error)
	Decrypt(encryptedText string) (string, error)
}

type Session struct {
	Username string    `json:"username"`
	Token    string    `json:"token"`
	Start    time.Time `json:"start"`
}

type Manager struct {
	mu       sync.Mutex
	path     string
	enc      Sealer
	duration time.Duration
	now      func() time.Time
}

// NewManager stores the session at path. A zero duration never expires.
func NewManager(path string, enc Sealer, duration time.Duration) *Manager {
	return &Manager{
		path:     path,
		enc:      enc,
		duration: duration,
		now:      time.Now,
	}
}

// Save starts a session for username.
func (m *Manager) Save(username, token string) (Session, error) {
	if token == "" {
		return Session{}, errors.New("empty token")
	}
	s := Session{Username: username, Token: token, Start: m.now().UTC()}

	data, err := json.Marshal(s)
	if err != nil {
		return Session{}, err
	}
	sealed, err := m.enc.Encrypt(string(data))
	if err != nil {
		return Session{}, fmt.Errorf("failed to seal session: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(m.path), 0700); err != nil {
		return Session{}, err
	}
	if err := os.WriteFile(m.path, []byte(sealed), 0600); err != nil {
		return Session{}, err
	}
	return s, nil
}

// Load returns the stored session, or ErrNoSession / ErrSessionExpired.
func (m *Manager) Load() (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sealed, err := os.ReadFile(m.path)
	if errors.Is(err, os.ErrNotExist) {
		return Session{}, ErrNoSession
	}
	if err != nil {
		return Session{}, err
	}
	data, err := m.enc.Decrypt(string(sealed))
	if err != nil {
		return Session{}, fmt.Errorf("%w: %w", ErrNoSession, err)
	}
	var s Session
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return Session{}, fmt.Errorf("%w: %w", ErrNoSession, err)
	}
	if m.duration > 0 && m.now().Sub(s.Start) > m.duration {
		return s, ErrSessionExpired
	}
	return s, nil
}

// Token returns the current bearer token, or "" without a valid session.
func (m *Manager) Token() string {
	s, err := m.Load()
	if err != nil {
		return ""
	}
	return s.Token
}

// Clear ends the session. Clearing twice is not an error.
func (m *Manager) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	err := os.Remove(m.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
