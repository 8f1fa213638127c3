package client

import (
	"sync"
)

// MockState is an in-memory test implementation of StateInterface
type MockState struct {
	mu sync.RWMutex

	config map[string]string
	dir    string

	// Error injection
	setConfigErr error
	closed       bool
}

// NewMockState creates a new mock state
func NewMockState() *MockState {
	return &MockState{
		config: make(map[string]string),
		dir:    "/tmp/mock-state",
	}
}

// SetConfigError makes every subsequent write fail with err
func (s *MockState) SetConfigError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setConfigErr = err
}

// GetConfig retrieves a configuration value
func (s *MockState) GetConfig(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config[key], nil
}

// SetConfig stores a configuration value
func (s *MockState) SetConfig(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.setConfigErr != nil {
		return s.setConfigErr
	}
	s.config[key] = value
	return nil
}

// GetToken returns the stored token
func (s *MockState) GetToken() string {
	token, _ := s.GetConfig(tokenKey)
	return token
}

// SetToken stores the token
func (s *MockState) SetToken(token string) error {
	return s.SetConfig(tokenKey, token)
}

// ClearToken removes the token
func (s *MockState) ClearToken() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.setConfigErr != nil {
		return s.setConfigErr
	}
	delete(s.config, tokenKey)
	return nil
}

// GetStateDir returns the mock state directory
func (s *MockState) GetStateDir() string {
	return s.dir
}

// Close marks the mock as closed
func (s *MockState) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// IsClosed reports whether Close was called
func (s *MockState) IsClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}
