package tokenstore

import (
	"context"
	"sync"

	"github.com/kunal-mandalia/box-node-sdk/pkg/boxauth"
)

// Memory is an in-process TokenStore. Safe for concurrent use.
type Memory struct {
	mu    sync.RWMutex
	info  boxauth.TokenInfo
	found bool
}

var _ boxauth.TokenStore = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Read(_ context.Context) (boxauth.TokenInfo, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.info, m.found, nil
}

func (m *Memory) Write(_ context.Context, info boxauth.TokenInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.info = info
	m.found = true
	return nil
}

func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.info = boxauth.TokenInfo{}
	m.found = false
	return nil
}
