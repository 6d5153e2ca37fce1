package index

import (
	"context"
	"sort"
	"sync"

	"github.com/josh-kwaku/anchor-gateway/internal/domain"
)

type Memory struct {
	mu       sync.RWMutex
	accounts map[string]map[string]struct{}
}

func NewMemory() *Memory {
	return &Memory{accounts: make(map[string]map[string]struct{})}
}

func (m *Memory) Add(_ context.Context, account, transferID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.accounts[account]
	if !ok {
		set = make(map[string]struct{})
		m.accounts[account] = set
	}
	set[transferID] = struct{}{}
	return nil
}

func (m *Memory) Remove(_ context.Context, account, transferID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.accounts[account]
	if !ok {
		return nil
	}
	delete(set, transferID)
	if len(set) == 0 {
		delete(m.accounts, account)
	}
	return nil
}

func (m *Memory) Lookup(_ context.Context, account string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.accounts[account]))
	for id := range m.accounts[account] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *Memory) Accounts(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.accounts))
	for a := range m.accounts {
		out = append(out, a)
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) Rebuild(_ context.Context, transfers []domain.Transfer) error {
	next := entries(transfers)
	m.mu.Lock()
	m.accounts = next
	m.mu.Unlock()
	return nil
}
