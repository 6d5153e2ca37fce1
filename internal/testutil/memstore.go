package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/josh-kwaku/anchor-gateway/internal/domain"
)

// TransferStore is an in-memory transfer store with the same version check as
// the Postgres repository.
type TransferStore struct {
	mu        sync.Mutex
	transfers map[string]*domain.Transfer
	saves     int
	// BeforeSave runs under no lock right before a save attempt; tests use it
	// to inject a concurrent writer.
	BeforeSave func(id string)
}

func NewTransferStore(transfers ...*domain.Transfer) *TransferStore {
	s := &TransferStore{transfers: make(map[string]*domain.Transfer)}
	for _, t := range transfers {
		s.transfers[t.ID] = t.Clone()
	}
	return s
}

func (s *TransferStore) Put(t *domain.Transfer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transfers[t.ID] = t.Clone()
}

func (s *TransferStore) Get(_ context.Context, id string) (*domain.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transfers[id]
	if !ok {
		return nil, fmt.Errorf("Get: transfer %s: %w", id, domain.ErrNotFound)
	}
	return t.Clone(), nil
}

func (s *TransferStore) CompareAndSave(_ context.Context, t *domain.Transfer, expectedVersion int64) error {
	if s.BeforeSave != nil {
		hook := s.BeforeSave
		s.BeforeSave = nil
		hook(t.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.transfers[t.ID]
	if !ok || cur.Version != expectedVersion {
		return fmt.Errorf("CompareAndSave: transfer %s: %w", t.ID, domain.ErrVersionConflict)
	}
	t.Version = expectedVersion + 1
	s.transfers[t.ID] = t.Clone()
	s.saves++
	return nil
}

func (s *TransferStore) FindByLedgerPayment(_ context.Context, operationID string) (*domain.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.transfers {
		if t.HasLedgerPayment(operationID) {
			return t.Clone(), nil
		}
	}
	return nil, fmt.Errorf("FindByLedgerPayment: operation %s: %w", operationID, domain.ErrNotFound)
}

func (s *TransferStore) ListActive(_ context.Context) ([]domain.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Transfer
	for _, t := range s.transfers {
		if !t.Status.IsTerminal() {
			out = append(out, *t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *TransferStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// ReconciliationStore is an in-memory pending reconciliation table.
type ReconciliationStore struct {
	mu      sync.Mutex
	records map[string]*domain.PendingReconciliation
}

func NewReconciliationStore() *ReconciliationStore {
	return &ReconciliationStore{records: make(map[string]*domain.PendingReconciliation)}
}

func reconKey(id string, c domain.ReconcileCondition) string { return id + "/" + string(c) }

func (s *ReconciliationStore) Create(_ context.Context, p *domain.PendingReconciliation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := reconKey(p.TransferID, p.Condition)
	if _, ok := s.records[k]; !ok {
		c := *p
		s.records[k] = &c
	}
	return nil
}

func (s *ReconciliationStore) ListByCondition(_ context.Context, c domain.ReconcileCondition, limit int) ([]domain.PendingReconciliation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.PendingReconciliation
	for _, p := range s.records {
		if p.Condition == c {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *ReconciliationStore) IncrementAttempts(_ context.Context, id string, c domain.ReconcileCondition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.records[reconKey(id, c)]
	if !ok {
		return fmt.Errorf("IncrementAttempts: %w", domain.ErrNotFound)
	}
	p.Attempts++
	return nil
}

func (s *ReconciliationStore) Delete(_ context.Context, id string, c domain.ReconcileCondition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, reconKey(id, c))
	return nil
}

func (s *ReconciliationStore) Get(id string, c domain.ReconcileCondition) (domain.PendingReconciliation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.records[reconKey(id, c)]
	if !ok {
		return domain.PendingReconciliation{}, false
	}
	return *p, true
}
