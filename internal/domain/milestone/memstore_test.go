package milestone_test

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/okian/tandem/internal/domain/errs"
	"github.com/okian/tandem/internal/domain/milestone"
	"github.com/okian/tandem/internal/domain/model"
)

// memStore serializes transactions behind one mutex and commits staged copies.
type memStore struct {
	mu            sync.Mutex
	matches       map[string]model.Match
	ledger        map[string][]model.MilestoneEntry
	conflictOnAdd bool
	failSetScore  bool
}

func newMemStore(matches ...model.Match) *memStore {
	s := &memStore{matches: map[string]model.Match{}, ledger: map[string][]model.MilestoneEntry{}}
	for _, m := range matches {
		s.matches[m.ID] = m
	}
	return s
}

type memTx struct {
	s       *memStore
	matches map[string]model.Match
	ledger  map[string][]model.MilestoneEntry
}

func (s *memStore) WithinTx(_ context.Context, fn func(tx milestone.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &memTx{s: s, matches: maps.Clone(s.matches), ledger: map[string][]model.MilestoneEntry{}}
	for k, v := range s.ledger {
		tx.ledger[k] = slices.Clone(v)
	}
	if err := fn(tx); err != nil {
		return err
	}
	s.matches, s.ledger = tx.matches, tx.ledger
	return nil
}

func (s *memStore) GetMatch(_ context.Context, id string) (model.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[id]
	if !ok {
		return model.Match{}, errs.ErrNotFound
	}
	return m, nil
}

func (s *memStore) Ledger(_ context.Context, id string) ([]model.MilestoneEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.ledger[id]), nil
}

func (s *memStore) score(id string) int {
	m, _ := s.GetMatch(context.Background(), id)
	return m.CurrentScore
}

func (t *memTx) LockMatch(_ context.Context, id string) (model.Match, error) {
	m, ok := t.matches[id]
	if !ok {
		return model.Match{}, errs.ErrNotFound
	}
	return m, nil
}

func (t *memTx) HasMilestone(_ context.Context, id, key string) (bool, error) {
	for _, e := range t.ledger[id] {
		if e.Key == key {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) AddMilestone(_ context.Context, e *model.MilestoneEntry) error {
	if t.s.conflictOnAdd {
		return errs.ErrConflict
	}
	t.ledger[e.MatchID] = append(t.ledger[e.MatchID], *e)
	return nil
}

func (t *memTx) SetScore(_ context.Context, id string, score int) error {
	if t.s.failSetScore {
		return errs.ErrStorage
	}
	m := t.matches[id]
	m.CurrentScore = score
	t.matches[id] = m
	return nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []model.Notification
}

func (n *recordingNotifier) Notify(_ context.Context, note model.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, note)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}
