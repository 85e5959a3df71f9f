package session

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/dmvolsky/persona-telegram-bot/pkg/config"
	"github.com/dmvolsky/persona-telegram-bot/pkg/domain"
)

// Repository is the durable backend: one record per conversation, replaced
// whole on every write.
type Repository interface {
	Get(ctx context.Context, key domain.ConversationKey) ([]domain.Message, bool, error)
	Replace(ctx context.Context, key domain.ConversationKey, history []domain.Message) error
}

// ConfigProvider yields the current snapshot. The history bound and merge
// window are read from it on every call, so a config reload applies to the
// next append without a restart.
type ConfigProvider interface {
	Snapshot() *config.Snapshot
}

type entry struct {
	mu      sync.Mutex
	loaded  bool
	history []domain.Message
}

// Store owns all session state. Mutations on one key are serialized through
// the entry mutex; different keys proceed independently. The in-memory
// history is only advanced after the repository write succeeds, so visible
// state never diverges from what was durably persisted.
type Store struct {
	repo Repository
	cfg  ConfigProvider

	mu      sync.Mutex
	entries map[domain.ConversationKey]*entry
}

func NewStore(repo Repository, cfg ConfigProvider) *Store {
	return &Store{
		repo:    repo,
		cfg:     cfg,
		entries: make(map[domain.ConversationKey]*entry),
	}
}

func (s *Store) entryFor(key domain.ConversationKey) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		e = &entry{}
		s.entries[key] = e
	}
	return e
}

// ensureLoaded reads the persisted record on first touch. Caller holds e.mu.
func (s *Store) ensureLoaded(ctx context.Context, key domain.ConversationKey, e *entry) error {
	if e.loaded {
		return nil
	}
	history, _, err := s.repo.Get(ctx, key)
	if err != nil {
		return &domain.StorageError{Op: "load", Key: key, Err: err}
	}
	e.history = history
	e.loaded = true
	return nil
}

func snapshotOf(key domain.ConversationKey, e *entry, maxHistory int) domain.Session {
	return domain.Session{
		Key:        key,
		History:    slices.Clone(e.history),
		MaxHistory: maxHistory,
	}
}

// Load returns the existing session or a new empty one. This is the sole
// creation point for a session.
func (s *Store) Load(ctx context.Context, key domain.ConversationKey) (domain.Session, error) {
	e := s.entryFor(key)
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := s.ensureLoaded(ctx, key, e); err != nil {
		return domain.Session{}, err
	}
	return snapshotOf(key, e, s.cfg.Snapshot().Session.MaxHistory), nil
}

// Append adds msg to the history, trims to the bound (oldest first),
// persists the whole record and returns the updated snapshot. On a persist
// failure the in-memory history stays at its pre-append value.
func (s *Store) Append(ctx context.Context, key domain.ConversationKey, msg domain.Message) (domain.Session, error) {
	e := s.entryFor(key)
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := s.ensureLoaded(ctx, key, e); err != nil {
		return domain.Session{}, err
	}

	snap := s.cfg.Snapshot()
	next := appendAndTrim(e.history, msg, snap.Session.MaxHistory, snap.MergeWindow())
	if err := s.repo.Replace(ctx, key, next); err != nil {
		return domain.Session{}, &domain.StorageError{Op: "append", Key: key, Err: err}
	}
	e.history = next
	return snapshotOf(key, e, snap.Session.MaxHistory), nil
}

// ReplaceHistory overwrites the history wholesale, re-validates the bound
// and persists. Used by the clear command and corrective trimming.
func (s *Store) ReplaceHistory(ctx context.Context, key domain.ConversationKey, msgs []domain.Message) (domain.Session, error) {
	e := s.entryFor(key)
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := s.ensureLoaded(ctx, key, e); err != nil {
		return domain.Session{}, err
	}

	maxHistory := s.cfg.Snapshot().Session.MaxHistory
	next := slices.Clone(msgs)
	if len(next) > maxHistory {
		next = slices.Clone(next[len(next)-maxHistory:])
	}
	if err := s.repo.Replace(ctx, key, next); err != nil {
		return domain.Session{}, &domain.StorageError{Op: "replace", Key: key, Err: err}
	}
	e.history = next
	return snapshotOf(key, e, maxHistory), nil
}

// appendAndTrim builds the successor history as a fresh slice so the current
// one survives untouched if persistence fails.
func appendAndTrim(history []domain.Message, msg domain.Message, maxHistory int, mergeWindow time.Duration) []domain.Message {
	if merged, ok := tryMerge(history, msg, mergeWindow); ok {
		return merged
	}

	next := make([]domain.Message, 0, len(history)+1)
	next = append(next, history...)
	next = append(next, msg)
	if len(next) > maxHistory {
		next = next[len(next)-maxHistory:]
	}
	return next
}

// tryMerge folds a user message into the previous turn when it comes from
// the same sender within the merge window. Disabled at window 0.
func tryMerge(history []domain.Message, msg domain.Message, mergeWindow time.Duration) ([]domain.Message, bool) {
	if mergeWindow <= 0 || len(history) == 0 {
		return nil, false
	}

	last := history[len(history)-1]
	if last.Role != domain.MessageRoleUser || msg.Role != domain.MessageRoleUser {
		return nil, false
	}
	if last.SenderID != msg.SenderID {
		return nil, false
	}
	if gap := msg.Timestamp.Sub(last.Timestamp); gap < 0 || gap > mergeWindow {
		return nil, false
	}

	merged := slices.Clone(history)
	last.Content = last.Content + "\n" + msg.Content
	last.Timestamp = msg.Timestamp
	merged[len(merged)-1] = last
	return merged, true
}
