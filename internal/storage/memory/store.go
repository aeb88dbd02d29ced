// Package memory is an in-process core.Store. Uniqueness rules match the
// SQLite schema; data is lost when the process exits.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sandevgo/edubot/internal/core"
)

// errDangling mirrors the foreign key checks of the SQL schema.
var errDangling = errors.New("memory: referenced row does not exist")

type threadKey struct {
	platform, name string
}

type botKey struct {
	username, platform string
}

type messageKey struct {
	threadID       int64
	username, body string
	sentAt         int64
}

type Store struct {
	mu sync.RWMutex

	nextID int64

	threads     map[threadKey]core.Thread
	bots        map[botKey]core.Bot
	messages    map[messageKey]core.Message
	messageByID map[int64]core.Message
	completions []core.Completion
}

var _ core.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		threads:     make(map[threadKey]core.Thread),
		bots:        make(map[botKey]core.Bot),
		messages:    make(map[messageKey]core.Message),
		messageByID: make(map[int64]core.Message),
	}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *Store) FindThread(ctx context.Context, platform, name string) (core.Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if t, ok := s.threads[threadKey{platform, name}]; ok {
		return t, nil
	}
	return core.Thread{}, core.ErrNotFound
}

func (s *Store) GetOrCreateThread(ctx context.Context, platform, name string) (core.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := threadKey{platform, name}
	if t, ok := s.threads[key]; ok {
		return t, nil
	}
	t := core.Thread{ID: s.id(), Platform: platform, Name: name, CreatedAt: time.Now().UTC()}
	s.threads[key] = t
	return t, nil
}

func (s *Store) FindBot(ctx context.Context, username, platform string) (core.Bot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if b, ok := s.bots[botKey{username, platform}]; ok {
		return b, nil
	}
	return core.Bot{}, core.ErrNotFound
}

func (s *Store) GetOrCreateBot(ctx context.Context, username, platform string) (core.Bot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := botKey{username, platform}
	if b, ok := s.bots[key]; ok {
		return b, nil
	}
	b := core.Bot{ID: s.id(), Username: username, Platform: platform}
	s.bots[key] = b
	return b, nil
}

func keyOf(threadID int64, msg core.IncomingMessage) messageKey {
	return messageKey{
		threadID: threadID,
		username: msg.Username,
		body:     msg.Body,
		sentAt:   msg.SentAt.UTC().UnixNano(),
	}
}

func (s *Store) LookupMessage(ctx context.Context, threadID int64, msg core.IncomingMessage) (core.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if m, ok := s.messages[keyOf(threadID, msg)]; ok {
		return m, nil
	}
	return core.Message{}, core.ErrNotFound
}

func (s *Store) IngestMessage(ctx context.Context, threadID int64, msg core.IncomingMessage) (core.Message, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := keyOf(threadID, msg)
	if m, ok := s.messages[key]; ok {
		return m, false, nil
	}
	m := core.Message{
		ID:       s.id(),
		ThreadID: threadID,
		Username: msg.Username,
		Body:     msg.Body,
		SentAt:   msg.SentAt.UTC(),
	}
	s.messages[key] = m
	s.messageByID[m.ID] = m
	return m, true, nil
}

func (s *Store) MessagesSince(ctx context.Context, threadID int64, since time.Time) ([]core.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []core.Message
	for _, m := range s.messages {
		if m.ThreadID == threadID && !m.SentAt.Before(since) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SentAt.Equal(out[j].SentAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].SentAt.Before(out[j].SentAt)
	})
	return out, nil
}

// RecentMessages returns up to limit of the thread's newest messages, oldest first.
func (s *Store) RecentMessages(ctx context.Context, threadID int64, limit int) ([]core.Message, error) {
	all, err := s.MessagesSince(ctx, threadID, time.Time{})
	if err != nil {
		return nil, err
	}
	if limit >= 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

func (s *Store) RecordCompletion(ctx context.Context, botID int64, text string, replyToID int64) (core.Completion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.messageByID[replyToID]; !ok {
		return core.Completion{}, fmt.Errorf("reply_to %d: %w", replyToID, errDangling)
	}
	if !s.hasBot(botID) {
		return core.Completion{}, fmt.Errorf("bot %d: %w", botID, errDangling)
	}

	c := core.Completion{
		ID:        s.id(),
		BotID:     botID,
		Text:      text,
		ReplyToID: replyToID,
		CreatedAt: time.Now().UTC(),
	}
	s.completions = append(s.completions, c)
	return c, nil
}

func (s *Store) hasBot(id int64) bool {
	for _, b := range s.bots {
		if b.ID == id {
			return true
		}
	}
	return false
}

func (s *Store) AdjustScore(ctx context.Context, completionID int64, delta int) (core.Completion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.completions {
		if s.completions[i].ID == completionID {
			s.completions[i].Score += delta
			return s.completions[i], nil
		}
	}
	return core.Completion{}, core.ErrNotFound
}

func (s *Store) FindCandidate(ctx context.Context, q core.CandidateQuery) (core.Completion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// completions are appended in id order, so the last match wins
	for i := len(s.completions) - 1; i >= 0; i-- {
		c := s.completions[i]
		if c.BotID != q.BotID || c.Text != q.Text {
			continue
		}
		m, ok := s.messageByID[c.ReplyToID]
		if !ok || m.ThreadID != q.ThreadID {
			continue
		}
		if m.SentAt.After(q.After) && m.SentAt.Before(q.Before) {
			return c, nil
		}
	}
	return core.Completion{}, core.ErrNotFound
}

func (s *Store) CompletionForMessage(ctx context.Context, botID, messageID int64) (core.Completion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.completions) - 1; i >= 0; i-- {
		c := s.completions[i]
		if c.BotID == botID && c.ReplyToID == messageID {
			return c, nil
		}
	}
	return core.Completion{}, core.ErrNotFound
}
