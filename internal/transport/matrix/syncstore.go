package matrix

import (
	"context"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/id"
)

const (
	keyFilterID  = "matrix_filter_id"
	keyNextBatch = "matrix_next_batch"
)

// StateStore persists small key/value cursors per account.
type StateStore interface {
	Save(ctx context.Context, owner, key, value string) error
	Load(ctx context.Context, owner, key string) (string, error)
}

var _ mautrix.SyncStore = (*syncStore)(nil)

// syncStore keeps next_batch across restarts so old room history is not
// answered again.
type syncStore struct {
	state StateStore
}

func newSyncStore(state StateStore) *syncStore {
	return &syncStore{state: state}
}

func (s *syncStore) SaveFilterID(ctx context.Context, userID id.UserID, filterID string) error {
	return s.state.Save(ctx, userID.String(), keyFilterID, filterID)
}

func (s *syncStore) LoadFilterID(ctx context.Context, userID id.UserID) (string, error) {
	return s.state.Load(ctx, userID.String(), keyFilterID)
}

func (s *syncStore) SaveNextBatch(ctx context.Context, userID id.UserID, nextBatchToken string) error {
	return s.state.Save(ctx, userID.String(), keyNextBatch, nextBatchToken)
}

func (s *syncStore) LoadNextBatch(ctx context.Context, userID id.UserID) (string, error) {
	return s.state.Load(ctx, userID.String(), keyNextBatch)
}
