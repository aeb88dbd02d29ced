package sqlite

import (
	"database/sql"

	"github.com/sandevgo/edubot/internal/core"
)

// Store bundles the repositories into a single core.Store.
type Store struct {
	*ThreadsRepo
	*BotsRepo
	*MessagesRepo
	*CompletionsRepo
}

var _ core.Store = (*Store)(nil)

func NewStore(db *sql.DB) *Store {
	return &Store{
		ThreadsRepo:     NewThreadsRepo(db),
		BotsRepo:        NewBotsRepo(db),
		MessagesRepo:    NewMessagesRepo(db),
		CompletionsRepo: NewCompletionsRepo(db),
	}
}
