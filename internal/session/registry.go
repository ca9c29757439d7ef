package session

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/Fi44er/invest_bot/internal/models"
	"github.com/Fi44er/invest_bot/internal/service"
	"github.com/Fi44er/invest_bot/utils"
)

// Registry hands out one Manager per chat, keyed user:<chat id>, and fans
// balance changes out to the chats signed in as the changed account. Sign-ins
// are recorded in a persisted chat index so chats signed in before a restart
// are still reached.
type Registry struct {
	accounts Accounts
	store    service.BlobStore
	cost     int
	logger   *utils.Logger
	index    chatIndex

	mu       sync.Mutex
	managers map[int64]*Manager
}

func NewRegistry(accounts Accounts, store service.BlobStore, cost int, logger *utils.Logger) *Registry {
	return &Registry{
		accounts: accounts,
		store:    store,
		cost:     cost,
		logger:   logger,
		index:    chatIndex{store: store, key: models.KeySessionChats},
		managers: make(map[int64]*Manager),
	}
}

func (r *Registry) For(chatID int64) *Manager {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.managers[chatID]
	if !ok {
		key := fmt.Sprintf("%s:%d", models.KeyUserSession, chatID)
		m = NewManager(r.accounts, r.store, key, r.cost, r.logger)
		m.onSignIn = func(ctx context.Context, email string) {
			if err := r.index.add(ctx, email, chatID); err != nil {
				r.logger.Warnf("Failed to index chat %d for %s: %v", chatID, email, err)
			}
		}
		r.managers[chatID] = m
	}
	return m
}

func (r *Registry) SyncBalance(ctx context.Context, acc *models.Account) error {
	chats, err := r.candidates(ctx, acc.Email)

	var firstErr error
	for _, id := range chats {
		if err := r.For(id).SyncBalance(ctx, acc); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// ChatsFor lists the chats currently signed in as email.
func (r *Registry) ChatsFor(ctx context.Context, email string) []int64 {
	candidates, err := r.candidates(ctx, email)
	if err != nil {
		r.logger.Warnf("Chat index unavailable, only chats seen by this process are checked: %v", err)
	}

	var chats, stale []int64
	for _, id := range candidates {
		sess, err := r.For(id).Current(ctx)
		if err != nil {
			continue
		}
		if sess != nil && strings.EqualFold(sess.Email, email) {
			chats = append(chats, id)
		} else {
			stale = append(stale, id)
		}
	}

	if err := r.index.remove(ctx, email, stale); err != nil {
		r.logger.Warnf("Failed to prune chat index for %s: %v", email, err)
	}
	return chats
}

// candidates merges the indexed chats of email with the chats this process
// has seen. The in-process chats are returned even when the index read fails.
func (r *Registry) candidates(ctx context.Context, email string) ([]int64, error) {
	indexed, err := r.index.chats(ctx, email)

	seen := make(map[int64]bool, len(indexed))
	for _, id := range indexed {
		seen[id] = true
	}
	r.mu.Lock()
	for id := range r.managers {
		seen[id] = true
	}
	r.mu.Unlock()

	ids := make([]int64, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, err
}
