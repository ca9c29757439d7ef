package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	apperr "github.com/Fi44er/invest_bot/internal/errors"
	"github.com/Fi44er/invest_bot/internal/service"
)

// chatIndex remembers which chats signed in as which email. Entries are
// hints: a chat listed here may have signed out since, so callers check the
// chat's session before trusting it.
type chatIndex struct {
	store service.BlobStore
	key   string
}

func indexKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (ix chatIndex) load(ctx context.Context) (map[string][]int64, int64, error) {
	raw, version, err := ix.store.Get(ctx, ix.key)
	if err != nil {
		return nil, 0, err
	}
	chats := make(map[string][]int64)
	if len(raw) == 0 {
		return chats, version, nil
	}
	if err := json.Unmarshal(raw, &chats); err != nil {
		// Rebuilt from the next sign-ins.
		return make(map[string][]int64), version, nil
	}
	return chats, version, nil
}

func (ix chatIndex) chats(ctx context.Context, email string) ([]int64, error) {
	chats, _, err := ix.load(ctx)
	if err != nil {
		return nil, err
	}
	return chats[indexKey(email)], nil
}

// update applies fn to the latest index and writes it back when fn reports a change.
func (ix chatIndex) update(ctx context.Context, fn func(chats map[string][]int64) bool) error {
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		chats, version, err := ix.load(ctx)
		if err != nil {
			return err
		}
		if !fn(chats) {
			return nil
		}
		raw, err := json.Marshal(chats)
		if err != nil {
			return fmt.Errorf("encode %s: %w", ix.key, err)
		}
		swapped, err := ix.store.CompareAndSwap(ctx, ix.key, version, raw)
		if err != nil {
			return err
		}
		if swapped {
			return nil
		}
	}
	return fmt.Errorf("write %s: %w", ix.key, apperr.ErrConflict)
}

func (ix chatIndex) add(ctx context.Context, email string, chatID int64) error {
	key := indexKey(email)
	return ix.update(ctx, func(chats map[string][]int64) bool {
		for _, id := range chats[key] {
			if id == chatID {
				return false
			}
		}
		chats[key] = append(chats[key], chatID)
		sort.Slice(chats[key], func(i, j int) bool { return chats[key][i] < chats[key][j] })
		return true
	})
}

func (ix chatIndex) remove(ctx context.Context, email string, stale []int64) error {
	if len(stale) == 0 {
		return nil
	}
	key := indexKey(email)
	drop := make(map[int64]bool, len(stale))
	for _, id := range stale {
		drop[id] = true
	}
	return ix.update(ctx, func(chats map[string][]int64) bool {
		kept := chats[key][:0:0]
		for _, id := range chats[key] {
			if !drop[id] {
				kept = append(kept, id)
			}
		}
		if len(kept) == len(chats[key]) {
			return false
		}
		if len(kept) == 0 {
			delete(chats, key)
		} else {
			chats[key] = kept
		}
		return true
	})
}
