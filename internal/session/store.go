package session

import (
	"context"
	"encoding/json"
	"fmt"

	apperr "github.com/Fi44er/invest_bot/internal/errors"
	"github.com/Fi44er/invest_bot/internal/service"
)

const maxWriteAttempts = 3

// putJSON overwrites key with v, retrying when another writer got in between.
func putJSON(ctx context.Context, store service.BlobStore, key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}

	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		_, version, err := store.Get(ctx, key)
		if err != nil {
			return err
		}
		swapped, err := store.CompareAndSwap(ctx, key, version, raw)
		if err != nil {
			return err
		}
		if swapped {
			return nil
		}
	}
	return fmt.Errorf("write %s: %w", key, apperr.ErrConflict)
}
