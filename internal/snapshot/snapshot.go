package snapshot

import (
	"context"
	"errors"
	"strings"

	"github.com/smallbiznis/lifecyclesim/internal/event"
)

var (
	ErrUnknownStore = errors.New("unknown_snapshot_store")
	ErrMissingEra   = errors.New("snapshot_era_required")
)

// Loader returns the users rows a new era starts from. No rows is not an
// error.
type Loader interface {
	Load(ctx context.Context) (event.Batch, error)
}

// Store keeps the users snapshot written at the end of each era.
type Store interface {
	Save(ctx context.Context, era string, rows event.Batch) error
	// Latest returns the most recently saved snapshot of any era other than
	// exceptEra.
	Latest(ctx context.Context, exceptEra string) (event.Batch, error)
}

type priorLoader struct {
	store Store
	era   string
}

// Prior loads the newest snapshot saved by an era other than era, so a
// rerun never bootstraps from its own output.
func Prior(store Store, era string) Loader {
	return priorLoader{store: store, era: era}
}

func (l priorLoader) Load(ctx context.Context) (event.Batch, error) {
	if l.store == nil {
		return nil, nil
	}
	return l.store.Latest(ctx, l.era)
}

func normalizeEra(era string) (string, error) {
	era = strings.TrimSpace(era)
	if era == "" {
		return "", ErrMissingEra
	}
	return era, nil
}
