package repository

import (
	"context"
	"errors"
	"fmt"

	"nexus/internal/model"
)

// MaxUpdateAttempts bounds the read-modify-write loop in Update.
const MaxUpdateAttempts = 3

// ErrUnchanged is returned by an Update callback that left the project as it
// was; Update then returns the loaded project without saving.
var ErrUnchanged = errors.New("project unchanged")

// Update loads the project, applies fn and saves it, retrying from a fresh
// read when another writer got there first. fn must be safe to run more than
// once. A non-nil error from fn aborts without saving.
func Update(ctx context.Context, store ProjectStore, id string, fn func(p *model.Project) error) (*model.Project, error) {
	var lastErr error
	for attempt := 0; attempt < MaxUpdateAttempts; attempt++ {
		p, err := store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := fn(p); err != nil {
			if errors.Is(err, ErrUnchanged) {
				return p, nil
			}
			return nil, err
		}
		err = store.Save(ctx, p)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, model.ErrVersionConflict) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("giving up after %d attempts: %w", MaxUpdateAttempts, lastErr)
}
