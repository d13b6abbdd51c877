package tasks

import (
	"context"

	"github.com/todotomorrow/go-client/core"
)

// optimisticMutation is one local-first edit. apply runs under the store lock
// and returns the revert closure used when the remote rejects the edit;
// remote runs outside the lock. commit, when set, runs under the lock after
// the remote accepted, to fold server-assigned state into the local copy.
type optimisticMutation struct {
	name   string
	apply  func(s *storeState) (revert func(s *storeState))
	remote func(ctx context.Context) error
	commit func(s *storeState)
}

func (t *Store) run(ctx context.Context, m optimisticMutation) error {
	t.mu.Lock()
	revert := m.apply(&t.state)
	snapshot := t.snapshotLocked()
	t.mu.Unlock()
	t.notify(snapshot)

	err := m.remote(ctx)

	t.mu.Lock()
	if err != nil {
		if revert != nil {
			revert(&t.state)
		}
		t.state.lastErr = err
	} else {
		if m.commit != nil {
			m.commit(&t.state)
		}
		t.state.lastErr = nil
	}
	snapshot = t.snapshotLocked()
	t.mu.Unlock()
	t.notify(snapshot)

	if err != nil {
		t.logger.Error("task mutation rolled back", "mutation", m.name, "error", err.Error())
		return core.RollbackError(err, m.name+" failed and was rolled back")
	}
	return nil
}
