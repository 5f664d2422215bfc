package backup

import (
	"context"
	"fmt"
	"time"

	"github.com/jvillanueva/hilot/internal/model"
)

// restoreJobTimeout caps how long a background restore may run.
const restoreJobTimeout = 30 * time.Minute

// RestoreAsync validates preconditions synchronously, then runs the restore
// in the background keyed by the RestoreOperation id. One backup can be
// restored many times, each producing its own operation. Callers poll the
// operation for progress.
//
// The step sequence mutates shared rows, so a retried job is not re-entrant
// past the last persisted step: clients should not re-dispatch an operation
// that already ran. A terminal panic in the job itself is reported
// distinctly from a restore-logic failure.
func (m *Manager) RestoreAsync(backupID int64, opts RestoreOptions, restoredBy *int64) (*model.RestoreOperation, error) {
	op, record, err := m.beginRestore(backupID, opts, restoredBy)
	if err != nil {
		return nil, err
	}

	go func() {
		defer m.unlock(backupID)

		ctx, cancel := context.WithTimeout(context.Background(), restoreJobTimeout)
		defer cancel()

		if err := m.restSem.Acquire(ctx, 1); err != nil {
			m.failRestore(op.ID, fmt.Errorf("restore job failed to start: %w (job infrastructure failure)", err))
			return
		}
		defer m.restSem.Release(1)

		defer func() {
			if r := recover(); r != nil {
				m.logger.Error("restore job panicked", "operation", op.ID, "panic", r)
				m.failRestore(op.ID, fmt.Errorf("restore job crashed: %v (job infrastructure failure, not a restore logic failure)", r))
			}
		}()

		m.runRestore(ctx, op, record, restoredBy)
	}()

	return op, nil
}
