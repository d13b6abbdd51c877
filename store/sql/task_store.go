package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/todotomorrow/go-client/core"
	"github.com/uptrace/bun"
)

// TaskStore is the SQL-backed task repository. Tombstoned tasks stay in the
// table and are filtered out of every read.
type TaskStore struct {
	db        *bun.DB
	ownerRepo repository.Repository[*ownerRecord]
	taskRepo  repository.Repository[*taskRecord]
}

func (s *TaskStore) ResolveOwner(ctx context.Context, identity core.OwnerIdentity) (string, error) {
	if s == nil || s.ownerRepo == nil {
		return "", fmt.Errorf("sqlstore: task store is not configured")
	}
	if err := identity.Validate(); err != nil {
		return "", err
	}
	userID := strings.TrimSpace(identity.UserID)
	address := strings.TrimSpace(identity.Address)

	existing, err := s.findOwnerByUserID(ctx, userID)
	if err != nil {
		return "", err
	}
	if existing != nil {
		if address != "" && existing.Address != address {
			existing.Address = address
			existing.UpdatedAt = time.Now().UTC()
			if _, updateErr := s.ownerRepo.Update(ctx, existing, repository.UpdateByID(existing.ID)); updateErr != nil {
				return "", updateErr
			}
		}
		return existing.ID, nil
	}

	now := time.Now().UTC()
	record := &ownerRecord{
		ID:        uuid.NewString(),
		UserID:    userID,
		Address:   address,
		CreatedAt: now,
		UpdatedAt: now,
	}
	created, createErr := s.ownerRepo.Create(ctx, record)
	if createErr != nil {
		// A concurrent resolve may have inserted the owner first; the
		// unique user_id constraint makes the re-read authoritative.
		raced, lookupErr := s.findOwnerByUserID(ctx, userID)
		if lookupErr == nil && raced != nil {
			return raced.ID, nil
		}
		return "", createErr
	}
	return created.ID, nil
}

func (s *TaskStore) findOwnerByUserID(ctx context.Context, userID string) (*ownerRecord, error) {
	records, _, err := s.ownerRepo.List(ctx,
		repository.SelectBy("user_id", "=", userID),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

func (s *TaskStore) List(ctx context.Context, ownerID string) ([]core.Task, error) {
	if s == nil || s.taskRepo == nil {
		return nil, fmt.Errorf("sqlstore: task store is not configured")
	}
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, fmt.Errorf("sqlstore: owner id is required")
	}
	records, _, err := s.taskRepo.List(ctx,
		repository.SelectBy("owner_id", "=", ownerID),
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.deleted_at IS NULL")
		}),
		repository.OrderBy("created_at DESC"),
	)
	if err != nil {
		return nil, err
	}

	out := make([]core.Task, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func (s *TaskStore) Create(ctx context.Context, ownerID string, text string) (core.Task, error) {
	if s == nil || s.taskRepo == nil {
		return core.Task{}, fmt.Errorf("sqlstore: task store is not configured")
	}
	ownerID = strings.TrimSpace(ownerID)
	text = strings.TrimSpace(text)
	if ownerID == "" {
		return core.Task{}, fmt.Errorf("sqlstore: owner id is required")
	}
	if text == "" {
		return core.Task{}, fmt.Errorf("sqlstore: task text is required")
	}

	now := time.Now().UTC()
	record := &taskRecord{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Text:      text,
		Status:    string(core.TaskStatusOpen),
		CreatedAt: now,
		UpdatedAt: now,
	}
	created, err := s.taskRepo.Create(ctx, record)
	if err != nil {
		return core.Task{}, err
	}
	return created.toDomain(), nil
}

func (s *TaskStore) SoftDelete(ctx context.Context, id string, tombstonedAt time.Time) error {
	if s == nil || s.taskRepo == nil {
		return fmt.Errorf("sqlstore: task store is not configured")
	}
	trimmedID := strings.TrimSpace(id)
	if trimmedID == "" {
		return fmt.Errorf("sqlstore: task id is required")
	}
	record, err := s.taskRepo.GetByID(ctx, trimmedID)
	if err != nil {
		return err
	}
	if record.DeletedAt != nil {
		return nil
	}
	stamp := tombstonedAt.UTC()
	if stamp.IsZero() {
		stamp = time.Now().UTC()
	}
	record.DeletedAt = &stamp
	record.UpdatedAt = stamp

	_, err = s.db.NewUpdate().
		Model(record).
		Where("id = ?", trimmedID).
		Exec(ctx)
	return err
}

func (s *TaskStore) Update(ctx context.Context, id string, text string) error {
	if s == nil || s.taskRepo == nil {
		return fmt.Errorf("sqlstore: task store is not configured")
	}
	trimmedID := strings.TrimSpace(id)
	text = strings.TrimSpace(text)
	if trimmedID == "" {
		return fmt.Errorf("sqlstore: task id is required")
	}
	if text == "" {
		return fmt.Errorf("sqlstore: task text is required")
	}
	record, err := s.taskRepo.GetByID(ctx, trimmedID)
	if err != nil {
		return err
	}
	record.Text = text
	record.UpdatedAt = time.Now().UTC()

	_, err = s.taskRepo.Update(ctx, record, repository.UpdateByID(trimmedID))
	return err
}

var _ core.TaskRepository = (*TaskStore)(nil)
