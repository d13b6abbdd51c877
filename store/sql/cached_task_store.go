package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/todotomorrow/go-client/core"
)

const taskListCacheKeyPrefix = "todoclient::task_list::v1"

// CachedTaskStore layers a read cache over the task repository. Only the
// list read is cached; every mutation invalidates the owner's entry so the
// next list goes back to the table.
type CachedTaskStore struct {
	base  core.TaskRepository
	cache repositorycache.CacheService
}

func NewCachedTaskStore(base core.TaskRepository, cacheService repositorycache.CacheService) (*CachedTaskStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base task repository is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: task cache service is required")
	}
	return &CachedTaskStore{base: base, cache: cacheService}, nil
}

// TaskListCacheKey returns the deterministic cache key for an owner's task
// list: todoclient::task_list::v1::<owner_id> with the owner segment
// URL-path escaped.
func TaskListCacheKey(ownerID string) (string, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return "", fmt.Errorf("sqlstore: owner id is required")
	}
	return taskListCacheKeyPrefix + "::" + url.PathEscape(ownerID), nil
}

func (s *CachedTaskStore) ResolveOwner(ctx context.Context, identity core.OwnerIdentity) (string, error) {
	if s == nil || s.base == nil {
		return "", fmt.Errorf("sqlstore: cached task store is not configured")
	}
	return s.base.ResolveOwner(ctx, identity)
}

func (s *CachedTaskStore) List(ctx context.Context, ownerID string) ([]core.Task, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return nil, fmt.Errorf("sqlstore: cached task store is not configured")
	}
	cacheKey, err := TaskListCacheKey(ownerID)
	if err != nil {
		return nil, err
	}
	tasks, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) ([]core.Task, error) {
		fetched, fetchErr := s.base.List(ctx, ownerID)
		if fetchErr != nil {
			return nil, fetchErr
		}
		return cloneTasks(fetched), nil
	})
	if err != nil {
		return nil, err
	}
	return cloneTasks(tasks), nil
}

func (s *CachedTaskStore) Create(ctx context.Context, ownerID string, text string) (core.Task, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Task{}, fmt.Errorf("sqlstore: cached task store is not configured")
	}
	created, err := s.base.Create(ctx, ownerID, text)
	if err != nil {
		return core.Task{}, err
	}
	if err := s.invalidate(ctx, ownerID); err != nil {
		return core.Task{}, err
	}
	return created, nil
}

func (s *CachedTaskStore) SoftDelete(ctx context.Context, id string, tombstonedAt time.Time) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached task store is not configured")
	}
	ownerID, err := s.ownerOf(ctx, id)
	if err != nil {
		return err
	}
	if err := s.base.SoftDelete(ctx, id, tombstonedAt); err != nil {
		return err
	}
	return s.invalidate(ctx, ownerID)
}

func (s *CachedTaskStore) Update(ctx context.Context, id string, text string) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached task store is not configured")
	}
	ownerID, err := s.ownerOf(ctx, id)
	if err != nil {
		return err
	}
	if err := s.base.Update(ctx, id, text); err != nil {
		return err
	}
	return s.invalidate(ctx, ownerID)
}

func (s *CachedTaskStore) ownerOf(ctx context.Context, id string) (string, error) {
	base, ok := s.base.(*TaskStore)
	if !ok || base == nil || base.taskRepo == nil {
		return "", nil
	}
	record, err := base.taskRepo.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return "", err
	}
	return record.OwnerID, nil
}

func (s *CachedTaskStore) invalidate(ctx context.Context, ownerID string) error {
	if strings.TrimSpace(ownerID) == "" {
		return nil
	}
	cacheKey, err := TaskListCacheKey(ownerID)
	if err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}

func cloneTasks(tasks []core.Task) []core.Task {
	if len(tasks) == 0 {
		return []core.Task{}
	}
	out := make([]core.Task, len(tasks))
	copy(out, tasks)
	return out
}

var _ core.TaskRepository = (*CachedTaskStore)(nil)
