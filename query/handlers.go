package query

import (
	"context"

	"github.com/todotomorrow/go-client/core"
)

// SessionReader reads the current session, revalidating against the remote
// service when needed.
type SessionReader interface {
	CurrentSession(ctx context.Context) (core.Session, error)
}

// TaskReader reads the persisted task list for an owner.
type TaskReader interface {
	List(ctx context.Context, ownerID string) ([]core.Task, error)
}

type GetSessionQuery struct {
	reader SessionReader
}

func NewGetSessionQuery(reader SessionReader) *GetSessionQuery {
	return &GetSessionQuery{reader: reader}
}

func (q *GetSessionQuery) Query(ctx context.Context, _ GetSessionMessage) (core.Session, error) {
	if q == nil || q.reader == nil {
		return core.Session{}, queryDependencyError("query: session reader is required")
	}
	return q.reader.CurrentSession(ctx)
}

type ListTasksQuery struct {
	reader TaskReader
}

func NewListTasksQuery(reader TaskReader) *ListTasksQuery {
	return &ListTasksQuery{reader: reader}
}

func (q *ListTasksQuery) Query(ctx context.Context, msg ListTasksMessage) ([]core.Task, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: task reader is required")
	}
	return q.reader.List(ctx, msg.OwnerID)
}
