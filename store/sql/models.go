package sqlstore

import (
	"time"

	"github.com/todotomorrow/go-client/core"
	"github.com/uptrace/bun"
)

type ownerRecord struct {
	bun.BaseModel `bun:"table:todo_owners,alias:tow"`

	ID        string    `bun:"id,pk"`
	UserID    string    `bun:"user_id,notnull"`
	Address   string    `bun:"address,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type taskRecord struct {
	bun.BaseModel `bun:"table:todo_tasks,alias:tt"`

	ID        string     `bun:"id,pk"`
	OwnerID   string     `bun:"owner_id,notnull"`
	Text      string     `bun:"text,notnull"`
	Status    string     `bun:"status,notnull"`
	CreatedAt time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
	DeletedAt *time.Time `bun:"deleted_at,soft_delete"`
}

func (r *taskRecord) toDomain() core.Task {
	if r == nil {
		return core.Task{}
	}
	return core.Task{
		ID:        r.ID,
		Text:      r.Text,
		Status:    core.TaskStatus(r.Status),
		CreatedAt: r.CreatedAt,
		OwnerID:   r.OwnerID,
	}
}

type sessionRecord struct {
	bun.BaseModel `bun:"table:todo_sessions,alias:tse"`

	ID           string     `bun:"id,pk"`
	UserID       string     `bun:"user_id,notnull"`
	Address      string     `bun:"address,notnull"`
	AccessToken  string     `bun:"access_token,notnull"`
	RefreshToken string     `bun:"refresh_token,notnull"`
	ExpiresAt    *time.Time `bun:"expires_at,nullzero"`
	CreatedAt    time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt    time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func (r *sessionRecord) toDomain() core.Session {
	if r == nil {
		return core.Session{}
	}
	session := core.Session{
		UserID:       r.UserID,
		Address:      r.Address,
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
	}
	if r.ExpiresAt != nil {
		session.ExpiresAt = r.ExpiresAt.UTC()
	}
	return session
}
