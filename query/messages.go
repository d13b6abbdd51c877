package query

import "strings"

const (
	TypeGetSession = "todoclient.query.session.get"
	TypeListTasks  = "todoclient.query.tasks.list"
)

type GetSessionMessage struct{}

func (GetSessionMessage) Type() string { return TypeGetSession }

func (GetSessionMessage) Validate() error { return nil }

type ListTasksMessage struct {
	OwnerID string
}

func (ListTasksMessage) Type() string { return TypeListTasks }

func (m ListTasksMessage) Validate() error {
	if strings.TrimSpace(m.OwnerID) == "" {
		return queryValidationError("owner_id", "owner id is required")
	}
	return nil
}
