package command

import (
	"strings"

	"github.com/todotomorrow/go-client/core"
)

const (
	TypeSendMagicLink  = "todoclient.command.magic_link.send"
	TypeHandleDeepLink = "todoclient.command.deep_link.handle"
	TypeSignOut        = "todoclient.command.sign_out"
	TypeLoadTasks      = "todoclient.command.tasks.load"
	TypeAddTask        = "todoclient.command.tasks.add"
	TypeDeleteTask     = "todoclient.command.tasks.delete"
	TypeUpdateTask     = "todoclient.command.tasks.update"
)

type SendMagicLinkMessage struct {
	Address string
}

func (SendMagicLinkMessage) Type() string { return TypeSendMagicLink }

func (m SendMagicLinkMessage) Validate() error {
	address := strings.TrimSpace(m.Address)
	if address == "" {
		return commandValidationError("address", "email address is required")
	}
	if !strings.Contains(address, "@") {
		return commandValidationError("address", "email address is malformed")
	}
	return nil
}

type HandleDeepLinkMessage struct {
	Link core.RawDeepLink
}

func (HandleDeepLinkMessage) Type() string { return TypeHandleDeepLink }

func (m HandleDeepLinkMessage) Validate() error {
	if strings.TrimSpace(m.Link.URL) == "" {
		return commandValidationError("link.url", "deep link url is required")
	}
	return nil
}

type SignOutMessage struct{}

func (SignOutMessage) Type() string { return TypeSignOut }

func (SignOutMessage) Validate() error { return nil }

type LoadTasksMessage struct{}

func (LoadTasksMessage) Type() string { return TypeLoadTasks }

func (LoadTasksMessage) Validate() error { return nil }

type AddTaskMessage struct {
	Text string
}

func (AddTaskMessage) Type() string { return TypeAddTask }

func (m AddTaskMessage) Validate() error {
	if strings.TrimSpace(m.Text) == "" {
		return commandValidationError("text", "task text is required")
	}
	return nil
}

type DeleteTaskMessage struct {
	ID string
}

func (DeleteTaskMessage) Type() string { return TypeDeleteTask }

func (m DeleteTaskMessage) Validate() error {
	if strings.TrimSpace(m.ID) == "" {
		return commandValidationError("id", "task id is required")
	}
	return nil
}

type UpdateTaskMessage struct {
	ID   string
	Text string
}

func (UpdateTaskMessage) Type() string { return TypeUpdateTask }

func (m UpdateTaskMessage) Validate() error {
	if strings.TrimSpace(m.ID) == "" {
		return commandValidationError("id", "task id is required")
	}
	if strings.TrimSpace(m.Text) == "" {
		return commandValidationError("text", "task text is required")
	}
	return nil
}
