package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/todotomorrow/go-client/core"
)

// AuthService is the slice of the client facade the auth commands mutate
// through.
type AuthService interface {
	SendMagicLink(ctx context.Context, address string) error
	HandleDeepLink(ctx context.Context, link core.RawDeepLink) (core.Session, error)
	SignOut(ctx context.Context) error
}

// TaskService is the slice of the client facade the task commands mutate
// through.
type TaskService interface {
	LoadTasks(ctx context.Context) ([]core.Task, error)
	AddTask(ctx context.Context, text string) (string, error)
	DeleteTask(ctx context.Context, id string) error
	UpdateTask(ctx context.Context, id string, text string) error
}

type SendMagicLinkCommand struct {
	service AuthService
}

func NewSendMagicLinkCommand(service AuthService) *SendMagicLinkCommand {
	return &SendMagicLinkCommand{service: service}
}

func (c *SendMagicLinkCommand) Execute(ctx context.Context, msg SendMagicLinkMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: auth service is required")
	}
	return c.service.SendMagicLink(ctx, msg.Address)
}

type HandleDeepLinkCommand struct {
	service AuthService
}

func NewHandleDeepLinkCommand(service AuthService) *HandleDeepLinkCommand {
	return &HandleDeepLinkCommand{service: service}
}

func (c *HandleDeepLinkCommand) Execute(ctx context.Context, msg HandleDeepLinkMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: auth service is required")
	}
	session, err := c.service.HandleDeepLink(ctx, msg.Link)
	if err != nil {
		return err
	}
	storeResult(ctx, session)
	return nil
}

type SignOutCommand struct {
	service AuthService
}

func NewSignOutCommand(service AuthService) *SignOutCommand {
	return &SignOutCommand{service: service}
}

func (c *SignOutCommand) Execute(ctx context.Context, _ SignOutMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: auth service is required")
	}
	return c.service.SignOut(ctx)
}

type LoadTasksCommand struct {
	service TaskService
}

func NewLoadTasksCommand(service TaskService) *LoadTasksCommand {
	return &LoadTasksCommand{service: service}
}

func (c *LoadTasksCommand) Execute(ctx context.Context, _ LoadTasksMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: task service is required")
	}
	tasks, err := c.service.LoadTasks(ctx)
	if err != nil {
		return err
	}
	storeResult(ctx, tasks)
	return nil
}

type AddTaskCommand struct {
	service TaskService
}

func NewAddTaskCommand(service TaskService) *AddTaskCommand {
	return &AddTaskCommand{service: service}
}

func (c *AddTaskCommand) Execute(ctx context.Context, msg AddTaskMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: task service is required")
	}
	id, err := c.service.AddTask(ctx, msg.Text)
	if err != nil {
		return err
	}
	storeResult(ctx, id)
	return nil
}

type DeleteTaskCommand struct {
	service TaskService
}

func NewDeleteTaskCommand(service TaskService) *DeleteTaskCommand {
	return &DeleteTaskCommand{service: service}
}

func (c *DeleteTaskCommand) Execute(ctx context.Context, msg DeleteTaskMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: task service is required")
	}
	return c.service.DeleteTask(ctx, msg.ID)
}

type UpdateTaskCommand struct {
	service TaskService
}

func NewUpdateTaskCommand(service TaskService) *UpdateTaskCommand {
	return &UpdateTaskCommand{service: service}
}

func (c *UpdateTaskCommand) Execute(ctx context.Context, msg UpdateTaskMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: task service is required")
	}
	return c.service.UpdateTask(ctx, msg.ID, msg.Text)
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
