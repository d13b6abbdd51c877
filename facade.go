package todoclient

import (
	"github.com/todotomorrow/go-client/command"
	"github.com/todotomorrow/go-client/core"
	"github.com/todotomorrow/go-client/query"
)

// Commands bundles the write-side handlers bound to a client.
type Commands struct {
	SendMagicLink  *command.SendMagicLinkCommand
	HandleDeepLink *command.HandleDeepLinkCommand
	SignOut        *command.SignOutCommand
	LoadTasks      *command.LoadTasksCommand
	AddTask        *command.AddTaskCommand
	DeleteTask     *command.DeleteTaskCommand
	UpdateTask     *command.UpdateTaskCommand
}

// Queries bundles the read-side handlers bound to a client.
type Queries struct {
	GetSession *query.GetSessionQuery
	ListTasks  *query.ListTasksQuery
}

// Facade pairs a wired client with ready-to-register command and query
// handlers, for hosts that dispatch through a command bus instead of calling
// the client directly.
type Facade struct {
	client   *Client
	commands Commands
	queries  Queries
}

// NewFacade wires a client and binds the handler set to it.
func NewFacade(cfg core.Config, opts ...Option) (*Facade, error) {
	client, err := New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	return FacadeFor(client), nil
}

// FacadeFor binds handlers to an existing client.
func FacadeFor(client *Client) *Facade {
	return &Facade{
		client: client,
		commands: Commands{
			SendMagicLink:  command.NewSendMagicLinkCommand(client),
			HandleDeepLink: command.NewHandleDeepLinkCommand(client),
			SignOut:        command.NewSignOutCommand(client),
			LoadTasks:      command.NewLoadTasksCommand(client),
			AddTask:        command.NewAddTaskCommand(client),
			DeleteTask:     command.NewDeleteTaskCommand(client),
			UpdateTask:     command.NewUpdateTaskCommand(client),
		},
		queries: Queries{
			GetSession: query.NewGetSessionQuery(client),
			ListTasks:  query.NewListTasksQuery(client.TaskRepository()),
		},
	}
}

func (f *Facade) Commands() Commands {
	return f.commands
}

func (f *Facade) Queries() Queries {
	return f.queries
}

func (f *Facade) Client() *Client {
	return f.client
}
