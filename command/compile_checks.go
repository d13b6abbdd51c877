package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[SendMagicLinkMessage]  = (*SendMagicLinkCommand)(nil)
	_ gocmd.Commander[HandleDeepLinkMessage] = (*HandleDeepLinkCommand)(nil)
	_ gocmd.Commander[SignOutMessage]        = (*SignOutCommand)(nil)
	_ gocmd.Commander[LoadTasksMessage]      = (*LoadTasksCommand)(nil)
	_ gocmd.Commander[AddTaskMessage]        = (*AddTaskCommand)(nil)
	_ gocmd.Commander[DeleteTaskMessage]     = (*DeleteTaskCommand)(nil)
	_ gocmd.Commander[UpdateTaskMessage]     = (*UpdateTaskCommand)(nil)
)
