package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/todotomorrow/go-client/core"
)

var (
	_ gocmd.Querier[GetSessionMessage, core.Session] = (*GetSessionQuery)(nil)
	_ gocmd.Querier[ListTasksMessage, []core.Task]   = (*ListTasksQuery)(nil)
)
