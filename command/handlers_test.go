package command

import (
	"context"
	"fmt"
	"testing"

	gocmd "github.com/goliatone/go-command"
	"github.com/todotomorrow/go-client/core"
)

func TestHandleDeepLinkCommand_ExecuteDelegatesAndStoresResult(t *testing.T) {
	expected := core.Session{UserID: "user-1", AccessToken: "access-1"}
	called := false

	svc := stubAuthService{
		handleDeepLinkFn: func(_ context.Context, link core.RawDeepLink) (core.Session, error) {
			called = true
			if link.URL != "todomorning://auth/callback?token=abc&type=magiclink" {
				t.Fatalf("unexpected link %q", link.URL)
			}
			return expected, nil
		},
	}

	cmd := NewHandleDeepLinkCommand(svc)
	collector := gocmd.NewResult[core.Session]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	err := cmd.Execute(ctx, HandleDeepLinkMessage{Link: core.RawDeepLink{
		URL:    "todomorning://auth/callback?token=abc&type=magiclink",
		Source: core.DeepLinkSourceLiveEvent,
	}})
	if err != nil {
		t.Fatalf("execute handle deep link: %v", err)
	}
	if !called {
		t.Fatalf("expected deep link delegation")
	}
	result, ok := collector.Load()
	if !ok {
		t.Fatalf("expected result to be stored")
	}
	if result.UserID != expected.UserID || result.AccessToken != expected.AccessToken {
		t.Fatalf("unexpected result: %#v", result)
	}
}

func TestAuthCommands_DelegateToService(t *testing.T) {
	t.Run("send magic link", func(t *testing.T) {
		called := false
		svc := stubAuthService{
			sendMagicLinkFn: func(_ context.Context, address string) error {
				called = true
				if address != "a@example.com" {
					t.Fatalf("unexpected address %q", address)
				}
				return nil
			},
		}
		cmd := NewSendMagicLinkCommand(svc)
		if err := cmd.Execute(context.Background(), SendMagicLinkMessage{Address: "a@example.com"}); err != nil {
			t.Fatalf("execute send magic link: %v", err)
		}
		if !called {
			t.Fatalf("expected send magic link invocation")
		}
	})

	t.Run("sign out", func(t *testing.T) {
		called := false
		svc := stubAuthService{
			signOutFn: func(context.Context) error {
				called = true
				return nil
			},
		}
		cmd := NewSignOutCommand(svc)
		if err := cmd.Execute(context.Background(), SignOutMessage{}); err != nil {
			t.Fatalf("execute sign out: %v", err)
		}
		if !called {
			t.Fatalf("expected sign out invocation")
		}
	})
}

func TestTaskCommands_DelegateToService(t *testing.T) {
	t.Run("load tasks", func(t *testing.T) {
		expected := []core.Task{{ID: "srv-1", Text: "first"}}
		svc := stubTaskService{
			loadTasksFn: func(context.Context) ([]core.Task, error) {
				return expected, nil
			},
		}
		cmd := NewLoadTasksCommand(svc)
		collector := gocmd.NewResult[[]core.Task]()
		ctx := gocmd.ContextWithResult(context.Background(), collector)
		if err := cmd.Execute(ctx, LoadTasksMessage{}); err != nil {
			t.Fatalf("execute load tasks: %v", err)
		}
		stored, ok := collector.Load()
		if !ok {
			t.Fatalf("expected task list result")
		}
		if len(stored) != 1 || stored[0].ID != "srv-1" {
			t.Fatalf("unexpected task list: %#v", stored)
		}
	})

	t.Run("add task", func(t *testing.T) {
		svc := stubTaskService{
			addTaskFn: func(_ context.Context, text string) (string, error) {
				if text != "Buy milk" {
					t.Fatalf("unexpected text %q", text)
				}
				return "srv-1", nil
			},
		}
		cmd := NewAddTaskCommand(svc)
		collector := gocmd.NewResult[string]()
		ctx := gocmd.ContextWithResult(context.Background(), collector)
		if err := cmd.Execute(ctx, AddTaskMessage{Text: "Buy milk"}); err != nil {
			t.Fatalf("execute add task: %v", err)
		}
		id, ok := collector.Load()
		if !ok {
			t.Fatalf("expected task id result")
		}
		if id != "srv-1" {
			t.Fatalf("unexpected task id %q", id)
		}
	})

	t.Run("delete task", func(t *testing.T) {
		called := false
		svc := stubTaskService{
			deleteTaskFn: func(_ context.Context, id string) error {
				called = true
				if id != "srv-1" {
					t.Fatalf("unexpected id %q", id)
				}
				return nil
			},
		}
		cmd := NewDeleteTaskCommand(svc)
		if err := cmd.Execute(context.Background(), DeleteTaskMessage{ID: "srv-1"}); err != nil {
			t.Fatalf("execute delete task: %v", err)
		}
		if !called {
			t.Fatalf("expected delete invocation")
		}
	})

	t.Run("update task", func(t *testing.T) {
		called := false
		svc := stubTaskService{
			updateTaskFn: func(_ context.Context, id string, text string) error {
				called = true
				if id != "srv-1" || text != "Buy oat milk" {
					t.Fatalf("unexpected update payload: %q %q", id, text)
				}
				return nil
			},
		}
		cmd := NewUpdateTaskCommand(svc)
		if err := cmd.Execute(context.Background(), UpdateTaskMessage{ID: "srv-1", Text: "Buy oat milk"}); err != nil {
			t.Fatalf("execute update task: %v", err)
		}
		if !called {
			t.Fatalf("expected update invocation")
		}
	})
}

func TestMessageValidation(t *testing.T) {
	tests := []struct {
		name    string
		msg     interface{ Validate() error }
		wantErr bool
	}{
		{
			name:    "send magic link valid",
			msg:     SendMagicLinkMessage{Address: "a@example.com"},
			wantErr: false,
		},
		{
			name:    "send magic link missing address",
			msg:     SendMagicLinkMessage{},
			wantErr: true,
		},
		{
			name:    "send magic link malformed address",
			msg:     SendMagicLinkMessage{Address: "not-an-email"},
			wantErr: true,
		},
		{
			name:    "handle deep link valid",
			msg:     HandleDeepLinkMessage{Link: core.RawDeepLink{URL: "todomorning://auth/callback?token=abc"}},
			wantErr: false,
		},
		{
			name:    "handle deep link missing url",
			msg:     HandleDeepLinkMessage{},
			wantErr: true,
		},
		{
			name:    "sign out",
			msg:     SignOutMessage{},
			wantErr: false,
		},
		{
			name:    "add task missing text",
			msg:     AddTaskMessage{Text: "   "},
			wantErr: true,
		},
		{
			name:    "delete task missing id",
			msg:     DeleteTaskMessage{},
			wantErr: true,
		},
		{
			name:    "update task missing text",
			msg:     UpdateTaskMessage{ID: "srv-1"},
			wantErr: true,
		},
		{
			name:    "update task valid",
			msg:     UpdateTaskMessage{ID: "srv-1", Text: "new"},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.msg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

type stubAuthService struct {
	sendMagicLinkFn  func(ctx context.Context, address string) error
	handleDeepLinkFn func(ctx context.Context, link core.RawDeepLink) (core.Session, error)
	signOutFn        func(ctx context.Context) error
}

func (s stubAuthService) SendMagicLink(ctx context.Context, address string) error {
	if s.sendMagicLinkFn == nil {
		return fmt.Errorf("send magic link not configured")
	}
	return s.sendMagicLinkFn(ctx, address)
}

func (s stubAuthService) HandleDeepLink(ctx context.Context, link core.RawDeepLink) (core.Session, error) {
	if s.handleDeepLinkFn == nil {
		return core.Session{}, fmt.Errorf("handle deep link not configured")
	}
	return s.handleDeepLinkFn(ctx, link)
}

func (s stubAuthService) SignOut(ctx context.Context) error {
	if s.signOutFn == nil {
		return fmt.Errorf("sign out not configured")
	}
	return s.signOutFn(ctx)
}

type stubTaskService struct {
	loadTasksFn  func(ctx context.Context) ([]core.Task, error)
	addTaskFn    func(ctx context.Context, text string) (string, error)
	deleteTaskFn func(ctx context.Context, id string) error
	updateTaskFn func(ctx context.Context, id string, text string) error
}

func (s stubTaskService) LoadTasks(ctx context.Context) ([]core.Task, error) {
	if s.loadTasksFn == nil {
		return nil, fmt.Errorf("load tasks not configured")
	}
	return s.loadTasksFn(ctx)
}

func (s stubTaskService) AddTask(ctx context.Context, text string) (string, error) {
	if s.addTaskFn == nil {
		return "", fmt.Errorf("add task not configured")
	}
	return s.addTaskFn(ctx, text)
}

func (s stubTaskService) DeleteTask(ctx context.Context, id string) error {
	if s.deleteTaskFn == nil {
		return fmt.Errorf("delete task not configured")
	}
	return s.deleteTaskFn(ctx, id)
}

func (s stubTaskService) UpdateTask(ctx context.Context, id string, text string) error {
	if s.updateTaskFn == nil {
		return fmt.Errorf("update task not configured")
	}
	return s.updateTaskFn(ctx, id, text)
}

var (
	_ AuthService = stubAuthService{}
	_ TaskService = stubTaskService{}
)
