package query

import (
	"context"
	"fmt"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/todotomorrow/go-client/core"
)

type stubSessionReader struct {
	session core.Session
	err     error
}

func (s stubSessionReader) CurrentSession(context.Context) (core.Session, error) {
	return s.session, s.err
}

type stubTaskReader struct {
	tasks []core.Task
	err   error
	owner string
}

func (s *stubTaskReader) List(_ context.Context, ownerID string) ([]core.Task, error) {
	s.owner = ownerID
	return s.tasks, s.err
}

func TestGetSessionQuery_DelegatesToReader(t *testing.T) {
	expected := core.Session{UserID: "user-1", AccessToken: "access-1"}
	q := NewGetSessionQuery(stubSessionReader{session: expected})

	got, err := q.Query(context.Background(), GetSessionMessage{})
	if err != nil {
		t.Fatalf("query session: %v", err)
	}
	if got.UserID != expected.UserID || got.AccessToken != expected.AccessToken {
		t.Fatalf("unexpected session %#v", got)
	}
}

func TestGetSessionQuery_PropagatesReaderError(t *testing.T) {
	wantErr := fmt.Errorf("session missing")
	q := NewGetSessionQuery(stubSessionReader{err: wantErr})

	if _, err := q.Query(context.Background(), GetSessionMessage{}); err != wantErr {
		t.Fatalf("expected reader error, got %v", err)
	}
}

func TestGetSessionQuery_NilReaderReturnsRichError(t *testing.T) {
	var q *GetSessionQuery
	_, err := q.Query(context.Background(), GetSessionMessage{})
	if err == nil {
		t.Fatalf("expected dependency error")
	}
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryInternal {
		t.Fatalf("expected internal category, got %q", rich.Category)
	}
}

func TestListTasksQuery_DelegatesToReader(t *testing.T) {
	reader := &stubTaskReader{tasks: []core.Task{{ID: "srv-1", Text: "first"}}}
	q := NewListTasksQuery(reader)

	tasks, err := q.Query(context.Background(), ListTasksMessage{OwnerID: "owner-1"})
	if err != nil {
		t.Fatalf("query tasks: %v", err)
	}
	if reader.owner != "owner-1" {
		t.Fatalf("expected owner-1 to reach the reader, got %q", reader.owner)
	}
	if len(tasks) != 1 || tasks[0].ID != "srv-1" {
		t.Fatalf("unexpected tasks %#v", tasks)
	}
}

func TestListTasksMessage_ValidateRequiresOwner(t *testing.T) {
	err := (ListTasksMessage{}).Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.TextCode != core.ClientErrorBadInput {
		t.Fatalf("expected %q text code, got %q", core.ClientErrorBadInput, rich.TextCode)
	}

	if err := (ListTasksMessage{OwnerID: "owner-1"}).Validate(); err != nil {
		t.Fatalf("valid message rejected: %v", err)
	}
}
