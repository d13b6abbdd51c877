package sqlstore_test

import (
	"context"
	"fmt"
	"io/fs"
	"testing"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/todotomorrow/go-client/core"
	"github.com/todotomorrow/go-client/migrations"
	sqlstore "github.com/todotomorrow/go-client/store/sql"
)

func newSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()

	client, err := sqlstore.OpenMemory(fmt.Sprintf("todoclient-test-%d", time.Now().UnixNano()))
	if err != nil {
		t.Fatalf("open sqlite client: %v", err)
	}

	ctx := context.Background()
	err = migrations.Register(ctx, func(_ context.Context, _ string, _ string, fsys fs.FS) error {
		client.RegisterSQLMigrations(fsys)
		return nil
	}, migrations.DialectSQLite)
	if err != nil {
		_ = client.Close()
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		t.Fatalf("migrate: %v", err)
	}

	return client, func() {
		_ = client.Close()
	}
}

func newRepositoryFactory(t *testing.T) (*sqlstore.RepositoryFactory, func()) {
	t.Helper()

	client, cleanup := newSQLiteClient(t)
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		cleanup()
		t.Fatalf("new repository factory: %v", err)
	}
	return factory, cleanup
}

func TestMigrationsCreateSchema(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	ctx := context.Background()
	for _, table := range []string{"todo_owners", "todo_tasks", "todo_sessions"} {
		var name string
		err := client.DB().NewRaw(
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table,
		).Scan(ctx, &name)
		if err != nil {
			t.Fatalf("lookup table %s: %v", table, err)
		}
		if name != table {
			t.Fatalf("expected table %s, got %q", table, name)
		}
	}
}

func TestTaskStoreResolveOwner(t *testing.T) {
	factory, cleanup := newRepositoryFactory(t)
	defer cleanup()

	ctx := context.Background()
	store := factory.TaskStore()

	first, err := store.ResolveOwner(ctx, core.OwnerIdentity{UserID: "user-1", Address: "a@example.com"})
	if err != nil {
		t.Fatalf("resolve owner: %v", err)
	}
	if first == "" {
		t.Fatal("expected a non-empty owner id")
	}

	second, err := store.ResolveOwner(ctx, core.OwnerIdentity{UserID: "user-1", Address: "a@example.com"})
	if err != nil {
		t.Fatalf("resolve owner again: %v", err)
	}
	if second != first {
		t.Fatalf("resolve must be idempotent: %q vs %q", first, second)
	}

	renamed, err := store.ResolveOwner(ctx, core.OwnerIdentity{UserID: "user-1", Address: "b@example.com"})
	if err != nil {
		t.Fatalf("resolve owner with new address: %v", err)
	}
	if renamed != first {
		t.Fatalf("address change must keep the owner id: %q vs %q", first, renamed)
	}

	other, err := store.ResolveOwner(ctx, core.OwnerIdentity{UserID: "user-2", Address: "c@example.com"})
	if err != nil {
		t.Fatalf("resolve second owner: %v", err)
	}
	if other == first {
		t.Fatal("distinct users must map to distinct owners")
	}

	if _, err := store.ResolveOwner(ctx, core.OwnerIdentity{}); err == nil {
		t.Fatal("blank identity must be rejected")
	}
}

func TestTaskStoreLifecycle(t *testing.T) {
	factory, cleanup := newRepositoryFactory(t)
	defer cleanup()

	ctx := context.Background()
	store := factory.TaskStore()

	ownerID, err := store.ResolveOwner(ctx, core.OwnerIdentity{UserID: "user-1", Address: "a@example.com"})
	if err != nil {
		t.Fatalf("resolve owner: %v", err)
	}

	var ids []string
	for _, text := range []string{"first", "second", "third"} {
		task, createErr := store.Create(ctx, ownerID, text)
		if createErr != nil {
			t.Fatalf("create %q: %v", text, createErr)
		}
		if task.Status != core.TaskStatusOpen {
			t.Fatalf("new task status = %q", task.Status)
		}
		ids = append(ids, task.ID)
		time.Sleep(2 * time.Millisecond)
	}

	tasks, err := store.List(ctx, ownerID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(tasks))
	}
	if tasks[0].Text != "third" || tasks[2].Text != "first" {
		t.Fatalf("expected newest-first ordering, got %+v", tasks)
	}

	if err := store.Update(ctx, ids[1], "second (edited)"); err != nil {
		t.Fatalf("update: %v", err)
	}
	tasks, err = store.List(ctx, ownerID)
	if err != nil {
		t.Fatalf("list after update: %v", err)
	}
	if tasks[1].Text != "second (edited)" {
		t.Fatalf("update not persisted: %+v", tasks[1])
	}

	if err := store.SoftDelete(ctx, ids[0], time.Now().UTC()); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	tasks, err = store.List(ctx, ownerID)
	if err != nil {
		t.Fatalf("list after delete: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("tombstoned task must be filtered, got %d tasks", len(tasks))
	}
	for _, task := range tasks {
		if task.ID == ids[0] {
			t.Fatalf("deleted task %s still listed", ids[0])
		}
	}

	// Re-deleting a tombstoned task is a no-op.
	if err := store.SoftDelete(ctx, ids[0], time.Now().UTC()); err != nil {
		t.Fatalf("repeat soft delete: %v", err)
	}
}

func TestTaskStoreListScopesByOwner(t *testing.T) {
	factory, cleanup := newRepositoryFactory(t)
	defer cleanup()

	ctx := context.Background()
	store := factory.TaskStore()

	ownerA, err := store.ResolveOwner(ctx, core.OwnerIdentity{UserID: "user-a", Address: "a@example.com"})
	if err != nil {
		t.Fatalf("resolve owner a: %v", err)
	}
	ownerB, err := store.ResolveOwner(ctx, core.OwnerIdentity{UserID: "user-b", Address: "b@example.com"})
	if err != nil {
		t.Fatalf("resolve owner b: %v", err)
	}

	if _, err := store.Create(ctx, ownerA, "mine"); err != nil {
		t.Fatalf("create for a: %v", err)
	}
	if _, err := store.Create(ctx, ownerB, "theirs"); err != nil {
		t.Fatalf("create for b: %v", err)
	}

	tasks, err := store.List(ctx, ownerA)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Text != "mine" {
		t.Fatalf("list leaked across owners: %+v", tasks)
	}
}

func TestSessionVaultRoundTrip(t *testing.T) {
	factory, cleanup := newRepositoryFactory(t)
	defer cleanup()

	ctx := context.Background()
	vault := factory.SessionVault()

	if _, found, err := vault.Load(ctx); err != nil || found {
		t.Fatalf("expected empty vault, found=%v err=%v", found, err)
	}

	expires := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	session := core.Session{
		UserID:       "user-1",
		Address:      "a@example.com",
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresAt:    expires,
	}
	if err := vault.Save(ctx, session); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, found, err := vault.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !found {
		t.Fatal("expected a persisted session")
	}
	if loaded.UserID != "user-1" || loaded.AccessToken != "access-1" || loaded.RefreshToken != "refresh-1" {
		t.Fatalf("unexpected session %+v", loaded)
	}
	if !loaded.ExpiresAt.Equal(expires) {
		t.Fatalf("expires at %v, want %v", loaded.ExpiresAt, expires)
	}

	rotated := session
	rotated.AccessToken = "access-2"
	rotated.RefreshToken = "refresh-2"
	if err := vault.Save(ctx, rotated); err != nil {
		t.Fatalf("save rotated: %v", err)
	}
	loaded, found, err = vault.Load(ctx)
	if err != nil || !found {
		t.Fatalf("load rotated: found=%v err=%v", found, err)
	}
	if loaded.AccessToken != "access-2" {
		t.Fatalf("rotation not persisted, got %+v", loaded)
	}

	if err := vault.Save(ctx, core.Session{}); err == nil {
		t.Fatal("empty session must be rejected")
	}

	if err := vault.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, found, err := vault.Load(ctx); err != nil || found {
		t.Fatalf("expected cleared vault, found=%v err=%v", found, err)
	}
}
