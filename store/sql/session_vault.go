package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"

	"github.com/todotomorrow/go-client/core"
)

// activeSessionRecordID pins the vault to a single row: the device holds one
// session at a time and every save overwrites it.
const activeSessionRecordID = "00000000-0000-0000-0000-000000000001"

// SessionVault persists the active session in the local database so it
// survives process restarts.
type SessionVault struct {
	db *bun.DB
}

func (v *SessionVault) getActive(ctx context.Context) (*sessionRecord, error) {
	record := &sessionRecord{}
	err := v.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", activeSessionRecordID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

func (v *SessionVault) Save(ctx context.Context, session core.Session) error {
	if v == nil || v.db == nil {
		return fmt.Errorf("sqlstore: session vault is not configured")
	}
	if session.IsZero() {
		return fmt.Errorf("sqlstore: refusing to persist an empty session")
	}

	now := time.Now().UTC()
	record := &sessionRecord{
		ID:           activeSessionRecordID,
		UserID:       strings.TrimSpace(session.UserID),
		Address:      strings.TrimSpace(session.Address),
		AccessToken:  session.AccessToken,
		RefreshToken: session.RefreshToken,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if !session.ExpiresAt.IsZero() {
		expiresAt := session.ExpiresAt.UTC()
		record.ExpiresAt = &expiresAt
	}

	return v.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing := &sessionRecord{}
		err := tx.NewSelect().
			Model(existing).
			Where("?TableAlias.id = ?", activeSessionRecordID).
			Scan(ctx)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		if err == nil {
			record.CreatedAt = existing.CreatedAt
			_, updateErr := tx.NewUpdate().
				Model(record).
				Where("id = ?", activeSessionRecordID).
				Exec(ctx)
			return updateErr
		}
		_, insertErr := tx.NewInsert().Model(record).Exec(ctx)
		return insertErr
	})
}

func (v *SessionVault) Load(ctx context.Context) (core.Session, bool, error) {
	if v == nil || v.db == nil {
		return core.Session{}, false, fmt.Errorf("sqlstore: session vault is not configured")
	}
	record, err := v.getActive(ctx)
	if err != nil {
		return core.Session{}, false, err
	}
	if record == nil {
		return core.Session{}, false, nil
	}
	session := record.toDomain()
	if session.IsZero() {
		return core.Session{}, false, nil
	}
	return session, true, nil
}

func (v *SessionVault) Clear(ctx context.Context) error {
	if v == nil || v.db == nil {
		return fmt.Errorf("sqlstore: session vault is not configured")
	}
	_, err := v.db.NewDelete().
		Model((*sessionRecord)(nil)).
		Where("id = ?", activeSessionRecordID).
		Exec(ctx)
	return err
}

var _ core.SessionVault = (*SessionVault)(nil)
