package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/quotawatch/quotawatch/internal/domain/model"
)

// setupTestDB creates a named shared in-memory SQLite database for
// testing. Writer and reader share the same in-memory database via
// cache=shared; a unique name derived from t.Name() isolates parallel
// tests.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	// Percent-encode the test name so it's a safe SQLite URI filename
	// component and cannot be misread as query parameters in the DSN.
	safeName := url.PathEscape(t.Name())
	// WAL mode does not apply to in-memory databases; omit the pragma.
	dsn := fmt.Sprintf(
		"file:%s?mode=memory&cache=shared&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)",
		safeName,
	)

	writer, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("create test db writer: %v", err)
	}
	writer.SetMaxOpenConns(1)
	if err := writer.PingContext(context.Background()); err != nil {
		_ = writer.Close()
		t.Fatalf("ping test db writer: %v", err)
	}

	reader, err := sql.Open("sqlite", dsn)
	if err != nil {
		_ = writer.Close()
		t.Fatalf("create test db reader: %v", err)
	}
	reader.SetMaxOpenConns(4)
	if err := reader.PingContext(context.Background()); err != nil {
		_ = reader.Close()
		_ = writer.Close()
		t.Fatalf("ping test db reader: %v", err)
	}

	db := &DB{Writer: writer, Reader: reader, path: dsn}

	if err := RunMigrations(db.Writer); err != nil {
		_ = db.Close()
		t.Fatalf("run migrations: %v", err)
	}

	t.Cleanup(func() { _ = db.Close() })

	return db
}

// createTestCredential inserts a minimal credential against the seeded
// openrouter provider and returns it.
func createTestCredential(t *testing.T, db *DB, name string) *model.Credential {
	t.Helper()

	providers := NewProviderRepo(db)
	p, err := providers.GetBySlug(context.Background(), model.SlugOpenRouter)
	if err != nil || p == nil {
		t.Fatalf("seeded openrouter provider missing: %v", err)
	}

	cred := &model.Credential{
		ProviderID:      p.ID,
		Name:            name,
		EncryptedSecret: "ciphertext-" + name,
		Metadata:        map[string]string{},
		Active:          true,
	}
	if err := NewCredentialRepo(db).Create(context.Background(), cred); err != nil {
		t.Fatalf("create test credential: %v", err)
	}
	return cred
}

// appendTestObservation appends a successful observation at the given time.
func appendTestObservation(t *testing.T, db *DB, credID int64, balance float64, at time.Time) *model.BalanceObservation {
	t.Helper()

	obs := &model.BalanceObservation{
		CredentialID: credID,
		Balance:      balance,
		ObservedAt:   at,
	}
	if err := NewHistoryRepo(db).Append(context.Background(), obs); err != nil {
		t.Fatalf("append test observation: %v", err)
	}
	return obs
}
