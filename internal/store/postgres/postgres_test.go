package postgres

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/botfleet/internal/config"
	"github.com/nikhilbhutani/botfleet/internal/database"
	"github.com/nikhilbhutani/botfleet/internal/models"
	"github.com/nikhilbhutani/botfleet/internal/store"
)

// newTestStore connects to TEST_DATABASE_URL and seeds a fresh
// organization. Tests are skipped when the variable is unset.
func newTestStore(t *testing.T) (*Store, uuid.UUID) {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := database.NewPool(ctx, config.DatabaseConfig{URL: url, MaxConns: 4, MinConns: 1})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	if err := database.RunMigrations(ctx, pool, os.DirFS("../../../migrations")); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	org := uuid.New()
	if _, err := pool.Exec(ctx, "INSERT INTO organizations (id, name, slug) VALUES ($1, $2, $3)", org, "test", org.String()); err != nil {
		t.Fatalf("seed org: %v", err)
	}
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), "DELETE FROM organizations WHERE id = $1", org)
	})
	return New(pool), org
}

func TestBotRoundTrip(t *testing.T) {
	s, org := newTestStore(t)
	ctx := context.Background()

	b := &models.Bot{OrgID: org, Name: "lint-bot", Category: "lint", FileExtensions: []string{".go"}, CreatedBy: uuid.New()}
	if err := s.CreateBot(ctx, b); err != nil {
		t.Fatalf("CreateBot: %v", err)
	}
	if err := s.CreateBot(ctx, &models.Bot{OrgID: org, Name: "lint-bot", Category: "lint", CreatedBy: uuid.New()}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("duplicate = %v", err)
	}

	got, err := s.GetBot(ctx, org, "lint-bot")
	if err != nil {
		t.Fatalf("GetBot: %v", err)
	}
	if got.Enabled || len(got.FileExtensions) != 1 || got.FileExtensions[0] != ".go" {
		t.Fatalf("bot = %+v", got)
	}
	if _, err := s.GetBot(ctx, uuid.New(), "lint-bot"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("cross-org GetBot = %v", err)
	}
}

func TestInTxRollsBack(t *testing.T) {
	s, org := newTestStore(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.InTx(ctx, func(tx store.Tx) error {
		if err := tx.AppendActivity(ctx, &models.ActivityEvent{OrgID: org, EventType: "bot.created", Metadata: map[string]any{}}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("InTx = %v", err)
	}
	events, err := s.ListActivity(ctx, store.ActivityQuery{OrgID: org})
	if err != nil || len(events) != 0 {
		t.Fatalf("events = %v, %v", events, err)
	}
}
