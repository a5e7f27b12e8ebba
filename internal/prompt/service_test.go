package prompt

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/botfleet/internal/models"
	"github.com/nikhilbhutani/botfleet/internal/store"
	"github.com/nikhilbhutani/botfleet/internal/store/memory"
)

func TestWriteForksGlobalDefault(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	org := st.AddOrg(uuid.New(), "acme")
	other := st.AddOrg(uuid.New(), "globex")

	global := &models.Prompt{AgentName: "reviewer", PromptText: "default"}
	if err := st.CreatePrompt(ctx, global); err != nil {
		t.Fatalf("CreatePrompt: %v", err)
	}

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	p, v, err := Write(ctx, st, WriteRequest{OrgID: org.ID, AgentName: "reviewer", Text: "custom", At: now})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if p.IsGlobal() || p.ID == global.ID {
		t.Fatal("write landed on the global prompt")
	}
	if v.VersionNumber != 1 {
		t.Fatalf("version = %d, want 1", v.VersionNumber)
	}

	got, err := Get(ctx, st, other.ID, "reviewer")
	if err != nil {
		t.Fatalf("Get other: %v", err)
	}
	if got.PromptText != "default" {
		t.Fatalf("other org sees %q", got.PromptText)
	}
	got, _ = Get(ctx, st, org.ID, "reviewer")
	if got.PromptText != "custom" {
		t.Fatalf("org sees %q", got.PromptText)
	}
}

func TestWriteVersionsAreContiguous(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	org := st.AddOrg(uuid.New(), "acme")

	var promptID uuid.UUID
	for i, text := range []string{"one", "two", "three"} {
		p, v, err := Write(ctx, st, WriteRequest{OrgID: org.ID, AgentName: "lint-bot", Text: text})
		if err != nil {
			t.Fatalf("Write %d: %v", i, err)
		}
		if v.VersionNumber != i+1 {
			t.Fatalf("write %d got version %d", i, v.VersionNumber)
		}
		promptID = p.ID
	}

	versions, err := History(ctx, st, promptID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(versions) != 3 || versions[0].VersionNumber != 3 || versions[0].PromptText != "three" {
		t.Fatalf("versions = %+v", versions)
	}
}

func TestGetMissingPrompt(t *testing.T) {
	st := memory.New()
	org := st.AddOrg(uuid.New(), "acme")
	_, err := Get(context.Background(), st, org.ID, "nobody")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
