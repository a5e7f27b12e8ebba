package webhook

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/botfleet/internal/models"
	"github.com/nikhilbhutani/botfleet/internal/queue"
	"github.com/nikhilbhutani/botfleet/internal/store/memory"
)

type recordingQueue struct {
	mu    sync.Mutex
	tasks []queue.WebhookDeliverPayload
}

func (q *recordingQueue) EnqueueWebhookDeliver(p queue.WebhookDeliverPayload) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, p)
	return nil
}

func addHook(t *testing.T, st *memory.Store, orgID uuid.UUID, url string, events ...string) *models.WebhookEndpoint {
	t.Helper()
	w := &models.WebhookEndpoint{OrgID: orgID, URL: url, Events: events, Secret: "whsec_test", Active: true}
	if err := st.CreateWebhook(context.Background(), w); err != nil {
		t.Fatalf("CreateWebhook: %v", err)
	}
	return w
}

func TestPublishThenDeliverSignsBody(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	org := st.AddOrg(uuid.New(), "acme")

	var (
		gotBody []byte
		gotSig  string
		gotEv   string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotSig = r.Header.Get(HeaderSignature)
		gotEv = r.Header.Get(HeaderEvent)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	hook := addHook(t, st, org.ID, srv.URL, EventScanCompleted)
	addHook(t, st, org.ID, srv.URL, EventPRCreated)

	q := &recordingQueue{}
	n, err := NewPublisher(st, q).Publish(ctx, org.ID, EventScanCompleted, map[string]any{"repo": "acme/api"})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if n != 1 || len(q.tasks) != 1 || q.tasks[0].WebhookID != hook.ID.String() {
		t.Fatalf("enqueued %d: %+v", n, q.tasks)
	}

	d := NewDeliverer(st, 5*time.Second)
	if err := d.Deliver(ctx, q.tasks[0], 1); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if gotEv != EventScanCompleted {
		t.Fatalf("event header = %q", gotEv)
	}
	if !Verify(gotBody, "whsec_test", gotSig) {
		t.Fatalf("receiver could not verify signature %q", gotSig)
	}

	deliveries := st.Deliveries()
	if len(deliveries) != 1 || deliveries[0].ResponseStatus != http.StatusNoContent || deliveries[0].DeliveredAt == nil {
		t.Fatalf("deliveries = %+v", deliveries)
	}
}

func TestDeliverFailureIsRecordedAndRetryable(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	org := st.AddOrg(uuid.New(), "acme")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	hook := addHook(t, st, org.ID, srv.URL, EventPRCreated)

	err := NewDeliverer(st, time.Second).Deliver(ctx, queue.WebhookDeliverPayload{
		WebhookID: hook.ID.String(), OrgID: org.ID.String(), Event: EventPRCreated, Payload: `{}`,
	}, 3)
	if !errors.Is(err, ErrDeliveryFailed) {
		t.Fatalf("err = %v", err)
	}
	d := st.Deliveries()
	if len(d) != 1 || d[0].Attempts != 3 || d[0].DeliveredAt != nil || d[0].ResponseStatus != http.StatusBadGateway {
		t.Fatalf("deliveries = %+v", d)
	}
}

func TestDeliverDropsForeignOrMissingEndpoint(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	org := st.AddOrg(uuid.New(), "acme")
	hook := addHook(t, st, org.ID, "https://unused.example.com", EventPRCreated)

	d := NewDeliverer(st, time.Second)
	for _, p := range []queue.WebhookDeliverPayload{
		{WebhookID: uuid.NewString(), OrgID: org.ID.String(), Event: EventPRCreated, Payload: `{}`},
		{WebhookID: hook.ID.String(), OrgID: uuid.NewString(), Event: EventPRCreated, Payload: `{}`},
	} {
		if err := d.Deliver(ctx, p, 1); err != nil {
			t.Fatalf("Deliver(%+v): %v", p, err)
		}
	}
	if len(st.Deliveries()) != 0 {
		t.Fatal("dropped deliveries were recorded")
	}
}

func TestLocalQueueDelivers(t *testing.T) {
	st := memory.New()
	org := st.AddOrg(uuid.New(), "acme")

	done := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		close(done)
	}))
	defer srv.Close()
	addHook(t, st, org.ID, srv.URL, EventBotFinding)

	q := NewLocalQueue(NewDeliverer(st, time.Second), time.Second)
	defer q.Close()

	if _, err := NewPublisher(st, q).Publish(context.Background(), org.ID, EventBotFinding, nil); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("local queue never delivered")
	}
}

func TestLocalQueueRejectsAfterClose(t *testing.T) {
	q := NewLocalQueue(NewDeliverer(memory.New(), time.Second), time.Second)
	q.Close()
	q.Close()

	err := q.EnqueueWebhookDeliver(queue.WebhookDeliverPayload{WebhookID: uuid.NewString(), Event: EventScanStarted})
	if !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("enqueue after close = %v, want ErrQueueClosed", err)
	}
}
