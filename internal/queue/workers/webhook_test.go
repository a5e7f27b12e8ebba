package workers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/botfleet/internal/models"
	"github.com/nikhilbhutani/botfleet/internal/queue"
	"github.com/nikhilbhutani/botfleet/internal/store/memory"
	"github.com/nikhilbhutani/botfleet/internal/webhook"
)

func TestMalformedPayloadSkipsRetry(t *testing.T) {
	w := NewWebhookWorker(webhook.NewDeliverer(memory.New(), time.Second))
	err := w.ProcessTask(context.Background(), asynq.NewTask(queue.TypeWebhookDeliver, []byte("{")))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("err = %v, want SkipRetry", err)
	}
}

func TestProcessTaskDelivers(t *testing.T) {
	var gotSig string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get(webhook.HeaderSignature)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	st := memory.New()
	org := uuid.New()
	hook := &models.WebhookEndpoint{OrgID: org, URL: srv.URL, Events: []string{"scan.completed"}, Secret: "whsec_test", Active: true}
	if err := st.CreateWebhook(context.Background(), hook); err != nil {
		t.Fatalf("CreateWebhook: %v", err)
	}

	data, _ := json.Marshal(queue.WebhookDeliverPayload{
		WebhookID: hook.ID.String(),
		OrgID:     org.String(),
		Event:     "scan.completed",
		Payload:   `{"scanId":"s1"}`,
	})
	w := NewWebhookWorker(webhook.NewDeliverer(st, time.Second))
	if err := w.ProcessTask(context.Background(), asynq.NewTask(queue.TypeWebhookDeliver, data)); err != nil {
		t.Fatalf("ProcessTask: %v", err)
	}
	if want := webhook.Sign([]byte(`{"scanId":"s1"}`), "whsec_test"); gotSig != want {
		t.Fatalf("signature = %q, want %q", gotSig, want)
	}
	if d := st.Deliveries(); len(d) != 1 || d[0].Attempts != 1 || d[0].DeliveredAt == nil {
		t.Fatalf("deliveries = %+v", d)
	}
}
