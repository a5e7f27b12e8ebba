package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientCallSendsTokenAndArgs(t *testing.T) {
	var gotAuth, gotPath string
	var gotArgs map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotArgs)
		json.NewEncoder(w).Encode(map[string]any{"success": true, "toStatus": "testing"})
	}))
	defer srv.Close()

	c := &client{baseURL: srv.URL, token: "tok"}
	res, err := c.call(context.Background(), "promoteBot", json.RawMessage(`{"botName":"lint-bot"}`))
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if gotAuth != "Bearer tok" || gotPath != "/api/v1/tools/promoteBot" || gotArgs["botName"] != "lint-bot" {
		t.Fatalf("request = %q %q %v", gotAuth, gotPath, gotArgs)
	}
	if res["toStatus"] != "testing" {
		t.Fatalf("result = %v", res)
	}
}

func TestClientSurfacesToolErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"error": `Bot "lint-bot" is already active.`, "kind": "conflict"})
	}))
	defer srv.Close()

	_, err := (&client{baseURL: srv.URL}).call(context.Background(), "promoteBot", json.RawMessage(`{}`))
	var ae *apiError
	if !errors.As(err, &ae) || ae.Status != http.StatusConflict || ae.Message != `Bot "lint-bot" is already active.` {
		t.Fatalf("err = %v", err)
	}
}

func TestArgSummaryMarksOptional(t *testing.T) {
	var d toolDescriptor
	raw := `{"name":"toggleBot","parameters":{"properties":{"botName":{},"enabled":{},"note":{}},"required":["botName","enabled"]}}`
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		t.Fatal(err)
	}
	if got := d.argSummary(); got != "botName, enabled, note?" {
		t.Fatalf("argSummary = %q", got)
	}
}
