package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestOneSignalClient_Send(t *testing.T) {
	var got map[string]any
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"id":"n-1"}`))
	}))
	defer srv.Close()

	client := NewOneSignalClient(srv.URL, "app-1", "key-1", quietLogger())
	after := time.Date(2024, 6, 11, 9, 0, 0, 0, time.UTC)
	err := client.Send(context.Background(), PushMessage{
		Tags:         EmailTags([]string{"a@example.se", "b@example.se"}),
		Title:        "DigitalTolk",
		Text:         "Ny bokning",
		Data:         map[string]any{"job_id": "job-1"},
		IOSSound:     "normal_booking.mp3",
		AndroidSound: "normal_booking",
		SendAfter:    &after,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if auth != "Basic key-1" {
		t.Fatalf("unexpected auth header: %q", auth)
	}
	if got["app_id"] != "app-1" {
		t.Fatalf("unexpected app_id: %v", got["app_id"])
	}
	if got["send_after"] != "2024-06-11 09:00:00 UTC" {
		t.Fatalf("unexpected send_after: %v", got["send_after"])
	}

	// Two email predicates joined by one OR operator object.
	tags, ok := got["tags"].([]any)
	if !ok || len(tags) != 3 {
		t.Fatalf("unexpected tags: %v", got["tags"])
	}
	op, ok := tags[1].(map[string]any)
	if !ok || op["operator"] != "OR" {
		t.Fatalf("expected OR separator, got %v", tags[1])
	}

	contents, ok := got["contents"].(map[string]any)
	if !ok || contents["en"] != "Ny bokning" {
		t.Fatalf("unexpected contents: %v", got["contents"])
	}
	if got["ios_badgeType"] != "Increase" {
		t.Fatalf("unexpected badge type: %v", got["ios_badgeType"])
	}
}

func TestOneSignalClient_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"errors":["bad app id"]}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	client := NewOneSignalClient(srv.URL, "app-1", "key-1", quietLogger())
	if err := client.Send(context.Background(), PushMessage{Text: "x"}); err == nil {
		t.Fatal("expected error for 400 response")
	}
}

func TestSMSGateway_Send(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sms-key" {
			t.Errorf("unexpected auth: %q", r.Header.Get("Authorization"))
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		w.Write([]byte(`{"status":"queued"}`))
	}))
	defer srv.Close()

	gw := NewSMSGateway(srv.URL, "sms-key")
	status, err := gw.Send(context.Background(), "+46700000000", "+46701234567", "Ny platstolkning")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != "queued" {
		t.Fatalf("unexpected status: %q", status)
	}
	if got["from"] != "+46700000000" || got["to"] != "+46701234567" || got["message"] != "Ny platstolkning" {
		t.Fatalf("unexpected payload: %v", got)
	}
}

func TestSMSGateway_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "denied", http.StatusForbidden)
	}))
	defer srv.Close()

	gw := NewSMSGateway(srv.URL, "sms-key")
	if _, err := gw.Send(context.Background(), "a", "b", "c"); err == nil {
		t.Fatal("expected error for 403 response")
	}
}

func TestRenderTemplate_Deterministic(t *testing.T) {
	body := renderTemplate("session-ended", map[string]any{
		"session_time": "1 tim 30 min",
		"job_id":       "job-1",
		"for_text":     "faktura",
	})
	want := "template: session-ended\r\nfor_text: faktura\r\njob_id: job-1\r\nsession_time: 1 tim 30 min\r\n"
	if body != want {
		t.Fatalf("got %q, want %q", body, want)
	}
}
