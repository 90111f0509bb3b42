// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/olegiv/textpress-go/internal/testutil"
)

func TestGenerateSignature(t *testing.T) {
	// RFC 4231 style check against a known HMAC-SHA256 value.
	got := GenerateSignature([]byte("The quick brown fox jumps over the lazy dog"), "key")
	want := "f7bc83f430538424b13298e6aa6fb143ef4d59a14946175997479dbc2d1a3cd8"
	if got != want {
		t.Errorf("GenerateSignature() = %s, want %s", got, want)
	}
	if len(GenerateSignature(nil, "")) != 64 {
		t.Error("signature of empty payload is not 64 hex characters")
	}
}

func TestVerifySignature(t *testing.T) {
	payload := []byte(`{"type":"export.completed"}`)
	sig := GenerateSignature(payload, "s3cret")

	tests := []struct {
		name      string
		payload   []byte
		signature string
		secret    string
		want      bool
	}{
		{"valid", payload, sig, "s3cret", true},
		{"wrong secret", payload, sig, "other", false},
		{"tampered payload", []byte(`{"type":"export.failed"}`), sig, "s3cret", false},
		{"empty signature", payload, "", "s3cret", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := VerifySignature(tt.payload, tt.signature, tt.secret); got != tt.want {
				t.Errorf("VerifySignature() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCalculateBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 5 * time.Second},
		{1, 5 * time.Second},
		{2, 10 * time.Second},
		{4, 40 * time.Second},
		{20, MaxBackoff},
	}
	for _, tt := range tests {
		if got := calculateBackoff(tt.attempt, InitialBackoff); got != tt.want {
			t.Errorf("calculateBackoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestEndpointWants(t *testing.T) {
	all := Endpoint{URL: "http://a"}
	some := Endpoint{URL: "http://b", Events: []string{EventExportFailed}}

	if !all.Wants(EventExportCompleted) {
		t.Error("endpoint without events must receive everything")
	}
	if some.Wants(EventExportCompleted) || !some.Wants(EventExportFailed) {
		t.Error("event filter not applied")
	}
}

type received struct {
	event     Event
	signature string
	eventHdr  string
}

func TestDispatcher_Delivers(t *testing.T) {
	defer goleak.VerifyNone(t)

	got := make(chan received, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if !VerifySignature(body, r.Header.Get(HeaderSignature), "s3cret") {
			t.Error("signature does not verify")
		}
		var ev Event
		_ = json.Unmarshal(body, &ev)
		got <- received{event: ev, signature: r.Header.Get(HeaderSignature), eventHdr: r.Header.Get(HeaderEvent)}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()
	defer httpClient.CloseIdleConnections()

	d := NewDispatcher([]Endpoint{
		{URL: srv.URL, Secret: "s3cret"},
		{URL: srv.URL, Secret: "s3cret", Events: []string{EventExportFailed}},
	}, testutil.TestLoggerSilent(), Config{Workers: 1})
	d.Start(context.Background())
	defer d.Stop()

	if err := d.DispatchEvent(context.Background(), EventExportCompleted, ExportEventData{File: "tpxa-1.xml", Bytes: 42}); err != nil {
		t.Fatalf("DispatchEvent: %v", err)
	}

	select {
	case r := <-got:
		if r.event.Type != EventExportCompleted || r.eventHdr != EventExportCompleted {
			t.Errorf("received %+v", r)
		}
		data, _ := r.event.Data.(map[string]any)
		if data["file"] != "tpxa-1.xml" {
			t.Errorf("data = %v", r.event.Data)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no delivery")
	}

	select {
	case r := <-got:
		t.Errorf("unsubscribed endpoint received %+v", r.event)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDispatcher_Retries(t *testing.T) {
	defer goleak.VerifyNone(t)

	var calls atomic.Int32
	var wg sync.WaitGroup
	wg.Add(3)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer wg.Done()
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	defer httpClient.CloseIdleConnections()

	d := NewDispatcher([]Endpoint{{URL: srv.URL}}, testutil.TestLoggerSilent(), Config{
		Workers:        1,
		MaxAttempts:    5,
		InitialBackoff: time.Millisecond,
	})
	d.Start(context.Background())
	defer d.Stop()

	_ = d.DispatchEvent(context.Background(), EventExportFailed, ExportEventData{Error: "disk full"})
	wg.Wait()

	if n := calls.Load(); n != 3 {
		t.Errorf("calls = %d, want 3", n)
	}
}

func TestDispatcher_NoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	d := NewDispatcher([]Endpoint{{URL: srv.URL}}, testutil.TestLoggerSilent(), Config{InitialBackoff: time.Millisecond})
	result := d.attemptDelivery(context.Background(), &QueuedDelivery{DeliveryID: 1, Event: "x", Endpoint: Endpoint{URL: srv.URL}})

	if result.Success || result.ShouldRetry || result.StatusCode != http.StatusBadRequest {
		t.Errorf("result = %+v", result)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d", calls.Load())
	}
}

func TestDispatcher_NotRunning(t *testing.T) {
	d := NewDispatcher([]Endpoint{{URL: "http://127.0.0.1:1"}}, testutil.TestLoggerSilent(), Config{})
	if err := d.DispatchEvent(context.Background(), EventExportCompleted, nil); err != nil {
		t.Errorf("DispatchEvent on stopped dispatcher: %v", err)
	}
	if len(d.queue) != 0 {
		t.Error("event queued while not running")
	}
	d.Stop()
}
