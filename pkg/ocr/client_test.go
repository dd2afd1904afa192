package ocr

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/perundhu/platform/pkg/common/logger"
)

func TestMain(m *testing.M) {
	logger.Init()
	os.Exit(m.Run())
}

func TestExtractNormalizesEngineResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/extract-from-url" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"success": true,
			"text": "சென்னை - வேலூர் 06:00",
			"text_english": "Chennai - Vellore 06:00",
			"confidence": 0.91,
			"languages": [{"code":"ta","confidence":0.7},{"code":"en","confidence":0.9}]
		}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second, 2, time.Millisecond)
	result, err := client.Extract(context.Background(), "https://img.example/board.jpg")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.EnglishText != "Chennai - Vellore 06:00" {
		t.Fatalf("unexpected english text: %q", result.EnglishText)
	}
	if result.PrimaryLanguage != "en" {
		t.Fatalf("expected primary language en, got %s", result.PrimaryLanguage)
	}
	if result.OverallConfidence != 0.91 {
		t.Fatalf("unexpected confidence %f", result.OverallConfidence)
	}
}

func TestExtractFallsBackToRawText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": true, "text": "Chennai - Vellore 06:00", "confidence": 0.8}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second, 1, 0)
	result, err := client.Extract(context.Background(), "https://img.example/board.jpg")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.EnglishText != result.RawText {
		t.Fatal("expected english text to fall back to raw text")
	}
}

func TestExtractRetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"success": true, "text": "Chennai - Vellore 06:00", "confidence": 0.8}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second, 2, time.Millisecond)
	if _, err := client.Extract(context.Background(), "https://img.example/board.jpg"); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls.Load())
	}
}

func TestExtractDoesNotRetryRejectedImages(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnsupportedMediaType)
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second, 3, time.Millisecond)
	_, err := client.Extract(context.Background(), "https://img.example/board.pdf")
	if err == nil {
		t.Fatal("expected failure for rejected image")
	}
	if !IsFailure(err) {
		t.Fatalf("expected *Failure, got %T", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single attempt, got %d", calls.Load())
	}
}

func TestExtractExhaustsRetryBudget(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second, 2, time.Millisecond)
	_, err := client.Extract(context.Background(), "https://img.example/board.jpg")
	if err == nil {
		t.Fatal("expected terminal failure")
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls.Load())
	}
}
