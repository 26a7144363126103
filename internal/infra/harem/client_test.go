package harem

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sezginpak/gold-price-analyzer-sub002/internal/domain"
)

func newTestClient(serverURL string) *Client {
	return NewClient(serverURL, "tr", 2*time.Second)
}

func TestClient_Fetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("dil_kodu"); got != "tr" {
			t.Errorf("Expected dil_kodu=tr, got %q", got)
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"data": {"ALTIN": {"code": "ALTIN", "alis": "5890.50", "satis": "5975.25"}, "ONS": {"alis": 2412.10, "satis": 2412.90}}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	quotes, err := client.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if len(quotes) != 2 {
		t.Fatalf("Expected 2 quotes, got %d", len(quotes))
	}

	altin := quotes["ALTIN"]
	if altin.Code != "ALTIN" || altin.Alis != "5890.50" || altin.Satis != "5975.25" {
		t.Errorf("Unexpected ALTIN quote: %+v", altin)
	}

	// Numeric JSON values must decode too; the code field defaults to the map key
	ons := quotes["ONS"]
	if ons.Code != "ONS" {
		t.Errorf("Expected code ONS from map key, got %q", ons.Code)
	}
	if ons.Alis != "2412.10" {
		t.Errorf("Unexpected ONS alis: %q", ons.Alis)
	}
}

func TestClient_FetchBadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.Fetch(context.Background())
	if err == nil {
		t.Fatal("Expected error on 503 response")
	}

	var fetchErr *domain.FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("Expected FetchError, got %T", err)
	}
	if fetchErr.Status != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", fetchErr.Status)
	}
	if !errors.Is(err, domain.ErrUpstreamStatus) {
		t.Error("Expected error to wrap ErrUpstreamStatus")
	}
}

func TestClient_FetchMalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`<html>maintenance</html>`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.Fetch(context.Background())
	if !errors.Is(err, domain.ErrMalformedPayload) {
		t.Errorf("Expected ErrMalformedPayload, got %v", err)
	}
}

func TestClient_FetchMissingData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"meta": {"time": 1700000000}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.Fetch(context.Background())
	if !errors.Is(err, domain.ErrNoData) {
		t.Errorf("Expected ErrNoData, got %v", err)
	}
}

func TestClient_FetchSingleAttempt(t *testing.T) {
	callCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	if _, err := client.Fetch(context.Background()); err == nil {
		t.Fatal("Expected error on 429 response")
	}

	// One attempt per call - the poll loop owns the retry cadence
	if callCount != 1 {
		t.Errorf("Expected exactly 1 call, got %d", callCount)
	}
}

func TestClient_FetchNullPrices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"data": {"USDTRY": {"alis": null, "satis": "32.50"}}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	quotes, err := client.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	usd := quotes["USDTRY"]
	if usd.Alis != "" {
		t.Errorf("Expected empty alis for null value, got %q", usd.Alis)
	}
	if usd.Satis != "32.50" {
		t.Errorf("Expected satis 32.50, got %q", usd.Satis)
	}
}
