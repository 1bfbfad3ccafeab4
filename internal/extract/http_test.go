package extract

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPExtractor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/extract" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req extractRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.AccountID != "acct-1" || req.ResourceID != "res-b1" {
			t.Errorf("unexpected payload %+v", req)
		}
		json.NewEncoder(w).Encode(extractResponse{PONumber: "4711", VendorID: "res-v"})
	}))
	defer srv.Close()

	ex := NewHTTPExtractor(srv.URL, 5*time.Second)
	got, err := ex.ExtractContent(context.Background(), "acct-1", "res-b1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.PONumber != "4711" || got.VendorID != "res-v" {
		t.Fatalf("unexpected result %+v", got)
	}
}

func TestHTTPExtractor_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	ex := NewHTTPExtractor(srv.URL, 5*time.Second)
	if _, err := ex.ExtractContent(context.Background(), "acct-1", "res-b1"); err == nil {
		t.Fatal("expected error")
	}
}
