package httpfetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClient_Get_SuccessReturnsStatusAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); ua == "" {
			t.Error("expected a non-empty User-Agent header")
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`[{"hostname":"a"}]`))
	}))
	defer srv.Close()

	c := New(time.Second)
	code, body, err := c.Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if string(body) != `[{"hostname":"a"}]` {
		t.Fatalf("unexpected body: %s", body)
	}
}

func TestClient_Get_TimeoutReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(20 * time.Millisecond)
	if _, _, err := c.Get(context.Background(), srv.URL); err == nil {
		t.Fatal("expected a timeout error")
	}
}

func TestClient_Get_NonOKStatusStillReturnsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer srv.Close()

	c := New(time.Second)
	code, body, err := c.Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", code)
	}
	if string(body) != "boom" {
		t.Fatalf("unexpected body: %s", body)
	}
}
