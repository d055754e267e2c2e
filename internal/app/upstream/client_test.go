package upstream

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

func fakeAPI(t *testing.T, sessionStatus int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/realtime/sessions", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sk-root" {
			t.Errorf("sessions auth = %q", r.Header.Get("Authorization"))
		}
		var req sessionRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Model != "rt-model" || req.Voice != "shimmer" {
			t.Errorf("session request = %+v", req)
		}
		w.WriteHeader(sessionStatus)
		_, _ = w.Write([]byte(`{"id":"sess_1","client_secret":{"value":"ek_123","expires_at":1}}`))
	})
	mux.HandleFunc("/v1/realtime", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("model") != "rt-model" {
			t.Errorf("model query = %q", r.URL.RawQuery)
		}
		if r.Header.Get("Authorization") != "Bearer ek_123" || r.Header.Get("Content-Type") != "application/sdp" {
			t.Errorf("exchange headers = %v", r.Header)
		}
		offer, _ := io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("answer-for:" + string(offer)))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestExchange(t *testing.T) {
	srv := fakeAPI(t, http.StatusOK)
	c := New(srv.URL+"/v1/", "sk-root", "rt-model", "shimmer", zerolog.Nop())

	answer, err := c.Exchange(context.Background(), "v=0")
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if answer != "answer-for:v=0" {
		t.Fatalf("answer = %q", answer)
	}
}

func TestExchangeSessionFailure(t *testing.T) {
	srv := fakeAPI(t, http.StatusUnauthorized)
	c := New(srv.URL+"/v1", "sk-root", "rt-model", "shimmer", zerolog.Nop())

	_, err := c.Exchange(context.Background(), "v=0")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized || apiErr.Op != "create session" {
		t.Fatalf("err = %v", err)
	}
}

func TestEphemeralKeyMissingSecret(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"x"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, "k", "m", "v", zerolog.Nop()).EphemeralKey(context.Background())
	if !errors.Is(err, ErrNoClientSecret) {
		t.Fatalf("err = %v", err)
	}
}
