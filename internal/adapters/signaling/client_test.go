package signaling

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

func TestCreateSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != SDPPath {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req OfferRequest
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &req); err != nil || req.OfferSDP != "v=0 offer" {
			t.Errorf("bad body %s", body)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"message":"SDP get successfully.","content":{"type":"answer","sdp":"v=0 answer"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", zerolog.Nop())
	answer, err := c.CreateSession(context.Background(), webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 offer"})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if answer.Type != webrtc.SDPTypeAnswer || answer.SDP != "v=0 answer" {
		t.Fatalf("answer = %+v", answer)
	}
}

func TestCreateSessionErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(error) bool
	}{
		{"server error", 500, `{"error":"boom"}`, func(err error) bool {
			var se *StatusError
			return errors.As(err, &se) && se.Code == 500
		}},
		{"empty sdp", 200, `{"content":{"type":"answer","sdp":""}}`, func(err error) bool {
			return errors.Is(err, ErrEmptyAnswer)
		}},
		{"garbage", 200, `not json`, func(err error) bool { return err != nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL, zerolog.Nop()).CreateSession(context.Background(), webrtc.SessionDescription{SDP: "x"})
			if !tt.check(err) {
				t.Fatalf("unexpected error %v", err)
			}
		})
	}
}

func TestCreateSessionHonoursContext(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewClient(srv.URL, zerolog.Nop()).CreateSession(ctx, webrtc.SessionDescription{SDP: "x"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
