package ops_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/studylab/paperextract/internal/ops"
	"github.com/studylab/paperextract/internal/paper"
)

func TestHealthEndpoints(t *testing.T) {
	srv := ops.New(nil)
	srv.AddCheck("database", func(context.Context) error { return nil })
	mux := srv.Mux()

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "healthz returns 200",
			path:       "/healthz",
			wantStatus: http.StatusOK,
			wantBody:   `{"status":"ok"}`,
		},
		{
			name:       "readyz returns 200",
			path:       "/readyz",
			wantStatus: http.StatusOK,
			wantBody:   `{"status":"ready"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			rec := httptest.NewRecorder()

			mux.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if rec.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestReadyz_FailingCheck(t *testing.T) {
	srv := ops.New(nil)
	srv.AddCheck("cache", func(context.Context) error { return fmt.Errorf("connection refused") })

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	srv.Mux().ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestProgressFeed(t *testing.T) {
	feed := paper.NewBroadcastSink()
	httpSrv := httptest.NewServer(ops.New(feed).Mux())
	defer httpSrv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, httpSrv.URL+"/ws/progress", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	// Publish until the subscriber is registered; Subscribe on the server
	// side races with the dial returning.
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				feed.Publish(paper.Event{PaperID: "p1", EventType: "paper_claimed"})
			}
		}
	}()

	var ev paper.Event
	if err := wsjson.Read(ctx, conn, &ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	cancel()
	<-done

	if ev.EventType != "paper_claimed" || ev.PaperID != "p1" {
		t.Errorf("event = %+v", ev)
	}
}

func TestProgressFeed_DisabledWithoutFeed(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ws/progress", nil)
	rec := httptest.NewRecorder()
	ops.New(nil).Mux().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
