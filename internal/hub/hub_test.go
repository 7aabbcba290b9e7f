package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ryadrakem/mms-V2/internal/model"
	"github.com/ryadrakem/mms-V2/internal/notify"
)

func dialSession(t *testing.T, h *Hub, sessionID int64) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := h.Serve(context.Background(), w, r, sessionID); err != nil {
			t.Errorf("Serve returned err: %v", err)
		}
	}))
	t.Cleanup(srv.Close)

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = ws.Close() })

	deadline := time.Now().Add(time.Second)
	for h.Connected(sessionID) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("page never attached")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return ws
}

func readFrame(t *testing.T, ws *websocket.Conn) map[string]any {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return out
}

func TestHubPushesNotificationAndMoveFrames(t *testing.T) {
	h := New(zerolog.Nop(), Options{})
	ws := dialSession(t, h, 42)

	if err := h.Notify(context.Background(), notify.Notification{SessionID: 42, Message: "Participant admitted", Severity: notify.Success}); err != nil {
		t.Fatalf("Notify returned err: %v", err)
	}
	frame := readFrame(t, ws)
	if frame["type"] != "notification" || frame["message"] != "Participant admitted" {
		t.Fatalf("unexpected frame %v", frame)
	}

	if err := h.MoveVideo(context.Background(), 42, model.DockSidebar); err != nil {
		t.Fatalf("MoveVideo returned err: %v", err)
	}
	frame = readFrame(t, ws)
	if frame["type"] != "move_video" || frame["target"] != "sidebar" {
		t.Fatalf("unexpected frame %v", frame)
	}

	if err := h.NavigateBack(context.Background(), 42, 7); err != nil {
		t.Fatalf("NavigateBack returned err: %v", err)
	}
	frame = readFrame(t, ws)
	if frame["res_model"] != model.ModelPlan || frame["res_id"] != float64(7) {
		t.Fatalf("unexpected navigate frame %v", frame)
	}
}

func TestHubRoutesInboundFrames(t *testing.T) {
	h := New(zerolog.Nop(), Options{})
	got := make(chan string, 1)
	h.OnFrame(func(sessionID int64, data []byte) {
		if sessionID == 9 {
			got <- string(data)
		}
	})
	ws := dialSession(t, h, 9)

	if err := ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"video_event","event":"joined","id":"me"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case data := <-got:
		if !strings.Contains(data, `"joined"`) {
			t.Fatalf("unexpected frame %s", data)
		}
	case <-time.After(time.Second):
		t.Fatalf("frame not routed")
	}
}

func TestHubSendWithoutPage(t *testing.T) {
	h := New(zerolog.Nop(), Options{})
	if err := h.Send(1, map[string]string{"type": "timer"}); err != ErrNoConnection {
		t.Fatalf("expected ErrNoConnection, got %v", err)
	}
}

func TestHubRejectsUnlistedOrigin(t *testing.T) {
	h := New(zerolog.Nop(), Options{AllowedOrigins: []string{"https://odoo.example.com/"}})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = h.Serve(context.Background(), w, r, 42)
	}))
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://evil.example.com"}})
	if err == nil {
		t.Fatal("expected dial from unlisted origin to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", resp)
	}
	if h.Connected(42) != 0 {
		t.Fatalf("unlisted origin attached")
	}

	ws, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://odoo.example.com"}})
	if err != nil {
		t.Fatalf("dial from listed origin: %v", err)
	}
	_ = ws.Close()
}

func TestOriginCheckerDefaults(t *testing.T) {
	if originChecker(nil) != nil {
		t.Fatal("expected gorilla same-host check for an empty list")
	}
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Origin", "https://anything.example")
	if !originChecker([]string{"*"})(r) {
		t.Fatal("wildcard should allow any origin")
	}
}
