package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ryadrakem/mms-V2/internal/auth"
	"github.com/ryadrakem/mms-V2/internal/config"
	"github.com/ryadrakem/mms-V2/internal/invitation"
	"github.com/ryadrakem/mms-V2/internal/jaas"
	"github.com/ryadrakem/mms-V2/internal/model"
	"github.com/ryadrakem/mms-V2/internal/notify"
	"github.com/ryadrakem/mms-V2/internal/recordstore"
	"github.com/ryadrakem/mms-V2/internal/session"
	"github.com/ryadrakem/mms-V2/internal/video"
)

const testSecret = "test-secret"

type mockTokens struct {
	exchangeFn func(context.Context, jaas.Request) (jaas.Grant, error)
}

func (m *mockTokens) Exchange(ctx context.Context, req jaas.Request) (jaas.Grant, error) {
	if m.exchangeFn != nil {
		return m.exchangeFn(ctx, req)
	}
	return jaas.Grant{}, errors.New("not implemented")
}

type mockSockets struct {
	serveFn func(context.Context, http.ResponseWriter, *http.Request, int64) error
}

func (m *mockSockets) Serve(ctx context.Context, w http.ResponseWriter, r *http.Request, sessionID int64) error {
	if m.serveFn != nil {
		return m.serveFn(ctx, w, r, sessionID)
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

type testServer struct {
	handler http.Handler
	store   *recordstore.Memory
	video   *video.Fake
	notes   *notify.Recorder
	manager *session.Manager
}

type serverOpts struct {
	host    bool
	tokens  TokenExchanger
	sockets SocketServer
}

func seedStore(store *recordstore.Memory, host bool) {
	store.Seed(model.ModelParticipant, recordstore.Record{"id": int64(1), "name": "Amina", "attendance_status": "present", "user_id": int64(5)})
	store.Seed(model.ModelMeeting, recordstore.Record{"id": int64(9), "state": "in_progress"})
	store.Seed(model.ModelPlan, recordstore.Record{"id": int64(7), "state": "in_progress"})
	store.Seed(model.ModelSession, recordstore.Record{
		"id":                    int64(42),
		"name":                  "Weekly sync",
		"meeting_id":            int64(9),
		"planification_id":      int64(7),
		"state":                 "in_progress",
		"actual_start_datetime": recordstore.FormatTime(time.Now().Add(-30 * time.Minute)),
		"is_host":               host,
		"participant_ids":       []int64{1},
	})
}

func newTestServer(t *testing.T, o serverOpts) *testServer {
	t.Helper()
	ts := &testServer{
		store: recordstore.NewMemory(),
		video: video.NewFake(),
		notes: &notify.Recorder{},
	}
	seedStore(ts.store, o.host)
	ts.video.Participants = []video.ParticipantInfo{{ID: "local"}}

	ts.manager = session.NewManager(session.Deps{
		Store:    ts.store,
		Notifier: ts.notes,
		Video:    ts.video,
		Logger:   zerolog.Nop(),
	}, session.Options{
		PollInterval: time.Hour,
		TickInterval: time.Hour,
		SettleDelay:  time.Millisecond,
		HangupDelay:  time.Millisecond,
	})
	t.Cleanup(ts.manager.Close)

	ts.handler = NewRouter(config.Config{JWTSecret: testSecret}, Deps{
		Sessions:    ts.manager,
		Invitations: invitation.NewService(ts.store, zerolog.Nop()),
		Tokens:      o.tokens,
		Sockets:     o.sockets,
		Logger:      zerolog.Nop(),
	})
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, uid int64, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+testJWT(t, uid))
	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	return rr
}

func testJWT(t *testing.T, uid int64) string {
	t.Helper()
	tok, err := auth.Sign(testSecret, uid, time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return tok
}

func jsonBody(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	return b
}

type snapshotBody struct {
	State     string        `json:"state"`
	Connected bool          `json:"video_connected"`
	Error     string        `json:"error"`
	View      viewBody      `json:"view"`
	Session   model.Session `json:"session"`
}

type viewBody struct {
	Tab  string `json:"active_tab"`
	Dock string `json:"video_docked"`
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
	return v
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	return decodeBody[apiError](t, rr).Error.Code
}

func TestOpenReturnsActiveSnapshot(t *testing.T) {
	ts := newTestServer(t, serverOpts{host: true})

	rr := ts.do(t, http.MethodPost, "/api/v1/sessions/42/open", 5, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	snap := decodeBody[snapshotBody](t, rr)
	if snap.State != "active" {
		t.Fatalf("expected active, got %q", snap.State)
	}
	if !snap.Connected {
		t.Fatalf("expected a video handle after open")
	}
	if snap.View.Tab != "video" || snap.View.Dock != "main" {
		t.Fatalf("unexpected initial view %+v", snap.View)
	}
	if snap.Session.Name != "Weekly sync" {
		t.Fatalf("unexpected session name %q", snap.Session.Name)
	}

	again := ts.do(t, http.MethodPost, "/api/v1/sessions/42/open", 5, nil)
	if again.Code != http.StatusOK {
		t.Fatalf("expected reopen 200, got %d", again.Code)
	}
	if got := len(ts.video.Conferences()); got != 1 {
		t.Fatalf("reopen created another conference: %d", got)
	}
}

func TestOpenByAnotherUserIsForbidden(t *testing.T) {
	ts := newTestServer(t, serverOpts{})
	if rr := ts.do(t, http.MethodPost, "/api/v1/sessions/42/open", 5, nil); rr.Code != http.StatusOK {
		t.Fatalf("open: %d", rr.Code)
	}

	rr := ts.do(t, http.MethodPost, "/api/v1/sessions/42/open", 6, nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
	rr = ts.do(t, http.MethodGet, "/api/v1/sessions/42", 6, nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 on snapshot, got %d", rr.Code)
	}
}

func TestOpenUnknownSessionFails(t *testing.T) {
	ts := newTestServer(t, serverOpts{})

	rr := ts.do(t, http.MethodPost, "/api/v1/sessions/77/open", 5, nil)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	msgs := ts.notes.Messages(notify.Danger)
	if len(msgs) == 0 || msgs[0] != "Failed to load meeting session" {
		t.Fatalf("unexpected notifications %v", msgs)
	}
}

func TestOpenRejectsBadIdentifier(t *testing.T) {
	ts := newTestServer(t, serverOpts{})

	rr := ts.do(t, http.MethodPost, "/api/v1/sessions/zero/open", 5, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestSessionRoutesRequireToken(t *testing.T) {
	ts := newTestServer(t, serverOpts{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/42/open", nil)
	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestSnapshotOfClosedSessionIsNotFound(t *testing.T) {
	ts := newTestServer(t, serverOpts{})

	rr := ts.do(t, http.MethodGet, "/api/v1/sessions/42", 5, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestOpenWithVideoFailureStaysRetryable(t *testing.T) {
	ts := newTestServer(t, serverOpts{})
	ts.video.SetInitErr(errors.New("provider down"))

	rr := ts.do(t, http.MethodPost, "/api/v1/sessions/42/open", 5, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 with errored snapshot, got %d body=%s", rr.Code, rr.Body.String())
	}
	if snap := decodeBody[snapshotBody](t, rr); snap.State != "errored" {
		t.Fatalf("expected errored, got %q", snap.State)
	}

	ts.video.SetInitErr(nil)
	rr = ts.do(t, http.MethodPost, "/api/v1/sessions/42/retry", 5, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected retry 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	snap := decodeBody[snapshotBody](t, rr)
	if snap.State != "active" || !snap.Connected {
		t.Fatalf("unexpected snapshot after retry %+v", snap)
	}
}

func TestTabRoutes(t *testing.T) {
	ts := newTestServer(t, serverOpts{})
	ts.do(t, http.MethodPost, "/api/v1/sessions/42/open", 5, nil)

	rr := ts.do(t, http.MethodPost, "/api/v1/sessions/42/tab", 5, jsonBody(t, map[string]any{"tab": "actions"}))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if v := decodeBody[viewBody](t, rr); v.Tab != "actions" || v.Dock != "sidebar" {
		t.Fatalf("unexpected view %+v", v)
	}

	rr = ts.do(t, http.MethodPost, "/api/v1/sessions/42/tab", 5, jsonBody(t, map[string]any{"tab": "whiteboard"}))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}

	rr = ts.do(t, http.MethodPost, "/api/v1/sessions/42/tab", 5, []byte("{"))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad json, got %d", rr.Code)
	}
}

func TestEndMeetingRequiresHost(t *testing.T) {
	ts := newTestServer(t, serverOpts{host: false})
	ts.do(t, http.MethodPost, "/api/v1/sessions/42/open", 5, nil)

	rr := ts.do(t, http.MethodPost, "/api/v1/sessions/42/end", 5, nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
	if rec, _ := ts.store.Get(model.ModelSession, 42); rec.String("state") != "in_progress" {
		t.Fatalf("session state changed to %q", rec.String("state"))
	}
}

func TestEndMeetingCommitsRecords(t *testing.T) {
	ts := newTestServer(t, serverOpts{host: true})
	ts.do(t, http.MethodPost, "/api/v1/sessions/42/open", 5, nil)

	rr := ts.do(t, http.MethodPost, "/api/v1/sessions/42/end", 5, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if snap := decodeBody[snapshotBody](t, rr); snap.State != "ended" {
		t.Fatalf("expected ended, got %q", snap.State)
	}
	for _, m := range []string{model.ModelSession, model.ModelPlan, model.ModelMeeting} {
		id := map[string]int64{model.ModelSession: 42, model.ModelPlan: 7, model.ModelMeeting: 9}[m]
		rec, ok := ts.store.Get(m, id)
		if !ok || rec.String("state") != "done" {
			t.Fatalf("%s %d not done: %v", m, id, rec)
		}
	}

	rr = ts.do(t, http.MethodPost, "/api/v1/sessions/42/end", 5, nil)
	if rr.Code != http.StatusConflict && rr.Code != http.StatusNotFound {
		t.Fatalf("expected second end to be rejected, got %d", rr.Code)
	}
}

func TestEndMeetingStageFailureIsBadGateway(t *testing.T) {
	ts := newTestServer(t, serverOpts{host: true})
	ts.do(t, http.MethodPost, "/api/v1/sessions/42/open", 5, nil)
	ts.store.FailOn("write", model.ModelPlan, errors.New("locked"))

	rr := ts.do(t, http.MethodPost, "/api/v1/sessions/42/end", 5, nil)
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rr.Code)
	}
	if code := errorCode(t, rr); code != "end_meeting_failed" {
		t.Fatalf("unexpected error code %q", code)
	}

	snap := ts.do(t, http.MethodGet, "/api/v1/sessions/42", 5, nil)
	if s := decodeBody[snapshotBody](t, snap); s.State != "active" {
		t.Fatalf("expected rollback to active, got %q", s.State)
	}
}

func TestActionRoutes(t *testing.T) {
	ts := newTestServer(t, serverOpts{})
	ts.do(t, http.MethodPost, "/api/v1/sessions/42/open", 5, nil)

	rr := ts.do(t, http.MethodPost, "/api/v1/sessions/42/actions", 5, nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	created := decodeBody[model.ActionItem](t, rr)
	if created.ID <= 0 || created.Name != "New Action" {
		t.Fatalf("unexpected action %+v", created)
	}

	path := "/api/v1/sessions/42/actions/" + jsonNumber(created.ID)
	bad := ts.do(t, http.MethodPut, path, 5, jsonBody(t, map[string]any{"name": "Ship", "priority": "urgent", "status": "todo"}))
	if bad.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", bad.Code)
	}

	ok := ts.do(t, http.MethodPut, path, 5, jsonBody(t, map[string]any{"name": "Ship", "priority": "high", "status": "done", "assignee_id": 5}))
	if ok.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", ok.Code, ok.Body.String())
	}
	if rec, _ := ts.store.Get(model.ModelAction, created.ID); rec.String("priority") != "high" {
		t.Fatalf("action not updated: %v", rec)
	}

	list := ts.do(t, http.MethodGet, "/api/v1/sessions/42/actions", 5, nil)
	body := decodeBody[struct {
		Actions   []model.ActionItem `json:"actions"`
		Assignees []model.Assignee   `json:"assignees"`
	}](t, list)
	if len(body.Actions) != 1 || len(body.Assignees) != 1 {
		t.Fatalf("unexpected listing %+v", body)
	}

	del := ts.do(t, http.MethodDelete, path, 5, nil)
	if del.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", del.Code)
	}
}

func jsonNumber(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}

func TestJitsiTokenNotConfigured(t *testing.T) {
	ts := newTestServer(t, serverOpts{})

	rr := ts.do(t, http.MethodPost, "/meeting/jitsi/token", 5, jsonBody(t, map[string]any{
		"jsonrpc": "2.0", "id": 1, "params": map[string]any{"meeting_id": 9},
	}))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	grant := decodeBody[struct {
		Result jaas.Grant `json:"result"`
	}](t, rr).Result
	if grant.Success || grant.Error != "Jitsi is not configured" {
		t.Fatalf("unexpected grant %+v", grant)
	}
}

func TestJitsiTokenExchange(t *testing.T) {
	var got jaas.Request
	tokens := &mockTokens{exchangeFn: func(_ context.Context, req jaas.Request) (jaas.Grant, error) {
		got = req
		if req.MeetingID != 9 {
			return jaas.Grant{}, jaas.ErrMeetingNotFound
		}
		return jaas.Grant{Success: true, Token: "signed", RoomName: "room-9"}, nil
	}}
	ts := newTestServer(t, serverOpts{tokens: tokens})

	rr := ts.do(t, http.MethodPost, "/meeting/jitsi/token", 5, jsonBody(t, map[string]any{
		"jsonrpc": "2.0", "id": 1, "params": map[string]any{"meeting_id": 9},
	}))
	grant := decodeBody[struct {
		Result jaas.Grant `json:"result"`
	}](t, rr).Result
	if !grant.Success || grant.Token != "signed" {
		t.Fatalf("unexpected grant %+v", grant)
	}
	if got.UserID != 5 {
		t.Fatalf("expected caller uid 5, got %d", got.UserID)
	}

	rr = ts.do(t, http.MethodPost, "/meeting/jitsi/token", 5, jsonBody(t, map[string]any{
		"jsonrpc": "2.0", "id": 2, "params": map[string]any{"meeting_id": 10},
	}))
	grant = decodeBody[struct {
		Result jaas.Grant `json:"result"`
	}](t, rr).Result
	if grant.Success || grant.Error != "Meeting not found" {
		t.Fatalf("unexpected grant %+v", grant)
	}
}

func TestSocketOwnership(t *testing.T) {
	served := 0
	sockets := &mockSockets{serveFn: func(_ context.Context, w http.ResponseWriter, _ *http.Request, sessionID int64) error {
		served++
		if sessionID != 42 {
			t.Errorf("unexpected session id %d", sessionID)
		}
		w.WriteHeader(http.StatusNoContent)
		return nil
	}}
	ts := newTestServer(t, serverOpts{sockets: sockets})

	if rr := ts.do(t, http.MethodGet, "/api/v1/sessions/42/ws", 6, nil); rr.Code != http.StatusNoContent {
		t.Fatalf("expected attach before open, got %d", rr.Code)
	}

	ts.do(t, http.MethodPost, "/api/v1/sessions/42/open", 5, nil)
	if rr := ts.do(t, http.MethodGet, "/api/v1/sessions/42/ws", 6, nil); rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for another user, got %d", rr.Code)
	}
	if served != 1 {
		t.Fatalf("expected one served socket, got %d", served)
	}
}
