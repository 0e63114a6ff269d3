package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"botswarm.ai/internal/botclient"
	"botswarm.ai/internal/botclient/botclienttest"
	"botswarm.ai/internal/events"
	"botswarm.ai/internal/orchestrator"
	"botswarm.ai/internal/persistence/botstore"
	"botswarm.ai/internal/protocol"
)

type apiHarness struct {
	ts     *httptest.Server
	store  *botstore.Memory
	hub    *events.Hub
	engine *orchestrator.Manager

	mu      sync.Mutex
	fakes   []*botclienttest.Fake
	dialErr error
}

func newHarness(t *testing.T) *apiHarness {
	t.Helper()
	h := &apiHarness{
		store: botstore.NewMemory(),
		hub:   events.NewHub(log.New(io.Discard, "", 0)),
	}
	dial := func(ctx context.Context, id botclient.Identity, ep botclient.Endpoint) (botclient.Client, error) {
		h.mu.Lock()
		defer h.mu.Unlock()
		if h.dialErr != nil {
			return nil, h.dialErr
		}
		f := botclienttest.New()
		h.fakes = append(h.fakes, f)
		return f, nil
	}
	engine, err := orchestrator.NewManager(orchestrator.Config{
		Dial:   dial,
		Store:  h.store,
		Hub:    h.hub,
		Logger: log.New(io.Discard, "", 0),
	})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	h.engine = engine

	mux := http.NewServeMux()
	NewServer(h.store, engine, h.hub, log.New(io.Discard, "", 0)).Register(mux)
	h.ts = httptest.NewServer(mux)
	t.Cleanup(func() {
		h.ts.Close()
		engine.Close()
		h.hub.Close()
	})
	return h
}

func (h *apiHarness) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, h.ts.URL+path, rd)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	out, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, out
}

func (h *apiHarness) createBot(t *testing.T, name string) botstore.Record {
	t.Helper()
	resp, body := h.do(t, http.MethodPost, "/v1/bots", map[string]string{"name": name})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d: %s", resp.StatusCode, body)
	}
	var rec botstore.Record
	if err := json.Unmarshal(body, &rec); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	return rec
}

func errCode(t *testing.T, body []byte) string {
	t.Helper()
	var e struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &e); err != nil {
		t.Fatalf("decode error body %q: %v", body, err)
	}
	return e.Error.Code
}

func TestBotLifecycleOverREST(t *testing.T) {
	h := newHarness(t)
	_, evCh := h.hub.Subscribe(32)

	rec := h.createBot(t, "miner-7")
	if rec.ID == "" || rec.Name != "miner-7" || rec.Status != protocol.StatusOffline {
		t.Fatalf("created record = %+v", rec)
	}

	select {
	case ev := <-evCh:
		if ev.Type != protocol.EventCreated || ev.BotID != rec.ID {
			t.Fatalf("event = %+v, want created", ev)
		}
	case <-time.After(time.Second):
		t.Fatalf("no created event")
	}

	resp, body := h.do(t, http.MethodGet, "/v1/bots", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d", resp.StatusCode)
	}
	var list struct {
		Bots []botstore.Record `json:"bots"`
	}
	if err := json.Unmarshal(body, &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Bots) != 1 || list.Bots[0].ID != rec.ID {
		t.Fatalf("list = %+v", list.Bots)
	}

	resp, body = h.do(t, http.MethodGet, "/v1/bots/"+rec.ID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d: %s", resp.StatusCode, body)
	}

	resp, _ = h.do(t, http.MethodDelete, "/v1/bots/"+rec.ID, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}
	select {
	case ev := <-evCh:
		if ev.Type != protocol.EventDeleted {
			t.Fatalf("event = %+v, want deleted", ev)
		}
	case <-time.After(time.Second):
		t.Fatalf("no deleted event")
	}

	resp, _ = h.do(t, http.MethodGet, "/v1/bots/"+rec.ID, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get after delete = %d", resp.StatusCode)
	}
}

func TestCreateRequiresName(t *testing.T) {
	h := newHarness(t)
	resp, _ := h.do(t, http.MethodPost, "/v1/bots", map[string]string{"name": "   "})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestStartStopOverREST(t *testing.T) {
	h := newHarness(t)
	rec := h.createBot(t, "scout")

	resp, body := h.do(t, http.MethodPost, "/v1/bots/"+rec.ID+"/start", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start status = %d: %s", resp.StatusCode, body)
	}
	if !h.engine.Running(rec.ID) {
		t.Fatalf("bot not running after start")
	}

	resp, body = h.do(t, http.MethodPost, "/v1/bots/"+rec.ID+"/stop", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stop status = %d: %s", resp.StatusCode, body)
	}
	if h.engine.Running(rec.ID) {
		t.Fatalf("bot still running after stop")
	}
	var got botstore.Record
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Status != protocol.StatusOffline {
		t.Fatalf("status = %s, want offline", got.Status)
	}
}

func TestStartDialFailureMapsToBadGateway(t *testing.T) {
	h := newHarness(t)
	h.dialErr = errors.New("connection refused")
	rec := h.createBot(t, "scout")

	resp, body := h.do(t, http.MethodPost, "/v1/bots/"+rec.ID+"/start", nil)
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502: %s", resp.StatusCode, body)
	}
	if code := errCode(t, body); code != protocol.ErrConnectionFailed {
		t.Fatalf("code = %s", code)
	}
}

func TestActionOnStoppedBotConflicts(t *testing.T) {
	h := newHarness(t)
	rec := h.createBot(t, "idle")

	resp, body := h.do(t, http.MethodPost, "/v1/bots/"+rec.ID+"/action", map[string]any{"kind": "jump"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409: %s", resp.StatusCode, body)
	}
	if code := errCode(t, body); code != protocol.ErrNotRunning {
		t.Fatalf("code = %s", code)
	}
}

func TestActionDispatch(t *testing.T) {
	h := newHarness(t)
	rec := h.createBot(t, "digger")
	if _, body := h.do(t, http.MethodPost, "/v1/bots/"+rec.ID+"/start", nil); len(body) == 0 {
		t.Fatalf("start failed")
	}

	resp, body := h.do(t, http.MethodPost, "/v1/bots/"+rec.ID+"/action",
		map[string]any{"kind": "selectSlot", "slot": 4})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("action status = %d: %s", resp.StatusCode, body)
	}
	h.mu.Lock()
	fake := h.fakes[0]
	h.mu.Unlock()
	if fake.Hotbar() != 4 {
		t.Fatalf("hotbar = %d, want 4", fake.Hotbar())
	}
}

func TestActionBodyValidation(t *testing.T) {
	h := newHarness(t)
	rec := h.createBot(t, "digger")
	h.do(t, http.MethodPost, "/v1/bots/"+rec.ID+"/start", nil)

	cases := []map[string]any{
		{"kind": "teleport"},                 // unknown kind
		{"kind": "selectSlot", "slot": 12},   // slot out of range
		{"kind": "mine", "mode": "warp"},     // unknown mode
		{"kind": "look"},                     // missing direction
		{"kind": "mine", "mode": "interval"}, // interval without ticks
	}
	for _, c := range cases {
		resp, body := h.do(t, http.MethodPost, "/v1/bots/"+rec.ID+"/action", c)
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("action %v: status = %d, want 400: %s", c, resp.StatusCode, body)
		}
	}
}

func TestUnknownBotIs404(t *testing.T) {
	h := newHarness(t)
	for _, path := range []string{
		"/v1/bots/bot_missing",
		"/v1/bots/bot_missing/start",
		"/v1/bots/bot_missing/action",
	} {
		method := http.MethodGet
		if path != "/v1/bots/bot_missing" {
			method = http.MethodPost
		}
		resp, _ := h.do(t, method, path, nil)
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("%s: status = %d, want 404", path, resp.StatusCode)
		}
	}
}

func TestDeleteStopsLiveSession(t *testing.T) {
	h := newHarness(t)
	rec := h.createBot(t, "doomed")
	h.do(t, http.MethodPost, "/v1/bots/"+rec.ID+"/start", nil)

	resp, _ := h.do(t, http.MethodDelete, "/v1/bots/"+rec.ID, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}
	if h.engine.Running(rec.ID) {
		t.Fatalf("session survived delete")
	}
	h.mu.Lock()
	fake := h.fakes[0]
	h.mu.Unlock()
	if !fake.Closed() {
		t.Fatalf("connection not closed on delete")
	}
}
