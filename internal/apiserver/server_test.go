package apiserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/worldsim/worldsim/internal/character"
	"github.com/worldsim/worldsim/internal/engine"
	"github.com/worldsim/worldsim/internal/store"
	"github.com/worldsim/worldsim/internal/worldmap"
	"github.com/worldsim/worldsim/internal/worldtime"
)

func testMap() *worldmap.Map {
	return &worldmap.Map{
		ID:          "town",
		SpawnNodeID: "home",
		Nodes: map[string]*worldmap.PathNode{
			"home": {ID: "home", Type: worldmap.NodeWaypoint, ConnectedTo: map[string]struct{}{}},
		},
	}
}

func newTestServer(t *testing.T) (*Server, *engine.Engine) {
	t.Helper()

	eng := engine.New(nil)
	c := &character.Character{ID: "alice", CurrentMapID: "town", CurrentNodeID: "home"}
	maps := map[string]*worldmap.Map{"town": testMap()}
	deps := engine.Deps{Store: store.New()}

	if _, err := eng.Initialize(engine.DefaultConfig(), deps, maps, []*character.Character{c}, map[string]*character.NPC{}, "town", worldtime.New(0, 8, 0)); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := eng.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = eng.Stop() })

	return New(eng, nil), eng
}

func TestHandleGetStateReturnsStateAndMeta(t *testing.T) {
	s, _ := newTestServer(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/state")
	if err != nil {
		t.Fatalf("GET /state: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body getStateResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if _, ok := body.State.Characters["alice"]; !ok {
		t.Fatalf("expected alice in the serialized state, got %+v", body.State)
	}
}

func TestHandleGetStateRejectsNonGet(t *testing.T) {
	s, _ := newTestServer(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/state", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /state: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
}

func TestHandleControlPause(t *testing.T) {
	s, _ := newTestServer(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	body, _ := json.Marshal(controlRequest{Action: engine.ControlPause})
	resp, err := http.Post(srv.URL+"/control", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /control: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var cr controlResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !cr.IsPaused {
		t.Fatalf("expected IsPaused true after pausing, got %+v", cr)
	}
}

func TestHandleControlReportsValidationErrorAsBadRequest(t *testing.T) {
	s, _ := newTestServer(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	body, _ := json.Marshal(controlRequest{Action: engine.ControlAction("bogus")})
	resp, err := http.Post(srv.URL+"/control", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /control: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for an invalid control action, got %d", resp.StatusCode)
	}
}

func TestHandleControlRejectsMalformedBody(t *testing.T) {
	s, _ := newTestServer(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/control", "application/json", strings.NewReader("{not json"))
	if err != nil {
		t.Fatalf("POST /control: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for a malformed body, got %d", resp.StatusCode)
	}
}

func TestStreamStateDeliversASnapshot(t *testing.T) {
	s, _ := newTestServer(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream/state"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read initial snapshot: %v", err)
	}

	var state engine.SerializedWorldState
	if err := json.Unmarshal(msg, &state); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	if _, ok := state.Characters["alice"]; !ok {
		t.Fatalf("expected alice in the streamed snapshot, got %+v", state)
	}
}
