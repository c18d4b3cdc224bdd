package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/playmatatu/billiards/internal/config"
	"github.com/playmatatu/billiards/internal/game"
	"github.com/playmatatu/billiards/internal/ws"
	"github.com/vmihailenco/msgpack/v5"
)

func setupRouter(t *testing.T) (*gin.Engine, *config.Config) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := config.Default()
	cfg.FrameIntervalMs = 0
	cfg.JWTSecret = "test-secret"
	game.Manager = game.NewTableManager(nil, nil, cfg)
	ws.AttachManager(game.Manager, ws.TableHub)

	r := gin.New()
	SetupRoutes(r, cfg)
	return r, cfg
}

func doJSON(r http.Handler, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type createdTable struct {
	TableID string         `json:"table_id"`
	Token   string         `json:"token"`
	State   game.GameState `json:"state"`
}

func createTable(t *testing.T, r http.Handler, body interface{}) createdTable {
	t.Helper()
	w := doJSON(r, http.MethodPost, "/api/v1/tables", "", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", w.Code, w.Body.String())
	}
	var out createdTable
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	return out
}

func TestHealth(t *testing.T) {
	r, _ := setupRouter(t)
	w := doJSON(r, http.MethodGet, "/api/v1/health", "", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Errorf("health = %d %s", w.Code, w.Body.String())
	}
}

func TestCreateTable(t *testing.T) {
	r, _ := setupRouter(t)
	tbl := createTable(t, r, gin.H{"seats": 4, "names": []string{"Ann", "Bo", "Cy", "Di"}})
	if tbl.TableID == "" || tbl.Token == "" {
		t.Fatalf("missing id or token: %+v", tbl)
	}
	if len(tbl.State.Seats) != 4 || tbl.State.CurrentSeat != 1 {
		t.Errorf("state = %+v", tbl.State)
	}

	for _, body := range []gin.H{{"seats": 5}, {"computer_side": 3}, {"group_policy": "legacy_preset", "player1_group": "spots"}} {
		if w := doJSON(r, http.MethodPost, "/api/v1/tables", "", body); w.Code != http.StatusBadRequest {
			t.Errorf("%v: status = %d, want 400", body, w.Code)
		}
	}
}

func TestGetTable(t *testing.T) {
	r, _ := setupRouter(t)
	tbl := createTable(t, r, nil)

	if w := doJSON(r, http.MethodGet, "/api/v1/tables/"+tbl.TableID, "", nil); w.Code != http.StatusOK {
		t.Errorf("get = %d", w.Code)
	}
	if w := doJSON(r, http.MethodGet, "/api/v1/tables/tbl_nope", "", nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown table = %d, want 404", w.Code)
	}
}

func TestShotRequiresToken(t *testing.T) {
	r, _ := setupRouter(t)
	a := createTable(t, r, nil)
	b := createTable(t, r, nil)
	shot := gin.H{"angle": 0, "power": 60}

	if w := doJSON(r, http.MethodPost, "/api/v1/tables/"+a.TableID+"/shot", "", shot); w.Code != http.StatusUnauthorized {
		t.Errorf("no token = %d, want 401", w.Code)
	}
	if w := doJSON(r, http.MethodPost, "/api/v1/tables/"+a.TableID+"/shot", b.Token, shot); w.Code != http.StatusForbidden {
		t.Errorf("other table's token = %d, want 403", w.Code)
	}
	if w := doJSON(r, http.MethodPost, "/api/v1/tables/"+a.TableID+"/shot", "garbage", shot); w.Code != http.StatusUnauthorized {
		t.Errorf("bad token = %d, want 401", w.Code)
	}
}

func TestShotFlow(t *testing.T) {
	r, _ := setupRouter(t)
	tbl := createTable(t, r, nil)
	path := "/api/v1/tables/" + tbl.TableID

	w := doJSON(r, http.MethodPost, path+"/shot", tbl.Token, gin.H{"angle": 0, "power": 3})
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"accepted":false`) {
		t.Errorf("weak shot = %d %s", w.Code, w.Body.String())
	}

	w = doJSON(r, http.MethodPost, path+"/shot", tbl.Token, gin.H{"angle": 0, "power": 70})
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"accepted":true`) {
		t.Fatalf("shot = %d %s", w.Code, w.Body.String())
	}

	s, err := game.Manager.GetTable(tbl.TableID)
	if err != nil {
		t.Fatal(err)
	}
	if st := s.State(); st.ShotNumber != 1 || st.Phase == game.PhaseInFlight {
		t.Errorf("shot should be resolved: %+v", st)
	}

	if w := doJSON(r, http.MethodPost, path+"/shot", tbl.Token, gin.H{"angle": 0}); w.Code != http.StatusBadRequest {
		t.Errorf("missing power = %d, want 400", w.Code)
	}

	w = doJSON(r, http.MethodPost, path+"/reset", tbl.Token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("reset = %d", w.Code)
	}
	if s.State().ShotNumber != 0 {
		t.Error("reset should re-rack")
	}
}

func TestComputerShotAndPlan(t *testing.T) {
	r, _ := setupRouter(t)
	tbl := createTable(t, r, gin.H{"computer_side": 2})
	path := "/api/v1/tables/" + tbl.TableID

	w := doJSON(r, http.MethodGet, path+"/plan", "", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"source":"local"`) {
		t.Errorf("plan = %d %s", w.Code, w.Body.String())
	}

	if w := doJSON(r, http.MethodPost, path+"/computer", tbl.Token, nil); w.Code != http.StatusConflict {
		t.Errorf("computer shot on human turn = %d, want 409", w.Code)
	}
}

func TestHistoryWithoutDatabase(t *testing.T) {
	r, _ := setupRouter(t)
	tbl := createTable(t, r, nil)
	if w := doJSON(r, http.MethodGet, "/api/v1/tables/"+tbl.TableID+"/history", "", nil); w.Code != http.StatusServiceUnavailable {
		t.Errorf("history = %d, want 503", w.Code)
	}
}

func dialTable(t *testing.T, srv *httptest.Server, tableID, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/tables/" + tableID + "/ws" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("dial %s: %v (status %d)", url, err, status)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil reads JSON messages until one of the given type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, kind string) map[string]interface{} {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var msg map[string]interface{}
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("waiting for %q: %v", kind, err)
		}
		if msg["type"] == kind {
			return msg
		}
	}
}

func TestWebSocketShot(t *testing.T) {
	r, _ := setupRouter(t)
	srv := httptest.NewServer(r)
	defer srv.Close()

	tbl := createTable(t, r, nil)
	conn := dialTable(t, srv, tbl.TableID, "?token="+tbl.Token)
	readUntil(t, conn, "state")

	conn.WriteJSON(gin.H{"type": "shoot", "data": gin.H{"angle": 0, "power": 70}})
	res := readUntil(t, conn, "shot_result")
	outcome, _ := res["outcome"].(map[string]interface{})
	if outcome == nil || outcome["shot_number"] != 1.0 {
		t.Errorf("shot_result without outcome: %v", res)
	}
	readUntil(t, conn, "state")
}

func TestWebSocketSpectatorIsReadOnly(t *testing.T) {
	r, _ := setupRouter(t)
	srv := httptest.NewServer(r)
	defer srv.Close()

	tbl := createTable(t, r, nil)
	conn := dialTable(t, srv, tbl.TableID, "")
	readUntil(t, conn, "state")

	conn.WriteJSON(gin.H{"type": "shoot", "data": gin.H{"angle": 0, "power": 70}})
	readUntil(t, conn, "error")

	conn.WriteJSON(gin.H{"type": "get_state"})
	readUntil(t, conn, "state")
}

func TestWebSocketMsgpack(t *testing.T) {
	r, _ := setupRouter(t)
	srv := httptest.NewServer(r)
	defer srv.Close()

	tbl := createTable(t, r, nil)
	conn := dialTable(t, srv, tbl.TableID, "?enc=msgpack&token="+tbl.Token)
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))

	kind, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if kind != websocket.BinaryMessage {
		t.Fatalf("frame type = %d, want binary", kind)
	}
	var msg map[string]interface{}
	if err := msgpack.Unmarshal(raw, &msg); err != nil {
		t.Fatal(err)
	}
	if msg["type"] != "state" || msg["table_id"] != tbl.TableID {
		t.Errorf("first message = %v", msg)
	}
}

func TestWebSocketBadToken(t *testing.T) {
	r, _ := setupRouter(t)
	srv := httptest.NewServer(r)
	defer srv.Close()

	tbl := createTable(t, r, nil)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/tables/" + tbl.TableID + "/ws?token=nope"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("dial should fail with a bad token")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403")
	}
}
