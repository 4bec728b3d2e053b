package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/DoyleJ11/gameroom/internal/hub"
	"github.com/DoyleJ11/gameroom/internal/ws"
	"github.com/DoyleJ11/gameroom/pkg/domain"
	"github.com/DoyleJ11/gameroom/pkg/protocol"
	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

type constRoller int

func (c constRoller) Roll(sides int) int { return min(int(c), sides) }

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	// debug lines from connection teardown can land after the test ends
	log := zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel))
	ctx, cancel := context.WithCancel(context.Background())
	h := hub.NewHub(ctx, hub.Options{Logger: log, Roller: constRoller(10)})
	srv := httptest.NewServer(SetupRoutes(h, log, ws.Options{OutboxSize: 64}))
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-h.Done()
	})
	return srv
}

func postJSON(t *testing.T, target string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	resp, err := http.Post(target, "application/json", &buf)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func createRoom(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	resp, body := postJSON(t, srv.URL+"/rooms", map[string]string{"visibility": "public"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	code, _ := body["code"].(string)
	require.Len(t, code, 6)
	return code
}

func dial(t *testing.T, srv *httptest.Server, code, participant, name, actor string) *websocket.Conn {
	t.Helper()
	q := url.Values{"code": {code}, "participant": {participant}, "name": {name}, "actor": {actor}}
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?" + q.Encode()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, u, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

// readUntil reads frames until one of the wanted kind arrives
func readUntil[T protocol.ServerMessage](t *testing.T, conn *websocket.Conn) T {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		_, data, err := conn.Read(ctx)
		require.NoError(t, err)
		m, err := protocol.DecodeServer(data)
		require.NoError(t, err)
		if v, ok := m.(T); ok {
			return v
		}
	}
}

func send(t *testing.T, conn *websocket.Conn, m protocol.ClientMessage) {
	t.Helper()
	payload, err := protocol.Encode(m)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, payload))
}

func TestEndToEnd_TwoParticipantsSeeIdenticalCombat(t *testing.T) {
	srv := newTestServer(t)
	code := createRoom(t, srv)

	host := dial(t, srv, code, "p-host", "Aria", "hero")
	state := readUntil[protocol.RoomState](t, host)
	assert.Equal(t, "p-host", state.Self)

	guest := dial(t, srv, code, "p-guest", "Bram", "rogue")
	readUntil[protocol.RoomState](t, guest)
	readUntil[protocol.PlayerJoined](t, host)

	send(t, host, protocol.StartCombat{})

	a := readUntil[protocol.CombatUpdate](t, host)
	b := readUntil[protocol.CombatUpdate](t, guest)
	require.NotNil(t, a.Combat)
	assert.Equal(t, a, b)
	assert.Equal(t, "hero", a.Combat.Order[0].ActorID)

	// guest acts out of turn over REST
	resp, body := postJSON(t, srv.URL+"/rooms/"+code+"/pass", map[string]string{"participantId": "p-guest"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, string(protocol.CodeNotActor), body["code"])
	assert.NotEmpty(t, body["error"])

	resp, body = postJSON(t, srv.URL+"/rooms/"+code+"/pass", map[string]string{"participantId": "p-host"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Greater(t, body["version"], float64(a.Version))

	a = readUntil[protocol.CombatUpdate](t, host)
	b = readUntil[protocol.CombatUpdate](t, guest)
	assert.Equal(t, a, b)
	assert.Equal(t, 1, a.Combat.Index)
}

func TestWebsocket_MalformedFrameKeepsConnection(t *testing.T) {
	srv := newTestServer(t)
	code := createRoom(t, srv)
	conn := dial(t, srv, code, "p1", "Aria", "hero")
	readUntil[protocol.RoomState](t, conn)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`{"type":"dance"}`)))

	frame := readUntil[protocol.Error](t, conn)
	assert.Equal(t, protocol.CodeUnknownType, frame.Code)

	send(t, conn, protocol.GetCombatState{})
	upd := readUntil[protocol.CombatUpdate](t, conn)
	assert.Nil(t, upd.Combat)
}

func TestWebsocket_UnknownRoom(t *testing.T) {
	srv := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, resp, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws?code=NOPE00", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGateway_Errors(t *testing.T) {
	srv := newTestServer(t)
	code := createRoom(t, srv)
	conn := dial(t, srv, code, "p1", "Aria", "hero")
	readUntil[protocol.RoomState](t, conn)

	tests := []struct {
		name   string
		path   string
		body   any
		status int
		code   protocol.ErrorCode
	}{
		{"unknown room", "/rooms/NOPE00/pass", map[string]string{"participantId": "p1"}, http.StatusNotFound, protocol.CodeNotFound},
		{"missing participant", "/rooms/" + code + "/pass", map[string]string{}, http.StatusBadRequest, protocol.CodeBadRequest},
		{"not in combat", "/rooms/" + code + "/pass", map[string]string{"participantId": "p1"}, http.StatusConflict, protocol.CodeNotInCombat},
		{"unknown participant", "/rooms/" + code + "/pass", map[string]string{"participantId": "ghost"}, http.StatusNotFound, protocol.CodeNotFound},
		{"unknown suggestion", "/rooms/" + code + "/suggestions/nope/cancel", map[string]string{"participantId": "p1"}, http.StatusNotFound, protocol.CodeNotFound},
		{"bad hold", "/rooms/" + code + "/hold", map[string]string{"participantId": "p1", "holdType": "end"}, http.StatusConflict, protocol.CodeNotInCombat},
		{"bad notification", "/rooms/" + code + "/notifications", map[string]string{"type": "weather"}, http.StatusBadRequest, protocol.CodeUnknownType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := postJSON(t, srv.URL+tt.path, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, string(tt.code), body["code"])
		})
	}
}

func TestGateway_SuggestionIngressAndConfirm(t *testing.T) {
	srv := newTestServer(t)
	code := createRoom(t, srv)
	conn := dial(t, srv, code, "p1", "Aria", "hero")
	readUntil[protocol.RoomState](t, conn)

	resp, body := postJSON(t, srv.URL+"/rooms/"+code+"/suggestions", map[string]any{
		"participantId": "p1",
		"text":          "I pry open the crate",
		"candidates":    []domain.Action{{Kind: domain.ActionOpen, Target: "crate"}},
		"confidence":    0.6,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id, _ := body["id"].(string)
	require.NotEmpty(t, id)

	sug := readUntil[protocol.ActionSuggestion](t, conn)
	assert.Equal(t, id, sug.Suggestion.ID)

	resp, _ = postJSON(t, srv.URL+"/rooms/"+code+"/suggestions/"+id+"/confirm", map[string]any{"participantId": "p1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resolved := readUntil[protocol.SuggestionResolved](t, conn)
	assert.Equal(t, protocol.OutcomeConfirmed, resolved.Outcome)
}

func TestRooms_ListAndGet(t *testing.T) {
	srv := newTestServer(t)
	public := createRoom(t, srv)

	resp, _ := postJSON(t, srv.URL+"/rooms", map[string]string{"visibility": "private"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	res, err := http.Get(srv.URL + "/rooms")
	require.NoError(t, err)
	defer res.Body.Close()
	var list []roomSummary
	require.NoError(t, json.NewDecoder(res.Body).Decode(&list))
	require.Len(t, list, 1)
	assert.Equal(t, public, list[0].Code)

	res2, err := http.Get(srv.URL + "/rooms/" + public)
	require.NoError(t, err)
	defer res2.Body.Close()
	var state protocol.RoomState
	require.NoError(t, json.NewDecoder(res2.Body).Decode(&state))
	assert.Equal(t, public, state.Room.Code)
}

func TestStatusFor(t *testing.T) {
	tests := map[protocol.ErrorCode]int{
		protocol.CodeNotAuthorized: http.StatusForbidden,
		protocol.CodeNotActor:      http.StatusConflict,
		protocol.CodeInvalidHold:   http.StatusConflict,
		protocol.CodeRoomEnded:     http.StatusGone,
		protocol.CodeBadRequest:    http.StatusBadRequest,
		protocol.CodeInternal:      http.StatusInternalServerError,
	}
	for code, want := range tests {
		if got := StatusFor(code); got != want {
			t.Fatalf("StatusFor(%s) = %d, want %d", code, got, want)
		}
	}
}

func TestGenerateCode(t *testing.T) {
	code, err := GenerateCode()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(code) != 6 || strings.ToUpper(code) != code {
		t.Fatalf("unexpected code %q", code)
	}
}
