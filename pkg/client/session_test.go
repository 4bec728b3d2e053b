package client_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DoyleJ11/gameroom/internal/httpapi"
	"github.com/DoyleJ11/gameroom/internal/hub"
	"github.com/DoyleJ11/gameroom/internal/narrative"
	"github.com/DoyleJ11/gameroom/internal/ws"
	"github.com/DoyleJ11/gameroom/pkg/client"
	"github.com/DoyleJ11/gameroom/pkg/domain"
	"github.com/DoyleJ11/gameroom/pkg/protocol"
	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type constRoller int

func (c constRoller) Roll(sides int) int { return min(int(c), sides) }

func newRoomServer(t *testing.T) string {
	t.Helper()
	log := zap.NewNop()
	ctx, cancel := context.WithCancel(context.Background())
	h := hub.NewHub(ctx, hub.Options{
		Logger:   log,
		Roller:   constRoller(10),
		Narrator: narrative.Heuristic{MinConfidence: 0.3},
	})
	srv := httptest.NewServer(httpapi.SetupRoutes(h, log, ws.Options{OutboxSize: 64}))
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-h.Done()
	})
	return srv.URL
}

func openSession(t *testing.T, base, code, pid, name, actor string) *client.Session {
	t.Helper()
	m := client.NewManager(nil, client.WithBackOff(func() backoff.BackOff {
		return backoff.NewConstantBackOff(200 * time.Millisecond)
	}))
	s, err := client.Open(context.Background(), client.Config{
		BaseURL:       base,
		RoomCode:      code,
		ParticipantID: pid,
		Name:          name,
		ActorID:       actor,
		Manager:       m,
	})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

// waitFor drains updates until match accepts one.
func waitFor(t *testing.T, s *client.Session, match func(client.Update) bool) client.Update {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case u, ok := <-s.Updates():
			require.True(t, ok, "updates closed")
			if match(u) {
				return u
			}
		case <-timeout:
			t.Fatal("timed out waiting for update")
		}
	}
}

func isMessage[T protocol.ServerMessage](u client.Update) bool {
	if u.Kind != client.UpdateMessage {
		return false
	}
	_, ok := u.Message.(T)
	return ok
}

func isResult(op string) func(client.Update) bool {
	return func(u client.Update) bool { return u.Kind == client.UpdateResult && u.Op == op }
}

func TestSession_TurnsAcrossTwoParticipants(t *testing.T) {
	base := newRoomServer(t)
	code, err := client.NewGateway(base, "").CreateRoom(context.Background(), domain.VisibilityPublic)
	require.NoError(t, err)

	host := openSession(t, base, code, "p-host", "Aria", "hero")
	waitFor(t, host, isMessage[protocol.RoomState])
	guest := openSession(t, base, code, "p-guest", "Bram", "rogue")
	waitFor(t, guest, isMessage[protocol.RoomState])

	inCombat := func(u client.Update) bool {
		upd, ok := u.Message.(protocol.CombatUpdate)
		return ok && upd.Combat != nil
	}
	require.NoError(t, host.StartCombat())
	waitFor(t, host, inCombat)
	waitFor(t, guest, inCombat)

	// routed straight to the gateway; rogue does not hold the turn
	require.NoError(t, guest.Say("I pass"))
	res := waitFor(t, guest, isResult("pass"))
	require.Error(t, res.Err)
	assert.True(t, client.IsCode(res.Err, protocol.CodeNotActor))

	require.NoError(t, host.Say("pass"))
	res = waitFor(t, host, isResult("pass"))
	require.NoError(t, res.Err)

	onTurn := func(u client.Update) bool {
		upd, ok := u.Message.(protocol.CombatUpdate)
		return ok && upd.Combat != nil && upd.Combat.Index == 1
	}
	waitFor(t, host, onTurn)
	waitFor(t, guest, onTurn)

	snap, err := guest.State()
	require.NoError(t, err)
	assert.False(t, snap.Optimistic)
	assert.Equal(t, "p-guest", snap.Self)
	cur, ok := snap.Room.Combat.Current()
	require.True(t, ok)
	assert.Equal(t, "rogue", cur.ActorID)
}

func TestSession_CancelRemovesWithoutSubmitting(t *testing.T) {
	base := newRoomServer(t)
	code, err := client.NewGateway(base, "").CreateRoom(context.Background(), domain.VisibilityPrivate)
	require.NoError(t, err)

	s := openSession(t, base, code, "p1", "Aria", "hero")
	waitFor(t, s, isMessage[protocol.RoomState])

	// a named destination is below the direct threshold, so it becomes chat
	require.NoError(t, s.Say("I walk to the door"))
	u := waitFor(t, s, isMessage[protocol.ActionSuggestion])
	id := u.Message.(protocol.ActionSuggestion).Suggestion.ID

	snap, err := s.State()
	require.NoError(t, err)
	require.Len(t, snap.Suggestions, 1)

	require.NoError(t, s.BeginEdit(id))
	_, err = s.SaveEdit(id, "what a lovely evening")
	assert.ErrorIs(t, err, client.ErrNoAction)

	require.NoError(t, s.Cancel(id))
	snap, err = s.State()
	require.NoError(t, err)
	assert.Empty(t, snap.Suggestions)

	// the gateway reply and the broadcast may arrive in either order
	var gotResult, gotResolved bool
	waitFor(t, s, func(u client.Update) bool {
		if isResult("cancel")(u) {
			assert.NoError(t, u.Err)
			gotResult = true
		}
		if m, ok := u.Message.(protocol.SuggestionResolved); ok {
			assert.Equal(t, protocol.OutcomeCanceled, m.Outcome)
			gotResolved = true
		}
		return gotResult && gotResolved
	})

	require.NoError(t, s.Resync())
	waitFor(t, s, isMessage[protocol.RoomState])
	snap, err = s.State()
	require.NoError(t, err)
	for _, e := range snap.Room.Log {
		assert.NotEqual(t, domain.LogAction, e.Kind, "unexpected action: %s", e.Text)
	}
	assert.Empty(t, snap.Room.Suggestions)
}

func TestSession_RejectedConfirmKeepsSuggestion(t *testing.T) {
	base := newRoomServer(t)
	code, err := client.NewGateway(base, "").CreateRoom(context.Background(), domain.VisibilityPrivate)
	require.NoError(t, err)

	s := openSession(t, base, code, "p1", "Aria", "hero")
	waitFor(t, s, isMessage[protocol.RoomState])

	inCombat := func(u client.Update) bool {
		upd, ok := u.Message.(protocol.CombatUpdate)
		return ok && upd.Combat != nil
	}
	require.NoError(t, s.StartCombat())
	waitFor(t, s, inCombat)

	// hero is the only combatant, so holding is refused
	require.NoError(t, s.Say("I wait until the orc arrives"))
	u := waitFor(t, s, isMessage[protocol.ActionSuggestion])
	id := u.Message.(protocol.ActionSuggestion).Suggestion.ID

	require.NoError(t, s.Confirm(id, 0))
	res := waitFor(t, s, isResult("confirm"))
	require.Error(t, res.Err)
	assert.True(t, client.IsCode(res.Err, protocol.CodeInvalidHold))
	waitFor(t, s, isMessage[protocol.RoomState])

	snap, err := s.State()
	require.NoError(t, err)
	require.Len(t, snap.Suggestions, 1)
	assert.Equal(t, id, snap.Suggestions[0].ID)
	assert.Equal(t, client.SuggestionPending, snap.Suggestions[0].State)

	// still held by the server, so it can be canceled
	require.NoError(t, s.Cancel(id))
	var gotResult, gotResolved bool
	waitFor(t, s, func(u client.Update) bool {
		if isResult("cancel")(u) {
			assert.NoError(t, u.Err)
			gotResult = true
		}
		if m, ok := u.Message.(protocol.SuggestionResolved); ok && m.SuggestionID == id {
			gotResolved = true
		}
		return gotResult && gotResolved
	})
	snap, err = s.State()
	require.NoError(t, err)
	assert.Empty(t, snap.Suggestions)
}

func TestSession_KickedParticipantExits(t *testing.T) {
	base := newRoomServer(t)
	code, err := client.NewGateway(base, "").CreateRoom(context.Background(), domain.VisibilityPublic)
	require.NoError(t, err)

	host := openSession(t, base, code, "p-host", "Aria", "hero")
	waitFor(t, host, isMessage[protocol.RoomState])
	guest := openSession(t, base, code, "p-guest", "Bram", "rogue")
	waitFor(t, guest, isMessage[protocol.RoomState])
	waitFor(t, host, isMessage[protocol.PlayerJoined])

	require.NoError(t, host.Kick("p-guest"))
	waitFor(t, guest, func(u client.Update) bool { return u.Kind == client.UpdateExit })
	assert.ErrorIs(t, guest.Pass(), client.ErrSessionClosed)

	waitFor(t, host, isMessage[protocol.PlayerKicked])
	snap, err := host.State()
	require.NoError(t, err)
	assert.Len(t, snap.Room.Participants, 1)
}
