package room

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DoyleJ11/gameroom/internal/engine"
	"github.com/DoyleJ11/gameroom/internal/narrative"
	"github.com/DoyleJ11/gameroom/pkg/domain"
	"github.com/DoyleJ11/gameroom/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

const wait = 200 * time.Millisecond

type constRoller int

func (c constRoller) Roll(sides int) int { return min(int(c), sides) }

type fixedResolver engine.AttackOutcome

func (f fixedResolver) ResolveAttack(_, _ domain.InitiativeEntry) engine.AttackOutcome {
	return engine.AttackOutcome(f)
}

type memJournal struct {
	mu      sync.Mutex
	entries []domain.LogEntry
	ended   []string
}

func (j *memJournal) AppendLog(_ context.Context, _ string, e domain.LogEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, e)
	return nil
}

func (j *memJournal) MarkEnded(_ context.Context, code string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.ended = append(j.ended, code)
	return nil
}

func newTestRoom(t *testing.T, cfg Config) *Room {
	t.Helper()
	cfg.Code = "ABCD"
	if cfg.Logger == nil {
		cfg.Logger = zaptest.NewLogger(t)
	}
	if cfg.Roller == nil {
		cfg.Roller = constRoller(10)
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := New(ctx, cfg)
	t.Cleanup(func() {
		cancel()
		<-r.Done()
	})
	return r
}

func join(t *testing.T, r *Room, id, name, actor string) (domain.Participant, chan protocol.ServerMessage) {
	t.Helper()
	out := make(chan protocol.ServerMessage, 64)
	reply := make(chan JoinResult, 1)
	r.Inbox() <- Join{ParticipantID: id, Name: name, ActorID: actor, Outbox: out, Reply: reply}
	select {
	case res := <-reply:
		require.NoError(t, res.Err)
		return res.Participant, out
	case <-time.After(wait):
		t.Fatalf("timed out joining %q", id)
		return domain.Participant{}, nil // unreachable
	}
}

// recvKind reads frames until one of the wanted kind arrives, so tests never hang
func recvKind[T protocol.ServerMessage](t *testing.T, ch <-chan protocol.ServerMessage) T {
	t.Helper()
	var zero T
	deadline := time.After(wait)
	for {
		select {
		case m, ok := <-ch:
			if !ok {
				t.Fatalf("outbox closed while waiting for %s", zero.Kind())
			}
			if v, ok := m.(T); ok {
				return v
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", zero.Kind())
			return zero // unreachable
		}
	}
}

func recvClosed(t *testing.T, ch <-chan protocol.ServerMessage) {
	t.Helper()
	deadline := time.After(wait)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatalf("outbox was not closed")
		}
	}
}

func do(t *testing.T, r *Room, pid string, msg protocol.ClientMessage) Result {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	res, err := r.Do(ctx, pid, msg)
	require.NoError(t, err)
	return res
}

func view(t *testing.T, r *Room) View {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	v, err := r.Snapshot(ctx)
	require.NoError(t, err)
	return v
}

func TestRoom_Join_FirstIsHostAndOthersAreNotified(t *testing.T) {
	r := newTestRoom(t, Config{})

	host, hostOut := join(t, r, "p1", "Aria", "hero")
	if host.Role != domain.RoleHost {
		t.Fatalf("first participant: want host, got %s", host.Role)
	}
	state := recvKind[protocol.RoomState](t, hostOut)
	if len(state.Room.Participants) != 1 {
		t.Fatalf("room_state on join: want 1 participant, got %d", len(state.Room.Participants))
	}

	guest, guestOut := join(t, r, "p2", "Bram", "rogue")
	if guest.Role != domain.RolePlayer {
		t.Fatalf("second participant: want player, got %s", guest.Role)
	}
	recvKind[protocol.RoomState](t, guestOut)

	joined := recvKind[protocol.PlayerJoined](t, hostOut)
	if joined.Participant.ID != "p2" || joined.Participant.ActorID != "rogue" {
		t.Fatalf("player_joined: got %+v", joined.Participant)
	}
	entry := recvKind[protocol.LogEntry](t, hostOut)
	if entry.Entry.Kind != domain.LogSystem {
		t.Fatalf("join log: want system entry, got %s", entry.Entry.Kind)
	}
}

func TestRoom_StartCombat_AllClientsReceiveIdenticalState(t *testing.T) {
	r := newTestRoom(t, Config{})
	_, hostOut := join(t, r, "p1", "Aria", "hero")
	_, guestOut := join(t, r, "p2", "Bram", "rogue")

	res := do(t, r, "p1", protocol.StartCombat{Combatants: []domain.Combatant{
		{ActorID: "rogue", Name: "Bram", Modifier: 1},
		{ActorID: "hero", Name: "Aria", Modifier: 3},
		{ActorID: "gob", Name: "Goblin", Controller: domain.ControllerMonster},
	}})
	require.NoError(t, res.Err)

	a := recvKind[protocol.CombatUpdate](t, hostOut)
	b := recvKind[protocol.CombatUpdate](t, guestOut)
	assert.Equal(t, a, b)
	require.NotNil(t, a.Combat)
	assert.Equal(t, res.Version, a.Version)

	got := make([]string, 0, len(a.Combat.Order))
	for _, e := range a.Combat.Order {
		got = append(got, e.ActorID)
	}
	assert.Equal(t, []string{"hero", "rogue", "gob"}, got)
	assert.Equal(t, 0, a.Combat.Index)
	assert.Equal(t, 1, a.Combat.Round)
}

func TestRoom_StartCombat_DefaultsToLinkedActors(t *testing.T) {
	r := newTestRoom(t, Config{})
	join(t, r, "p1", "Aria", "hero")
	join(t, r, "p2", "Bram", "")
	join(t, r, "p3", "Cass", "mage")

	require.NoError(t, do(t, r, "p1", protocol.StartCombat{}).Err)

	c := view(t, r).Room.Combat
	require.NotNil(t, c)
	require.Len(t, c.Order, 2)
	assert.Equal(t, "hero", c.Order[0].ActorID)
	assert.Equal(t, "mage", c.Order[1].ActorID)
}

func TestRoom_CombatCommands_Rejections(t *testing.T) {
	r := newTestRoom(t, Config{})
	join(t, r, "p1", "Aria", "hero")
	join(t, r, "p2", "Bram", "rogue")

	if err := do(t, r, "p2", protocol.StartCombat{}).Err; !errors.Is(err, engine.ErrNotAuthorized) {
		t.Fatalf("player start: want ErrNotAuthorized, got %v", err)
	}
	if err := do(t, r, "p1", protocol.NextTurn{}).Err; !errors.Is(err, engine.ErrNotInCombat) {
		t.Fatalf("next before start: want ErrNotInCombat, got %v", err)
	}

	require.NoError(t, do(t, r, "p1", protocol.StartCombat{}).Err)
	before := view(t, r)

	// hero is first; rogue acting now is not its turn
	if err := do(t, r, "p2", protocol.PassTurn{}).Err; !errors.Is(err, engine.ErrNotActor) {
		t.Fatalf("out of turn pass: want ErrNotActor, got %v", err)
	}
	if err := do(t, r, "p2", protocol.PassTurn{ActorID: "hero"}).Err; !errors.Is(err, engine.ErrNotAuthorized) {
		t.Fatalf("pass for someone else: want ErrNotAuthorized, got %v", err)
	}
	if err := do(t, r, "p1", protocol.StartCombat{}).Err; !errors.Is(err, engine.ErrAlreadyInCombat) {
		t.Fatalf("second start: want ErrAlreadyInCombat, got %v", err)
	}

	after := view(t, r)
	assert.Equal(t, before.Version, after.Version, "rejected commands must not bump the version")
	assert.Equal(t, before.Room.Combat, after.Room.Combat)
}

func TestRoom_RejectionWithoutReply_SendsErrorFrame(t *testing.T) {
	r := newTestRoom(t, Config{})
	join(t, r, "p1", "Aria", "hero")
	_, out := join(t, r, "p2", "Bram", "rogue")

	r.Inbox() <- FromClient{ParticipantID: "p2", Msg: protocol.NextTurn{}}

	frame := recvKind[protocol.Error](t, out)
	if frame.Code != protocol.CodeNotInCombat {
		t.Fatalf("want %s, got %s", protocol.CodeNotInCombat, frame.Code)
	}
}

func TestRoom_PassAdvancesAndLogsDistinctly(t *testing.T) {
	r := newTestRoom(t, Config{})
	join(t, r, "p1", "Aria", "hero")
	_, out := join(t, r, "p2", "Bram", "rogue")
	require.NoError(t, do(t, r, "p1", protocol.StartCombat{}).Err)

	require.NoError(t, do(t, r, "p1", protocol.PassTurn{}).Err)

	recvKind[protocol.CombatUpdate](t, out) // from start

	ev := recvKind[protocol.CombatEvent](t, out)
	assert.Equal(t, protocol.EventTurnPassed, ev.Event)
	assert.Equal(t, "hero", ev.ActorID)

	upd := recvKind[protocol.CombatUpdate](t, out)
	assert.Equal(t, 1, upd.Combat.Index)

	var passed bool
	for _, e := range view(t, r).Room.Log {
		if e.Kind == domain.LogCombat && e.Text == "Aria passes" {
			passed = true
		}
	}
	assert.True(t, passed, "pass should be logged as a pass")
}

func TestRoom_AttackBroadcastsResult(t *testing.T) {
	r := newTestRoom(t, Config{Resolver: fixedResolver{Hit: true, Damage: 3}})
	_, out := join(t, r, "p1", "Aria", "hero")

	hp := 7
	require.NoError(t, do(t, r, "p1", protocol.StartCombat{Combatants: []domain.Combatant{
		{ActorID: "hero", Name: "Aria", Modifier: 2},
		{ActorID: "gob", Name: "Goblin", HP: &hp, Controller: domain.ControllerMonster},
	}}).Err)

	require.NoError(t, do(t, r, "p1", protocol.SubmitAction{
		ActorID: "hero",
		Action:  domain.Action{Kind: domain.ActionAttack, Target: "goblin"},
	}).Err)

	res := recvKind[protocol.CombatResult](t, out)
	assert.Equal(t, "gob", res.TargetID)
	assert.True(t, res.Hit)
	require.NotNil(t, res.TargetHP)
	assert.Equal(t, 4, *res.TargetHP)

	c := view(t, r).Room.Combat
	assert.Equal(t, 4, *c.Order[1].HP)
	assert.Equal(t, 1, c.Index)
}

func TestRoom_SubmitOutsideCombat(t *testing.T) {
	r := newTestRoom(t, Config{})
	join(t, r, "p1", "Aria", "hero")
	join(t, r, "p2", "Bram", "rogue")

	require.NoError(t, do(t, r, "p2", protocol.SubmitAction{
		Action: domain.Action{Kind: domain.ActionLoot, Target: "chest"},
	}).Err)
	log := view(t, r).Room.Log
	last := log[len(log)-1]
	assert.Equal(t, domain.LogAction, last.Kind)
	assert.Equal(t, "Bram loots chest", last.Text)

	err := do(t, r, "p2", protocol.SubmitAction{Action: domain.Action{Kind: domain.ActionPass}}).Err
	assert.ErrorIs(t, err, engine.ErrNotInCombat)

	err = do(t, r, "p2", protocol.SubmitAction{ActorID: "hero", Action: domain.Action{Kind: domain.ActionSearch}}).Err
	assert.ErrorIs(t, err, engine.ErrNotAuthorized)
}

func TestRoom_ChatSuggestionConfirm(t *testing.T) {
	r := newTestRoom(t, Config{
		Logger:   zap.NewNop(),
		Narrator: narrative.Heuristic{MinConfidence: 0.3},
	})
	_, hostOut := join(t, r, "p1", "Aria", "hero")
	_, out := join(t, r, "p2", "Bram", "rogue")

	require.NoError(t, do(t, r, "p2", protocol.Chat{Text: "I loot the chest"}).Err)

	sug := recvKind[protocol.ActionSuggestion](t, out).Suggestion
	assert.Equal(t, "p2", sug.ParticipantID)
	assert.NotEmpty(t, sug.ID)
	require.Len(t, sug.Candidates, 1)
	assert.Equal(t, domain.ActionLoot, sug.Candidates[0].Kind)
	recvKind[protocol.ActionSuggestion](t, hostOut)

	// only the owner or the host may resolve it
	join(t, r, "p3", "Cass", "")
	err := do(t, r, "p3", protocol.ConfirmSuggestion{SuggestionID: sug.ID}).Err
	assert.ErrorIs(t, err, ErrNotHost)

	require.NoError(t, do(t, r, "p2", protocol.ConfirmSuggestion{SuggestionID: sug.ID}).Err)
	resolved := recvKind[protocol.SuggestionResolved](t, out)
	assert.Equal(t, sug.ID, resolved.SuggestionID)
	assert.Equal(t, protocol.OutcomeConfirmed, resolved.Outcome)
	assert.Empty(t, view(t, r).Room.Suggestions)

	err = do(t, r, "p2", protocol.ConfirmSuggestion{SuggestionID: sug.ID}).Err
	assert.ErrorIs(t, err, ErrSuggestionNotFound)
}

func TestRoom_FailedConfirmKeepsSuggestionPending(t *testing.T) {
	r := newTestRoom(t, Config{})
	join(t, r, "p1", "Aria", "hero")
	join(t, r, "p2", "Bram", "rogue")

	ctx := context.Background()
	reply := make(chan Result, 1)
	require.NoError(t, r.Send(ctx, Suggest{
		Suggestion: domain.Suggestion{
			ID:            "s1",
			ParticipantID: "p2",
			ActorID:       "rogue",
			Candidates:    []domain.Action{{Kind: domain.ActionPass}},
		},
		Reply: reply,
	}))
	require.NoError(t, (<-reply).Err)

	// pass outside combat is rejected, so the suggestion stays
	err := do(t, r, "p2", protocol.ConfirmSuggestion{SuggestionID: "s1"}).Err
	assert.ErrorIs(t, err, engine.ErrNotInCombat)
	assert.Len(t, view(t, r).Room.Suggestions, 1)

	err = do(t, r, "p2", protocol.ConfirmSuggestion{SuggestionID: "s1", Candidate: 3}).Err
	assert.ErrorIs(t, err, ErrInvalidCandidate)

	require.NoError(t, do(t, r, "p1", protocol.CancelSuggestion{SuggestionID: "s1"}).Err)
	assert.Empty(t, view(t, r).Room.Suggestions)
}

func TestRoom_KickAndLeave(t *testing.T) {
	r := newTestRoom(t, Config{})
	join(t, r, "p1", "Aria", "hero")
	_, bramOut := join(t, r, "p2", "Bram", "rogue")
	_, cassOut := join(t, r, "p3", "Cass", "mage")

	assert.ErrorIs(t, do(t, r, "p2", protocol.Kick{ParticipantID: "p3"}).Err, ErrNotHost)
	assert.ErrorIs(t, do(t, r, "p1", protocol.Kick{ParticipantID: "p1"}).Err, ErrCannotKickSelf)

	require.NoError(t, do(t, r, "p1", protocol.Kick{ParticipantID: "p3"}).Err)
	kicked := recvKind[protocol.PlayerKicked](t, cassOut)
	assert.Equal(t, "p3", kicked.ParticipantID)
	recvClosed(t, cassOut)

	// host leaving hands the role to the longest-standing participant
	require.NoError(t, do(t, r, "p1", protocol.Leave{}).Err)
	left := recvKind[protocol.PlayerLeft](t, bramOut)
	assert.Equal(t, "p1", left.ParticipantID)
	assert.Equal(t, "p2", left.NewHostID)

	v := view(t, r)
	require.Len(t, v.Room.Participants, 1)
	assert.Equal(t, domain.RoleHost, v.Room.Participants[0].Role)
}

func TestRoom_DetachAndRejoinKeepsParticipant(t *testing.T) {
	r := newTestRoom(t, Config{})
	_, out := join(t, r, "p1", "Aria", "hero")

	r.Inbox() <- Detach{ParticipantID: "p1", Outbox: make(chan protocol.ServerMessage)} // stale outbox
	r.Inbox() <- Detach{ParticipantID: "p1", Outbox: out}

	v := view(t, r)
	require.Len(t, v.Room.Participants, 1)
	assert.False(t, v.Room.Participants[0].Connected)
	assert.Equal(t, 0, v.NumClients)

	p, _ := join(t, r, "p1", "", "")
	assert.Equal(t, domain.RoleHost, p.Role)
	assert.Equal(t, "Aria", p.Name)
	assert.Equal(t, "hero", p.ActorID)
	assert.True(t, p.Connected)
}

func TestRoom_SlowClientIsDropped(t *testing.T) {
	r := newTestRoom(t, Config{})

	out := make(chan protocol.ServerMessage, 1)
	reply := make(chan JoinResult, 1)
	r.Inbox() <- Join{ParticipantID: "p1", Name: "Aria", Outbox: out, Reply: reply}
	require.NoError(t, (<-reply).Err)

	// room_state fills the buffer; the join log line no longer fits
	recvClosed(t, out)

	v := view(t, r)
	assert.Equal(t, 0, v.NumClients)
	assert.False(t, v.Room.Participants[0].Connected)
}

func TestRoom_EndGameIsTerminal(t *testing.T) {
	j := &memJournal{}
	r := newTestRoom(t, Config{Journal: j})
	_, hostOut := join(t, r, "p1", "Aria", "hero")
	_, out := join(t, r, "p2", "Bram", "rogue")
	require.NoError(t, do(t, r, "p1", protocol.StartCombat{}).Err)

	assert.ErrorIs(t, do(t, r, "p2", protocol.EndGame{}).Err, ErrNotHost)
	require.NoError(t, do(t, r, "p1", protocol.EndGame{}).Err)

	recvKind[protocol.GameEnded](t, out)
	recvClosed(t, out)
	recvClosed(t, hostOut)

	for _, msg := range []protocol.ClientMessage{
		protocol.NextTurn{},
		protocol.Chat{Text: "hello?"},
		protocol.EndGame{},
	} {
		assert.ErrorIs(t, do(t, r, "p1", msg).Err, ErrRoomEnded, "%s after end", msg.Kind())
	}

	v := view(t, r)
	assert.True(t, v.Room.Ended)
	assert.NotNil(t, v.Room.Combat, "combat state is kept for the record")

	j.mu.Lock()
	defer j.mu.Unlock()
	assert.Equal(t, []string{"ABCD"}, j.ended)
	assert.NotEmpty(t, j.entries)
}

func TestRoom_RelayAndRestoredHistory(t *testing.T) {
	history := []domain.LogEntry{{ID: "old", Kind: domain.LogNarrative, Text: "The door creaks."}}
	r := newTestRoom(t, Config{History: history})
	_, out := join(t, r, "p1", "Aria", "hero")

	state := recvKind[protocol.RoomState](t, out)
	require.NotEmpty(t, state.Room.Log)
	assert.Equal(t, "old", state.Room.Log[0].ID)

	reply := make(chan Result, 1)
	r.Inbox() <- Relay{Msg: protocol.InventoryUpdate{ActorID: "hero", Data: []byte(`{"gold":3}`)}, Reply: reply}
	require.NoError(t, (<-reply).Err)

	inv := recvKind[protocol.InventoryUpdate](t, out)
	assert.JSONEq(t, `{"gold":3}`, string(inv.Data))
}

func TestRoom_SendAfterShutdown(t *testing.T) {
	r := newTestRoom(t, Config{})
	r.Inbox() <- Shutdown{}

	select {
	case <-r.Done():
	case <-time.After(wait):
		t.Fatalf("room did not stop")
	}
	_, err := r.Snapshot(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}
