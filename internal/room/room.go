package room

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/DoyleJ11/gameroom/internal/engine"
	"github.com/DoyleJ11/gameroom/internal/narrative"
	"github.com/DoyleJ11/gameroom/pkg/domain"
	"github.com/DoyleJ11/gameroom/pkg/protocol"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	journalTimeout  = 2 * time.Second
	narratorTimeout = 10 * time.Second
)

// Journal persists what a room needs to survive a restart.
type Journal interface {
	AppendLog(ctx context.Context, code string, entry domain.LogEntry) error
	MarkEnded(ctx context.Context, code string) error
}

type Config struct {
	Code       string
	Visibility domain.Visibility
	Ended      bool              // restored rooms that already ended
	History    []domain.LogEntry // log restored from the journal
	InboxSize  int

	Logger   *zap.Logger
	Journal  Journal          // optional
	Narrator narrative.Engine // optional
	Roller   engine.Roller
	Resolver engine.Resolver
	Now      func() time.Time

	// OnEnded is called from the room goroutine once the game has ended.
	OnEnded func(code string)
}

// Room owns the canonical state of one game room. Every mutation happens on
// the room's own goroutine, in inbox order.
type Room struct {
	cfg     Config
	log     *zap.Logger
	inbox   chan Msg
	state   domain.Room
	version int
	clients map[string]chan protocol.ServerMessage
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

func New(parent context.Context, cfg Config) *Room {
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = 64
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Roller == nil {
		cfg.Roller = engine.RandRoller{}
	}
	if cfg.Resolver == nil {
		cfg.Resolver = engine.DiceResolver{Roller: cfg.Roller}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Visibility == "" {
		cfg.Visibility = domain.VisibilityPublic
	}

	ctx, cancel := context.WithCancel(parent)
	r := &Room{
		cfg:   cfg,
		log:   cfg.Logger.With(zap.String("room", cfg.Code)),
		inbox: make(chan Msg, cfg.InboxSize),
		state: domain.Room{
			Code:       cfg.Code,
			Ended:      cfg.Ended,
			Visibility: cfg.Visibility,
			Log:        append([]domain.LogEntry(nil), cfg.History...),
		},
		clients: make(map[string]chan protocol.ServerMessage),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	go r.loop()
	return r
}

// Inbox exposes the room's inbox so the ws layer and tests can send messages.
func (r *Room) Inbox() chan<- Msg { return r.inbox }

func (r *Room) Code() string { return r.cfg.Code }

func (r *Room) Visibility() domain.Visibility { return r.cfg.Visibility }

// Done is closed once the room goroutine has exited.
func (r *Room) Done() <-chan struct{} { return r.done }

// Send delivers m unless ctx expires or the room has shut down.
func (r *Room) Send(ctx context.Context, m Msg) error {
	select {
	case r.inbox <- m:
		return nil
	case <-r.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do applies msg for participantID and waits for the outcome.
func (r *Room) Do(ctx context.Context, participantID string, msg protocol.ClientMessage) (Result, error) {
	reply := make(chan Result, 1)
	if err := r.Send(ctx, FromClient{ParticipantID: participantID, Msg: msg, Reply: reply}); err != nil {
		return Result{}, err
	}
	select {
	case res := <-reply:
		return res, nil
	case <-r.done:
		return Result{}, ErrClosed
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Snapshot returns a copy of the room state.
func (r *Room) Snapshot(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if err := r.Send(ctx, GetState{Reply: reply}); err != nil {
		return View{}, err
	}
	select {
	case v := <-reply:
		return v, nil
	case <-r.done:
		return View{}, ErrClosed
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}

func (r *Room) loop() {
	defer close(r.done)
	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case m := <-r.inbox:
			switch msg := m.(type) {
			case Join:
				p, err := r.join(msg)
				msg.Reply <- JoinResult{Participant: p, Err: err}

			case Detach:
				r.detach(msg)

			case FromClient:
				err := r.apply(msg.ParticipantID, msg.Msg)
				if err != nil {
					r.log.Debug("command rejected",
						zap.String("participant", msg.ParticipantID),
						zap.String("kind", string(msg.Msg.Kind())),
						zap.Error(err))
				}
				if msg.Reply != nil {
					msg.Reply <- Result{Version: r.version, Err: err}
				} else if err != nil {
					r.sendTo(msg.ParticipantID, ErrorFrame(err))
				}

			case Suggest:
				err := r.suggest(msg.Suggestion)
				if msg.Reply != nil {
					msg.Reply <- Result{Version: r.version, Err: err}
				}

			case Relay:
				var err error
				if r.state.Ended {
					err = ErrRoomEnded
				} else {
					r.broadcast(msg.Msg)
				}
				if msg.Reply != nil {
					msg.Reply <- Result{Version: r.version, Err: err}
				}

			case GetState:
				msg.Reply <- View{
					Version:    r.version,
					NumClients: len(r.clients),
					Room:       r.state.Clone(),
				}

			case Shutdown:
				r.shutdown()
				return
			}
		}
	}
}

func (r *Room) shutdown() {
	for id, ch := range r.clients {
		close(ch) // no more frames for this client
		delete(r.clients, id)
	}
	r.cancel()
}

func (r *Room) join(msg Join) (domain.Participant, error) {
	if r.state.Ended {
		return domain.Participant{}, ErrRoomEnded
	}

	id := msg.ParticipantID
	if id == "" {
		id = uuid.NewString()
	}

	i := r.indexOf(id)
	rejoin := i >= 0
	if !rejoin {
		role := domain.RolePlayer
		if !r.hasHost() {
			role = domain.RoleHost
		}
		r.state.Participants = append(r.state.Participants, domain.Participant{ID: id, Role: role})
		i = len(r.state.Participants) - 1
	}

	p := &r.state.Participants[i]
	if msg.Name != "" {
		p.Name = msg.Name
	} else if p.Name == "" {
		p.Name = "Adventurer"
	}
	if msg.ActorID != "" {
		p.ActorID = msg.ActorID
	}
	p.Connected = true
	joined := *p

	if old, ok := r.clients[id]; ok && old != msg.Outbox {
		close(old) // superseded connection
	}
	r.clients[id] = msg.Outbox
	r.version++

	r.sendTo(id, r.roomState(id))
	r.broadcastExcept(id, protocol.PlayerJoined{Participant: joined})
	if !rejoin {
		r.appendLog(domain.LogSystem, "", joined.Name+" joined the room")
	}
	r.log.Info("participant joined", zap.String("participant", id), zap.Bool("rejoin", rejoin))
	return joined, nil
}

func (r *Room) detach(msg Detach) {
	ch, ok := r.clients[msg.ParticipantID]
	if !ok || ch != msg.Outbox {
		return
	}
	delete(r.clients, msg.ParticipantID)
	if i := r.indexOf(msg.ParticipantID); i >= 0 {
		r.state.Participants[i].Connected = false
		r.version++
	}
}

func (r *Room) apply(pid string, msg protocol.ClientMessage) error {
	p, ok := r.state.Participant(pid)
	if !ok {
		return ErrUnknownParticipant
	}

	// reads are allowed after the game ends
	switch msg.(type) {
	case protocol.GetRoomState:
		r.sendTo(pid, r.roomState(pid))
		return nil
	case protocol.GetCombatState:
		r.sendTo(pid, protocol.CombatUpdate{Version: r.version, Combat: r.state.Combat.Clone()})
		return nil
	}

	if r.state.Ended {
		return ErrRoomEnded
	}

	switch m := msg.(type) {
	case protocol.StartCombat:
		combatants := m.Combatants
		if len(combatants) == 0 {
			combatants = r.linkedActors()
		}
		entries := engine.RollInitiative(combatants, r.cfg.Roller)
		return r.runCombat(p, engine.Command{Type: engine.CmdStartCombat, Entries: entries})

	case protocol.NextTurn:
		return r.runCombat(p, engine.Command{Type: engine.CmdNextTurn})

	case protocol.EndCombat:
		return r.runCombat(p, engine.Command{Type: engine.CmdEndCombat})

	case protocol.PassTurn:
		return r.runCombat(p, engine.Command{Type: engine.CmdPassTurn, ActorID: m.ActorID})

	case protocol.HoldTurn:
		return r.runCombat(p, engine.Command{
			Type:           engine.CmdHoldTurn,
			ActorID:        m.ActorID,
			HoldType:       m.HoldType,
			Trigger:        m.Trigger,
			TriggerActorID: m.TriggerActorID,
		})

	case protocol.ReleaseHold:
		return r.runCombat(p, engine.Command{Type: engine.CmdReleaseHold, ActorID: m.ActorID})

	case protocol.SubmitAction:
		return r.submit(p, m.ActorID, m.Action)

	case protocol.ConfirmSuggestion:
		return r.confirm(p, m)

	case protocol.CancelSuggestion:
		return r.cancelSuggestion(p, m.SuggestionID)

	case protocol.Chat:
		return r.chat(p, m.Text)

	case protocol.Emote:
		text := strings.TrimSpace(m.Text)
		if text == "" {
			return ErrEmptyText
		}
		r.appendLog(domain.LogAction, p.ID, text)
		return nil

	case protocol.Kick:
		return r.kick(p, m.ParticipantID)

	case protocol.Leave:
		r.removeParticipant(p.ID, protocol.PlayerLeft{ParticipantID: p.ID})
		return nil

	case protocol.EndGame:
		return r.endGame(p)

	default:
		return fmt.Errorf("%w: %s", ErrUnsupported, msg.Kind())
	}
}

// runCombat applies a turn command and broadcasts its events followed by
// the full combat state, which clients treat as authoritative.
func (r *Room) runCombat(p domain.Participant, cmd engine.Command) error {
	cmd.By = engine.Requester{ParticipantID: p.ID, ActorID: p.ActorID, Host: p.IsHost()}
	if cmd.Type != engine.CmdStartCombat && cmd.Type != engine.CmdReleaseHold && cmd.ActorID == "" && !cmd.By.Host {
		cmd.ActorID = p.ActorID
	}

	prev := r.state.Combat
	events, next, err := engine.Apply(prev, cmd)
	if err != nil {
		return err
	}

	var attack *engine.AttackResult
	if cmd.Type == engine.CmdTakeAction && cmd.Action.Kind == domain.ActionAttack {
		for _, e := range events {
			if e.Type == engine.EvtActionTaken {
				if res, ok := engine.ResolveAttack(next, e.ActorID, cmd.Action.Target, r.cfg.Resolver); ok {
					attack = &res
				}
			}
		}
	}

	r.state.Combat = next
	r.version++

	for _, e := range events {
		r.broadcast(combatEvent(e))
		r.appendLog(domain.LogCombat, p.ID, describe(e, prev, next))
		if e.Type == engine.EvtActionTaken && attack != nil {
			r.broadcast(protocol.CombatResult{
				ActorID:  attack.AttackerID,
				TargetID: attack.TargetID,
				Hit:      attack.Hit,
				Damage:   attack.Damage,
				TargetHP: attack.TargetHP,
			})
		}
	}
	r.broadcast(protocol.CombatUpdate{Version: r.version, Combat: next.Clone()})
	return nil
}

func (r *Room) submit(p domain.Participant, actorID string, action domain.Action) error {
	if r.state.Combat != nil {
		return r.runCombat(p, engine.Command{Type: engine.CmdTakeAction, ActorID: actorID, Action: action})
	}

	// outside combat an action is narration, nothing to schedule
	if !action.Kind.Valid() {
		return engine.ErrInvalidAction
	}
	if action.Kind == domain.ActionPass || action.Kind == domain.ActionHold {
		return engine.ErrNotInCombat
	}
	if actorID != "" && actorID != p.ActorID && !p.IsHost() {
		return engine.ErrNotAuthorized
	}
	r.version++
	r.appendLog(domain.LogAction, p.ID, describeAction(p.Name, action))
	return nil
}

func (r *Room) chat(p domain.Participant, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyText
	}
	r.appendLog(domain.LogChat, p.ID, text)

	if r.cfg.Narrator != nil {
		go r.interpret(narrative.Prompt{
			RoomCode:      r.cfg.Code,
			ParticipantID: p.ID,
			ActorID:       p.ActorID,
			Text:          text,
		})
	}
	return nil
}

// interpret runs the narrative engine off the room goroutine and feeds any
// suggestion back through the inbox.
func (r *Room) interpret(prompt narrative.Prompt) {
	ctx, cancel := context.WithTimeout(r.ctx, narratorTimeout)
	defer cancel()

	s, err := r.cfg.Narrator.Interpret(ctx, prompt)
	if err != nil {
		r.log.Warn("narrative engine failed", zap.String("participant", prompt.ParticipantID), zap.Error(err))
		return
	}
	if s == nil {
		return
	}
	_ = r.Send(r.ctx, Suggest{Suggestion: *s})
}

func (r *Room) suggest(s domain.Suggestion) error {
	if r.state.Ended {
		return ErrRoomEnded
	}
	if _, ok := r.state.Participant(s.ParticipantID); !ok {
		return ErrUnknownParticipant
	}
	if len(s.Candidates) == 0 {
		return ErrInvalidCandidate
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = r.cfg.Now()
	}
	r.state.Suggestions = append(r.state.Suggestions, s.Clone())
	r.version++
	r.broadcast(protocol.ActionSuggestion{Suggestion: s})
	return nil
}

func (r *Room) confirm(p domain.Participant, m protocol.ConfirmSuggestion) error {
	i, s, err := r.ownedSuggestion(p, m.SuggestionID)
	if err != nil {
		return err
	}

	var action domain.Action
	switch {
	case m.Action != nil:
		action = *m.Action
	case m.Candidate >= 0 && m.Candidate < len(s.Candidates):
		action = s.Candidates[m.Candidate]
	default:
		return ErrInvalidCandidate
	}

	actorID := s.ActorID
	if actorID == "" {
		actorID = p.ActorID
	}
	// a failed submission leaves the suggestion pending
	if err := r.submit(p, actorID, action); err != nil {
		return err
	}

	r.dropSuggestion(i, protocol.OutcomeConfirmed)
	return nil
}

func (r *Room) cancelSuggestion(p domain.Participant, id string) error {
	i, _, err := r.ownedSuggestion(p, id)
	if err != nil {
		return err
	}
	r.dropSuggestion(i, protocol.OutcomeCanceled)
	r.version++
	return nil
}

func (r *Room) ownedSuggestion(p domain.Participant, id string) (int, domain.Suggestion, error) {
	for i, s := range r.state.Suggestions {
		if s.ID != id {
			continue
		}
		if s.ParticipantID != p.ID && !p.IsHost() {
			return -1, domain.Suggestion{}, ErrNotHost
		}
		return i, s, nil
	}
	return -1, domain.Suggestion{}, ErrSuggestionNotFound
}

func (r *Room) dropSuggestion(i int, outcome protocol.SuggestionOutcome) {
	id := r.state.Suggestions[i].ID
	r.state.Suggestions = append(r.state.Suggestions[:i:i], r.state.Suggestions[i+1:]...)
	r.broadcast(protocol.SuggestionResolved{SuggestionID: id, Outcome: outcome})
}

func (r *Room) kick(p domain.Participant, target string) error {
	if !p.IsHost() {
		return ErrNotHost
	}
	if target == p.ID {
		return ErrCannotKickSelf
	}
	if r.indexOf(target) < 0 {
		return ErrUnknownParticipant
	}
	r.removeParticipant(target, protocol.PlayerKicked{ParticipantID: target})
	return nil
}

// removeParticipant takes id off the roster after telling everyone,
// including id itself, through notice. Its pending suggestions are canceled.
// A departing host hands the role to the longest-standing participant.
func (r *Room) removeParticipant(id string, notice protocol.ServerMessage) {
	i := r.indexOf(id)
	if i < 0 {
		return
	}
	gone := r.state.Participants[i]

	newHost := ""
	rest := append(r.state.Participants[:i:i], r.state.Participants[i+1:]...)
	if gone.IsHost() && len(rest) > 0 {
		rest[0].Role = domain.RoleHost
		newHost = rest[0].ID
	}
	if left, ok := notice.(protocol.PlayerLeft); ok {
		left.NewHostID = newHost
		notice = left
	}

	r.broadcast(notice)
	r.state.Participants = rest
	if ch, ok := r.clients[id]; ok {
		close(ch)
		delete(r.clients, id)
	}

	for j := len(r.state.Suggestions) - 1; j >= 0; j-- {
		if r.state.Suggestions[j].ParticipantID == id {
			r.dropSuggestion(j, protocol.OutcomeCanceled)
		}
	}
	r.version++

	verb := " left the room"
	if _, kicked := notice.(protocol.PlayerKicked); kicked {
		verb = " was removed from the room"
	}
	r.appendLog(domain.LogSystem, "", gone.Name+verb)
	r.log.Info("participant removed", zap.String("participant", id), zap.String("new_host", newHost))
}

func (r *Room) endGame(p domain.Participant) error {
	if !p.IsHost() {
		return ErrNotHost
	}
	r.appendLog(domain.LogSystem, p.ID, "The game has ended")
	r.state.Ended = true
	r.version++
	r.broadcast(protocol.GameEnded{Reason: "ended by host"})

	for id, ch := range r.clients {
		close(ch)
		delete(r.clients, id)
	}
	for i := range r.state.Participants {
		r.state.Participants[i].Connected = false
	}

	if r.cfg.Journal != nil {
		ctx, cancel := context.WithTimeout(r.ctx, journalTimeout)
		defer cancel()
		if err := r.cfg.Journal.MarkEnded(ctx, r.cfg.Code); err != nil {
			r.log.Error("journal mark ended", zap.Error(err))
		}
	}
	r.log.Info("game ended")
	if r.cfg.OnEnded != nil {
		r.cfg.OnEnded(r.cfg.Code)
	}
	return nil
}

func (r *Room) appendLog(kind domain.LogKind, author, text string) {
	entry := domain.LogEntry{
		ID:       uuid.NewString(),
		Kind:     kind,
		AuthorID: author,
		Text:     text,
		At:       r.cfg.Now(),
	}
	r.state.Log = append(r.state.Log, entry)
	r.broadcast(protocol.LogEntry{Entry: entry})

	if r.cfg.Journal != nil {
		ctx, cancel := context.WithTimeout(r.ctx, journalTimeout)
		defer cancel()
		if err := r.cfg.Journal.AppendLog(ctx, r.cfg.Code, entry); err != nil {
			r.log.Error("journal append", zap.Error(err))
		}
	}
}

func (r *Room) roomState(self string) protocol.RoomState {
	return protocol.RoomState{Version: r.version, Self: self, Room: r.state.Clone()}
}

func (r *Room) linkedActors() []domain.Combatant {
	var out []domain.Combatant
	for _, p := range r.state.Participants {
		if p.ActorID == "" {
			continue
		}
		out = append(out, domain.Combatant{ActorID: p.ActorID, Name: p.Name, Controller: domain.ControllerPlayer})
	}
	return out
}

func (r *Room) indexOf(id string) int {
	for i, p := range r.state.Participants {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func (r *Room) hasHost() bool {
	for _, p := range r.state.Participants {
		if p.IsHost() {
			return true
		}
	}
	return false
}

func (r *Room) sendTo(id string, m protocol.ServerMessage) {
	ch, ok := r.clients[id]
	if !ok {
		return
	}
	select {
	case ch <- m:
	default:
		r.dropClient(id, ch)
	}
}

func (r *Room) broadcast(m protocol.ServerMessage) {
	r.broadcastExcept("", m)
}

func (r *Room) broadcastExcept(skip string, m protocol.ServerMessage) {
	for id, ch := range r.clients {
		if id == skip {
			continue
		}
		select {
		case ch <- m:
			//ok
		default:
			// Client is slow/full - drop them.
			r.dropClient(id, ch)
		}
	}
}

func (r *Room) dropClient(id string, ch chan protocol.ServerMessage) {
	close(ch)
	delete(r.clients, id)
	if i := r.indexOf(id); i >= 0 {
		r.state.Participants[i].Connected = false
	}
	r.log.Warn("dropped slow client", zap.String("participant", id))
}
