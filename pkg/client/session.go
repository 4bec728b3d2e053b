package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/DoyleJ11/gameroom/pkg/domain"
	"github.com/DoyleJ11/gameroom/pkg/intent"
	"github.com/DoyleJ11/gameroom/pkg/protocol"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultGatewayTimeout = 10 * time.Second

// Config describes one participant's session in one room.
type Config struct {
	BaseURL       string // http(s) address of the room server
	RoomCode      string
	ParticipantID string // generated when empty; reuse it to rejoin
	Name          string
	ActorID       string

	Logger         *zap.Logger
	Manager        *Manager
	GatewayTimeout time.Duration
}

type UpdateKind int

const (
	// UpdateMessage carries a server message after it was applied locally.
	UpdateMessage UpdateKind = iota
	// UpdateConnection reports a connectivity change.
	UpdateConnection
	// UpdateResult reports the outcome of a gateway call.
	UpdateResult
	// UpdateExit is the last update; the session no longer talks to the room.
	UpdateExit
)

// Update is what a session reports to its owner, in order.
type Update struct {
	Kind    UpdateKind
	Message protocol.ServerMessage
	State   ConnectionState
	Attempt int
	Wait    time.Duration
	Op      string
	Version int
	Err     error
}

// Snapshot is a copy of the session's local view.
type Snapshot struct {
	Self        string
	Room        domain.Room
	Version     int
	Optimistic  bool
	Connection  ConnectionState
	Suggestions []PendingSuggestion
}

// Session joins one room and keeps a local view of it. Every state change
// runs on a single event loop goroutine: inbound messages, gateway results
// and the caller's commands are queued onto it.
type Session struct {
	cfg     Config
	log     *zap.Logger
	gateway *Gateway
	channel *Channel

	sync        *Synchronizer
	suggestions *Suggestions
	exited      bool

	events  chan func()
	updates chan Update

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Open starts a session and connects in the background. Connectivity and
// room changes arrive on Updates.
func Open(ctx context.Context, cfg Config) (*Session, error) {
	if cfg.RoomCode == "" {
		return nil, errors.New("client.Open: room code is required")
	}
	if cfg.ParticipantID == "" {
		cfg.ParticipantID = uuid.NewString()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Manager == nil {
		cfg.Manager = NewManager(nil, WithLogger(cfg.Logger))
	}
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = defaultGatewayTimeout
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")

	wsURL, err := roomURL(cfg)
	if err != nil {
		return nil, fmt.Errorf("client.Open: %w", err)
	}

	sctx, cancel := context.WithCancel(ctx)
	s := &Session{
		cfg:         cfg,
		log:         cfg.Logger.With(zap.String("room", cfg.RoomCode), zap.String("participant", cfg.ParticipantID)),
		gateway:     NewGateway(cfg.BaseURL, cfg.ParticipantID),
		sync:        NewSynchronizer(cfg.ParticipantID),
		suggestions: NewSuggestions(),
		events:      make(chan func(), 64),
		updates:     make(chan Update, 64),
		ctx:         sctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}

	s.channel = cfg.Manager.Connect(sctx, wsURL, s.onFrame, Hooks{
		OnOpen:  func() { s.post(s.onOpen) },
		OnClose: func(err error) { s.post(func() { s.onDrop(err) }) },
		OnRetry: func(attempt int, wait time.Duration) {
			s.post(func() {
				s.emit(Update{Kind: UpdateConnection, State: StateReconnecting, Attempt: attempt, Wait: wait})
			})
		},
	})
	go s.loop()
	return s, nil
}

func roomURL(cfg Config) (string, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	q := url.Values{"code": {cfg.RoomCode}, "participant": {cfg.ParticipantID}}
	if cfg.Name != "" {
		q.Set("name", cfg.Name)
	}
	if cfg.ActorID != "" {
		q.Set("actor", cfg.ActorID)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Updates delivers session updates. It is closed by Close.
func (s *Session) Updates() <-chan Update { return s.updates }

func (s *Session) ParticipantID() string { return s.cfg.ParticipantID }

func (s *Session) RoomCode() string { return s.cfg.RoomCode }

func (s *Session) Gateway() *Gateway { return s.gateway }

// Close stops the session. Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.done
		s.wg.Wait()
		s.channel.Close()
		<-s.channel.Done()
		close(s.updates)
	})
}

func (s *Session) loop() {
	defer close(s.done)
	for {
		select {
		case f := <-s.events:
			f()
		case <-s.ctx.Done():
			return
		}
	}
}

// post queues f onto the event loop without waiting for it.
func (s *Session) post(f func()) {
	select {
	case s.events <- f:
	case <-s.ctx.Done():
	}
}

// do runs f on the event loop and waits for its result.
func (s *Session) do(f func() error) error {
	reply := make(chan error, 1)
	select {
	case s.events <- func() { reply <- f() }:
	case <-s.ctx.Done():
		return ErrSessionClosed
	}
	select {
	case err := <-reply:
		return err
	case <-s.ctx.Done():
		return ErrSessionClosed
	}
}

func (s *Session) emit(u Update) {
	select {
	case s.updates <- u:
	case <-s.ctx.Done():
	}
}

func (s *Session) onFrame(m protocol.ServerMessage) {
	s.post(func() { s.onMessage(m) })
}

func (s *Session) onOpen() {
	s.emit(Update{Kind: UpdateConnection, State: StateOpen})
	s.resync()
}

func (s *Session) onDrop(err error) {
	if s.exited {
		return
	}
	s.log.Debug("connection dropped", zap.Error(err))
	s.emit(Update{Kind: UpdateConnection, State: s.channel.State(), Err: err})
}

func (s *Session) onMessage(m protocol.ServerMessage) {
	if s.exited {
		return
	}
	eff := s.sync.Apply(m)

	switch m := m.(type) {
	case protocol.RoomState:
		s.reconcileSuggestions(m.Room.Suggestions)
	case protocol.ActionSuggestion:
		if m.Suggestion.ParticipantID == s.sync.Self() {
			s.suggestions.Add(m.Suggestion)
		}
	case protocol.SuggestionResolved:
		s.suggestions.Remove(m.SuggestionID)
	case protocol.Error:
		s.log.Info("command rejected", zap.String("code", string(m.Code)), zap.String("message", m.Message))
	}
	s.emit(Update{Kind: UpdateMessage, Message: m})

	switch {
	case eff.Exit || eff.Ended:
		s.exit(nil)
	case eff.Resync:
		s.resync()
	}
}

// reconcileSuggestions keeps local edit state for suggestions the server
// still holds and forgets the rest.
func (s *Session) reconcileSuggestions(list []domain.Suggestion) {
	keep := make(map[string]bool, len(list))
	for _, sg := range list {
		if sg.ParticipantID != s.sync.Self() {
			continue
		}
		keep[sg.ID] = true
		if _, ok := s.suggestions.Get(sg.ID); !ok {
			s.suggestions.Add(sg)
		}
	}
	for _, p := range s.suggestions.List() {
		if !keep[p.ID] {
			s.suggestions.Remove(p.ID)
		}
	}
}

// resync asks for full room and combat snapshots; both replace local state.
func (s *Session) resync() {
	if !s.channel.Send(protocol.GetRoomState{}) {
		return
	}
	s.channel.Send(protocol.GetCombatState{})
}

func (s *Session) exit(err error) {
	if s.exited {
		return
	}
	s.exited = true
	s.channel.Close()
	s.emit(Update{Kind: UpdateExit, Err: err})
}

func (s *Session) send(m protocol.ClientMessage) error {
	if s.exited {
		return ErrSessionClosed
	}
	if !s.channel.Send(m) {
		return ErrNotConnected
	}
	return nil
}

// call runs a gateway request off the loop and reports it as an
// UpdateResult. A stale rejection, or any failure after a local
// prediction, triggers a resync.
func (s *Session) call(op string, predicted bool, f func(ctx context.Context) (int, error)) {
	s.callThen(op, predicted, f, nil)
}

// callThen is call with onFail run on the loop when the request fails,
// before the result is reported.
func (s *Session) callThen(op string, predicted bool, f func(ctx context.Context) (int, error), onFail func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(s.ctx, s.cfg.GatewayTimeout)
		defer cancel()
		v, err := f(ctx)
		s.post(func() {
			if err != nil {
				s.log.Info("gateway call failed", zap.String("op", op), zap.Error(err))
				if onFail != nil {
					onFail()
				}
				if predicted || codeOf(err).Stale() {
					s.resync()
				}
			}
			s.emit(Update{Kind: UpdateResult, Op: op, Version: v, Err: err})
		})
	}()
}

func (s *Session) actorID() string {
	if p, ok := s.sync.Participant(); ok && p.ActorID != "" {
		return p.ActorID
	}
	return s.cfg.ActorID
}

// Say routes free text. A confident parse is submitted directly through the
// gateway; anything else goes to the room as chat for the narrative engine.
func (s *Session) Say(text string) error {
	return s.do(func() error {
		if s.exited {
			return ErrSessionClosed
		}
		parsed, ok := intent.Parse(text, s.actorID())
		if ok && parsed.Confidence >= intent.DirectThreshold {
			s.submit(parsed.Action)
			return nil
		}
		return s.send(protocol.Chat{Text: text})
	})
}

// Act submits a structured action through the gateway.
func (s *Session) Act(a domain.Action) error {
	return s.do(func() error {
		if s.exited {
			return ErrSessionClosed
		}
		s.submit(a)
		return nil
	})
}

func (s *Session) submit(a domain.Action) {
	code, actor := s.cfg.RoomCode, s.actorID()
	switch a.Kind {
	case domain.ActionPass:
		predicted := s.sync.PredictPass(actor)
		s.call("pass", predicted, func(ctx context.Context) (int, error) {
			return s.gateway.PassTurn(ctx, code, actor)
		})
	case domain.ActionHold:
		holdType := a.HoldType
		if holdType == "" {
			holdType = domain.HoldEnd
		}
		s.call("hold", false, func(ctx context.Context) (int, error) {
			return s.gateway.HoldTurn(ctx, code, actor, holdType, a.Trigger, "")
		})
	default:
		predicted := false
		if a.Kind == domain.ActionMove && a.Destination != nil {
			predicted = s.sync.PredictMove(actor, *a.Destination)
		}
		s.call(string(a.Kind), predicted, func(ctx context.Context) (int, error) {
			return s.gateway.SubmitAction(ctx, code, actor, a)
		})
	}
}

// Emote sends free text describing what the character does.
func (s *Session) Emote(text string) error {
	return s.do(func() error { return s.send(protocol.Emote{Text: text}) })
}

func (s *Session) Pass() error {
	return s.Act(domain.Action{Kind: domain.ActionPass})
}

// Hold delays the local actor's turn. An empty trigger holds to the end of
// the round.
func (s *Session) Hold(trigger, triggerActorID string) error {
	return s.do(func() error {
		if s.exited {
			return ErrSessionClosed
		}
		code, actor := s.cfg.RoomCode, s.actorID()
		holdType := domain.HoldEnd
		if trigger != "" || triggerActorID != "" {
			holdType = domain.HoldUntil
		}
		s.call("hold", false, func(ctx context.Context) (int, error) {
			return s.gateway.HoldTurn(ctx, code, actor, holdType, trigger, triggerActorID)
		})
		return nil
	})
}

func (s *Session) StartCombat(combatants ...domain.Combatant) error {
	return s.do(func() error { return s.send(protocol.StartCombat{Combatants: combatants}) })
}

func (s *Session) NextTurn() error {
	return s.do(func() error { return s.send(protocol.NextTurn{}) })
}

func (s *Session) EndCombat() error {
	return s.do(func() error { return s.send(protocol.EndCombat{}) })
}

func (s *Session) ReleaseHold(actorID string) error {
	return s.do(func() error { return s.send(protocol.ReleaseHold{ActorID: actorID}) })
}

// Confirm submits a pending suggestion: its saved edit when there is one,
// otherwise candidate. The suggestion leaves the local set immediately and
// comes back if the server rejects the submission, so it can be retried or
// canceled.
func (s *Session) Confirm(id string, candidate int) error {
	return s.do(func() error {
		if s.exited {
			return ErrSessionClosed
		}
		p, ok := s.suggestions.Get(id)
		if !ok {
			return ErrUnknownSuggestion
		}
		s.suggestions.Remove(id)
		code := s.cfg.RoomCode
		s.callThen("confirm", false, func(ctx context.Context) (int, error) {
			return s.gateway.ConfirmSuggestion(ctx, code, id, candidate, p.Edited)
		}, s.restoreSuggestion(p))
		return nil
	})
}

// Cancel drops a pending suggestion. Nothing is submitted for it.
func (s *Session) Cancel(id string) error {
	return s.do(func() error {
		if s.exited {
			return ErrSessionClosed
		}
		p, ok := s.suggestions.Get(id)
		if !ok {
			return ErrUnknownSuggestion
		}
		s.suggestions.Remove(id)
		code := s.cfg.RoomCode
		s.callThen("cancel", false, func(ctx context.Context) (int, error) {
			return s.gateway.CancelSuggestion(ctx, code, id)
		}, s.restoreSuggestion(p))
		return nil
	})
}

// restoreSuggestion returns p to the local set after a failed confirm or
// cancel, then resyncs: the room_state that follows drops it again if the
// server resolved it after all.
func (s *Session) restoreSuggestion(p PendingSuggestion) func() {
	return func() {
		if s.exited {
			return
		}
		if _, ok := s.suggestions.Get(p.ID); !ok {
			s.suggestions.Restore(p)
		}
		s.resync()
	}
}

func (s *Session) BeginEdit(id string) error {
	return s.do(func() error { return s.suggestions.BeginEdit(id) })
}

// SaveEdit re-parses text for a suggestion being edited. It never touches
// the network.
func (s *Session) SaveEdit(id, text string) (domain.Action, error) {
	var a domain.Action
	err := s.do(func() error {
		var err error
		a, err = s.suggestions.SaveEdit(id, text, s.actorID())
		return err
	})
	return a, err
}

func (s *Session) CancelEdit(id string) error {
	return s.do(func() error { return s.suggestions.CancelEdit(id) })
}

func (s *Session) Kick(participantID string) error {
	return s.do(func() error { return s.send(protocol.Kick{ParticipantID: participantID}) })
}

// Leave removes the local participant from the room and ends the session's
// connection.
func (s *Session) Leave() error {
	return s.do(func() error {
		if err := s.send(protocol.Leave{}); err != nil {
			return err
		}
		s.exit(nil)
		return nil
	})
}

func (s *Session) EndGame() error {
	return s.do(func() error {
		if s.exited {
			return ErrSessionClosed
		}
		code := s.cfg.RoomCode
		s.call("end_game", false, func(ctx context.Context) (int, error) {
			return s.gateway.EndGame(ctx, code)
		})
		return nil
	})
}

// Resync re-fetches the room and combat state.
func (s *Session) Resync() error {
	return s.do(func() error {
		if s.exited {
			return ErrSessionClosed
		}
		if !s.channel.Send(protocol.GetRoomState{}) {
			return ErrNotConnected
		}
		s.channel.Send(protocol.GetCombatState{})
		return nil
	})
}

func (s *Session) State() (Snapshot, error) {
	var snap Snapshot
	err := s.do(func() error {
		snap = Snapshot{
			Self:        s.sync.Self(),
			Room:        s.sync.Room(),
			Version:     s.sync.Version(),
			Optimistic:  s.sync.Optimistic(),
			Connection:  s.channel.State(),
			Suggestions: s.suggestions.List(),
		}
		return nil
	})
	return snap, err
}
