package hub

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/DoyleJ11/gameroom/internal/engine"
	"github.com/DoyleJ11/gameroom/internal/narrative"
	"github.com/DoyleJ11/gameroom/internal/room"
	"github.com/DoyleJ11/gameroom/internal/store"
	"github.com/DoyleJ11/gameroom/pkg/domain"
	"go.uber.org/zap"
)

var ErrRoomExists = errors.New("room already exists")
var ErrRoomNotFound = errors.New("room not found")
var ErrClosed = errors.New("hub closed")

const (
	journalTimeout        = 2 * time.Second
	defaultEndedRetention = 10 * time.Minute
)

type HubMsg interface{ isHubMsg() }

type RoomResult struct {
	Room *room.Room
	Err  error
}

// CreateRoom fails with ErrRoomExists if the code is taken.
type CreateRoom struct {
	Code       string
	Visibility domain.Visibility
	Reply      chan RoomResult
}

// GetRoom falls back to the journal for rooms this process has not seen.
type GetRoom struct {
	Code  string
	Reply chan RoomResult
}

// RemoveRoom stops and forgets the room under Code. When Room is set, only
// that instance is removed.
type RemoveRoom struct {
	Code string
	Room *room.Room
}

// ListRooms answers with the live public rooms, ordered by code.
type ListRooms struct {
	Reply chan []*room.Room
}

type ShutdownHub struct{}

func (CreateRoom) isHubMsg()  {}
func (GetRoom) isHubMsg()     {}
func (RemoveRoom) isHubMsg()  {}
func (ListRooms) isHubMsg()   {}
func (ShutdownHub) isHubMsg() {}

// Options are applied to every room the hub creates.
type Options struct {
	Logger        *zap.Logger
	Journal       store.Journal // optional
	Narrator      narrative.Engine
	Roller        engine.Roller
	Resolver      engine.Resolver
	RoomInboxSize int

	// EndedRetention is how long an ended room stays live before eviction.
	EndedRetention time.Duration
}

type Hub struct {
	opts   Options
	log    *zap.Logger
	inbox  chan HubMsg
	rooms  map[string]*room.Room
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func NewHub(parent context.Context, opts Options) *Hub {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.EndedRetention <= 0 {
		opts.EndedRetention = defaultEndedRetention
	}
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		opts:   opts,
		log:    opts.Logger.Named("hub"),
		inbox:  make(chan HubMsg, 64),
		rooms:  make(map[string]*room.Room),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

// Done is closed once the hub has shut down.
func (h *Hub) Done() <-chan struct{} { return h.done }

func (h *Hub) Create(ctx context.Context, code string, vis domain.Visibility) (*room.Room, error) {
	reply := make(chan RoomResult, 1)
	return h.ask(ctx, CreateRoom{Code: code, Visibility: vis, Reply: reply}, reply)
}

func (h *Hub) Get(ctx context.Context, code string) (*room.Room, error) {
	reply := make(chan RoomResult, 1)
	return h.ask(ctx, GetRoom{Code: code, Reply: reply}, reply)
}

func (h *Hub) List(ctx context.Context) ([]*room.Room, error) {
	reply := make(chan []*room.Room, 1)
	if err := h.send(ctx, ListRooms{Reply: reply}); err != nil {
		return nil, err
	}
	select {
	case rooms := <-reply:
		return rooms, nil
	case <-h.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *Hub) ask(ctx context.Context, m HubMsg, reply chan RoomResult) (*room.Room, error) {
	if err := h.send(ctx, m); err != nil {
		return nil, err
	}
	select {
	case res := <-reply:
		return res.Room, res.Err
	case <-h.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *Hub) send(ctx context.Context, m HubMsg) error {
	select {
	case h.inbox <- m:
		return nil
	case <-h.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) loop() {
	defer close(h.done)
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateRoom:
				if h.rooms[msg.Code] != nil {
					msg.Reply <- RoomResult{Err: ErrRoomExists}
					break
				}
				rm, err := h.create(msg.Code, msg.Visibility)
				msg.Reply <- RoomResult{Room: rm, Err: err}

			case GetRoom:
				if rm := h.rooms[msg.Code]; rm != nil {
					msg.Reply <- RoomResult{Room: rm}
					break
				}
				rm, err := h.restore(msg.Code)
				msg.Reply <- RoomResult{Room: rm, Err: err}

			case RemoveRoom:
				rm := h.rooms[msg.Code]
				if rm == nil || (msg.Room != nil && msg.Room != rm) {
					break
				}
				stop(rm)
				delete(h.rooms, msg.Code)
				h.log.Info("room evicted", zap.String("room", msg.Code))

			case ListRooms:
				var out []*room.Room
				for _, rm := range h.rooms {
					if rm.Visibility() == domain.VisibilityPublic {
						out = append(out, rm)
					}
				}
				sort.Slice(out, func(i, j int) bool { return out[i].Code() < out[j].Code() })
				msg.Reply <- out

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) shutdown() {
	for _, rm := range h.rooms {
		stop(rm)
	}
	clear(h.rooms)
	h.cancel()
	h.log.Info("hub stopped")
}

// stop asks a room to shut down without blocking on a full inbox; the hub
// context cancellation stops it either way.
func stop(rm *room.Room) {
	select {
	case rm.Inbox() <- room.Shutdown{}:
	default:
	}
}

func (h *Hub) create(code string, vis domain.Visibility) (*room.Room, error) {
	if vis == "" {
		vis = domain.VisibilityPublic
	}
	if h.opts.Journal != nil {
		ctx, cancel := context.WithTimeout(h.ctx, journalTimeout)
		defer cancel()
		err := h.opts.Journal.SaveRoom(ctx, code, vis)
		if errors.Is(err, store.ErrExists) {
			// journaled by an earlier process; the caller picks another code
			return nil, ErrRoomExists
		}
		if err != nil {
			return nil, fmt.Errorf("hub.create: %w", err)
		}
	}
	rm := h.newRoom(room.Config{Code: code, Visibility: vis})
	h.log.Info("room created", zap.String("room", code), zap.String("visibility", string(vis)))
	return rm, nil
}

func (h *Hub) restore(code string) (*room.Room, error) {
	if h.opts.Journal == nil {
		return nil, ErrRoomNotFound
	}
	ctx, cancel := context.WithTimeout(h.ctx, journalTimeout)
	defer cancel()

	rec, err := h.opts.Journal.LoadRoom(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("hub.restore: %w", err)
	}
	rm := h.newRoom(room.Config{
		Code:       code,
		Visibility: rec.Visibility,
		Ended:      rec.Ended,
		History:    rec.Log,
	})
	h.log.Info("room restored", zap.String("room", code), zap.Int("entries", len(rec.Log)))
	if rec.Ended {
		h.evictLater(code, rm)
	}
	return rm, nil
}

func (h *Hub) newRoom(cfg room.Config) *room.Room {
	cfg.InboxSize = h.opts.RoomInboxSize
	cfg.Logger = h.opts.Logger
	cfg.Narrator = h.opts.Narrator
	cfg.Roller = h.opts.Roller
	cfg.Resolver = h.opts.Resolver
	cfg.Journal = h.opts.Journal
	var rm *room.Room
	cfg.OnEnded = func(code string) { h.evictLater(code, rm) }
	rm = room.New(h.ctx, cfg)
	h.rooms[cfg.Code] = rm
	return rm
}

// evictLater removes rm once EndedRetention has passed. Clients still
// reading the ended room keep working until then; later reads restore it
// from the journal.
func (h *Hub) evictLater(code string, rm *room.Room) {
	time.AfterFunc(h.opts.EndedRetention, func() {
		_ = h.send(h.ctx, RemoveRoom{Code: code, Room: rm})
	})
}
