package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/DoyleJ11/gameroom/internal/hub"
	"github.com/DoyleJ11/gameroom/internal/room"
	"github.com/DoyleJ11/gameroom/pkg/protocol"
	"github.com/coder/websocket"
	"go.uber.org/zap"
)

type Options struct {
	Logger       *zap.Logger
	OutboxSize   int
	WriteTimeout time.Duration

	// ReadIdleTimeout closes connections that send nothing for that long.
	// Zero disables it.
	ReadIdleTimeout time.Duration
}

// Handler serves GET /ws?code=&participant=&name=&actor=. A known
// participant id reattaches to the roster entry it had before.
func Handler(h *hub.Hub, opts Options) http.HandlerFunc {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.OutboxSize <= 0 {
		opts.OutboxSize = 16
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 3 * time.Second
	}

	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		code := q.Get("code")
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			return
		}

		rm, err := h.Get(r.Context(), code)
		if errors.Is(err, hub.ErrRoomNotFound) {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}
		if err != nil {
			opts.Logger.Error("ws lookup room", zap.String("room", code), zap.Error(err))
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			// In dev ONLY, you can loosen origin checks:
			// OriginPatterns: []string{"http://localhost:*", "http://127.0.0.1:*"},
		})
		if err != nil {
			return
		}
		defer conn.CloseNow()

		out := make(chan protocol.ServerMessage, opts.OutboxSize)
		reply := make(chan room.JoinResult, 1)
		join := room.Join{
			ParticipantID: q.Get("participant"),
			Name:          q.Get("name"),
			ActorID:       q.Get("actor"),
			Outbox:        out,
			Reply:         reply,
		}
		if err := rm.Send(r.Context(), join); err != nil {
			conn.Close(websocket.StatusGoingAway, "room closed")
			return
		}
		var res room.JoinResult
		select {
		case res = <-reply:
		case <-rm.Done():
			conn.Close(websocket.StatusGoingAway, "room closed")
			return
		}
		if res.Err != nil {
			_ = writeFrame(r.Context(), conn, room.ErrorFrame(res.Err), opts.WriteTimeout)
			conn.Close(websocket.StatusPolicyViolation, res.Err.Error())
			return
		}
		pid := res.Participant.ID
		log := opts.Logger.With(zap.String("room", code), zap.String("participant", pid))
		log.Debug("ws connected")

		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = rm.Send(ctx, room.Detach{ParticipantID: pid, Outbox: out})
		}()

		// Writer goroutine
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for {
				select {
				case <-writeCtx.Done():
					return
				case m, ok := <-out:
					if !ok {
						// kicked, ended, dropped as slow or replaced
						conn.Close(websocket.StatusNormalClosure, "closed by room")
						return
					}
					if err := writeFrame(writeCtx, conn, m, opts.WriteTimeout); err != nil {
						log.Debug("ws write", zap.Error(err))
						conn.CloseNow()
						return
					}
				}
			}
		}()

		// Reader loop
		for {
			ctx, cancel := r.Context(), context.CancelFunc(func() {})
			if opts.ReadIdleTimeout > 0 {
				ctx, cancel = context.WithTimeout(r.Context(), opts.ReadIdleTimeout)
			}
			_, data, err := conn.Read(ctx)
			cancel()
			if err != nil {
				// Treat clean close/going-away as normal:
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					log.Debug("ws read", zap.Error(err))
				}
				return
			}

			msg, err := protocol.DecodeClient(data)
			if err != nil {
				_ = writeFrame(r.Context(), conn, room.ErrorFrame(err), opts.WriteTimeout)
				continue
			}

			if err := rm.Send(r.Context(), room.FromClient{ParticipantID: pid, Msg: msg}); err != nil {
				return
			}
		}
	}
}

func writeFrame(ctx context.Context, conn *websocket.Conn, m protocol.ServerMessage, timeout time.Duration) error {
	payload, err := protocol.Encode(m)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, payload)
}
