package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"time"

	"github.com/DoyleJ11/gameroom/internal/hub"
	"github.com/DoyleJ11/gameroom/internal/room"
	"github.com/DoyleJ11/gameroom/pkg/domain"
	"github.com/DoyleJ11/gameroom/pkg/protocol"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	requestTimeout = 5 * time.Second
	maxBodyBytes   = 1 << 20
)

func GenerateCode() (string, error) {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	code := make([]byte, 6)
	for i := 0; i < 6; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		code[i] = charset[num.Int64()]
	}
	return string(code), nil
}

type handlers struct {
	hub *hub.Hub
	log *zap.Logger
}

type errorBody struct {
	Error string             `json:"error"`
	Code  protocol.ErrorCode `json:"code"`
}

type versionBody struct {
	Version int `json:"version"`
}

type createRoomRequest struct {
	Visibility domain.Visibility `json:"visibility,omitempty"`
}

type actionRequest struct {
	ParticipantID string        `json:"participantId"`
	ActorID       string        `json:"actorId,omitempty"`
	Action        domain.Action `json:"action"`
}

type passRequest struct {
	ParticipantID string `json:"participantId"`
	ActorID       string `json:"actorId,omitempty"`
}

type holdRequest struct {
	ParticipantID  string          `json:"participantId"`
	ActorID        string          `json:"actorId,omitempty"`
	HoldType       domain.HoldType `json:"holdType"`
	Trigger        string          `json:"trigger,omitempty"`
	TriggerActorID string          `json:"triggerActorId,omitempty"`
}

type confirmRequest struct {
	ParticipantID string         `json:"participantId"`
	Candidate     int            `json:"candidate,omitempty"`
	Action        *domain.Action `json:"action,omitempty"`
}

type participantRequest struct {
	ParticipantID string `json:"participantId"`
}

// suggestionRequest is posted by an external narrative engine.
type suggestionRequest struct {
	ParticipantID string          `json:"participantId"`
	ActorID       string          `json:"actorId,omitempty"`
	Text          string          `json:"text"`
	Candidates    []domain.Action `json:"candidates"`
	Confidence    float64         `json:"confidence"`
}

// notificationRequest is posted by inventory and character stores.
type notificationRequest struct {
	Type    protocol.Kind   `json:"type"`
	ActorID string          `json:"actorId"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type roomSummary struct {
	Code         string            `json:"code"`
	Visibility   domain.Visibility `json:"visibility"`
	Participants int               `json:"participants"`
	InCombat     bool              `json:"inCombat"`
}

func (h *handlers) createRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if r.ContentLength != 0 {
		if !decode(w, r, &req) {
			return
		}
	}
	switch req.Visibility {
	case "", domain.VisibilityPublic, domain.VisibilityPrivate:
	default:
		writeError(w, http.StatusBadRequest, protocol.CodeBadRequest, "unknown visibility")
		return
	}

	for {
		code, err := GenerateCode()
		if err != nil {
			h.log.Error("generate room code", zap.Error(err))
			writeError(w, http.StatusInternalServerError, protocol.CodeInternal, "failed to generate code")
			return
		}
		rm, err := h.hub.Create(r.Context(), code, req.Visibility)
		if errors.Is(err, hub.ErrRoomExists) {
			h.log.Debug("collision on code, regenerating", zap.String("room", code))
			continue
		}
		if err != nil {
			h.log.Error("create room", zap.Error(err))
			writeError(w, http.StatusInternalServerError, protocol.CodeInternal, "failed to create room")
			return
		}
		writeJSON(w, http.StatusCreated, struct {
			Code       string            `json:"code"`
			Visibility domain.Visibility `json:"visibility"`
		}{Code: rm.Code(), Visibility: rm.Visibility()})
		return
	}
}

func (h *handlers) listRooms(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	rooms, err := h.hub.List(ctx)
	if err != nil {
		h.log.Error("list rooms", zap.Error(err))
		writeError(w, http.StatusInternalServerError, protocol.CodeInternal, "failed to list rooms")
		return
	}

	out := make([]roomSummary, 0, len(rooms))
	for _, rm := range rooms {
		v, err := rm.Snapshot(ctx)
		if err != nil {
			continue // stopped while we were listing
		}
		if v.Room.Ended {
			continue // finished games are not listed
		}
		out = append(out, roomSummary{
			Code:         v.Room.Code,
			Visibility:   v.Room.Visibility,
			Participants: len(v.Room.Participants),
			InCombat:     v.Room.Combat != nil,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) getRoom(w http.ResponseWriter, r *http.Request) {
	rm, ok := h.room(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	v, err := rm.Snapshot(ctx)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, protocol.RoomState{Version: v.Version, Room: v.Room})
}

func (h *handlers) submitAction(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if !decode(w, r, &req) || !requireParticipant(w, req.ParticipantID) {
		return
	}
	h.do(w, r, req.ParticipantID, protocol.SubmitAction{ActorID: req.ActorID, Action: req.Action})
}

func (h *handlers) passTurn(w http.ResponseWriter, r *http.Request) {
	var req passRequest
	if !decode(w, r, &req) || !requireParticipant(w, req.ParticipantID) {
		return
	}
	h.do(w, r, req.ParticipantID, protocol.PassTurn{ActorID: req.ActorID})
}

func (h *handlers) holdTurn(w http.ResponseWriter, r *http.Request) {
	var req holdRequest
	if !decode(w, r, &req) || !requireParticipant(w, req.ParticipantID) {
		return
	}
	h.do(w, r, req.ParticipantID, protocol.HoldTurn{
		ActorID:        req.ActorID,
		HoldType:       req.HoldType,
		Trigger:        req.Trigger,
		TriggerActorID: req.TriggerActorID,
	})
}

func (h *handlers) confirmSuggestion(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if !decode(w, r, &req) || !requireParticipant(w, req.ParticipantID) {
		return
	}
	h.do(w, r, req.ParticipantID, protocol.ConfirmSuggestion{
		SuggestionID: chi.URLParam(r, "id"),
		Candidate:    req.Candidate,
		Action:       req.Action,
	})
}

func (h *handlers) cancelSuggestion(w http.ResponseWriter, r *http.Request) {
	var req participantRequest
	if !decode(w, r, &req) || !requireParticipant(w, req.ParticipantID) {
		return
	}
	h.do(w, r, req.ParticipantID, protocol.CancelSuggestion{SuggestionID: chi.URLParam(r, "id")})
}

func (h *handlers) endGame(w http.ResponseWriter, r *http.Request) {
	var req participantRequest
	if !decode(w, r, &req) || !requireParticipant(w, req.ParticipantID) {
		return
	}
	h.do(w, r, req.ParticipantID, protocol.EndGame{})
}

func (h *handlers) postSuggestion(w http.ResponseWriter, r *http.Request) {
	var req suggestionRequest
	if !decode(w, r, &req) || !requireParticipant(w, req.ParticipantID) {
		return
	}
	if len(req.Candidates) == 0 {
		writeError(w, http.StatusBadRequest, protocol.CodeBadRequest, "at least one candidate is required")
		return
	}
	rm, ok := h.room(w, r)
	if !ok {
		return
	}

	s := domain.Suggestion{
		ID:            uuid.NewString(),
		ParticipantID: req.ParticipantID,
		ActorID:       req.ActorID,
		Text:          req.Text,
		Candidates:    req.Candidates,
		Confidence:    req.Confidence,
	}
	res, err := h.ask(r.Context(), rm, func(reply chan room.Result) room.Msg {
		return room.Suggest{Suggestion: s, Reply: reply}
	})
	if err == nil {
		err = res.Err
	}
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, struct {
		ID      string `json:"id"`
		Version int    `json:"version"`
	}{ID: s.ID, Version: res.Version})
}

func (h *handlers) postNotification(w http.ResponseWriter, r *http.Request) {
	var req notificationRequest
	if !decode(w, r, &req) {
		return
	}
	var msg protocol.ServerMessage
	switch req.Type {
	case protocol.KindInventoryUpdate:
		msg = protocol.InventoryUpdate{ActorID: req.ActorID, Data: req.Data}
	case protocol.KindCharacterUpdate:
		msg = protocol.CharacterUpdate{ActorID: req.ActorID, Data: req.Data}
	default:
		writeError(w, http.StatusBadRequest, protocol.CodeUnknownType, "unknown notification type")
		return
	}
	rm, ok := h.room(w, r)
	if !ok {
		return
	}

	res, err := h.ask(r.Context(), rm, func(reply chan room.Result) room.Msg {
		return room.Relay{Msg: msg, Reply: reply}
	})
	if err == nil {
		err = res.Err
	}
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, versionBody{Version: res.Version})
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// do runs one participant command against the room named in the path.
func (h *handlers) do(w http.ResponseWriter, r *http.Request, pid string, msg protocol.ClientMessage) {
	rm, ok := h.room(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	res, err := rm.Do(ctx, pid, msg)
	if err == nil {
		err = res.Err
	}
	if err != nil {
		h.log.Debug("gateway command rejected",
			zap.String("room", rm.Code()),
			zap.String("participant", pid),
			zap.String("kind", string(msg.Kind())),
			zap.Error(err))
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, versionBody{Version: res.Version})
}

func (h *handlers) ask(ctx context.Context, rm *room.Room, build func(chan room.Result) room.Msg) (room.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	reply := make(chan room.Result, 1)
	if err := rm.Send(ctx, build(reply)); err != nil {
		return room.Result{}, err
	}
	select {
	case res := <-reply:
		return res, nil
	case <-rm.Done():
		return room.Result{}, room.ErrClosed
	case <-ctx.Done():
		return room.Result{}, ctx.Err()
	}
}

func (h *handlers) room(w http.ResponseWriter, r *http.Request) (*room.Room, bool) {
	code := chi.URLParam(r, "code")
	rm, err := h.hub.Get(r.Context(), code)
	if errors.Is(err, hub.ErrRoomNotFound) {
		writeError(w, http.StatusNotFound, protocol.CodeNotFound, "room not found")
		return nil, false
	}
	if err != nil {
		h.log.Error("lookup room", zap.String("room", code), zap.Error(err))
		writeError(w, http.StatusInternalServerError, protocol.CodeInternal, "failed to load room")
		return nil, false
	}
	return rm, true
}

func (h *handlers) fail(w http.ResponseWriter, err error) {
	if errors.Is(err, context.DeadlineExceeded) {
		writeError(w, http.StatusServiceUnavailable, protocol.CodeInternal, "room did not answer in time")
		return
	}
	code := room.CodeOf(err)
	writeError(w, StatusFor(code), code, err.Error())
}

// StatusFor maps a rejection code to the gateway's HTTP status.
func StatusFor(code protocol.ErrorCode) int {
	switch code {
	case protocol.CodeNotAuthorized:
		return http.StatusForbidden
	case protocol.CodeNotFound:
		return http.StatusNotFound
	case protocol.CodeRoomEnded:
		return http.StatusGone
	case protocol.CodeNotActor,
		protocol.CodeNotInCombat,
		protocol.CodeAlreadyInCombat,
		protocol.CodeInvalidHold,
		protocol.CodeNotHeld,
		protocol.CodeNoCombatants:
		return http.StatusConflict
	case protocol.CodeBadRequest, protocol.CodeUnknownType:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, protocol.CodeBadRequest, "invalid json body")
		return false
	}
	return true
}

func requireParticipant(w http.ResponseWriter, id string) bool {
	if id == "" {
		writeError(w, http.StatusBadRequest, protocol.CodeBadRequest, "participantId is required")
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, status int, code protocol.ErrorCode, reason string) {
	writeJSON(w, status, errorBody{Error: reason, Code: code})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
