package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/DoyleJ11/gameroom/pkg/domain"
	"github.com/DoyleJ11/gameroom/pkg/protocol"
)

// Gateway submits structured actions to a room over REST. It never retries;
// a rejection comes back as *APIError.
type Gateway struct {
	baseURL       string
	participantID string
	httpClient    *http.Client
}

// RoomSummary is one entry of the public room listing.
type RoomSummary struct {
	Code         string            `json:"code"`
	Visibility   domain.Visibility `json:"visibility"`
	Participants int               `json:"participants"`
	InCombat     bool              `json:"inCombat"`
}

type versionResponse struct {
	Version int `json:"version"`
}

// NewGateway creates a gateway acting as participantID.
func NewGateway(baseURL, participantID string) *Gateway {
	return &Gateway{
		baseURL:       baseURL,
		participantID: participantID,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// CreateRoom opens a new room and returns its code.
func (g *Gateway) CreateRoom(ctx context.Context, vis domain.Visibility) (string, error) {
	var out struct {
		Code string `json:"code"`
	}
	body := map[string]domain.Visibility{"visibility": vis}
	if err := g.doRequest(ctx, http.MethodPost, "/rooms", body, &out); err != nil {
		return "", fmt.Errorf("client.CreateRoom: %w", err)
	}
	return out.Code, nil
}

func (g *Gateway) ListRooms(ctx context.Context) ([]RoomSummary, error) {
	var rooms []RoomSummary
	if err := g.doRequest(ctx, http.MethodGet, "/rooms", nil, &rooms); err != nil {
		return nil, fmt.Errorf("client.ListRooms: %w", err)
	}
	return rooms, nil
}

func (g *Gateway) GetRoom(ctx context.Context, code string) (protocol.RoomState, error) {
	var state protocol.RoomState
	if err := g.doRequest(ctx, http.MethodGet, roomPath(code, ""), nil, &state); err != nil {
		return protocol.RoomState{}, fmt.Errorf("client.GetRoom: %w", err)
	}
	return state, nil
}

// SubmitAction submits a structured action for actorID, or the caller's own
// actor when actorID is empty.
func (g *Gateway) SubmitAction(ctx context.Context, code, actorID string, a domain.Action) (int, error) {
	body := struct {
		ParticipantID string        `json:"participantId"`
		ActorID       string        `json:"actorId,omitempty"`
		Action        domain.Action `json:"action"`
	}{g.participantID, actorID, a}
	v, err := g.post(ctx, roomPath(code, "/actions"), body)
	if err != nil {
		return 0, fmt.Errorf("client.SubmitAction: %w", err)
	}
	return v, nil
}

func (g *Gateway) PassTurn(ctx context.Context, code, actorID string) (int, error) {
	body := struct {
		ParticipantID string `json:"participantId"`
		ActorID       string `json:"actorId,omitempty"`
	}{g.participantID, actorID}
	v, err := g.post(ctx, roomPath(code, "/pass"), body)
	if err != nil {
		return 0, fmt.Errorf("client.PassTurn: %w", err)
	}
	return v, nil
}

func (g *Gateway) HoldTurn(ctx context.Context, code, actorID string, holdType domain.HoldType, trigger, triggerActorID string) (int, error) {
	body := struct {
		ParticipantID  string          `json:"participantId"`
		ActorID        string          `json:"actorId,omitempty"`
		HoldType       domain.HoldType `json:"holdType"`
		Trigger        string          `json:"trigger,omitempty"`
		TriggerActorID string          `json:"triggerActorId,omitempty"`
	}{g.participantID, actorID, holdType, trigger, triggerActorID}
	v, err := g.post(ctx, roomPath(code, "/hold"), body)
	if err != nil {
		return 0, fmt.Errorf("client.HoldTurn: %w", err)
	}
	return v, nil
}

// ConfirmSuggestion confirms candidate, or edited when it is non-nil.
func (g *Gateway) ConfirmSuggestion(ctx context.Context, code, id string, candidate int, edited *domain.Action) (int, error) {
	body := struct {
		ParticipantID string         `json:"participantId"`
		Candidate     int            `json:"candidate,omitempty"`
		Action        *domain.Action `json:"action,omitempty"`
	}{g.participantID, candidate, edited}
	v, err := g.post(ctx, roomPath(code, "/suggestions/"+url.PathEscape(id)+"/confirm"), body)
	if err != nil {
		return 0, fmt.Errorf("client.ConfirmSuggestion: %w", err)
	}
	return v, nil
}

func (g *Gateway) CancelSuggestion(ctx context.Context, code, id string) (int, error) {
	v, err := g.post(ctx, roomPath(code, "/suggestions/"+url.PathEscape(id)+"/cancel"), g.self())
	if err != nil {
		return 0, fmt.Errorf("client.CancelSuggestion: %w", err)
	}
	return v, nil
}

func (g *Gateway) EndGame(ctx context.Context, code string) (int, error) {
	v, err := g.post(ctx, roomPath(code, "/end"), g.self())
	if err != nil {
		return 0, fmt.Errorf("client.EndGame: %w", err)
	}
	return v, nil
}

func (g *Gateway) self() any {
	return struct {
		ParticipantID string `json:"participantId"`
	}{g.participantID}
}

func roomPath(code, suffix string) string {
	return "/rooms/" + url.PathEscape(code) + suffix
}

func (g *Gateway) post(ctx context.Context, path string, body any) (int, error) {
	var out versionResponse
	if err := g.doRequest(ctx, http.MethodPost, path, body, &out); err != nil {
		return 0, err
	}
	return out.Version, nil
}

func (g *Gateway) doRequest(ctx context.Context, method, path string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close

	if resp.StatusCode >= 400 {
		respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // 1 MB max error body
		if readErr != nil {
			return &APIError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("failed to read body: %v", readErr)}
		}
		var apiErr struct {
			Error string             `json:"error"`
			Code  protocol.ErrorCode `json:"code"`
		}
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error != "" {
			return &APIError{StatusCode: resp.StatusCode, Code: apiErr.Code, Message: apiErr.Error}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
