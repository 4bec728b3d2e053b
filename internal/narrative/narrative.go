// Package narrative connects a room's chat to whatever engine narrates the
// game. An engine may answer a line of chat with a suggested action for the
// speaker to confirm.
package narrative

import (
	"context"

	"github.com/DoyleJ11/gameroom/pkg/domain"
	"github.com/DoyleJ11/gameroom/pkg/intent"
)

// Prompt is one line of chat offered to the engine.
type Prompt struct {
	RoomCode      string
	ParticipantID string
	ActorID       string
	Text          string
}

// Engine interprets chat. A nil suggestion with a nil error means the engine
// has nothing to propose.
type Engine interface {
	Interpret(ctx context.Context, p Prompt) (*domain.Suggestion, error)
}

type EngineFunc func(ctx context.Context, p Prompt) (*domain.Suggestion, error)

func (f EngineFunc) Interpret(ctx context.Context, p Prompt) (*domain.Suggestion, error) {
	return f(ctx, p)
}

// Heuristic proposes the intent parser's reading of a chat line as a
// suggestion when it clears MinConfidence.
type Heuristic struct {
	MinConfidence float64
}

func (h Heuristic) Interpret(ctx context.Context, p Prompt) (*domain.Suggestion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	parsed, ok := intent.Parse(p.Text, p.ActorID)
	if !ok || parsed.Confidence < h.MinConfidence {
		return nil, nil
	}
	return &domain.Suggestion{
		ParticipantID: p.ParticipantID,
		ActorID:       p.ActorID,
		Text:          p.Text,
		Candidates:    []domain.Action{parsed.Action},
		Confidence:    parsed.Confidence,
	}, nil
}
