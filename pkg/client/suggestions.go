package client

import (
	"sort"

	"github.com/DoyleJ11/gameroom/pkg/domain"
	"github.com/DoyleJ11/gameroom/pkg/intent"
)

type SuggestionState int

const (
	SuggestionPending SuggestionState = iota
	SuggestionEditing
)

func (s SuggestionState) String() string {
	if s == SuggestionEditing {
		return "editing"
	}
	return "pending"
}

// PendingSuggestion is a suggestion as the local participant sees it. Draft
// is the local edit buffer and never leaves the client; Edited is set once a
// draft parsed to an action.
type PendingSuggestion struct {
	domain.Suggestion
	State  SuggestionState
	Draft  string
	Edited *domain.Action
}

// Suggestions tracks the suggestions awaiting the local participant.
// Confirmed and canceled suggestions are removed; nothing is kept for them.
// It is not safe for concurrent use.
type Suggestions struct {
	items map[string]*PendingSuggestion
}

func NewSuggestions() *Suggestions {
	return &Suggestions{items: make(map[string]*PendingSuggestion)}
}

// Add registers s as pending. A repeated id replaces the earlier copy.
func (s *Suggestions) Add(sg domain.Suggestion) {
	s.items[sg.ID] = &PendingSuggestion{Suggestion: sg.Clone(), State: SuggestionPending}
}

func (s *Suggestions) Get(id string) (PendingSuggestion, bool) {
	p, ok := s.items[id]
	if !ok {
		return PendingSuggestion{}, false
	}
	return *p, true
}

// List returns the suggestions oldest first.
func (s *Suggestions) List() []PendingSuggestion {
	out := make([]PendingSuggestion, 0, len(s.items))
	for _, p := range s.items {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *Suggestions) Len() int { return len(s.items) }

// Remove drops id and reports whether it was present.
func (s *Suggestions) Remove(id string) bool {
	if _, ok := s.items[id]; !ok {
		return false
	}
	delete(s.items, id)
	return true
}

// Restore puts p back as pending, keeping any saved edit. It is used when
// the server did not accept a confirm or cancel.
func (s *Suggestions) Restore(p PendingSuggestion) {
	p.State = SuggestionPending
	p.Draft = ""
	s.items[p.ID] = &p
}

// BeginEdit moves id to Editing with its original text as the draft.
func (s *Suggestions) BeginEdit(id string) error {
	p, ok := s.items[id]
	if !ok {
		return ErrUnknownSuggestion
	}
	if p.State != SuggestionEditing {
		p.State = SuggestionEditing
		p.Draft = p.Text
	}
	return nil
}

// SaveEdit re-parses text for actorID. Text that yields no action is
// rejected with ErrNoAction and the suggestion stays in Editing.
func (s *Suggestions) SaveEdit(id, text, actorID string) (domain.Action, error) {
	p, ok := s.items[id]
	if !ok {
		return domain.Action{}, ErrUnknownSuggestion
	}
	if p.State != SuggestionEditing {
		return domain.Action{}, ErrNotEditing
	}
	p.Draft = text
	parsed, ok := intent.Parse(text, actorID)
	if !ok {
		return domain.Action{}, ErrNoAction
	}
	a := parsed.Action
	p.Edited = &a
	p.State = SuggestionPending
	return a, nil
}

// CancelEdit discards the draft and returns id to Pending.
func (s *Suggestions) CancelEdit(id string) error {
	p, ok := s.items[id]
	if !ok {
		return ErrUnknownSuggestion
	}
	if p.State != SuggestionEditing {
		return ErrNotEditing
	}
	p.State = SuggestionPending
	p.Draft = ""
	return nil
}
