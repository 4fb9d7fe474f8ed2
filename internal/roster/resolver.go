package roster

import (
	"context"
	"fmt"
	"sort"
)

// Participant describes one member of a call session as reported by the
// roster owner.
type Participant struct {
	UserID    string `json:"user_id"`
	Language  string `json:"language"`
	Connected bool   `json:"connected"`
}

// Roster is the read-only view of a session's membership. The gateway that
// owns the client connections implements it.
type Roster interface {
	Participants(ctx context.Context, sessionID string) ([]Participant, error)
}

// Resolution is the per-utterance audience of a speaker: their own language
// and the other connected participants grouped by target language.
type Resolution struct {
	SourceLanguage string
	Groups         map[string][]string // language -> recipient user ids
}

// Resolver computes the audience for each utterance. It holds no state and
// never caches a result: the roster is re-read every time so recipients who
// left or switched language between utterances are not delivered to.
type Resolver struct {
	roster Roster
}

// NewResolver creates a resolver over the given roster.
func NewResolver(r Roster) *Resolver {
	return &Resolver{roster: r}
}

// Resolve groups all other currently connected participants of the session
// by their target language. Languages with no connected recipient are
// omitted; an empty Groups map means nobody needs this utterance.
func (r *Resolver) Resolve(ctx context.Context, sessionID, speakerID string) (*Resolution, error) {
	participants, err := r.roster.Participants(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to read roster for session %s: %w", sessionID, err)
	}

	res := &Resolution{Groups: make(map[string][]string)}

	for _, p := range participants {
		if p.UserID == speakerID {
			res.SourceLanguage = p.Language
			continue
		}
		if !p.Connected || p.Language == "" {
			continue
		}
		res.Groups[p.Language] = append(res.Groups[p.Language], p.UserID)
	}

	// Deterministic recipient order keeps logs and tests stable.
	for _, recipients := range res.Groups {
		sort.Strings(recipients)
	}

	return res, nil
}
