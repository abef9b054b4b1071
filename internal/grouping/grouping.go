// Package grouping assigns newly saved items to a topical group, asking the
// model when one is configured and falling back to deterministic labels.
package grouping

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"rabbithole/api/internal/llm"
	"rabbithole/api/internal/store"
	"rabbithole/api/internal/util"
	"rabbithole/api/internal/validate"
)

const (
	candidateGroups   = 12
	itemsPerCandidate = 5
	fallbackLabelMax  = 100
	genericLabel      = "General"
)

const systemPrompt = "You sort saved web pages into short topical groups. " +
	"Reuse an existing group whenever it clearly fits and only propose a new label when nothing is close. " +
	"Answer with a single JSON object."

type Store interface {
	ListGroupsWithItems(ctx context.Context, userID string, groupLimit, itemsPerGroup int) ([]store.GroupWithItems, error)
	UpsertGroup(ctx context.Context, userID, label string, summary *string) (store.ItemGroup, error)
}

type Input struct {
	UserID  string
	PageURL string
	Title   *string
}

// Suggestion is the shape the model must answer with.
type Suggestion struct {
	Action        string  `json:"action" validate:"required,oneof=assign create"`
	TargetGroupID *string `json:"target_group_id" validate:"omitempty,uuid"`
	Label         *string `json:"label" validate:"omitempty,max=120"`
	Summary       *string `json:"summary" validate:"omitempty,max=500"`
	Reason        *string `json:"reason"`
}

type Grouper struct {
	store Store
	model llm.Completer
	log   zerolog.Logger
}

// New returns a Grouper. model may be nil when no key is configured.
func New(s Store, model llm.Completer, log zerolog.Logger) *Grouper {
	return &Grouper{store: s, model: model, log: log.With().Str("component", "grouping").Logger()}
}

// Determine returns the group id the item should join, or nil. It never
// fails: every error degrades to the zero-groups fallback or no group.
func (g *Grouper) Determine(ctx context.Context, in Input) *string {
	groups, err := g.store.ListGroupsWithItems(ctx, in.UserID, candidateGroups, itemsPerCandidate)
	if err != nil {
		g.log.Warn().Err(err).Str("user_id", in.UserID).Msg("load candidate groups failed")
		return nil
	}

	if g.model == nil {
		return g.fallback(ctx, in, groups)
	}

	suggestion, err := g.suggest(ctx, in, groups)
	if err != nil {
		g.log.Warn().Err(err).Str("user_id", in.UserID).Msg("grouping suggestion unusable")
		return g.fallback(ctx, in, groups)
	}

	if id := matchOffered(suggestion, groups); id != "" {
		return &id
	}

	if label := trimmed(suggestion.Label); label != "" {
		if id := g.create(ctx, in.UserID, label, nonBlank(suggestion.Summary)); id != nil {
			return id
		}
	}
	return g.fallback(ctx, in, groups)
}

// matchOffered accepts a suggested id only when it was offered, then tries a
// case-insensitive label match among the offered groups.
func matchOffered(s Suggestion, groups []store.GroupWithItems) string {
	if s.TargetGroupID != nil {
		for _, group := range groups {
			if group.ID == *s.TargetGroupID {
				return group.ID
			}
		}
	}
	if label := trimmed(s.Label); label != "" {
		for _, group := range groups {
			if strings.EqualFold(strings.TrimSpace(group.Label), label) {
				return group.ID
			}
		}
	}
	return ""
}

func (g *Grouper) fallback(ctx context.Context, in Input, groups []store.GroupWithItems) *string {
	if len(groups) > 0 {
		return nil
	}
	return g.create(ctx, in.UserID, FallbackLabel(in.Title, in.PageURL), nil)
}

func (g *Grouper) create(ctx context.Context, userID, label string, summary *string) *string {
	group, err := g.store.UpsertGroup(ctx, userID, label, summary)
	if err != nil {
		g.log.Warn().Err(err).Str("user_id", userID).Str("label", label).Msg("create group failed")
		return nil
	}
	return &group.ID
}

type promptGroup struct {
	ID           string   `json:"id"`
	Label        string   `json:"label"`
	Summary      *string  `json:"summary"`
	SampleTitles []string `json:"sample_titles"`
}

type promptPayload struct {
	Item struct {
		Title   *string `json:"title"`
		PageURL string  `json:"page_url"`
	} `json:"item"`
	ExistingGroups []promptGroup `json:"existing_groups"`
	Format         string        `json:"format"`
	Goal           string        `json:"goal"`
}

func (g *Grouper) suggest(ctx context.Context, in Input, groups []store.GroupWithItems) (Suggestion, error) {
	var payload promptPayload
	payload.Item.Title = in.Title
	payload.Item.PageURL = in.PageURL
	payload.ExistingGroups = make([]promptGroup, 0, len(groups))
	for _, group := range groups {
		samples := make([]string, 0, len(group.Items))
		for _, item := range group.Items {
			if title := trimmed(item.Title); title != "" {
				samples = append(samples, title)
			} else {
				samples = append(samples, item.PageURL)
			}
		}
		payload.ExistingGroups = append(payload.ExistingGroups, promptGroup{
			ID:           group.ID,
			Label:        group.Label,
			Summary:      group.Summary,
			SampleTitles: samples,
		})
	}
	payload.Format = `{"action":"assign"|"create","target_group_id"?:uuid,"label"?:string,"summary"?:string,"reason"?:string}`
	payload.Goal = "Prefer an existing group; create one only when no group is a close match."

	body, err := json.Marshal(payload)
	if err != nil {
		return Suggestion{}, err
	}
	content, err := g.model.CompleteJSON(ctx, llm.Request{System: systemPrompt, User: string(body), Temperature: 0})
	if err != nil {
		return Suggestion{}, err
	}

	var suggestion Suggestion
	if err := validate.DecodeBytes([]byte(content), &suggestion); err != nil {
		return Suggestion{}, err
	}
	return suggestion, nil
}

// FallbackLabel derives a label from the title, then the URL host, then a
// generic literal.
func FallbackLabel(title *string, pageURL string) string {
	if value := trimmed(title); value != "" {
		return util.Clip(value, fallbackLabelMax)
	}
	if parsed, err := url.Parse(strings.TrimSpace(pageURL)); err == nil && parsed.Hostname() != "" {
		return parsed.Hostname()
	}
	return genericLabel
}

func trimmed(value *string) string {
	if value == nil {
		return ""
	}
	return strings.TrimSpace(*value)
}

func nonBlank(value *string) *string {
	if v := trimmed(value); v != "" {
		return &v
	}
	return nil
}
