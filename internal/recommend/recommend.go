// Package recommend turns a user's saved pages, groups and notes into reading
// suggestions. Every failure yields an empty list plus an explanatory message.
package recommend

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"rabbithole/api/internal/llm"
	"rabbithole/api/internal/model"
	"rabbithole/api/internal/store"
	"rabbithole/api/internal/util"
	"rabbithole/api/internal/validate"
)

const (
	groupLimit      = 20
	itemLimit       = 40
	noteLimit       = 120
	snippetsPerItem = 3
	snippetMax      = 120
	titleMax        = 120
)

const (
	MsgDisabled      = "Recommendations disabled: missing XAI_API_KEY."
	MsgContextFailed = "Could not load user context."
	MsgNoItems       = "No saved items yet."
	MsgUnavailable   = "Recommendation model unavailable."
	MsgRequestFailed = "Recommendation request failed."
	MsgNoContent     = "Recommendation model returned no content."
	MsgInvalidJSON   = "Recommendation model returned invalid JSON."
	MsgInvalidData   = "Recommendation model returned invalid data."
)

const systemPrompt = "You are a reading guide. Suggest short reading ideas that build on the user's saved pages, " +
	"groups and notes. Answer with a single JSON object."

type (
	Recommendation = model.Recommendation
	Result         = model.Recommendations
)

type reply struct {
	Recommendations []Recommendation `json:"recommendations" validate:"required,max=8,dive"`
}

type Store interface {
	ListGroups(ctx context.Context, userID string, limit int) ([]store.ItemGroup, error)
	ListRecentItems(ctx context.Context, userID string, limit int) ([]store.Item, error)
	ListRecentNotes(ctx context.Context, itemIDs []string, limit int) ([]store.Note, error)
}

// Cache keeps successful results per user.
type Cache interface {
	Get(ctx context.Context, name string, dst any) (bool, error)
	Set(ctx context.Context, name string, value any, ttl time.Duration) error
	Delete(ctx context.Context, name string) error
}

type Generator struct {
	store Store
	model llm.Completer
	cache Cache
	ttl   time.Duration
	log   zerolog.Logger
}

// New returns a Generator. model and cache may be nil.
func New(s Store, model llm.Completer, cache Cache, ttl time.Duration, log zerolog.Logger) *Generator {
	return &Generator{
		store: s,
		model: model,
		cache: cache,
		ttl:   ttl,
		log:   log.With().Str("component", "recommend").Logger(),
	}
}

func empty(message string) Result {
	return Result{Recommendations: []Recommendation{}, Message: message}
}

func cacheKey(userID string) string {
	return "recs:" + userID
}

func (g *Generator) Generate(ctx context.Context, userID string) Result {
	if g.model == nil {
		return empty(MsgDisabled)
	}

	if g.cache != nil {
		var cached Result
		found, err := g.cache.Get(ctx, cacheKey(userID), &cached)
		if err != nil {
			g.log.Warn().Err(err).Str("user_id", userID).Msg("recommendation cache read failed")
		} else if found && len(cached.Recommendations) > 0 {
			return cached
		}
	}

	userContext, err := g.loadContext(ctx, userID)
	if err != nil {
		g.log.Error().Err(err).Str("user_id", userID).Msg("load recommendation context failed")
		return empty(MsgContextFailed)
	}
	if len(userContext.Items) == 0 {
		return empty(MsgNoItems)
	}

	result := g.ask(ctx, userID, userContext)
	if len(result.Recommendations) > 0 && g.cache != nil {
		if err := g.cache.Set(ctx, cacheKey(userID), result, g.ttl); err != nil {
			g.log.Warn().Err(err).Str("user_id", userID).Msg("recommendation cache write failed")
		}
	}
	return result
}

// Invalidate drops the cached result after the user's library changed.
func (g *Generator) Invalidate(ctx context.Context, userID string) {
	if g.cache == nil {
		return
	}
	if err := g.cache.Delete(ctx, cacheKey(userID)); err != nil {
		g.log.Warn().Err(err).Str("user_id", userID).Msg("recommendation cache invalidate failed")
	}
}

func (g *Generator) ask(ctx context.Context, userID string, userContext contextPayload) Result {
	prompt := struct {
		contextPayload
		Instructions map[string]string `json:"instructions"`
	}{
		contextPayload: userContext,
		Instructions: map[string]string{
			"goal":       "Recommend fresh reading topics or searches that build on the saved pages, groups and notes.",
			"format":     `{"recommendations":[{"title":string,"summary":string,"suggested_query":string}]}`,
			"guardrails": "Never invent full URLs. Keep titles short and give a search query the user can try.",
		},
	}
	body, err := json.Marshal(prompt)
	if err != nil {
		g.log.Error().Err(err).Msg("encode recommendation prompt failed")
		return empty(MsgRequestFailed)
	}

	content, err := g.model.CompleteJSON(ctx, llm.Request{System: systemPrompt, User: string(body), Temperature: 0.4})
	switch {
	case errors.Is(err, llm.ErrEmptyResponse):
		return empty(MsgNoContent)
	case errors.Is(err, llm.ErrUpstream):
		g.log.Warn().Err(err).Str("user_id", userID).Msg("recommendation model unavailable")
		return empty(MsgUnavailable)
	case err != nil:
		g.log.Warn().Err(err).Str("user_id", userID).Msg("recommendation request failed")
		return empty(MsgRequestFailed)
	}

	var parsed reply
	if err := validate.DecodeBytes([]byte(content), &parsed); err != nil {
		g.log.Warn().Err(err).Str("user_id", userID).Msg("recommendation reply rejected")
		if validate.IsMalformed(err) {
			return empty(MsgInvalidJSON)
		}
		return empty(MsgInvalidData)
	}
	return Result{Recommendations: parsed.Recommendations}
}

type contextGroup struct {
	ID      string  `json:"id"`
	Label   string  `json:"label"`
	Summary *string `json:"summary"`
}

type contextItem struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	PageURL      string   `json:"page_url"`
	GroupLabel   *string  `json:"group_label"`
	NoteSnippets []string `json:"note_snippets"`
}

type contextPayload struct {
	Groups []contextGroup `json:"groups"`
	Items  []contextItem  `json:"items"`
}

func (g *Generator) loadContext(ctx context.Context, userID string) (contextPayload, error) {
	groups, err := g.store.ListGroups(ctx, userID, groupLimit)
	if err != nil {
		return contextPayload{}, err
	}
	items, err := g.store.ListRecentItems(ctx, userID, itemLimit)
	if err != nil {
		return contextPayload{}, err
	}

	labels := make(map[string]string, len(groups))
	payload := contextPayload{
		Groups: make([]contextGroup, 0, len(groups)),
		Items:  make([]contextItem, 0, len(items)),
	}
	for _, group := range groups {
		labels[group.ID] = group.Label
		payload.Groups = append(payload.Groups, contextGroup{ID: group.ID, Label: group.Label, Summary: group.Summary})
	}

	itemIDs := make([]string, 0, len(items))
	for _, item := range items {
		itemIDs = append(itemIDs, item.ID)
	}
	snippets := map[string][]string{}
	notes, err := g.store.ListRecentNotes(ctx, itemIDs, noteLimit)
	if err != nil {
		// snippets are optional context
		g.log.Warn().Err(err).Str("user_id", userID).Msg("load note snippets failed")
	}
	for _, note := range notes {
		if note.Content == nil || *note.Content == "" {
			continue
		}
		if len(snippets[note.ItemID]) >= snippetsPerItem {
			continue
		}
		snippets[note.ItemID] = append(snippets[note.ItemID], util.Truncate(*note.Content, snippetMax))
	}

	for _, item := range items {
		entry := contextItem{
			ID:           item.ID,
			PageURL:      item.PageURL,
			NoteSnippets: snippets[item.ID],
		}
		if item.Title != nil {
			entry.Title = util.Truncate(*item.Title, titleMax)
		}
		if entry.NoteSnippets == nil {
			entry.NoteSnippets = []string{}
		}
		if item.GroupID != nil {
			if label, ok := labels[*item.GroupID]; ok {
				entry.GroupLabel = &label
			}
		}
		payload.Items = append(payload.Items, entry)
	}
	return payload, nil
}
