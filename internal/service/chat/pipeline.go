package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"smartdesk/internal/models"

	"github.com/cloudwego/eino/schema"
)

const (
	// contextWindow bounds how many prior messages feed the AI call. It is a
	// fixed sliding window; long individual messages are not trimmed.
	contextWindow = 10
	// searchQueryLimit caps the search query at the leading runes of the
	// user's text.
	searchQueryLimit = 100
	// searchResultCount is how many results augment the context.
	searchResultCount = 3
	// completionTimeout bounds the single AI call. No retry is performed.
	completionTimeout = 30 * time.Second

	apologyText = "Sorry, I ran into a problem while generating a reply. Please try sending your message again."
)

// ErrEmptyText rejects blank input before any persistence or external call.
var ErrEmptyText = errors.New("message text cannot be empty")

// Store is the conversation/message persistence consumed by the pipeline.
type Store interface {
	// VerifyConversation returns sql.ErrNoRows-compatible errors when the
	// conversation does not exist or is not owned by the user.
	VerifyConversation(ctx context.Context, userID, conversationID int64) error
	CreateMessage(ctx context.Context, msg models.Message) (*models.Message, error)
	// RecentMessages returns at most limit latest messages, oldest-first.
	RecentMessages(ctx context.Context, conversationID int64, limit int) ([]*models.Message, error)
}

// Completer is the AI adapter contract.
type Completer interface {
	Complete(ctx context.Context, messages []*schema.Message) (string, error)
}

// Searcher is the search adapter contract.
type Searcher interface {
	Search(ctx context.Context, query string, count int) ([]models.SearchResult, error)
}

// Pipeline executes one chat turn: persist the user message, build the
// context window, optionally augment with web search, call the AI adapter,
// and persist the reply. Ownership of the conversation is enforced here and
// again at the REST layer.
type Pipeline struct {
	store    Store
	ai       Completer
	searcher Searcher

	// persistApology decides what an AI failure leaves behind: false keeps
	// the turn unanswered, true stores a fixed apology reply.
	persistApology bool
}

// NewPipeline wires the pipeline's collaborators.
func NewPipeline(store Store, ai Completer, searcher Searcher, persistApology bool) *Pipeline {
	return &Pipeline{
		store:          store,
		ai:             ai,
		searcher:       searcher,
		persistApology: persistApology,
	}
}

// SendMessage runs one chat turn and returns the persisted AI message.
//
// On AI failure the user's message stays persisted; the returned error is a
// categorized ai.Error. With the apology option enabled a fixed apology
// reply is persisted and returned alongside the error so the thread shows a
// response while the caller still reports the failure.
func (p *Pipeline) SendMessage(ctx context.Context, userID, conversationID int64, text string, searchEnabled bool) (*models.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}
	if conversationID <= 0 {
		return nil, errors.New("conversation id is required")
	}
	if err := p.store.VerifyConversation(ctx, userID, conversationID); err != nil {
		return nil, err
	}

	// Persist the user's turn before any external call so a downstream
	// failure never loses their input.
	if _, err := p.store.CreateMessage(ctx, models.Message{
		ConversationID: conversationID,
		Sender:         models.SenderUser,
		Text:           text,
	}); err != nil {
		return nil, fmt.Errorf("persist user message: %w", err)
	}

	history, err := p.store.RecentMessages(ctx, conversationID, contextWindow)
	if err != nil {
		return nil, fmt.Errorf("load context: %w", err)
	}
	contextMsgs := buildContext(history)

	var results []models.SearchResult
	if searchEnabled && p.searcher != nil {
		results = p.search(ctx, text)
		if len(results) > 0 {
			contextMsgs = append([]*schema.Message{searchContextMessage(results)}, contextMsgs...)
		}
	}

	aiCtx, cancel := context.WithTimeout(ctx, completionTimeout)
	reply, err := p.ai.Complete(aiCtx, contextMsgs)
	cancel()
	if err != nil {
		if !p.persistApology {
			return nil, err
		}
		apology, persistErr := p.store.CreateMessage(ctx, models.Message{
			ConversationID: conversationID,
			Sender:         models.SenderAI,
			Text:           apologyText,
		})
		if persistErr != nil {
			log.Printf("persist apology reply failed: %v", persistErr)
			return nil, err
		}
		return apology, err
	}

	aiMessage, err := p.store.CreateMessage(ctx, models.Message{
		ConversationID: conversationID,
		Sender:         models.SenderAI,
		Text:           reply,
		SearchResults:  results,
	})
	if err != nil {
		return nil, fmt.Errorf("persist ai message: %w", err)
	}
	return aiMessage, nil
}

// search runs the augmentation query. Failures are absorbed: the chat turn
// must never fail because search failed.
func (p *Pipeline) search(ctx context.Context, text string) []models.SearchResult {
	query := text
	if runes := []rune(query); len(runes) > searchQueryLimit {
		query = string(runes[:searchQueryLimit])
	}
	results, err := p.searcher.Search(ctx, query, searchResultCount)
	if err != nil {
		log.Printf("search augmentation failed, continuing without results: %v", err)
		return nil
	}
	return results
}

// buildContext maps stored messages to AI roles. The sender set is closed;
// every constant is matched explicitly and anything else is dropped.
func buildContext(history []*models.Message) []*schema.Message {
	msgs := make([]*schema.Message, 0, len(history))
	for _, m := range history {
		var role schema.RoleType
		switch m.Sender {
		case models.SenderUser:
			role = schema.User
		case models.SenderAI:
			role = schema.Assistant
		case models.SenderSystem:
			role = schema.Assistant
		default:
			log.Printf("skipping message %d with unknown sender %q", m.ID, m.Sender)
			continue
		}
		msgs = append(msgs, &schema.Message{
			Role:    role,
			Content: m.Text,
		})
	}
	return msgs
}

// searchContextMessage renders the results as one synthetic system message
// prepended before the conversation history.
func searchContextMessage(results []models.SearchResult) *schema.Message {
	var b strings.Builder
	b.WriteString("Here are some recent search results that might be relevant to the user's query:\n\n")
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n---\n")
		}
		fmt.Fprintf(&b, "Result %d:\nTitle: %s\nDescription: %s\nURL: %s\n", i+1, r.Title, r.Description, r.URL)
	}
	b.WriteString("\n\nPlease use these results to inform your answer if they are relevant.")
	return &schema.Message{
		Role:    schema.System,
		Content: b.String(),
	}
}
