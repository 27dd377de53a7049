package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/carelink/clinassist/internal/ai"
	"github.com/carelink/clinassist/internal/cache"
	"github.com/carelink/clinassist/internal/model"
	appErr "github.com/carelink/clinassist/internal/pkg/errors"
	"github.com/carelink/clinassist/internal/session"
	"github.com/carelink/clinassist/internal/tools"
	"github.com/carelink/clinassist/internal/vectorindex"
)

// Prompt sentinels for sections with nothing to show. The prompt keeps its
// fixed shape either way so answers stay comparable across turns.
const (
	NoInsuranceSentinel = "no insurance information available"
	NoHistorySentinel   = "no previous messages"
)

const topK = 2

const truncationMarker = "\n[truncated]"

const systemPrompt = "You are a clinical assistant supporting a clinician caring for the patient described in the conversation. " +
	"Answer only from the patient information, the insurance plan excerpts and the tool results you are given. " +
	"When a question needs patient details, call the matching retrieval tool instead of guessing. " +
	"Be concise and factual. If the information needed to answer is not available, say so plainly."

type Config struct {
	MaxContextChars int
	MaxToolChars    int
	ChatTimeout     time.Duration
	EmbedTimeout    time.Duration
	CacheTimeout    time.Duration
}

// AssistantService runs one question through the full turn: cache check,
// retrieval, prompt assembly, the tool-calling model round trip and the
// cache write. One instance is shared by all handlers.
type AssistantService struct {
	chat     ai.IChatClient
	embedder ai.IEmbedder
	index    vectorindex.Index
	store    cache.Store
	registry *tools.Registry
	cfg      Config
}

func NewAssistantService(chat ai.IChatClient, embedder ai.IEmbedder, index vectorindex.Index,
	store cache.Store, registry *tools.Registry, cfg Config) *AssistantService {

	return &AssistantService{
		chat:     chat,
		embedder: embedder,
		index:    index,
		store:    store,
		registry: registry,
		cfg:      cfg,
	}
}

// AnswerQuestion answers one clinician question against the loaded snapshot.
// The question enters the conversation window before anything that can fail,
// so a failed turn still shows up as history on the next one.
func (s *AssistantService) AnswerQuestion(ctx context.Context, sess *session.Session, question string) (string, error) {
	logger := logutil.GetLogger(ctx)
	question = strings.TrimSpace(question)
	if question == "" {
		return "", fmt.Errorf("%w: empty question", appErr.ErrInvalid)
	}
	snap, err := sess.Snapshot()
	if err != nil {
		return "", err
	}
	prior := sess.AppendQuestion(question)

	key := cache.Key(snap.MRN, question)
	cached, hit, err := s.cacheGet(ctx, key)
	if err != nil {
		return "", fmt.Errorf("%w: cache lookup: %v", appErr.ErrUpstream, err)
	}
	if hit {
		logger.Info("answer served from cache", zap.String("key", key))
		return cached, nil
	}

	planContext, err := s.retrievePlanContext(ctx, question)
	if err != nil {
		return "", err
	}

	messages := []ai.Message{
		{Role: ai.RoleSystem, Content: systemPrompt},
		{Role: ai.RoleUser, Content: s.buildUserPrompt(snap, planContext, prior, question)},
	}

	chatCtx, cancel := context.WithTimeout(ctx, s.cfg.ChatTimeout)
	first, err := s.chat.Chat(chatCtx, &ai.ChatRequest{
		Messages:   messages,
		Tools:      s.registry.Specs(),
		ToolChoice: ai.ToolChoiceAuto,
	})
	cancel()
	if err != nil {
		return "", fmt.Errorf("%w: chat call: %v", appErr.ErrUpstream, err)
	}

	answer := first.Content
	if len(first.ToolCalls) > 0 {
		answer, err = s.resolveToolCalls(ctx, messages, first, snap)
		if err != nil {
			return "", err
		}
	}

	s.cacheSet(ctx, key, answer)
	return answer, nil
}

// retrievePlanContext embeds the question and pulls the closest plan chunks.
// An unbuilt index degrades to the sentinel instead of failing the turn.
func (s *AssistantService) retrievePlanContext(ctx context.Context, question string) (string, error) {
	if s.index.Len() == 0 {
		return NoInsuranceSentinel, nil
	}
	embedCtx, cancel := context.WithTimeout(ctx, s.cfg.EmbedTimeout)
	defer cancel()
	queryVec, err := s.embedder.Embed(embedCtx, question, vectorindex.TaskTypeQuery)
	if err != nil {
		return "", fmt.Errorf("%w: query embedding: %v", appErr.ErrUpstream, err)
	}
	results, err := s.index.Search(ctx, queryVec, topK)
	if err != nil {
		return "", fmt.Errorf("plan retrieval: %w", err)
	}
	texts := make([]string, 0, len(results))
	for _, result := range results {
		texts = append(texts, result.Chunk.Text)
	}
	return truncate(strings.Join(texts, "\n\n"), s.cfg.MaxContextChars), nil
}

// resolveToolCalls executes the requested tools in response order and asks the
// model for the final answer with the tool transcript attached and no tools
// offered, so the second call must produce text.
func (s *AssistantService) resolveToolCalls(ctx context.Context, messages []ai.Message,
	first *ai.ChatResponse, snap *model.PatientSnapshot) (string, error) {

	logger := logutil.GetLogger(ctx)
	messages = append(messages, ai.Message{
		Role:      ai.RoleAssistant,
		Content:   first.Content,
		ToolCalls: first.ToolCalls,
	})
	for _, call := range first.ToolCalls {
		result, err := s.registry.Execute(ctx, call.Name, call.Arguments, snap)
		if err != nil {
			logger.Error("tool execution failed",
				zap.String("tool", call.Name),
				zap.String("call_id", call.ID),
				zap.Error(err),
			)
			return "", err
		}
		messages = append(messages, ai.Message{
			Role:       ai.RoleTool,
			ToolCallID: call.ID,
			Name:       call.Name,
			Content:    truncate(result, s.cfg.MaxToolChars),
		})
	}
	chatCtx, cancel := context.WithTimeout(ctx, s.cfg.ChatTimeout)
	defer cancel()
	final, err := s.chat.Chat(chatCtx, &ai.ChatRequest{Messages: messages})
	if err != nil {
		return "", fmt.Errorf("%w: final chat call: %v", appErr.ErrUpstream, err)
	}
	return final.Content, nil
}

// buildUserPrompt lays the grounding sections out in a fixed order: patient
// block, plan excerpts, recent questions, then the literal question.
func (s *AssistantService) buildUserPrompt(snap *model.PatientSnapshot, planContext string, prior []string, question string) string {
	history := NoHistorySentinel
	if len(prior) > 0 {
		recent := prior
		if len(recent) > session.WindowSize {
			recent = recent[len(recent)-session.WindowSize:]
		}
		lines := make([]string, 0, len(recent))
		for _, q := range recent {
			lines = append(lines, "- "+q)
		}
		history = strings.Join(lines, "\n")
	}
	sections := []string{
		"You have access to the following patient information:\n" + tools.PatientSummary(snap),
		"Relevant insurance plan information:\n" + planContext,
		"Previous questions from the clinician:\n" + history,
		"Question: " + question,
		"Answer:",
	}
	return strings.Join(sections, "\n\n")
}

func (s *AssistantService) cacheGet(ctx context.Context, key string) (string, bool, error) {
	cacheCtx, cancel := context.WithTimeout(ctx, s.cfg.CacheTimeout)
	defer cancel()
	value, hit, err := s.store.Get(cacheCtx, key)
	if err != nil || !hit {
		return "", false, err
	}
	return string(value), true, nil
}

// cacheSet is best effort: a failed write costs a future cache hit, not the
// answer already in hand.
func (s *AssistantService) cacheSet(ctx context.Context, key string, answer string) {
	cacheCtx, cancel := context.WithTimeout(ctx, s.cfg.CacheTimeout)
	defer cancel()
	if err := s.store.Set(cacheCtx, key, []byte(answer), cache.DefaultTTL); err != nil {
		logutil.GetLogger(ctx).Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func truncate(text string, limit int) string {
	if limit <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + truncationMarker
}
