package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/carelink/clinassist/internal/ai"
	"github.com/carelink/clinassist/internal/cache"
	"github.com/carelink/clinassist/internal/model"
	appErr "github.com/carelink/clinassist/internal/pkg/errors"
	"github.com/carelink/clinassist/internal/session"
	"github.com/carelink/clinassist/internal/tools"
	"github.com/carelink/clinassist/internal/vectorindex"
)

type fakeChat struct {
	responses []*ai.ChatResponse
	requests  []*ai.ChatRequest
	err       error
}

func (f *fakeChat) Chat(ctx context.Context, req *ai.ChatRequest) (*ai.ChatResponse, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.requests) > len(f.responses) {
		return &ai.ChatResponse{Content: "unexpected extra call"}, nil
	}
	return f.responses[len(f.requests)-1], nil
}

type fakeEmbedder struct {
	calls int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	f.calls++
	return []float32{1, 2, 3}, nil
}

func (f *fakeEmbedder) ModelName() string {
	return "fake-embed"
}

// stubIndex serves a fixed result set; Len follows the result count.
type stubIndex struct {
	results     []vectorindex.SearchResult
	searchCalls int
}

func (s *stubIndex) Load(ctx context.Context) (bool, error) {
	return len(s.results) > 0, nil
}

func (s *stubIndex) Rebuild(ctx context.Context, sourceHash string, chunks []model.DocumentChunk) error {
	return nil
}

func (s *stubIndex) Search(ctx context.Context, query []float32, k int) ([]vectorindex.SearchResult, error) {
	s.searchCalls++
	if k > len(s.results) {
		k = len(s.results)
	}
	return s.results[:k], nil
}

func (s *stubIndex) SourceHash() string { return "" }

func (s *stubIndex) Len() int { return len(s.results) }

func testConfig() Config {
	return Config{
		MaxContextChars: 6000,
		MaxToolChars:    4000,
		ChatTimeout:     5 * time.Second,
		EmbedTimeout:    5 * time.Second,
		CacheTimeout:    5 * time.Second,
	}
}

func planIndex() *stubIndex {
	return &stubIndex{results: []vectorindex.SearchResult{
		{Chunk: model.DocumentChunk{Position: 3, Text: "In-network copay is $20."}, Distance: 0.1},
		{Chunk: model.DocumentChunk{Position: 7, Text: "Out-of-network deductible applies."}, Distance: 0.4},
	}}
}

func loadedSession(snap *model.PatientSnapshot) *session.Session {
	sess := session.New()
	sess.SetSnapshot(snap)
	return sess
}

func TestAnswerQuestion_NoPatient(t *testing.T) {
	svc := NewAssistantService(&fakeChat{}, &fakeEmbedder{}, planIndex(), cache.NewMemoryStore(), tools.NewRegistry(), testConfig())
	_, err := svc.AnswerQuestion(context.Background(), session.New(), "anything")
	require.ErrorIs(t, err, appErr.ErrNoPatient)
}

func TestAnswerQuestion_EmptyQuestion(t *testing.T) {
	svc := NewAssistantService(&fakeChat{}, &fakeEmbedder{}, planIndex(), cache.NewMemoryStore(), tools.NewRegistry(), testConfig())
	_, err := svc.AnswerQuestion(context.Background(), loadedSession(&model.PatientSnapshot{}), "   ")
	require.ErrorIs(t, err, appErr.ErrInvalid)
}

func TestAnswerQuestion_DirectAnswer(t *testing.T) {
	chat := &fakeChat{responses: []*ai.ChatResponse{{Content: "The copay is $20."}}}
	embedder := &fakeEmbedder{}
	index := planIndex()
	svc := NewAssistantService(chat, embedder, index, cache.NewMemoryStore(), tools.NewRegistry(), testConfig())

	answer, err := svc.AnswerQuestion(context.Background(), loadedSession(&model.PatientSnapshot{Name: "Jane Doe"}), "What is the copay?")
	require.NoError(t, err)
	require.Equal(t, "The copay is $20.", answer)
	require.Len(t, chat.requests, 1)
	require.Equal(t, 1, embedder.calls)
	require.Equal(t, 1, index.searchCalls)

	first := chat.requests[0]
	require.Equal(t, ai.ToolChoiceAuto, first.ToolChoice)
	require.Len(t, first.Tools, 5)
	require.Len(t, first.Messages, 2)
	require.Equal(t, ai.RoleSystem, first.Messages[0].Role)

	prompt := first.Messages[1].Content
	require.Contains(t, prompt, "You have access to the following patient information:")
	require.Contains(t, prompt, "Name: Jane Doe")
	require.Contains(t, prompt, "In-network copay is $20.\n\nOut-of-network deductible applies.")
	require.Contains(t, prompt, NoHistorySentinel)
	require.Contains(t, prompt, "Question: What is the copay?")
	require.Contains(t, prompt, "Answer:")
}

func TestAnswerQuestion_ToolCallRoundTrip(t *testing.T) {
	chat := &fakeChat{responses: []*ai.ChatResponse{
		{ToolCalls: []ai.ToolCall{
			{ID: "call-1", Name: tools.ToolAllergyInfo, Arguments: "{}"},
			{ID: "call-2", Name: tools.ToolPatientInfo, Arguments: ""},
		}},
		{Content: "Penicillin allergy is on file."},
	}}
	store := cache.NewMemoryStore()
	svc := NewAssistantService(chat, &fakeEmbedder{}, planIndex(), store, tools.NewRegistry(), testConfig())

	snap := &model.PatientSnapshot{
		Name:    "Jane Doe",
		Allergy: &model.AllergyRecord{Name: "Penicillin", ClinicalStatus: "Active"},
	}
	answer, err := svc.AnswerQuestion(context.Background(), loadedSession(snap), "Any allergies?")
	require.NoError(t, err)
	require.Equal(t, "Penicillin allergy is on file.", answer)
	require.Len(t, chat.requests, 2)

	second := chat.requests[1]
	require.Empty(t, second.Tools)
	require.Len(t, second.Messages, 5)

	assistant := second.Messages[2]
	require.Equal(t, ai.RoleAssistant, assistant.Role)
	require.Len(t, assistant.ToolCalls, 2)

	firstResult := second.Messages[3]
	require.Equal(t, ai.RoleTool, firstResult.Role)
	require.Equal(t, "call-1", firstResult.ToolCallID)
	require.Equal(t, tools.ToolAllergyInfo, firstResult.Name)
	require.Contains(t, firstResult.Content, "Allergy: Penicillin")

	secondResult := second.Messages[4]
	require.Equal(t, "call-2", secondResult.ToolCallID)
	require.Contains(t, secondResult.Content, "Name: Jane Doe")
}

func TestAnswerQuestion_AnswerCachedUnderQuestionHash(t *testing.T) {
	chat := &fakeChat{responses: []*ai.ChatResponse{
		{ToolCalls: []ai.ToolCall{{ID: "call-1", Name: tools.ToolAllergyInfo}}},
		{Content: "cached answer"},
	}}
	store := cache.NewMemoryStore()
	svc := NewAssistantService(chat, &fakeEmbedder{}, planIndex(), store, tools.NewRegistry(), testConfig())

	// No MRN on the snapshot, so the key is the bare question hash.
	sess := loadedSession(&model.PatientSnapshot{Name: "Jane Doe"})
	answer, err := svc.AnswerQuestion(context.Background(), sess, "Any allergies?")
	require.NoError(t, err)

	value, hit, err := store.Get(context.Background(), cache.Key("", "Any allergies?"))
	require.NoError(t, err)
	require.True(t, hit)
	require.Equal(t, answer, string(value))

	// Same question again: served from cache, no further provider calls.
	repeat, err := svc.AnswerQuestion(context.Background(), sess, "Any allergies?")
	require.NoError(t, err)
	require.Equal(t, answer, repeat)
	require.Len(t, chat.requests, 2)
}

func TestAnswerQuestion_CacheKeyScopedByMRN(t *testing.T) {
	chat := &fakeChat{responses: []*ai.ChatResponse{{Content: "answer"}}}
	store := cache.NewMemoryStore()
	svc := NewAssistantService(chat, &fakeEmbedder{}, planIndex(), store, tools.NewRegistry(), testConfig())

	_, err := svc.AnswerQuestion(context.Background(), loadedSession(&model.PatientSnapshot{MRN: "MRN-1"}), "question")
	require.NoError(t, err)

	_, hit, err := store.Get(context.Background(), cache.Key("MRN-1", "question"))
	require.NoError(t, err)
	require.True(t, hit)

	_, hit, err = store.Get(context.Background(), cache.Key("", "question"))
	require.NoError(t, err)
	require.False(t, hit)
}

func TestAnswerQuestion_CacheHitBypassesModel(t *testing.T) {
	chat := &fakeChat{}
	embedder := &fakeEmbedder{}
	store := cache.NewMemoryStore()
	require.NoError(t, store.Set(context.Background(), cache.Key("", "What is covered?"), []byte("stored answer"), time.Hour))

	svc := NewAssistantService(chat, embedder, planIndex(), store, tools.NewRegistry(), testConfig())
	answer, err := svc.AnswerQuestion(context.Background(), loadedSession(&model.PatientSnapshot{}), "What is covered?")
	require.NoError(t, err)
	require.Equal(t, "stored answer", answer)
	require.Empty(t, chat.requests)
	require.Equal(t, 0, embedder.calls)
}

func TestAnswerQuestion_EmptyIndexDegrades(t *testing.T) {
	chat := &fakeChat{responses: []*ai.ChatResponse{{Content: "answer"}}}
	embedder := &fakeEmbedder{}
	svc := NewAssistantService(chat, embedder, &stubIndex{}, cache.NewMemoryStore(), tools.NewRegistry(), testConfig())

	_, err := svc.AnswerQuestion(context.Background(), loadedSession(&model.PatientSnapshot{}), "question")
	require.NoError(t, err)
	require.Equal(t, 0, embedder.calls)
	require.Contains(t, chat.requests[0].Messages[1].Content, NoInsuranceSentinel)
}

func TestAnswerQuestion_PriorQuestionsInPrompt(t *testing.T) {
	chat := &fakeChat{responses: []*ai.ChatResponse{{Content: "a1"}, {Content: "a2"}}}
	svc := NewAssistantService(chat, &fakeEmbedder{}, planIndex(), cache.NewMemoryStore(), tools.NewRegistry(), testConfig())
	sess := loadedSession(&model.PatientSnapshot{})

	_, err := svc.AnswerQuestion(context.Background(), sess, "first question")
	require.NoError(t, err)
	_, err = svc.AnswerQuestion(context.Background(), sess, "second question")
	require.NoError(t, err)

	prompt := chat.requests[1].Messages[1].Content
	require.Contains(t, prompt, "- first question")
	require.NotContains(t, prompt, NoHistorySentinel)
}

func TestAnswerQuestion_UnknownToolFailsTurn(t *testing.T) {
	chat := &fakeChat{responses: []*ai.ChatResponse{
		{ToolCalls: []ai.ToolCall{{ID: "call-1", Name: "retrieve_lab_results"}}},
	}}
	store := cache.NewMemoryStore()
	svc := NewAssistantService(chat, &fakeEmbedder{}, planIndex(), store, tools.NewRegistry(), testConfig())
	sess := loadedSession(&model.PatientSnapshot{})

	_, err := svc.AnswerQuestion(context.Background(), sess, "question")
	require.ErrorIs(t, err, appErr.ErrUnknownTool)
	require.Len(t, chat.requests, 1)

	_, hit, getErr := store.Get(context.Background(), cache.Key("", "question"))
	require.NoError(t, getErr)
	require.False(t, hit)

	// The failed question still counts as history.
	require.Equal(t, []string{"question"}, sess.RecentQuestions())
}

func TestAnswerQuestion_UpstreamFailure(t *testing.T) {
	chat := &fakeChat{err: fmt.Errorf("connection refused")}
	svc := NewAssistantService(chat, &fakeEmbedder{}, planIndex(), cache.NewMemoryStore(), tools.NewRegistry(), testConfig())

	_, err := svc.AnswerQuestion(context.Background(), loadedSession(&model.PatientSnapshot{}), "question")
	require.ErrorIs(t, err, appErr.ErrUpstream)
}

func TestAnswerQuestion_ToolOutputTruncated(t *testing.T) {
	longName := make([]byte, 0, 300)
	for i := 0; i < 300; i++ {
		longName = append(longName, 'x')
	}
	chat := &fakeChat{responses: []*ai.ChatResponse{
		{ToolCalls: []ai.ToolCall{{ID: "call-1", Name: tools.ToolAllergyInfo}}},
		{Content: "done"},
	}}
	cfg := testConfig()
	cfg.MaxToolChars = 50
	svc := NewAssistantService(chat, &fakeEmbedder{}, planIndex(), cache.NewMemoryStore(), tools.NewRegistry(), cfg)

	snap := &model.PatientSnapshot{Allergy: &model.AllergyRecord{Name: string(longName)}}
	_, err := svc.AnswerQuestion(context.Background(), loadedSession(snap), "question")
	require.NoError(t, err)

	toolMsg := chat.requests[1].Messages[3]
	require.Contains(t, toolMsg.Content, "[truncated]")
	require.LessOrEqual(t, len(toolMsg.Content), 50+len("\n[truncated]"))
}
