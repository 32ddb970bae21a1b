package aiproviders

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jmolinaso/voxbridge/internal/fault"
)

type fakeBackend struct {
	completion Completion
	err        error

	models  []string
	prompts []string
}

func (f *fakeBackend) Complete(_ context.Context, model, prompt, _ string, _ int) (Completion, error) {
	f.models = append(f.models, model)
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return Completion{}, f.err
	}
	return f.completion, nil
}

func newTestService(backends map[string]Backend) *Service {
	s := New(Options{Backends: backends})
	_ = s.Start(context.Background())
	return s
}

func TestChatRoutesToProvider(t *testing.T) {
	claude := &fakeBackend{completion: Completion{Content: "bonjour", InputTokens: 12, OutputTokens: 3}}
	s := newTestService(map[string]Backend{ProviderClaude: claude})

	result, err := s.Execute(context.Background(), "claude_chat", map[string]string{
		"prompt": "say hello in french",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if result["response"] != "bonjour" {
		t.Errorf("response = %v", result["response"])
	}
	if result["provider"] != ProviderClaude {
		t.Errorf("provider = %v", result["provider"])
	}
	// Default model applies when the request names none.
	if len(claude.models) != 1 || claude.models[0] != "claude-3-5-sonnet-20241022" {
		t.Errorf("model = %v", claude.models)
	}
	if result["total_tokens"] != 15 {
		t.Errorf("total_tokens = %v, want 15", result["total_tokens"])
	}
}

func TestChatExplicitModel(t *testing.T) {
	gpt := &fakeBackend{completion: Completion{Content: "ok"}}
	s := newTestService(map[string]Backend{ProviderGPT: gpt})

	_, err := s.Execute(context.Background(), "gpt_chat", map[string]string{
		"prompt": "hi",
		"model":  "gpt-4o-mini",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if gpt.models[0] != "gpt-4o-mini" {
		t.Errorf("model = %s", gpt.models[0])
	}
}

func TestChatUnconfiguredProvider(t *testing.T) {
	s := newTestService(map[string]Backend{ProviderClaude: &fakeBackend{}})

	_, err := s.Execute(context.Background(), "gemini_chat", map[string]string{"prompt": "hi"})
	if !fault.Is(err, fault.KindToolStopped) {
		t.Errorf("kind = %v, want tool_unavailable", fault.KindOf(err))
	}
}

func TestChatBackendFailure(t *testing.T) {
	s := newTestService(map[string]Backend{ProviderClaude: &fakeBackend{err: errors.New("quota")}})

	_, err := s.Execute(context.Background(), "claude_chat", map[string]string{"prompt": "hi"})
	if !fault.Is(err, fault.KindToolError) {
		t.Errorf("kind = %v, want tool_error", fault.KindOf(err))
	}
}

func TestExecuteStepBuildsPrompt(t *testing.T) {
	claude := &fakeBackend{completion: Completion{Content: "requirements gathered"}}
	s := newTestService(map[string]Backend{ProviderClaude: claude})

	result, err := s.Execute(context.Background(), "execute_step", map[string]string{
		"step":     "gather_document_requirements",
		"category": "document_generation",
		"topic":    "q3 results",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	prompt := claude.prompts[0]
	for _, want := range []string{"gather document requirements", "document generation", "topic=q3 results"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
	if result["step"] != "gather_document_requirements" {
		t.Errorf("step = %v", result["step"])
	}
	if result["response"] != "requirements gathered" {
		t.Errorf("response = %v", result["response"])
	}
}

func TestExecuteStepPrefersExplicitPrompt(t *testing.T) {
	claude := &fakeBackend{completion: Completion{Content: "hi"}}
	s := newTestService(map[string]Backend{ProviderClaude: claude})

	_, err := s.Execute(context.Background(), "execute_step", map[string]string{"prompt": "just say hi"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if claude.prompts[0] != "just say hi" {
		t.Errorf("prompt = %q", claude.prompts[0])
	}
}

func TestModelSelectionCheapestWins(t *testing.T) {
	s := newTestService(map[string]Backend{
		ProviderClaude: &fakeBackend{},
		ProviderGPT:    &fakeBackend{},
	})

	result, err := s.Execute(context.Background(), "model_selection", map[string]string{
		"task_type": "conversation",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	// claude-3-haiku is the cheapest conversation-capable model.
	if result["recommended_model"] != "claude-3-haiku-20240307" {
		t.Errorf("recommended_model = %v", result["recommended_model"])
	}
	alternatives := result["alternatives"].([]ModelInfo)
	if len(alternatives) == 0 {
		t.Fatal("expected alternatives")
	}
	for _, alt := range alternatives {
		if alt.CostPerToken < result["cost_per_token"].(float64) {
			t.Errorf("alternative %s is cheaper than the recommendation", alt.Model)
		}
	}
}

func TestModelSelectionConstraints(t *testing.T) {
	s := newTestService(map[string]Backend{
		ProviderClaude: &fakeBackend{},
		ProviderGPT:    &fakeBackend{},
		ProviderGemini: &fakeBackend{},
	})
	ctx := context.Background()

	// A context length above 128k rules out both GPT models.
	result, err := s.Execute(ctx, "model_selection", map[string]string{
		"task_type":      "conversation",
		"context_length": "150000",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result["recommended_provider"] != ProviderClaude {
		t.Errorf("recommended_provider = %v", result["recommended_provider"])
	}

	// A budget below every conversation model's cost finds nothing.
	_, err = s.Execute(ctx, "model_selection", map[string]string{
		"task_type": "conversation",
		"budget":    "0.0000000001",
	})
	if !fault.Is(err, fault.KindNotFound) {
		t.Errorf("kind = %v, want not_found", fault.KindOf(err))
	}

	// Disabled providers never get recommended.
	limited := newTestService(map[string]Backend{ProviderGPT: &fakeBackend{}})
	result, err = limited.Execute(ctx, "model_selection", map[string]string{"task_type": "conversation"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result["recommended_model"] != "gpt-4o-mini" {
		t.Errorf("recommended_model = %v with only gpt enabled", result["recommended_model"])
	}
}

func TestUsageTracking(t *testing.T) {
	claude := &fakeBackend{completion: Completion{Content: "x", InputTokens: 10, OutputTokens: 5}}
	s := newTestService(map[string]Backend{ProviderClaude: claude})
	ctx := context.Background()

	for range 3 {
		if _, err := s.Execute(ctx, "claude_chat", map[string]string{"prompt": "hi"}); err != nil {
			t.Fatalf("chat: %v", err)
		}
	}

	result, err := s.Execute(ctx, "usage_tracking", nil)
	if err != nil {
		t.Fatalf("usage_tracking: %v", err)
	}
	report := result["usage"].(map[string]any)
	u, ok := report["claude/claude-3-5-sonnet-20241022"].(usage)
	if !ok {
		t.Fatalf("usage entry missing: %v", report)
	}
	if u.Requests != 3 || u.TotalTokens != 45 {
		t.Errorf("usage = %+v", u)
	}

	// Provider filter.
	filtered, _ := s.Execute(ctx, "usage_tracking", map[string]string{"provider": "gemini"})
	if len(filtered["usage"].(map[string]any)) != 0 {
		t.Errorf("filtered usage = %v, want empty", filtered["usage"])
	}
}

func TestDefaultProviderOrder(t *testing.T) {
	s := New(Options{Backends: map[string]Backend{
		ProviderGemini: &fakeBackend{},
		ProviderGPT:    &fakeBackend{},
	}})
	if s.defaultProvider != ProviderGPT {
		t.Errorf("defaultProvider = %s, want gpt", s.defaultProvider)
	}

	explicit := New(Options{
		Backends:        map[string]Backend{ProviderGemini: &fakeBackend{}, ProviderGPT: &fakeBackend{}},
		DefaultProvider: "google",
	})
	if explicit.defaultProvider != ProviderGemini {
		t.Errorf("explicit defaultProvider = %s, want gemini", explicit.defaultProvider)
	}

	enabled := explicit.EnabledProviders()
	if len(enabled) != 2 || enabled[0] != ProviderGPT || enabled[1] != ProviderGemini {
		t.Errorf("EnabledProviders = %v", enabled)
	}
}

func TestExecuteValidation(t *testing.T) {
	s := newTestService(map[string]Backend{ProviderClaude: &fakeBackend{}})
	ctx := context.Background()

	if _, err := s.Execute(ctx, "claude_chat", map[string]string{"prompt": " "}); !fault.Is(err, fault.KindInvalidInput) {
		t.Errorf("blank prompt kind = %v", fault.KindOf(err))
	}
	if _, err := s.Execute(ctx, "model_selection", nil); !fault.Is(err, fault.KindInvalidInput) {
		t.Errorf("missing task kind = %v", fault.KindOf(err))
	}
	if _, err := s.Execute(ctx, "train_model", nil); !fault.Is(err, fault.KindUnsupportedCommand) {
		t.Errorf("unknown command kind = %v", fault.KindOf(err))
	}
}

func TestExecuteStepFailsOverToNextProvider(t *testing.T) {
	claude := &fakeBackend{err: errors.New("quota")}
	gpt := &fakeBackend{completion: Completion{Content: "done"}}
	s := newTestService(map[string]Backend{ProviderClaude: claude, ProviderGPT: gpt})

	result, err := s.Execute(context.Background(), "execute_step", map[string]string{"prompt": "do the thing"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result["provider"] != ProviderGPT {
		t.Errorf("provider = %v, want gpt", result["provider"])
	}
	if len(claude.prompts) != 1 {
		t.Errorf("claude attempts = %d, want 1", len(claude.prompts))
	}
}

func TestExecuteStepAllProvidersFail(t *testing.T) {
	s := newTestService(map[string]Backend{
		ProviderClaude: &fakeBackend{err: errors.New("quota")},
		ProviderGPT:    &fakeBackend{err: errors.New("down")},
	})

	_, err := s.Execute(context.Background(), "execute_step", map[string]string{"prompt": "do the thing"})
	if !fault.Is(err, fault.KindToolError) {
		t.Errorf("kind = %v, want tool_error", fault.KindOf(err))
	}
}
