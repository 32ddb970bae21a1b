// Package aiproviders is the AI provider tool service: chat routing to
// Claude, GPT, and Gemini through a unified backend, cost-optimal model
// selection, daily usage accounting, and the generic workflow step
// executor.
package aiproviders

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jmolinaso/voxbridge/internal/fault"
	"github.com/jmolinaso/voxbridge/internal/resilience"
)

const toolName = "ai_providers"

// Provider names used in commands, the catalog, and usage keys.
const (
	ProviderClaude = "claude"
	ProviderGPT    = "gpt"
	ProviderGemini = "gemini"
)

// usageTTL is how long daily usage counters survive in the shared KV.
const usageTTL = 30 * 24 * time.Hour

const defaultMaxTokens = 1000

var capabilities = []string{
	"claude_chat",
	"gpt_chat",
	"gemini_chat",
	"model_selection",
	"usage_tracking",
	"execute_step",
}

// Completion is one model response.
type Completion struct {
	Content      string
	InputTokens  int
	OutputTokens int
	FinishReason string
}

// Backend runs completions for one provider. The any-llm implementation
// is swapped for fakes in tests.
type Backend interface {
	Complete(ctx context.Context, model, prompt, contextText string, maxTokens int) (Completion, error)
}

// usage accumulates in-memory counters per provider-model pair.
type usage struct {
	Requests     int `json:"requests"`
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Service implements the broker tool contract for AI providers.
type Service struct {
	backends        map[string]Backend
	defaultProvider string
	failover        *resilience.Chain[Backend]
	rdb             redis.Cmdable
	logger          *slog.Logger
	now             func() time.Time
	running         atomic.Bool

	mu    sync.Mutex
	stats map[string]*usage // key: provider/model
}

// Options configures the AI provider service.
type Options struct {
	// Keys maps provider name to API key; a provider with a key gets an
	// any-llm backend. Recognized names: claude/anthropic, gpt/openai,
	// gemini/google.
	Keys map[string]string

	// DefaultProvider handles requests that name none. Defaults to the
	// first enabled provider in claude, gpt, gemini order.
	DefaultProvider string

	// Backends overrides the backend set entirely; used by tests.
	Backends map[string]Backend

	// Redis persists daily usage counters when non-nil.
	Redis  redis.Cmdable
	Logger *slog.Logger
}

var providerAliases = map[string]string{
	"claude":    ProviderClaude,
	"anthropic": ProviderClaude,
	"gpt":       ProviderGPT,
	"openai":    ProviderGPT,
	"gemini":    ProviderGemini,
	"google":    ProviderGemini,
}

// New builds the AI provider service.
func New(opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	backends := opts.Backends
	if backends == nil {
		backends = make(map[string]Backend)
		for name, key := range opts.Keys {
			provider, ok := providerAliases[strings.ToLower(name)]
			if !ok || key == "" {
				continue
			}
			backend, err := newAnyLLMBackend(provider, key)
			if err != nil {
				opts.Logger.Warn("ai backend unavailable", "provider", provider, "error", err)
				continue
			}
			backends[provider] = backend
		}
	}

	defaultProvider := providerAliases[strings.ToLower(opts.DefaultProvider)]
	if _, ok := backends[defaultProvider]; !ok {
		defaultProvider = ""
		for _, candidate := range []string{ProviderClaude, ProviderGPT, ProviderGemini} {
			if _, ok := backends[candidate]; ok {
				defaultProvider = candidate
				break
			}
		}
	}

	// Workflow steps fail over from the default provider to the other
	// enabled backends, each behind its own breaker.
	failover := resilience.NewChain[Backend](resilience.Config{Logger: opts.Logger})
	if defaultProvider != "" {
		failover.Add(defaultProvider, backends[defaultProvider])
		for _, candidate := range []string{ProviderClaude, ProviderGPT, ProviderGemini} {
			if candidate == defaultProvider {
				continue
			}
			if backend, ok := backends[candidate]; ok {
				failover.Add(candidate, backend)
			}
		}
	}

	return &Service{
		backends:        backends,
		defaultProvider: defaultProvider,
		failover:        failover,
		rdb:             opts.Redis,
		logger:          opts.Logger,
		now:             time.Now,
		stats:           make(map[string]*usage),
	}
}

func (s *Service) Name() string           { return toolName }
func (s *Service) Capabilities() []string { return append([]string(nil), capabilities...) }

func (s *Service) Start(context.Context) error {
	if len(s.backends) == 0 {
		s.logger.Warn("no ai providers configured, chat commands will be refused")
	}
	s.running.Store(true)
	return nil
}

func (s *Service) Shutdown(context.Context) error {
	s.running.Store(false)
	return nil
}

func (s *Service) Ping(context.Context) error {
	if !s.running.Load() {
		return fault.New(fault.KindToolStopped, toolName, "not running")
	}
	return nil
}

// Execute dispatches one AI command.
func (s *Service) Execute(ctx context.Context, command string, params map[string]string) (map[string]any, error) {
	switch command {
	case "claude_chat":
		return s.chat(ctx, ProviderClaude, params)
	case "gpt_chat":
		return s.chat(ctx, ProviderGPT, params)
	case "gemini_chat":
		return s.chat(ctx, ProviderGemini, params)
	case "model_selection":
		return s.selectModel(params)
	case "usage_tracking":
		return s.usageReport(params)
	case "execute_step":
		return s.executeStep(ctx, params)
	default:
		return nil, fault.Newf(fault.KindUnsupportedCommand, toolName, "unknown command %q", command)
	}
}

func (s *Service) chat(ctx context.Context, provider string, params map[string]string) (map[string]any, error) {
	prompt := strings.TrimSpace(params["prompt"])
	if prompt == "" {
		return nil, fault.New(fault.KindInvalidInput, toolName, "prompt is required")
	}
	backend, ok := s.backends[provider]
	if !ok {
		return nil, fault.Newf(fault.KindToolStopped, toolName, "provider %s is not configured", provider)
	}

	model := params["model"]
	if model == "" {
		model = defaultModels[provider]
	}
	maxTokens := defaultMaxTokens
	if n, err := strconv.Atoi(params["max_tokens"]); err == nil && n > 0 {
		maxTokens = n
	}

	start := time.Now()
	completion, err := backend.Complete(ctx, model, prompt, params["context"], maxTokens)
	if err != nil {
		return nil, fault.Wrap(fault.KindToolError, toolName, provider+" completion failed", err)
	}

	s.trackUsage(ctx, provider, model, completion)

	return map[string]any{
		"response":        completion.Content,
		"provider":        provider,
		"model":           model,
		"input_tokens":    completion.InputTokens,
		"output_tokens":   completion.OutputTokens,
		"total_tokens":    completion.InputTokens + completion.OutputTokens,
		"finish_reason":   completion.FinishReason,
		"processing_time": time.Since(start).Seconds(),
	}, nil
}

// executeStep runs a free-form workflow plan step, phrasing the step and
// its parameters as a prompt. The default provider goes first; when it
// fails the step fails over to the other enabled backends.
func (s *Service) executeStep(ctx context.Context, params map[string]string) (map[string]any, error) {
	if s.defaultProvider == "" {
		return nil, fault.New(fault.KindToolStopped, toolName, "no ai providers configured")
	}

	prompt := params["prompt"]
	if prompt == "" {
		step := params["step"]
		if step == "" {
			return nil, fault.New(fault.KindInvalidInput, toolName, "step or prompt is required")
		}
		var sb strings.Builder
		fmt.Fprintf(&sb, "Carry out the assistant task %q", strings.ReplaceAll(step, "_", " "))
		if category := params["category"]; category != "" {
			fmt.Fprintf(&sb, " for a %s request", strings.ReplaceAll(category, "_", " "))
		}
		var extras []string
		for k, v := range params {
			if k == "step" || k == "category" || v == "" {
				continue
			}
			extras = append(extras, k+"="+v)
		}
		if len(extras) > 0 {
			sort.Strings(extras)
			fmt.Fprintf(&sb, " with parameters: %s", strings.Join(extras, ", "))
		}
		sb.WriteString(". Respond with the outcome.")
		prompt = sb.String()
	}

	chatParams := map[string]string{
		"prompt":  prompt,
		"context": params["context"],
		"model":   params["model"],
	}
	result, err := resilience.RunResult(s.failover, func(provider string, _ Backend) (map[string]any, error) {
		return s.chat(ctx, provider, chatParams)
	})
	if err != nil {
		return nil, fault.Wrap(fault.KindToolError, toolName, "step execution failed on every provider", err)
	}
	if step := params["step"]; step != "" {
		result["step"] = step
	}
	return result, nil
}

// selectModel picks the cheapest catalog entry that has the requested
// capability and satisfies the budget and context-length constraints.
func (s *Service) selectModel(params map[string]string) (map[string]any, error) {
	task := strings.TrimSpace(params["task_type"])
	if task == "" {
		task = strings.TrimSpace(params["task"])
	}
	if task == "" {
		return nil, fault.New(fault.KindInvalidInput, toolName, "task_type is required")
	}

	var budget float64
	if v, err := strconv.ParseFloat(params["budget"], 64); err == nil {
		budget = v
	}
	var contextLength int
	if v, err := strconv.Atoi(params["context_length"]); err == nil {
		contextLength = v
	}

	var suitable []ModelInfo
	for _, info := range catalog {
		if _, enabled := s.backends[info.Provider]; !enabled {
			continue
		}
		if !hasCapability(info, task) {
			continue
		}
		if budget > 0 && info.CostPerToken > budget {
			continue
		}
		if contextLength > 0 && info.ContextWindow < contextLength {
			continue
		}
		suitable = append(suitable, info)
	}
	if len(suitable) == 0 {
		return nil, fault.Newf(fault.KindNotFound, toolName, "no model satisfies task %q", task)
	}

	sort.SliceStable(suitable, func(i, j int) bool {
		return suitable[i].CostPerToken < suitable[j].CostPerToken
	})

	alternatives := suitable[1:]
	if len(alternatives) > 4 {
		alternatives = alternatives[:4]
	}

	return map[string]any{
		"recommended_provider": suitable[0].Provider,
		"recommended_model":    suitable[0].Model,
		"cost_per_token":       suitable[0].CostPerToken,
		"reasoning":            fmt.Sprintf("cheapest model with the %s capability under the given constraints", task),
		"alternatives":         alternatives,
	}, nil
}

func (s *Service) trackUsage(ctx context.Context, provider, model string, completion Completion) {
	key := provider + "/" + model

	s.mu.Lock()
	u, ok := s.stats[key]
	if !ok {
		u = &usage{}
		s.stats[key] = u
	}
	u.Requests++
	u.InputTokens += completion.InputTokens
	u.OutputTokens += completion.OutputTokens
	u.TotalTokens += completion.InputTokens + completion.OutputTokens
	s.mu.Unlock()

	if s.rdb == nil {
		return
	}
	redisKey := fmt.Sprintf("usage:%s:%s:%s", provider, model, s.now().UTC().Format("2006-01-02"))
	var err error
	for field, delta := range map[string]int{
		"requests":      1,
		"input_tokens":  completion.InputTokens,
		"output_tokens": completion.OutputTokens,
		"total_tokens":  completion.InputTokens + completion.OutputTokens,
	} {
		if e := s.rdb.HIncrBy(ctx, redisKey, field, int64(delta)).Err(); e != nil && err == nil {
			err = e
		}
	}
	if e := s.rdb.Expire(ctx, redisKey, usageTTL).Err(); e != nil && err == nil {
		err = e
	}
	if err != nil {
		s.logger.Warn("usage counter write failed", "key", redisKey, "error", err)
	}
}

func (s *Service) usageReport(params map[string]string) (map[string]any, error) {
	filter := providerAliases[strings.ToLower(params["provider"])]

	s.mu.Lock()
	defer s.mu.Unlock()

	report := make(map[string]any)
	for key, u := range s.stats {
		if filter != "" && !strings.HasPrefix(key, filter+"/") {
			continue
		}
		report[key] = *u
	}
	return map[string]any{"usage": report}, nil
}

// EnabledProviders lists the providers with a configured backend.
func (s *Service) EnabledProviders() []string {
	out := make([]string, 0, len(s.backends))
	for _, candidate := range []string{ProviderClaude, ProviderGPT, ProviderGemini} {
		if _, ok := s.backends[candidate]; ok {
			out = append(out, candidate)
		}
	}
	return out
}
