package broker

import (
	"context"
	"errors"
	"testing"

	"github.com/jmolinaso/voxbridge/internal/classify"
	"github.com/jmolinaso/voxbridge/internal/fault"
)

// fakeTool is a scriptable in-process tool.
type fakeTool struct {
	name     string
	caps     []string
	startErr error
	pingErr  error
	execErr  error

	started  int
	stopped  int
	executed []string // "command" per Execute call
}

func (f *fakeTool) Name() string           { return f.name }
func (f *fakeTool) Capabilities() []string { return f.caps }

func (f *fakeTool) Start(context.Context) error {
	f.started++
	return f.startErr
}

func (f *fakeTool) Shutdown(context.Context) error {
	f.stopped++
	return nil
}

func (f *fakeTool) Ping(context.Context) error { return f.pingErr }

func (f *fakeTool) Execute(_ context.Context, command string, params map[string]string) (map[string]any, error) {
	f.executed = append(f.executed, command)
	if f.execErr != nil {
		return nil, f.execErr
	}
	return map[string]any{"command": command, "params": params}, nil
}

func TestStartAllIsolatesFailures(t *testing.T) {
	b := New(nil)
	good := &fakeTool{name: "good", caps: []string{"run"}}
	bad := &fakeTool{name: "bad", caps: []string{"run"}, startErr: errors.New("boom")}
	b.Register(good)
	b.Register(bad)

	b.StartAll(context.Background())

	statuses := b.StatusAll(context.Background())
	if len(statuses) != 2 {
		t.Fatalf("StatusAll returned %d descriptors, want 2", len(statuses))
	}
	if statuses[0].Name != "good" || statuses[0].Status != StatusRunning {
		t.Errorf("good tool: got %s/%s, want good/running", statuses[0].Name, statuses[0].Status)
	}
	if statuses[1].Status != StatusError {
		t.Errorf("bad tool status = %s, want error", statuses[1].Status)
	}
	if statuses[1].Error == "" {
		t.Error("bad tool descriptor should carry the start error")
	}
}

func TestDispatchGate(t *testing.T) {
	b := New(nil)
	tool := &fakeTool{name: "document", caps: []string{"generate_pdf"}}
	b.Register(tool)

	ctx := context.Background()

	// Not started yet.
	if _, err := b.Dispatch(ctx, "document", "generate_pdf", nil); !fault.Is(err, fault.KindToolStopped) {
		t.Errorf("dispatch before start: kind = %v, want tool_unavailable", fault.KindOf(err))
	}

	b.StartAll(ctx)

	if _, err := b.Dispatch(ctx, "missing", "generate_pdf", nil); !fault.Is(err, fault.KindToolUnknown) {
		t.Errorf("unknown tool: kind = %v, want unknown_tool", fault.KindOf(err))
	}
	if _, err := b.Dispatch(ctx, "document", "send_email", nil); !fault.Is(err, fault.KindUnsupportedCommand) {
		t.Errorf("undeclared command: kind = %v, want unsupported_command", fault.KindOf(err))
	}

	result, err := b.Dispatch(ctx, "document", "generate_pdf", map[string]string{"topic": "whales"})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if result["command"] != "generate_pdf" {
		t.Errorf("result command = %v", result["command"])
	}
	if len(tool.executed) != 1 {
		t.Errorf("tool executed %d times, want 1", len(tool.executed))
	}
}

func TestDispatchWrapsUnknownErrors(t *testing.T) {
	b := New(nil)
	tool := &fakeTool{name: "email", caps: []string{"send_email"}, execErr: errors.New("smtp down")}
	b.Register(tool)
	b.StartAll(context.Background())

	_, err := b.Dispatch(context.Background(), "email", "send_email", nil)
	if !fault.Is(err, fault.KindToolError) {
		t.Errorf("kind = %v, want tool_error", fault.KindOf(err))
	}
}

func TestDispatchPreservesDomainKinds(t *testing.T) {
	b := New(nil)
	tool := &fakeTool{
		name:    "email",
		caps:    []string{"send_email"},
		execErr: fault.New(fault.KindInvalidInput, "email", "bad recipient"),
	}
	b.Register(tool)
	b.StartAll(context.Background())

	_, err := b.Dispatch(context.Background(), "email", "send_email", nil)
	if !fault.Is(err, fault.KindInvalidInput) {
		t.Errorf("kind = %v, want invalid_input passed through", fault.KindOf(err))
	}
}

func TestStatusRefreshesPing(t *testing.T) {
	b := New(nil)
	tool := &fakeTool{name: "search", caps: []string{"web_search"}}
	b.Register(tool)
	b.StartAll(context.Background())

	d, err := b.Status(context.Background(), "search")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if d.Status != StatusRunning || d.LastPing.IsZero() {
		t.Errorf("descriptor = %+v, want running with last ping", d)
	}

	tool.pingErr = errors.New("unreachable")
	d, _ = b.Status(context.Background(), "search")
	if d.Status != StatusError {
		t.Errorf("status after failed ping = %s, want error", d.Status)
	}

	// A succeeding ping recovers.
	tool.pingErr = nil
	d, _ = b.Status(context.Background(), "search")
	if d.Status != StatusRunning || d.Error != "" {
		t.Errorf("status after recovery = %s (%q), want running", d.Status, d.Error)
	}

	if _, err := b.Status(context.Background(), "nope"); !fault.Is(err, fault.KindToolUnknown) {
		t.Errorf("unknown name kind = %v, want unknown_tool", fault.KindOf(err))
	}
}

func TestShutdownStopsAll(t *testing.T) {
	b := New(nil)
	first := &fakeTool{name: "first"}
	second := &fakeTool{name: "second"}
	b.Register(first)
	b.Register(second)
	b.StartAll(context.Background())

	b.Shutdown(context.Background())

	if first.stopped != 1 || second.stopped != 1 {
		t.Errorf("stop counts = %d/%d, want 1/1", first.stopped, second.stopped)
	}
	for _, d := range b.StatusAll(context.Background()) {
		if d.Status != StatusStopped {
			t.Errorf("tool %s status = %s after shutdown, want stopped", d.Name, d.Status)
		}
	}
	if _, err := b.Dispatch(context.Background(), "first", "anything", nil); !fault.Is(err, fault.KindToolStopped) {
		t.Errorf("dispatch after shutdown kind = %v, want tool_unavailable", fault.KindOf(err))
	}
}

func TestDispatchCategoryRouting(t *testing.T) {
	b := New(nil)
	document := &fakeTool{name: "document", caps: []string{"generate_pdf"}}
	ai := &fakeTool{name: "ai_providers", caps: []string{"claude_chat", "execute_step"}}
	b.Register(document)
	b.Register(ai)
	b.StartAll(context.Background())

	ctx := context.Background()

	// A typed command declared by the category's tool goes straight there.
	if _, err := b.DispatchCategory(ctx, classify.CategoryDocument, "generate_pdf", nil); err != nil {
		t.Fatalf("DispatchCategory: %v", err)
	}
	if len(document.executed) != 1 {
		t.Errorf("document executed %d times, want 1", len(document.executed))
	}

	// A plan step the document tool does not declare falls through to the
	// generic executor with the step name preserved.
	result, err := b.DispatchCategory(ctx, classify.CategoryDocument, "gather_document_requirements",
		map[string]string{"topic": "q3"})
	if err != nil {
		t.Fatalf("DispatchCategory plan step: %v", err)
	}
	if result["command"] != "execute_step" {
		t.Errorf("plan step routed to %v, want execute_step", result["command"])
	}
	params := result["params"].(map[string]string)
	if params["step"] != "gather_document_requirements" || params["category"] != "document_generation" {
		t.Errorf("plan step params = %v", params)
	}
	if params["topic"] != "q3" {
		t.Errorf("original params lost: %v", params)
	}

	// Categories without a dedicated tool use the generic executor too.
	if _, err := b.DispatchCategory(ctx, classify.CategoryCalendar, "schedule_meeting", nil); err != nil {
		t.Fatalf("DispatchCategory calendar: %v", err)
	}
	if len(ai.executed) != 2 {
		t.Errorf("ai executed %d times, want 2", len(ai.executed))
	}
}

func TestRouteAI(t *testing.T) {
	b := New(nil)
	ai := &fakeTool{name: "ai_providers", caps: []string{"claude_chat", "gpt_chat", "gemini_chat", "execute_step"}}
	b.Register(ai)
	b.StartAll(context.Background())

	result, err := b.RouteAI(context.Background(), "claude", "hello", "prior turn", "opus")
	if err != nil {
		t.Fatalf("RouteAI: %v", err)
	}
	if result["command"] != "claude_chat" {
		t.Errorf("command = %v, want claude_chat", result["command"])
	}
	params := result["params"].(map[string]string)
	if params["prompt"] != "hello" || params["context"] != "prior turn" || params["model"] != "opus" {
		t.Errorf("params = %v", params)
	}

	if _, err := b.RouteAI(context.Background(), "cohere", "hi", "", ""); !fault.Is(err, fault.KindUnsupportedCommand) {
		t.Errorf("unknown provider kind = %v, want unsupported_command", fault.KindOf(err))
	}

	// Empty provider defers to the tool's default via the generic command.
	result, err = b.RouteAI(context.Background(), "", "hi", "", "")
	if err != nil {
		t.Fatalf("RouteAI default: %v", err)
	}
	if result["command"] != "execute_step" {
		t.Errorf("default command = %v", result["command"])
	}
}

// chainTool replays canned results keyed by command, for the voice chain.
type chainTool struct {
	fakeTool
	results map[string]map[string]any
}

func (c *chainTool) Execute(_ context.Context, command string, params map[string]string) (map[string]any, error) {
	c.executed = append(c.executed, command)
	if r, ok := c.results[command]; ok {
		return r, nil
	}
	return map[string]any{"command": command, "params": params}, nil
}

func TestProcessVoiceChain(t *testing.T) {
	b := New(nil)
	voice := &chainTool{
		fakeTool: fakeTool{name: "voice", caps: []string{"speech_to_text", "text_to_speech"}},
		results: map[string]map[string]any{
			"speech_to_text": {"text": "what is the weather"},
			"text_to_speech": {"audio": "UklGRg==", "format": "wav"},
		},
	}
	ai := &chainTool{
		fakeTool: fakeTool{name: "ai_providers", caps: []string{"execute_step"}},
		results: map[string]map[string]any{
			"execute_step": {"response": "sunny and mild"},
		},
	}
	b.Register(voice)
	b.Register(ai)
	b.StartAll(context.Background())

	result, err := b.ProcessVoice(context.Background(), "b64audio", "wav", 16000)
	if err != nil {
		t.Fatalf("ProcessVoice: %v", err)
	}
	if result["transcript"] != "what is the weather" {
		t.Errorf("transcript = %v", result["transcript"])
	}
	if result["response_text"] != "sunny and mild" {
		t.Errorf("response_text = %v", result["response_text"])
	}
	if result["response_audio"] != "UklGRg==" {
		t.Errorf("response_audio = %v", result["response_audio"])
	}
	want := []string{"speech_to_text", "text_to_speech"}
	if len(voice.executed) != 2 || voice.executed[0] != want[0] || voice.executed[1] != want[1] {
		t.Errorf("voice commands = %v, want %v", voice.executed, want)
	}
}

func TestProcessVoiceEmptyTranscript(t *testing.T) {
	b := New(nil)
	voice := &chainTool{
		fakeTool: fakeTool{name: "voice", caps: []string{"speech_to_text", "text_to_speech"}},
		results:  map[string]map[string]any{"speech_to_text": {"text": ""}},
	}
	b.Register(voice)
	b.StartAll(context.Background())

	if _, err := b.ProcessVoice(context.Background(), "b64", "wav", 16000); !fault.Is(err, fault.KindToolError) {
		t.Errorf("kind = %v, want tool_error", fault.KindOf(err))
	}
}

func TestWebSearchDefaults(t *testing.T) {
	b := New(nil)
	search := &fakeTool{name: "search", caps: []string{"web_search"}}
	b.Register(search)
	b.StartAll(context.Background())

	result, err := b.WebSearch(context.Background(), "golang generics", 0, "")
	if err != nil {
		t.Fatalf("WebSearch: %v", err)
	}
	params := result["params"].(map[string]string)
	if params["query"] != "golang generics" || params["n"] != "10" {
		t.Errorf("params = %v", params)
	}
	if _, ok := params["type"]; ok {
		t.Error("empty type should not be forwarded")
	}
}

func TestDispatchBreakerTripsOnRepeatedFailures(t *testing.T) {
	b := New(nil)
	flaky := &fakeTool{name: "flaky", caps: []string{"run"}, execErr: errors.New("io timeout")}
	b.Register(flaky)
	b.StartAll(context.Background())

	for i := 0; i < 5; i++ {
		_, err := b.Dispatch(context.Background(), "flaky", "run", nil)
		if !fault.Is(err, fault.KindToolError) {
			t.Fatalf("call %d kind = %v, want tool_error", i, fault.KindOf(err))
		}
	}

	// Breaker is open now: the tool is no longer invoked.
	before := len(flaky.executed)
	_, err := b.Dispatch(context.Background(), "flaky", "run", nil)
	if !fault.Is(err, fault.KindToolStopped) {
		t.Fatalf("kind = %v, want tool_unavailable", fault.KindOf(err))
	}
	if len(flaky.executed) != before {
		t.Error("tool was invoked while the breaker was open")
	}
}

func TestDispatchCallerErrorsDoNotTripBreaker(t *testing.T) {
	b := New(nil)
	strict := &fakeTool{name: "strict", caps: []string{"run"},
		execErr: fault.New(fault.KindInvalidInput, "strict", "bad request")}
	b.Register(strict)
	b.StartAll(context.Background())

	for i := 0; i < 10; i++ {
		_, err := b.Dispatch(context.Background(), "strict", "run", nil)
		if !fault.Is(err, fault.KindInvalidInput) {
			t.Fatalf("call %d kind = %v, want invalid_input", i, fault.KindOf(err))
		}
	}
}
