package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jmolinaso/voxbridge/internal/classify"
	"github.com/jmolinaso/voxbridge/internal/classify/cache"
	"github.com/jmolinaso/voxbridge/internal/convo"
	"github.com/jmolinaso/voxbridge/internal/fault"
)

// Classifier is the slice of the intent classifier the engine consumes.
type Classifier interface {
	Classify(text string, snapshot *classify.Snapshot) classify.Result
}

// Dispatcher executes one tool command. The broker implements this.
type Dispatcher interface {
	Dispatch(ctx context.Context, category classify.Category, command string, params map[string]string) (map[string]any, error)
}

// Engine runs the classification pipeline and drives multi-step workflows.
type Engine struct {
	classifier Classifier
	cache      *cache.Cache
	contexts   *convo.Store
	dispatcher Dispatcher
	logger     *slog.Logger

	stepTimeout time.Duration
	maxRetries  int

	mu        sync.Mutex
	workflows map[string]*workflowState

	totalCommands    int64
	workflowsCreated int64
	succeeded        int64
	failed           int64
	elapsed          time.Duration
}

// workflowState pairs a workflow with the mutex that serializes its
// execution. Continue holds it across broker I/O so at most one step of a
// workflow runs at a time.
type workflowState struct {
	mu sync.Mutex
	wf *Workflow
}

// Options configures an [Engine].
type Options struct {
	Classifier Classifier
	Cache      *cache.Cache // optional
	Contexts   *convo.Store
	Dispatcher Dispatcher

	// StepTimeout bounds one step execution. Defaults to 30s.
	StepTimeout time.Duration

	// MaxRetries is the per-step retry budget. Defaults to 3.
	MaxRetries int

	Logger *slog.Logger
}

// NewEngine builds an Engine.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Classifier == nil {
		return nil, fmt.Errorf("workflow: classifier is required")
	}
	if opts.Contexts == nil {
		return nil, fmt.Errorf("workflow: context store is required")
	}
	if opts.Dispatcher == nil {
		return nil, fmt.Errorf("workflow: dispatcher is required")
	}
	stepTimeout := opts.StepTimeout
	if stepTimeout <= 0 {
		stepTimeout = 30 * time.Second
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		classifier:  opts.Classifier,
		cache:       opts.Cache,
		contexts:    opts.Contexts,
		dispatcher:  opts.Dispatcher,
		logger:      logger,
		stepTimeout: stepTimeout,
		maxRetries:  maxRetries,
		workflows:   make(map[string]*workflowState),
	}, nil
}

// Report is the outcome of processing one utterance.
type Report struct {
	Classification classify.Result `json:"classification"`
	Complexity     Complexity      `json:"complexity"`
	EstimatedSteps int             `json:"estimated_steps"`
	Parameters     []Parameter     `json:"parameters"`
	Dependencies   []string        `json:"context_dependencies,omitempty"`
	Workflow       *Descriptor     `json:"workflow,omitempty"`
	Status         string          `json:"status"`
	Message        string          `json:"message"`
	ProcessingTime time.Duration   `json:"processing_time_ns"`
}

// Process classifies text, resolves parameters, and creates a workflow
// when the utterance has multi-step structure. Simple commands return
// immediately without a workflow.
func (e *Engine) Process(ctx context.Context, text, user, session string, useContext bool) (Report, error) {
	if text == "" {
		return Report{}, fault.New(fault.KindInvalidInput, "workflow", "text must not be empty")
	}
	start := time.Now()

	var snapshot *classify.Snapshot
	var conversation *convo.Context
	if useContext {
		conversation = e.contexts.Get(ctx, user, session, false)
		if conversation != nil {
			s := conversation.Snapshot()
			snapshot = &s
		}
	}

	result := e.classifyCached(ctx, text, user, session, useContext, snapshot)
	complexity := AnalyzeComplexity(text)
	estimated := EstimateSteps(text, complexity)
	params := ResolveParameters(text, result, conversation)

	report := Report{
		Classification: result,
		Complexity:     complexity,
		EstimatedSteps: estimated,
		Parameters:     params,
		Dependencies:   ContextDependencies(text),
	}

	templateName := MatchTemplate(text)
	if templateName != "" || estimated > 1 {
		wf := e.buildWorkflow(text, user, session, complexity, estimated, templateName, params)
		d := wf.descriptor()
		report.Workflow = &d
		report.Status = "workflow_created"
		report.Message = fmt.Sprintf("multi-step workflow created with %d steps", len(wf.Steps))
	} else {
		report.Status = "completed"
		report.Message = "simple command, no workflow required"
	}

	e.contexts.AppendInteraction(ctx, user, session, text, report.Message, result.Category, result.Parameters)

	report.ProcessingTime = time.Since(start)
	e.mu.Lock()
	e.totalCommands++
	e.elapsed += report.ProcessingTime
	e.mu.Unlock()
	return report, nil
}

// classifyCached consults the two-tier cache around the classifier.
func (e *Engine) classifyCached(ctx context.Context, text, user, session string, useContext bool, snapshot *classify.Snapshot) classify.Result {
	if e.cache == nil {
		return e.classifier.Classify(text, snapshot)
	}
	key := cache.Key(text, user, session, useContext)
	if r, ok := e.cache.Get(ctx, key); ok {
		return r
	}
	r := e.classifier.Classify(text, snapshot)
	e.cache.Put(ctx, key, r)
	return r
}

// buildWorkflow instantiates a template plan or synthesizes a generic
// N-step plan, registers it, and returns it in pending state.
func (e *Engine) buildWorkflow(text, user, session string, complexity Complexity, estimated int, templateName string, params []Parameter) *Workflow {
	id := uuid.NewString()
	now := time.Now()

	var steps []*Step
	estimatedSeconds := float64(estimated) * 30

	if tmpl, ok := templates[templateName]; ok {
		complexity = tmpl.complexity
		estimatedSeconds = tmpl.estimatedSeconds
		for i, def := range tmpl.steps {
			steps = append(steps, &Step{
				ID:         fmt.Sprintf("%s_step_%d", id, i),
				Command:    def.command,
				Category:   def.category,
				Parameters: paramsForCategory(params, def.category),
				Status:     StatusPending,
				Timeout:    e.stepTimeout,
			})
		}
	} else {
		for i := 0; i < estimated; i++ {
			steps = append(steps, &Step{
				ID:         fmt.Sprintf("%s_step_%d", id, i),
				Command:    fmt.Sprintf("step_%d", i),
				Category:   classify.CategoryConversation,
				Parameters: append([]Parameter(nil), params...),
				Status:     StatusPending,
				Timeout:    e.stepTimeout,
			})
		}
	}

	wf := &Workflow{
		ID:               id,
		User:             user,
		Session:          session,
		Original:         text,
		Complexity:       complexity,
		Template:         templateName,
		Steps:            steps,
		Status:           StatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
		EstimatedSeconds: estimatedSeconds,
	}

	e.mu.Lock()
	e.workflows[id] = &workflowState{wf: wf}
	e.workflowsCreated++
	e.mu.Unlock()

	e.logger.Info("workflow created", "workflow_id", id, "user", user,
		"template", templateName, "steps", len(steps), "complexity", complexity)
	return wf
}

// paramsForCategory filters resolved parameters to those relevant for a
// step's category, falling back to all parameters when nothing is scoped.
func paramsForCategory(params []Parameter, category classify.Category) []Parameter {
	required := classify.RequiredParameters(category)
	if len(required) == 0 {
		return append([]Parameter(nil), params...)
	}
	wanted := make(map[string]bool, len(required))
	for _, name := range required {
		wanted[name] = true
	}
	var out []Parameter
	for _, p := range params {
		if wanted[p.Name] || !p.Required {
			out = append(out, p)
		}
	}
	return out
}

// ContinueReport describes the state after one continuation attempt.
type ContinueReport struct {
	WorkflowID  string         `json:"workflow_id"`
	StepID      string         `json:"step_id,omitempty"`
	StepCommand string         `json:"step_command,omitempty"`
	StepStatus  Status         `json:"step_status,omitempty"`
	Status      Status         `json:"status"`
	CurrentStep int            `json:"current_step"`
	TotalSteps  int            `json:"total_steps"`
	Progress    float64        `json:"completion_percentage"`
	NeedsInput  bool           `json:"needs_input,omitempty"`
	Prompt      string         `json:"prompt,omitempty"`
	Result      map[string]any `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
	Message     string         `json:"message"`
}

// Continue advances the current step of a workflow through the dispatcher.
// userInput satisfies the first prompted parameter of the step, if any.
// Continuations of the same workflow are serialized.
func (e *Engine) Continue(ctx context.Context, workflowID, userInput string) (ContinueReport, error) {
	e.mu.Lock()
	state, ok := e.workflows[workflowID]
	e.mu.Unlock()
	if !ok {
		return ContinueReport{}, fault.New(fault.KindNotFound, "workflow", "workflow not found")
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	wf := state.wf

	if wf.Status.terminal() || wf.Status == StatusFailed {
		return e.continueReport(wf, nil, fmt.Sprintf("workflow already %s", wf.Status)), nil
	}

	step := wf.currentStep()
	if step == nil {
		wf.Status = StatusCompleted
		e.retire(wf, true)
		return e.continueReport(wf, nil, "all steps completed"), nil
	}

	// Prompted parameters gate execution. Each continuation satisfies at
	// most one; the step stays in waiting_input until all are resolved.
	if missing := step.firstUnresolved(); missing != nil {
		if userInput != "" {
			missing.Value = userInput
			missing.Confidence = 1
			missing = step.firstUnresolved()
		}
		if missing != nil {
			_ = step.setStatus(StatusWaitingInput)
			wf.Status = StatusWaitingInput
			wf.UpdatedAt = time.Now()
			r := e.continueReport(wf, step, fmt.Sprintf("input required for %s", missing.Name))
			r.NeedsInput = true
			r.Prompt = fmt.Sprintf("Please provide a value for %s", missing.Name)
			return r, nil
		}
	}

	if err := step.setStatus(StatusRunning); err != nil {
		return ContinueReport{}, fault.Wrap(fault.KindInternal, "workflow", "step state", err)
	}
	wf.Status = StatusRunning
	step.StartedAt = time.Now()

	result, err := e.executeWithRetry(ctx, step)
	wf.UpdatedAt = time.Now()
	if err != nil {
		step.Error = err.Error()
		_ = step.setStatus(StatusFailed)
		wf.Status = StatusFailed
		e.retire(wf, false)
		e.logger.Warn("workflow step failed", "workflow_id", wf.ID,
			"step", step.ID, "retries", step.Retries, "error", err)
		r := e.continueReport(wf, step, "step failed after exhausting retries")
		r.Error = err.Error()
		return r, nil
	}

	step.Result = result
	step.CompletedAt = time.Now()
	_ = step.setStatus(StatusCompleted)
	wf.CurrentStep++

	msg := fmt.Sprintf("step %d of %d completed", wf.CurrentStep, len(wf.Steps))
	if wf.allCompleted() {
		wf.Status = StatusCompleted
		e.retire(wf, true)
		msg = "workflow completed"
	} else {
		wf.Status = StatusPending
	}
	r := e.continueReport(wf, step, msg)
	r.Result = result
	return r, nil
}

// executeWithRetry dispatches the step, retrying on failure with the same
// parameters up to the budget. Each attempt gets its own timeout; a timeout
// counts as a failed attempt.
func (e *Engine) executeWithRetry(ctx context.Context, step *Step) (map[string]any, error) {
	var lastErr error
	for {
		attemptCtx, cancel := context.WithTimeout(ctx, step.Timeout)
		result, err := e.dispatcher.Dispatch(attemptCtx, step.Category, step.Command, step.paramValues())
		cancel()
		if err == nil {
			return result, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, lastErr
		}
		if step.Retries >= e.maxRetries {
			return nil, lastErr
		}
		step.Retries++
		e.logger.Debug("retrying step", "step", step.ID, "attempt", step.Retries, "error", err)
	}
}

// Cancel terminates a workflow and releases it.
func (e *Engine) Cancel(workflowID string) error {
	e.mu.Lock()
	state, ok := e.workflows[workflowID]
	e.mu.Unlock()
	if !ok {
		return fault.New(fault.KindNotFound, "workflow", "workflow not found")
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	wf := state.wf
	if wf.Status.terminal() {
		return nil
	}
	for _, s := range wf.Steps {
		if !s.Status.terminal() && s.Status != StatusFailed {
			_ = s.setStatus(StatusCancelled)
		}
	}
	wf.Status = StatusCancelled
	wf.UpdatedAt = time.Now()
	e.retire(wf, false)
	e.logger.Info("workflow cancelled", "workflow_id", wf.ID)
	return nil
}

// retire removes a terminal workflow from the active set and bumps the
// outcome counters.
func (e *Engine) retire(wf *Workflow, succeeded bool) {
	e.mu.Lock()
	delete(e.workflows, wf.ID)
	if succeeded {
		e.succeeded++
	} else if wf.Status == StatusFailed {
		e.failed++
	}
	e.mu.Unlock()
}

// Active lists the live workflows for a user.
func (e *Engine) Active(user string) []Descriptor {
	e.mu.Lock()
	states := make([]*workflowState, 0, len(e.workflows))
	for _, state := range e.workflows {
		states = append(states, state)
	}
	e.mu.Unlock()

	var out []Descriptor
	for _, state := range states {
		state.mu.Lock()
		if state.wf.User == user {
			out = append(out, state.wf.descriptor())
		}
		state.mu.Unlock()
	}
	return out
}

func (e *Engine) continueReport(wf *Workflow, step *Step, msg string) ContinueReport {
	r := ContinueReport{
		WorkflowID:  wf.ID,
		Status:      wf.Status,
		CurrentStep: wf.CurrentStep,
		TotalSteps:  len(wf.Steps),
		Progress:    wf.Progress(),
		Message:     msg,
	}
	if step != nil {
		r.StepID = step.ID
		r.StepCommand = step.Command
		r.StepStatus = step.Status
	}
	return r
}

// Stats is an aggregate view of engine activity.
type Stats struct {
	TotalCommands       int64         `json:"total_commands"`
	WorkflowsCreated    int64         `json:"workflows_created"`
	SuccessfulWorkflows int64         `json:"successful_workflows"`
	FailedWorkflows     int64         `json:"failed_workflows"`
	ActiveWorkflows     int           `json:"active_workflows"`
	AverageProcessing   time.Duration `json:"average_processing_ns"`
}

// Stats returns the aggregate counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := Stats{
		TotalCommands:       e.totalCommands,
		WorkflowsCreated:    e.workflowsCreated,
		SuccessfulWorkflows: e.succeeded,
		FailedWorkflows:     e.failed,
		ActiveWorkflows:     len(e.workflows),
	}
	if e.totalCommands > 0 {
		s.AverageProcessing = e.elapsed / time.Duration(e.totalCommands)
	}
	return s
}
