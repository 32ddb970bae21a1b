package gateway

import (
	"net/http"
	"strings"
	"time"

	"github.com/jmolinaso/voxbridge/internal/classify"
	"github.com/jmolinaso/voxbridge/internal/fault"
	"github.com/jmolinaso/voxbridge/internal/queue"
	"github.com/jmolinaso/voxbridge/internal/workflow"
)

// --- auth ---

type tokenRequest struct {
	APIKey string `json:"api_key"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

func (s *Server) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.APIKey == "" {
		writeError(w, r, fault.New(fault.KindInvalidInput, "gateway", "api_key is required"))
		return
	}

	token, lifetime, err := s.auth.Issue(req.APIKey, r.Header.Get("X-Client-Platform"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int(lifetime.Seconds()),
	})
}

type verifyResponse struct {
	Subject              string `json:"subject"`
	IssuedAt             string `json:"issued_at"`
	ExpiresAt            string `json:"expires_at"`
	TimeRemainingSeconds int    `json:"time_remaining_seconds"`
	IsExpiringSoon       bool   `json:"is_expiring_soon"`
}

func (s *Server) handleVerifyToken(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, r, fault.New(fault.KindInvalidCredentials, "gateway", "missing bearer token"))
		return
	}
	claims, err := s.auth.Verify(token)
	if err != nil {
		writeError(w, r, err)
		return
	}

	now := time.Now()
	writeJSON(w, http.StatusOK, verifyResponse{
		Subject:              claims.Subject,
		IssuedAt:             claims.IssuedAt.UTC().Format(time.RFC3339),
		ExpiresAt:            claims.ExpiresAt.UTC().Format(time.RFC3339),
		TimeRemainingSeconds: int(claims.TimeRemaining(now).Seconds()),
		IsExpiringSoon:       claims.ExpiringSoon(now),
	})
}

// --- classification ---

type classifyRequest struct {
	Text               string `json:"text"`
	UserID             string `json:"user_id"`
	SessionID          string `json:"session_id"`
	UseContext         bool   `json:"use_context"`
	IncludeSuggestions *bool  `json:"include_suggestions"`
	Priority           string `json:"priority"`
}

type classifyResponse struct {
	workflow.Report
	ConfidenceLevel      classify.ConfidenceLevel `json:"confidence_level"`
	RequiresConfirmation bool                     `json:"requires_confirmation"`
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req classifyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	trimmed := strings.TrimSpace(req.Text)
	if trimmed == "" || len(req.Text) > maxTextLength {
		writeError(w, r, fault.Newf(fault.KindInvalidInput, "gateway",
			"text must be between 1 and %d characters", maxTextLength))
		return
	}
	if req.UserID == "" {
		if claims, ok := ClaimsFrom(r.Context()); ok {
			req.UserID = claims.Subject
		}
	}
	if req.SessionID == "" {
		req.SessionID = "default"
	}

	job := &classifyJob{
		ctx:        r.Context(),
		text:       req.Text,
		user:       req.UserID,
		session:    req.SessionID,
		useContext: req.UseContext,
		reply:      make(chan classifyOutcome, 1),
	}
	start := time.Now()
	if err := s.queue.Enqueue(job, queue.ParsePriority(req.Priority)); err != nil {
		writeError(w, r, err)
		return
	}

	var outcome classifyOutcome
	select {
	case outcome = <-job.reply:
	case <-r.Context().Done():
		writeError(w, r, fault.New(fault.KindTimeout, "gateway", "request cancelled while queued"))
		return
	}
	if s.metrics != nil {
		s.metrics.ClassifyDuration.Record(r.Context(), time.Since(start).Seconds())
	}
	s.track(req.UserID, req.SessionID, string(outcome.report.Classification.Category), req.Text, outcome.err == nil)

	if outcome.err != nil {
		writeError(w, r, outcome.err)
		return
	}

	resp := classifyResponse{
		Report:               outcome.report,
		ConfidenceLevel:      outcome.report.Classification.ConfidenceLevel(),
		RequiresConfirmation: outcome.report.Classification.RequiresConfirmation(),
	}
	if req.IncludeSuggestions != nil && !*req.IncludeSuggestions {
		resp.Report.Classification.Suggestions = nil
	}
	writeJSON(w, http.StatusOK, resp)
}

type categoryInfo struct {
	Name               classify.Category `json:"name"`
	RequiredParameters []string          `json:"required_parameters"`
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	out := make([]categoryInfo, 0, len(classify.Categories))
	for _, c := range classify.Categories {
		out = append(out, categoryInfo{
			Name:               c,
			RequiredParameters: classify.RequiredParameters(c),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"categories": out,
		"total":      len(out),
	})
}

func (s *Server) handlePatterns(w http.ResponseWriter, r *http.Request) {
	category := classify.Category(r.PathValue("category"))
	if !category.IsValid() {
		writeError(w, r, fault.Newf(fault.KindNotFound, "gateway", "unknown category %q", category))
		return
	}
	patterns := classify.Patterns(category)
	writeJSON(w, http.StatusOK, map[string]any{
		"category": category,
		"patterns": patterns,
		"count":    len(patterns),
	})
}

func (s *Server) handleVoiceMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"classifier":    s.classifier.Metrics(),
		"context_store": s.contexts.Metrics(),
		"workflow":      s.engine.Stats(),
		"queue_depth":   s.queue.Len(),
	})
}

// --- conversation context ---

func (s *Server) handleContextSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.contexts.Summary(r.Context(), r.PathValue("user"), r.PathValue("session"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleContextSuggestions(w http.ResponseWriter, r *http.Request) {
	suggestions := s.contexts.Suggestions(r.Context(), r.PathValue("user"), r.PathValue("session"))
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":     r.PathValue("user"),
		"session_id":  r.PathValue("session"),
		"suggestions": suggestions,
	})
}

type interactionRequest struct {
	UserInput   string            `json:"user_input"`
	BotResponse string            `json:"bot_response"`
	Category    classify.Category `json:"category"`
	Parameters  map[string]string `json:"parameters"`
}

func (s *Server) handleContextInteraction(w http.ResponseWriter, r *http.Request) {
	var req interactionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.UserInput == "" {
		writeError(w, r, fault.New(fault.KindInvalidInput, "gateway", "user_input is required"))
		return
	}
	if !req.Category.IsValid() {
		writeError(w, r, fault.Newf(fault.KindInvalidInput, "gateway", "unknown category %q", req.Category))
		return
	}

	user, session := r.PathValue("user"), r.PathValue("session")
	s.contexts.AppendInteraction(r.Context(), user, session, req.UserInput, req.BotResponse, req.Category, req.Parameters)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "recorded",
		"user_id":    user,
		"session_id": session,
	})
}

func (s *Server) handleContextClear(w http.ResponseWriter, r *http.Request) {
	user, session := r.PathValue("user"), r.PathValue("session")
	s.contexts.Clear(r.Context(), user, session)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "cleared",
		"user_id":    user,
		"session_id": session,
	})
}

func (s *Server) handleContextClearUser(w http.ResponseWriter, r *http.Request) {
	user := r.PathValue("user")
	s.contexts.ClearUser(r.Context(), user)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "cleared",
		"user_id": user,
	})
}

// --- workflows ---

type continueRequest struct {
	UserInput string `json:"user_input"`
}

func (s *Server) handleWorkflowContinue(w http.ResponseWriter, r *http.Request) {
	var req continueRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
	}

	start := time.Now()
	report, err := s.engine.Continue(r.Context(), r.PathValue("id"), req.UserInput)
	if s.metrics != nil {
		s.metrics.WorkflowStepDuration.Record(r.Context(), time.Since(start).Seconds())
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleWorkflowActive(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFrom(r.Context())
	active := s.engine.Active(claims.Subject)
	writeJSON(w, http.StatusOK, map[string]any{
		"workflows": active,
		"count":     len(active),
	})
}

// --- tool dispatch ---

func (s *Server) handleToolStatus(w http.ResponseWriter, r *http.Request) {
	tools := s.broker.StatusAll(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"tools": tools,
		"count": len(tools),
	})
}

// finishDispatch records instrumentation and analytics for one tool call
// and writes the outcome.
func (s *Server) finishDispatch(w http.ResponseWriter, r *http.Request, tool, command string, start time.Time, result map[string]any, err error) {
	if s.metrics != nil {
		s.metrics.ToolDispatchDuration.Record(r.Context(), time.Since(start).Seconds())
		if err != nil {
			s.metrics.RecordToolCall(r.Context(), tool, "error")
			s.metrics.RecordToolError(r.Context(), tool, string(fault.KindOf(err)))
		} else {
			s.metrics.RecordToolCall(r.Context(), tool, "ok")
		}
	}
	claims, _ := ClaimsFrom(r.Context())
	s.track(claims.Subject, "", tool, command, err == nil)

	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type documentRequest struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	Format   string `json:"format"`
	Filename string `json:"filename"`
	Author   string `json:"author"`
}

func (s *Server) handleDocumentGenerate(w http.ResponseWriter, r *http.Request) {
	var req documentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	format := strings.ToLower(req.Format)
	if format == "" {
		format = "pdf"
	}
	switch format {
	case "pdf", "docx", "markdown":
	default:
		writeError(w, r, fault.Newf(fault.KindInvalidInput, "gateway", "unsupported format %q", format))
		return
	}

	params := map[string]string{
		"content":  req.Content,
		"title":    req.Title,
		"filename": req.Filename,
		"author":   req.Author,
	}
	start := time.Now()
	result, err := s.broker.Dispatch(r.Context(), "document", "generate_"+format, params)
	s.finishDispatch(w, r, "document", "generate_"+format, start, result, err)
}

type emailRequest struct {
	To       string `json:"to"`
	Subject  string `json:"subject"`
	Body     string `json:"body"`
	CC       string `json:"cc"`
	BCC      string `json:"bcc"`
	Template string `json:"template"`
}

func (s *Server) handleEmailSend(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	params := map[string]string{
		"to":       req.To,
		"subject":  req.Subject,
		"body":     req.Body,
		"cc":       req.CC,
		"bcc":      req.BCC,
		"template": req.Template,
	}
	start := time.Now()
	result, err := s.broker.Dispatch(r.Context(), "email", "send_email", params)
	s.finishDispatch(w, r, "email", "send_email", start, result, err)
}

type searchRequest struct {
	Query      string `json:"query"`
	NumResults int    `json:"num_results"`
	SearchType string `json:"search_type"`
}

func (s *Server) handleWebSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, r, fault.New(fault.KindInvalidInput, "gateway", "query is required"))
		return
	}

	start := time.Now()
	result, err := s.broker.WebSearch(r.Context(), req.Query, req.NumResults, req.SearchType)
	s.finishDispatch(w, r, "search", "web_search", start, result, err)
}

type aiRequest struct {
	Prompt   string `json:"prompt"`
	Provider string `json:"provider"`
	Context  string `json:"context"`
	Model    string `json:"model"`
}

func (s *Server) handleAIProcess(w http.ResponseWriter, r *http.Request) {
	var req aiRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeError(w, r, fault.New(fault.KindInvalidInput, "gateway", "prompt is required"))
		return
	}

	start := time.Now()
	result, err := s.broker.RouteAI(r.Context(), req.Provider, req.Prompt, req.Context, req.Model)
	s.finishDispatch(w, r, "ai_providers", "chat", start, result, err)
}

type voiceRequest struct {
	Audio      string `json:"audio"`
	Format     string `json:"format"`
	SampleRate int    `json:"sample_rate"`
}

func (s *Server) handleVoiceProcess(w http.ResponseWriter, r *http.Request) {
	var req voiceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Audio == "" {
		writeError(w, r, fault.New(fault.KindInvalidInput, "gateway", "audio is required"))
		return
	}

	start := time.Now()
	result, err := s.broker.ProcessVoice(r.Context(), req.Audio, req.Format, req.SampleRate)
	s.finishDispatch(w, r, "voice", "process_voice", start, result, err)
}

// --- analytics ---

func (s *Server) handleAnalyticsProfile(w http.ResponseWriter, r *http.Request) {
	if s.sink == nil {
		writeError(w, r, fault.New(fault.KindNotFound, "gateway", "analytics is not enabled"))
		return
	}
	user := r.PathValue("user")
	profile, ok, err := s.sink.Profile(r.Context(), user)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !ok {
		writeError(w, r, fault.Newf(fault.KindNotFound, "gateway", "no profile for user %q", user))
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) handleAnalyticsProfiles(w http.ResponseWriter, r *http.Request) {
	if s.sink == nil {
		writeError(w, r, fault.New(fault.KindNotFound, "gateway", "analytics is not enabled"))
		return
	}
	profiles := s.sink.Profiles()
	writeJSON(w, http.StatusOK, map[string]any{
		"profiles":       profiles,
		"count":          len(profiles),
		"dropped_events": s.sink.Dropped(),
	})
}
