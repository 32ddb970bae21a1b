// Package gateway is the system boundary: it validates payloads, enforces
// bearer auth, maps domain errors to the HTTP taxonomy, and records
// analytics events off the hot path.
//
// Classification requests flow through a priority batch queue so bursty
// load degrades to 429 instead of piling up goroutines behind the
// classifier. Everything else is dispatched inline.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jmolinaso/voxbridge/internal/analytics"
	"github.com/jmolinaso/voxbridge/internal/auth"
	"github.com/jmolinaso/voxbridge/internal/broker"
	"github.com/jmolinaso/voxbridge/internal/classify"
	"github.com/jmolinaso/voxbridge/internal/convo"
	"github.com/jmolinaso/voxbridge/internal/fault"
	"github.com/jmolinaso/voxbridge/internal/health"
	"github.com/jmolinaso/voxbridge/internal/observe"
	"github.com/jmolinaso/voxbridge/internal/queue"
	"github.com/jmolinaso/voxbridge/internal/workflow"
	"github.com/jmolinaso/voxbridge/internal/ws"
)

// maxTextLength is the upper bound on utterance text accepted by the
// classification endpoints.
const maxTextLength = 1000

// classifyJob is one queued classification request awaiting the drainer.
type classifyJob struct {
	ctx        context.Context
	text       string
	user       string
	session    string
	useContext bool
	reply      chan classifyOutcome
}

type classifyOutcome struct {
	report workflow.Report
	err    error
}

// Server is the REST and duplex entry point.
type Server struct {
	auth       *auth.Authenticator
	engine     *workflow.Engine
	classifier *classify.Classifier
	contexts   *convo.Store
	broker     *broker.Broker
	sessions   *ws.Multiplexer
	sink       *analytics.Sink
	health     *health.Handler
	metrics    *observe.Metrics
	queue      *queue.Queue[*classifyJob]
	logger     *slog.Logger
	version    string
}

// Options wires a [Server]. Auth, Engine, Classifier, Contexts, Broker, and
// Sessions are required; the rest degrade gracefully when absent.
type Options struct {
	Auth       *auth.Authenticator
	Engine     *workflow.Engine
	Classifier *classify.Classifier
	Contexts   *convo.Store
	Broker     *broker.Broker
	Sessions   *ws.Multiplexer

	// Analytics receives one event per classification and tool dispatch.
	// Optional.
	Analytics *analytics.Sink

	// Health serves the unauthenticated status endpoints. Optional.
	Health *health.Handler

	// Metrics records request and dispatch instrumentation. Optional.
	Metrics *observe.Metrics

	// Queue tunes the classification batch queue.
	Queue queue.Options

	Logger  *slog.Logger
	Version string
}

// New builds a Server. The classification queue is created here; call
// [Server.Run] to start its drainer.
func New(opts Options) (*Server, error) {
	if opts.Auth == nil {
		return nil, fmt.Errorf("gateway: authenticator is required")
	}
	if opts.Engine == nil {
		return nil, fmt.Errorf("gateway: workflow engine is required")
	}
	if opts.Classifier == nil {
		return nil, fmt.Errorf("gateway: classifier is required")
	}
	if opts.Contexts == nil {
		return nil, fmt.Errorf("gateway: context store is required")
	}
	if opts.Broker == nil {
		return nil, fmt.Errorf("gateway: tool broker is required")
	}
	if opts.Sessions == nil {
		return nil, fmt.Errorf("gateway: session multiplexer is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		auth:       opts.Auth,
		engine:     opts.Engine,
		classifier: opts.Classifier,
		contexts:   opts.Contexts,
		broker:     opts.Broker,
		sessions:   opts.Sessions,
		sink:       opts.Analytics,
		health:     opts.Health,
		metrics:    opts.Metrics,
		queue:      queue.New[*classifyJob](opts.Queue),
		logger:     logger,
		version:    opts.Version,
	}, nil
}

// Handler returns the full route table wrapped in CORS and, when metrics
// are configured, the observability middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Unauthenticated surface.
	if s.health != nil {
		s.health.Register(mux)
	}
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("POST /auth/token", s.handleIssueToken)
	mux.HandleFunc("GET /auth/verify", s.handleVerifyToken)
	mux.HandleFunc("GET /mcp/status", s.handleToolStatus)
	mux.HandleFunc("GET /ws/{client_id}", s.handleWebsocket)

	// Bearer-gated surface.
	mux.HandleFunc("POST /voice/classify", s.withAuth(s.handleClassify))
	mux.HandleFunc("GET /voice/categories", s.withAuth(s.handleCategories))
	mux.HandleFunc("GET /voice/categories/{category}/patterns", s.withAuth(s.handlePatterns))
	mux.HandleFunc("GET /voice/metrics", s.withAuth(s.handleVoiceMetrics))

	mux.HandleFunc("GET /context/{user}/{session}/summary", s.withAuth(s.handleContextSummary))
	mux.HandleFunc("GET /context/{user}/{session}/suggestions", s.withAuth(s.handleContextSuggestions))
	mux.HandleFunc("POST /context/{user}/{session}/interaction", s.withAuth(s.handleContextInteraction))
	mux.HandleFunc("DELETE /context/{user}/{session}", s.withAuth(s.handleContextClear))
	mux.HandleFunc("DELETE /context/{user}", s.withAuth(s.handleContextClearUser))

	mux.HandleFunc("POST /workflow/{id}/continue", s.withAuth(s.handleWorkflowContinue))
	mux.HandleFunc("GET /workflow/active", s.withAuth(s.handleWorkflowActive))

	mux.HandleFunc("GET /analytics/profiles", s.withAuth(s.handleAnalyticsProfiles))
	mux.HandleFunc("GET /analytics/profiles/{user}", s.withAuth(s.handleAnalyticsProfile))

	mux.HandleFunc("POST /document/generate", s.withAuth(s.handleDocumentGenerate))
	mux.HandleFunc("POST /email/send", s.withAuth(s.handleEmailSend))
	mux.HandleFunc("POST /search/web", s.withAuth(s.handleWebSearch))
	mux.HandleFunc("POST /ai/process", s.withAuth(s.handleAIProcess))
	mux.HandleFunc("POST /voice/process", s.withAuth(s.handleVoiceProcess))

	var h http.Handler = mux
	if s.metrics != nil {
		h = observe.Middleware(s.metrics)(h)
	}
	return corsMiddleware(h)
}

// Run drains the classification queue until ctx is cancelled. Each batch is
// processed in order; high priority jobs surface first by queue contract.
func (s *Server) Run(ctx context.Context) {
	s.queue.Run(ctx, s.processBatch)
}

func (s *Server) processBatch(_ context.Context, batch []*classifyJob) {
	for _, job := range batch {
		if job.ctx.Err() != nil {
			// The requester is gone; nobody reads the reply.
			continue
		}
		report, err := s.engine.Process(job.ctx, job.text, job.user, job.session, job.useContext)
		job.reply <- classifyOutcome{report: report, err: err}
	}
}

// QueueDepth reports the number of classification requests waiting.
func (s *Server) QueueDepth() int { return s.queue.Len() }

// claimsKey carries verified token claims through the request context.
type ctxKey int

const claimsKey ctxKey = iota

// ClaimsFrom extracts the verified claims stored by the auth middleware.
func ClaimsFrom(ctx context.Context) (auth.Claims, bool) {
	c, ok := ctx.Value(claimsKey).(auth.Claims)
	return c, ok
}

// withAuth enforces the bearer gate and stores the verified claims in the
// request context.
func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
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
		next(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
	}
}

// corsMiddleware applies the permissive default CORS policy and answers
// preflight requests directly.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Client-Platform")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// track publishes an analytics event without ever blocking the request.
func (s *Server) track(userID, sessionID, category, command string, success bool) {
	if s.sink == nil {
		return
	}
	s.sink.Track(analytics.Event{
		UserID:    userID,
		SessionID: sessionID,
		Category:  category,
		Command:   command,
		Success:   success,
		Timestamp: time.Now().UTC(),
	})
}
