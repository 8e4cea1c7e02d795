package http

import (
	"bytes"
	"context"
	"errors"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"budgetdash/internal/backend"
	"budgetdash/internal/cache"
	blog "budgetdash/internal/log"
	"budgetdash/internal/middleware/ratelimit"
	"budgetdash/internal/middleware/security"
	"budgetdash/internal/middleware/trace"
	"budgetdash/internal/services"
	appweb "budgetdash/web"
)

const (
	defaultCacheSweep = time.Minute
	staticMaxAge      = 3600
	requestTimeout    = 7 * time.Second
)

// Options configures NewServer. Service is required; everything else has a
// usable zero value.
type Options struct {
	Addr      string
	Service   *services.BudgetService
	Selection *services.Selection
	// Ready is pinged by /readyz when the backend supports it.
	Ready  backend.Pinger
	Logger *blog.Logger

	// SummaryCache is the cache handed to the service; the server sweeps it
	// and reports its stats.
	SummaryCache *cache.LRUCache[services.Summary]
	CacheSweep   time.Duration
	RateLimit    ratelimit.Config
	// TrustedProxies extends the private ranges allowed to set
	// X-Forwarded-For. Invalid CIDRs are logged and skipped.
	TrustedProxies []string
}

// Server wraps http.Server with the dashboard's handlers and middleware.
type Server struct {
	http.Server

	svc       *services.BudgetService
	selection *services.Selection
	templates *template.Template
	logger    *blog.Logger
	ready     backend.Pinger

	summaryCache *cache.LRUCache[services.Summary]
	caches       *cache.Manager
	limiter      *ratelimit.Limiter
	detector     *security.Detector
	tracer       *trace.Middleware

	started      time.Time
	mutations    int64
	shutdownOnce sync.Once
}

// NewServer configures routes, middleware and templates, returning a
// ready-to-run server. Call Shutdown to stop its background goroutines.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = blog.New(blog.DefaultConfig())
	}
	selection := opts.Selection
	if selection == nil {
		selection = services.NewSelection("")
	}

	s := &Server{
		svc:          opts.Service,
		selection:    selection,
		logger:       logger.WithComponent(blog.ComponentHTTP),
		ready:        opts.Ready,
		summaryCache: opts.SummaryCache,
		caches:       cache.NewManager(),
		limiter:      ratelimit.NewLimiter(opts.RateLimit),
		detector:     security.NewDetector(),
		started:      time.Now(),
	}
	for _, cidr := range opts.TrustedProxies {
		if err := s.detector.AddTrustedProxy(cidr); err != nil {
			s.logger.Warn("Ignoring trusted proxy", blog.FieldError, err)
		}
	}
	s.tracer = trace.NewMiddleware(logger, s.detector.ExtractClientIP)

	if s.summaryCache != nil {
		s.caches.Register(s.summaryCache)
		sweep := opts.CacheSweep
		if sweep <= 0 {
			sweep = defaultCacheSweep
		}
		s.caches.StartCleanup(sweep)
	}

	t, err := template.New("budgetdash").Funcs(templateFuncs).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		s.logger.Warn("Failed parsing templates", blog.FieldError, err)
	} else {
		s.templates = t
	}

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(staticMaxAge)(static))
	} else {
		s.logger.Warn("Failed to mount embedded static FS", blog.FieldError, err)
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	mux.HandleFunc("GET /api/summary", s.handleAPISummary)

	mux.HandleFunc("GET /{$}", s.handleDashboard)
	mux.HandleFunc("GET /budget", s.handleBudget)
	mux.HandleFunc("POST /expenses", s.handleAddExpense)
	mux.HandleFunc("POST /expenses/{id}", s.handleSaveExpense)
	mux.HandleFunc("POST /expenses/{id}/delete", s.handleDeleteExpense)
	mux.HandleFunc("POST /categories", s.handleCreateCategory)

	mux.HandleFunc("GET /subscriptions", s.handleSubscriptions)
	mux.HandleFunc("POST /subscriptions", s.handleAddSubscription)
	mux.HandleFunc("POST /subscriptions/{id}", s.handleSaveSubscription)
	mux.HandleFunc("POST /subscriptions/{id}/delete", s.handleDeleteSubscription)

	mux.HandleFunc("GET /purchases", s.handlePurchases)
	mux.HandleFunc("POST /purchases", s.handleAddPurchase)
	mux.HandleFunc("POST /purchases/{id}", s.handleSavePurchase)
	mux.HandleFunc("POST /purchases/{id}/delete", s.handleDeletePurchase)

	// /income/{id}/{action} rather than /income/{id}/delete: the latter
	// would overlap /income/selection/{slot} with neither more specific.
	mux.HandleFunc("GET /income", s.handleIncome)
	mux.HandleFunc("POST /income", s.handleAddIncome)
	mux.HandleFunc("POST /income/{id}", s.handleSaveIncome)
	mux.HandleFunc("POST /income/{id}/{action}", s.handleIncomeAction)
	mux.HandleFunc("POST /income/selection", s.handleAddSlot)
	mux.HandleFunc("POST /income/selection/reset", s.handleResetSelection)
	mux.HandleFunc("POST /income/selection/{slot}", s.handleSetSlot)
	mux.HandleFunc("POST /income/selection/{slot}/delete", s.handleRemoveSlot)

	mux.HandleFunc("POST /plans", s.handleSavePlan)
	mux.HandleFunc("POST /plans/{name}/reset", s.handleResetPlan)
	mux.HandleFunc("POST /plans/{name}/delete", s.handleDeletePlan)

	// Only mutations count against the rate limit.
	limited := s.limiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusTooManyRequests, "Too many changes. Please try again shortly.").Write(w)
	})(mux)
	var handler http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			limited.ServeHTTP(w, r)
			return
		}
		mux.ServeHTTP(w, r)
	})

	handler = s.detector.Middleware(s.detector.ExtractClientIP)(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	return s.tracer.Middleware(handler)
}

// InvalidateSummary drops cached summaries after a table changed outside
// this process, for example a CSV file edited by hand.
func (s *Server) InvalidateSummary(table string) {
	s.svc.InvalidateSummary()
	s.logger.Info("Table changed externally, summary cache purged", blog.FieldTable, table)
}

// Shutdown stops background goroutines and then the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		s.caches.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// summary loads the derived budget with a bounded wait.
func (s *Server) summary(ctx context.Context) (services.Summary, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	return s.svc.Summary(ctx)
}

func (s *Server) executeTemplate(name string, data any) (string, error) {
	if s.templates == nil {
		return "", errTemplatesNotLoaded
	}
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// render writes a full page. Output is buffered so a failing template never
// leaves a half-written page.
func (s *Server) render(w http.ResponseWriter, r *http.Request, name string, data any) {
	html, err := s.executeTemplate(name, data)
	if err != nil {
		blog.FromContext(r.Context()).WithComponent(blog.ComponentTemplate).ErrorContext(r.Context(),
			"Template execution failed", blog.FieldError, err, "template", name)
		http.Error(w, "Unable to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(html))
}

func (s *Server) countMutation() {
	atomic.AddInt64(&s.mutations, 1)
}

var errTemplatesNotLoaded = errors.New("templates not loaded")
