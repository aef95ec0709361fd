package paymentgateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi"
	"github.com/google/uuid"

	errors "github.com/danandika/civic-report/internal"
	gatewaytypes "github.com/danandika/civic-report/internal/core/datamodel/paymentgateway"
)

// SettleJob asks a worker to flip one sandbox session to paid after a delay,
// imitating a citizen finishing the hosted checkout page.
type SettleJob struct {
	SessionID string
	Delay     time.Duration
}

type settleWorker struct {
	id         int
	workerPool chan chan SettleJob
	jobChannel chan SettleJob
	logger     *slog.Logger
}

func newSettleWorker(id int, workerPool chan chan SettleJob, logger *slog.Logger) *settleWorker {
	return &settleWorker{
		id:         id,
		workerPool: workerPool,
		jobChannel: make(chan SettleJob),
		logger:     logger,
	}
}

func (w *settleWorker) start(ctx context.Context, wg *sync.WaitGroup, settle func(SettleJob)) {
	wg.Add(1)
	go func() {
		defer wg.Done()

		for {
			w.workerPool <- w.jobChannel

			select {
			case job := <-w.jobChannel:
				w.logger.Debug("sandbox worker settling session", "worker_id", w.id, "session_id", job.SessionID)
				settle(job)
			case <-ctx.Done():
				w.logger.Debug("sandbox worker shutting down", "worker_id", w.id)
				return
			}
		}
	}()
}

// Sandbox is an in-memory stand-in for the live gateway, used in development
// and tests. Sessions start unpaid and a worker pool settles them after a
// configurable delay. It satisfies Gateway directly and also exposes the same
// REST surface over HTTP for out-of-process use.
type Sandbox struct {
	mu       sync.RWMutex
	sessions map[string]*gatewaytypes.Session

	settleDelay time.Duration
	logger      *slog.Logger

	jobQueue   chan SettleJob
	workerPool chan chan SettleJob
	maxWorkers int
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	once       sync.Once
}

type SandboxConfig struct {
	SettleDelay  time.Duration
	MaxWorkers   int
	JobQueueSize int
}

func NewSandbox(cfg SandboxConfig, logger *slog.Logger) *Sandbox {
	ctx, cancel := context.WithCancel(context.Background())

	maxWorkers := cfg.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 4
	}
	queueSize := cfg.JobQueueSize
	if queueSize <= 0 {
		queueSize = 64
	}
	settleDelay := cfg.SettleDelay
	if settleDelay <= 0 {
		settleDelay = 2 * time.Second
	}

	s := &Sandbox{
		sessions:    make(map[string]*gatewaytypes.Session),
		settleDelay: settleDelay,
		logger:      logger,
		maxWorkers:  maxWorkers,
		jobQueue:    make(chan SettleJob, queueSize),
		workerPool:  make(chan chan SettleJob, maxWorkers),
		ctx:         ctx,
		cancel:      cancel,
	}

	s.startWorkerPool()

	return s
}

func (s *Sandbox) startWorkerPool() {
	s.once.Do(func() {
		for i := 0; i < s.maxWorkers; i++ {
			worker := newSettleWorker(i, s.workerPool, s.logger)
			worker.start(s.ctx, &s.wg, s.settle)
		}

		s.wg.Add(1)
		go s.dispatch()

		s.logger.Info("sandbox gateway worker pool started",
			"max_workers", s.maxWorkers,
			"settle_delay", s.settleDelay)
	})
}

func (s *Sandbox) dispatch() {
	defer s.wg.Done()

	for {
		select {
		case job := <-s.jobQueue:
			select {
			case jobChannel := <-s.workerPool:
				select {
				case jobChannel <- job:
				case <-s.ctx.Done():
					return
				}
			case <-s.ctx.Done():
				return
			}
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Sandbox) Shutdown() {
	s.logger.Info("shutting down sandbox gateway")
	s.cancel()
	s.wg.Wait()
}

func (s *Sandbox) settle(job SettleJob) {
	select {
	case <-time.After(job.Delay):
	case <-s.ctx.Done():
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[job.SessionID]
	if !ok || session.Paid() {
		return
	}

	session.PaymentStatus = gatewaytypes.PaymentStatusPaid
	session.PaymentIntent = "pi_" + uuid.NewString()
	session.CustomerDetails = gatewaytypes.CustomerDetails{
		Email: session.Metadata[gatewaytypes.MetaUserEmail],
	}

	s.logger.Info("sandbox session settled",
		"session_id", session.ID,
		"amount", session.AmountTotal)
}

// CreateSession implements Gateway in-process.
func (s *Sandbox) CreateSession(ctx context.Context, req *gatewaytypes.SessionRequest) (*gatewaytypes.Session, error) {
	if err := req.Validate(); err != nil {
		return nil, errors.NewValidationError(err.Error(), errors.ErrCodeValidationFailed)
	}

	metadata := make(map[string]string, len(req.Metadata))
	for k, v := range req.Metadata {
		metadata[k] = v
	}

	session := &gatewaytypes.Session{
		ID:            "cs_test_" + uuid.NewString(),
		URL:           "https://checkout.sandbox.local/pay/" + uuid.NewString(),
		PaymentStatus: gatewaytypes.PaymentStatusUnpaid,
		AmountTotal:   req.Amount,
		Currency:      req.Currency,
		Metadata:      metadata,
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()

	job := SettleJob{SessionID: session.ID, Delay: s.settleDelay}
	select {
	case s.jobQueue <- job:
	default:
		s.logger.Warn("sandbox settle queue full, session stays unpaid",
			"session_id", session.ID)
	}

	s.logger.Info("sandbox session created",
		"session_id", session.ID,
		"amount", req.Amount,
		"product", req.ProductName)

	copied := *session
	return &copied, nil
}

// GetSession implements Gateway in-process.
func (s *Sandbox) GetSession(ctx context.Context, sessionID string) (*gatewaytypes.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, errors.ErrPaymentNotFound
	}

	copied := *session
	return &copied, nil
}

// MarkPaid settles a session immediately, bypassing the worker delay. Tests
// and the sandbox REST surface use it.
func (s *Sandbox) MarkPaid(sessionID string) error {
	s.mu.RLock()
	_, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return errors.ErrPaymentNotFound
	}

	s.settle(SettleJob{SessionID: sessionID})
	return nil
}

// Handler exposes the sandbox over the same REST shape the live client
// speaks, so the client can point at a standalone sandbox process.
func (s *Sandbox) Handler() http.Handler {
	r := chi.NewRouter()

	r.Post("/v1/checkout/sessions", s.handleCreateSession)
	r.Get("/v1/checkout/sessions/{id}", s.handleGetSession)
	r.Post("/v1/checkout/sessions/{id}/pay", s.handleMarkPaid)

	return r
}

func (s *Sandbox) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeSandboxError(w, http.StatusBadRequest, "invalid form body")
		return
	}

	amount, _ := strconv.ParseInt(r.PostFormValue("line_items[0][price_data][unit_amount]"), 10, 64)

	req := &gatewaytypes.SessionRequest{
		Amount:      amount,
		Currency:    r.PostFormValue("line_items[0][price_data][currency]"),
		ProductName: r.PostFormValue("line_items[0][price_data][product_data][name]"),
		SuccessURL:  r.PostFormValue("success_url"),
		CancelURL:   r.PostFormValue("cancel_url"),
		Metadata:    map[string]string{},
	}

	for key, values := range r.PostForm {
		if strings.HasPrefix(key, "metadata[") && strings.HasSuffix(key, "]") && len(values) > 0 {
			metaKey := key[len("metadata[") : len(key)-1]
			req.Metadata[metaKey] = values[0]
		}
	}

	session, err := s.CreateSession(r.Context(), req)
	if err != nil {
		writeSandboxError(w, http.StatusBadRequest, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(session)
}

func (s *Sandbox) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.GetSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeSandboxError(w, http.StatusNotFound, "no such session")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(session)
}

func (s *Sandbox) handleMarkPaid(w http.ResponseWriter, r *http.Request) {
	if err := s.MarkPaid(chi.URLParam(r, "id")); err != nil {
		writeSandboxError(w, http.StatusNotFound, "no such session")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func writeSandboxError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"error":{"message":%q}}`, message)
}
