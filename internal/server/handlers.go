// File: internal/server/handlers.go
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/tandem/api/schemas"
	"github.com/xkilldash9x/tandem/internal/chain"
	"github.com/xkilldash9x/tandem/internal/engine"
	"github.com/xkilldash9x/tandem/internal/verification"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Coordinator is the subset of *engine.Coordinator the handlers call.
type Coordinator interface {
	AnalyzeChain(actions []string, domSnapshot string) schemas.ChainSafetyAnalysis
	PlanStep(ctx context.Context, in schemas.PlanInput) (schemas.StepPlan, error)
	Recover(ctx context.Context, req schemas.RecoveryRequest) (schemas.ChainRecoveryResult, error)
	VerifyStep(ctx context.Context, opts schemas.VerificationOptions) (schemas.VerificationResult, error)
}

// AnalyzeRequest is the body of POST /v1/chains/analyze.
type AnalyzeRequest struct {
	Actions []string `json:"actions"`
	DOM     string   `json:"dom,omitempty"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

// Handlers serves the chain and verification API.
type Handlers struct {
	log          *zap.Logger
	coordinator  Coordinator
	maxBodyBytes int64
}

// NewHandlers creates the API handlers.
func NewHandlers(logger *zap.Logger, coordinator Coordinator, maxBodyBytes int64) *Handlers {
	return &Handlers{
		log:          logger.Named("server_handlers"),
		coordinator:  coordinator,
		maxBodyBytes: maxBodyBytes,
	}
}

// RegisterRoutes mounts the API on r.
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", h.HandleHealthCheck)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/chains/analyze", h.HandleAnalyze)
		r.Post("/chains/plan", h.HandlePlan)
		r.Post("/chains/recover", h.HandleRecover)
		r.Post("/verify", h.HandleVerify)
	})
}

// HandleHealthCheck confirms the server is responsive.
func (h *Handlers) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	h.respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleAnalyze judges a candidate chain.
func (h *Handlers) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.respond(w, http.StatusOK, h.coordinator.AnalyzeChain(req.Actions, req.DOM))
}

// HandlePlan turns planner output into a chain or a single action.
func (h *Handlers) HandlePlan(w http.ResponseWriter, r *http.Request) {
	var in schemas.PlanInput
	if !h.decode(w, r, &in) {
		return
	}
	plan, err := h.coordinator.PlanStep(r.Context(), in)
	if err != nil {
		h.respondWithError(w, statusFor(err), err.Error())
		return
	}
	h.respond(w, http.StatusOK, plan)
}

// HandleRecover decides how to continue a partially executed chain.
func (h *Handlers) HandleRecover(w http.ResponseWriter, r *http.Request) {
	var req schemas.RecoveryRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.coordinator.Recover(r.Context(), req)
	if err != nil {
		h.log.Info("Recovery request rejected", zap.Error(err))
		h.respondWithError(w, statusFor(err), err.Error())
		return
	}
	h.respond(w, http.StatusOK, result)
}

// HandleVerify verifies one executed action.
func (h *Handlers) HandleVerify(w http.ResponseWriter, r *http.Request) {
	var opts schemas.VerificationOptions
	if !h.decode(w, r, &opts) {
		return
	}
	result, err := h.coordinator.VerifyStep(r.Context(), opts)
	if err != nil {
		h.respondWithError(w, statusFor(err), err.Error())
		return
	}
	h.respond(w, http.StatusOK, result)
}

// statusFor maps coordinator errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, chain.ErrPartialStateMismatch),
		errors.Is(err, chain.ErrEmptyChain),
		errors.Is(err, verification.ErrInvalidRequest),
		errors.Is(err, engine.ErrNothingToPlan):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		// The client went away; nobody reads this status.
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decode reads a bounded JSON body into v. It writes the error response
// itself and reports whether the handler should continue.
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.respondWithError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
			return false
		}
		h.respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Failed to read request body: %v", err))
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		h.respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return false
	}
	return true
}

func (h *Handlers) respondWithError(w http.ResponseWriter, statusCode int, message string) {
	h.respond(w, statusCode, ErrorResponse{Status: "error", Error: message})
}

func (h *Handlers) respond(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error("Failed to encode response", zap.Error(err))
	}
}
