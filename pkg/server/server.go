// Package server exposes the settlement engine over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/speedrun-hq/speedrun-settler/pkg/engine"
	"github.com/speedrun-hq/speedrun-settler/pkg/logger"
	"github.com/speedrun-hq/speedrun-settler/pkg/models"
	"github.com/speedrun-hq/speedrun-settler/pkg/verification"
)

// Server wraps the HTTP API
type Server struct {
	engine *engine.Engine
	logger logger.Logger
	http   *http.Server
}

// NewServer creates the HTTP API server on the given port
func NewServer(eng *engine.Engine, port string, log logger.Logger) *Server {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	s := &Server{engine: eng, logger: log}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", s.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/intents", s.handleCreateIntent)
		v1.GET("/intents", s.handleListIntents)
		v1.GET("/intents/:id", s.handleGetIntent)
		v1.POST("/intents/:id/quotes", s.handleSubmitQuote)
		v1.POST("/intents/:id/confirm", s.handleConfirmQuote)
		v1.POST("/intents/:id/deposit", s.handleDeposit)
		v1.POST("/intents/:id/fulfill", s.handleFulfill)
		v1.POST("/intents/:id/cancel", s.handleCancel)
		v1.GET("/escrow/:owner/:asset", s.handleEscrowBalance)
		v1.GET("/fees", s.handleCollectedFees)
	}

	s.http = &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the HTTP handler, used by tests
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Start serves until the listener fails or Shutdown is called
func (s *Server) Start() error {
	s.logger.Info("HTTP API listening on %s", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// statusFor maps engine errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, engine.ErrRateLimitExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, engine.ErrInvalidStatus),
		errors.Is(err, engine.ErrExpired),
		errors.Is(err, engine.ErrInsufficientBalance):
		return http.StatusConflict
	case errors.Is(err, engine.ErrVerificationFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, engine.ErrTransferFailed):
		return http.StatusBadGateway
	case errors.Is(err, engine.ErrInternal):
		return http.StatusInternalServerError
	case errors.Is(err, engine.ErrInvalidInput),
		errors.Is(err, engine.ErrInvalidAmount),
		errors.Is(err, engine.ErrInvalidDeadline),
		errors.Is(err, engine.ErrInvalidQuote),
		errors.Is(err, engine.ErrInvalidFee),
		errors.Is(err, engine.ErrChainNotSupported):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) abortWith(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

func (s *Server) handleHealth(c *gin.Context) {
	if err := s.engine.VerifyEscrowInvariants(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type createIntentRequest struct {
	Owner        string            `json:"owner" binding:"required"`
	Source       models.ChainAsset `json:"source" binding:"required"`
	Destination  models.ChainAsset `json:"destination" binding:"required"`
	SourceAmount uint64            `json:"source_amount"`
	MinOutput    uint64            `json:"min_output"`
	Recipient    string            `json:"recipient" binding:"required"`
	Deadline     time.Time         `json:"deadline" binding:"required"`
}

func (s *Server) handleCreateIntent(c *gin.Context) {
	var req createIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid request body: %v", err)})
		return
	}

	id, err := s.engine.CreateIntent(c.Request.Context(), engine.CreateIntentParams{
		Owner:        req.Owner,
		Source:       req.Source,
		Destination:  req.Destination,
		SourceAmount: req.SourceAmount,
		MinOutput:    req.MinOutput,
		Recipient:    req.Recipient,
		Deadline:     req.Deadline,
	})
	if err != nil {
		s.abortWith(c, err)
		return
	}

	intent, _ := s.engine.GetIntent(id)
	c.JSON(http.StatusCreated, intent)
}

func (s *Server) handleListIntents(c *gin.Context) {
	owner := c.Query("owner")
	if owner == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "owner query parameter is required"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"intents": s.engine.GetUserIntents(owner)})
}

func (s *Server) intentID(c *gin.Context) (uint64, bool) {
	var id uint64
	if _, err := fmt.Sscanf(c.Param("id"), "%d", &id); err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid intent id"})
		return 0, false
	}
	return id, true
}

func (s *Server) handleGetIntent(c *gin.Context) {
	id, ok := s.intentID(c)
	if !ok {
		return
	}
	intent, found := s.engine.GetIntent(id)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "intent not found"})
		return
	}
	c.JSON(http.StatusOK, intent)
}

type submitQuoteRequest struct {
	Solver       string    `json:"solver" binding:"required"`
	OutputAmount uint64    `json:"output_amount"`
	Fee          uint64    `json:"fee"`
	Tip          uint64    `json:"tip"`
	DestAddress  string    `json:"dest_address"`
	Expiry       time.Time `json:"expiry"`
}

func (s *Server) handleSubmitQuote(c *gin.Context) {
	id, ok := s.intentID(c)
	if !ok {
		return
	}
	var req submitQuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid request body: %v", err)})
		return
	}

	err := s.engine.SubmitQuote(id, engine.SubmitQuoteParams{
		Solver:       req.Solver,
		OutputAmount: req.OutputAmount,
		Fee:          req.Fee,
		Tip:          req.Tip,
		DestAddress:  req.DestAddress,
		Expiry:       req.Expiry,
	})
	if err != nil {
		s.abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "accepted"})
}

type confirmQuoteRequest struct {
	Caller string `json:"caller" binding:"required"`
	Solver string `json:"solver" binding:"required"`
}

func (s *Server) handleConfirmQuote(c *gin.Context) {
	id, ok := s.intentID(c)
	if !ok {
		return
	}
	var req confirmQuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid request body: %v", err)})
		return
	}

	if err := s.engine.ConfirmQuote(id, req.Caller, req.Solver); err != nil {
		s.abortWith(c, err)
		return
	}
	intent, _ := s.engine.GetIntent(id)
	c.JSON(http.StatusOK, intent)
}

type depositRequest struct {
	Caller      string `json:"caller" binding:"required"`
	TxHash      string `json:"tx_hash"`
	OutputIndex uint32 `json:"output_index"`
}

func (s *Server) handleDeposit(c *gin.Context) {
	id, ok := s.intentID(c)
	if !ok {
		return
	}
	var req depositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid request body: %v", err)})
		return
	}
	if req.TxHash == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tx_hash is required"})
		return
	}

	result, err := s.engine.VerifyAndMarkDeposited(c.Request.Context(), id, req.Caller, req.TxHash, req.OutputIndex)
	if err != nil {
		s.abortWith(c, err)
		return
	}

	resp := gin.H{"outcome": result.Outcome.String()}
	switch result.Outcome {
	case verification.OutcomeSuccess:
		resp["amount"] = result.Amount
		resp["reference"] = result.Reference
		resp["confirmations"] = result.Confirmations
	default:
		resp["confirmations"] = result.Confirmations
		resp["required"] = result.Required
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleFulfill(c *gin.Context) {
	id, ok := s.intentID(c)
	if !ok {
		return
	}
	breakdown, err := s.engine.Fulfill(c.Request.Context(), id)
	if err != nil {
		s.abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, breakdown)
}

type cancelRequest struct {
	Caller string `json:"caller" binding:"required"`
}

func (s *Server) handleCancel(c *gin.Context) {
	id, ok := s.intentID(c)
	if !ok {
		return
	}
	var req cancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid request body: %v", err)})
		return
	}
	if err := s.engine.Cancel(c.Request.Context(), id, req.Caller); err != nil {
		s.abortWith(c, err)
		return
	}
	intent, _ := s.engine.GetIntent(id)
	c.JSON(http.StatusOK, intent)
}

func (s *Server) handleEscrowBalance(c *gin.Context) {
	owner := c.Param("owner")
	asset := c.Param("asset")
	c.JSON(http.StatusOK, gin.H{
		"owner":   owner,
		"asset":   asset,
		"balance": s.engine.GetEscrowBalance(owner, asset),
	})
}

func (s *Server) handleCollectedFees(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"fees": s.engine.GetCollectedFees()})
}
