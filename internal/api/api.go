// Package api exposes the engine over HTTP. Authentication is an external
// concern: callers arrive with an opaque identity in the X-User-ID header,
// which the API trusts as-is.
package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hammermarket/auctiond/internal/engine"
	"github.com/hammermarket/auctiond/internal/health"
	"github.com/hammermarket/auctiond/internal/ledger"
	"github.com/hammermarket/auctiond/internal/notify"
)

const userIDHeader = "X-User-ID"

// Handler wires HTTP routes to the engine.
type Handler struct {
	engine *engine.Engine
	hub    *notify.Hub
	logger *slog.Logger
}

// NewRouter builds the gin router with all application routes.
func NewRouter(eng *engine.Engine, hub *notify.Hub, healthHandler *health.Handler, logger *slog.Logger) *gin.Engine {
	h := &Handler{engine: eng, hub: hub, logger: logger}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))

	router.GET("/healthz", gin.WrapF(healthHandler.LivenessHandler()))
	router.GET("/readyz", gin.WrapF(healthHandler.ReadinessHandler()))

	apiGroup := router.Group("/api")
	{
		apiGroup.GET("/auctions", h.listAuctions)
		apiGroup.GET("/auctions/:id", h.getAuction)
		apiGroup.GET("/auctions/:id/bids", h.auctionBids)

		authed := apiGroup.Group("", requireUser())
		{
			authed.POST("/auctions", h.createAuction)
			authed.POST("/auctions/:id/cancel", h.cancelAuction)
			authed.POST("/bids", h.placeBid)
			authed.POST("/bids/buyout", h.buyout)
			authed.GET("/accounts/me", h.myAccount)
			authed.GET("/users/me/bids", h.myBids)
		}
	}

	router.GET("/ws/auctions/:id", h.subscribe)

	return router
}

// requestLogger logs each request with timing.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.InfoContext(c.Request.Context(), "http request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("latency", time.Since(start)),
		)
	}
}

// requireUser rejects requests without an identity header.
func requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader(userIDHeader) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing " + userIDHeader + " header"})
			return
		}
		c.Next()
	}
}

func userID(c *gin.Context) string {
	return c.GetHeader(userIDHeader)
}

// fail maps an engine error to an HTTP status and writes the JSON error body.
func (h *Handler) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, engine.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, engine.ErrInvalidAuctionState),
		errors.Is(err, engine.ErrDuplicateBidder),
		errors.Is(err, engine.ErrAuctionHasBids):
		status = http.StatusConflict
	case errors.Is(err, engine.ErrBidTooLow),
		errors.Is(err, engine.ErrInvalidAmount),
		errors.Is(err, engine.ErrInvalidTitle),
		errors.Is(err, engine.ErrNoBuyoutPrice),
		errors.Is(err, engine.ErrInvalidSchedule):
		status = http.StatusBadRequest
	case errors.Is(err, ledger.ErrInsufficientFunds):
		status = http.StatusPaymentRequired
	}

	if status == http.StatusInternalServerError {
		h.logger.ErrorContext(c.Request.Context(), "internal error",
			slog.String("path", c.Request.URL.Path),
			slog.Any("error", err),
		)
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
