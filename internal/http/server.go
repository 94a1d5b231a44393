// Package http exposes the reference transport adapter: an inbound-event
// webhook plus liveness probes. The real message protocol lives outside
// this service; anything that can deliver the event shape can drive it.
package http

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"tribebot-backend/internal/common/apperrors"
	"tribebot-backend/internal/common/config"
	"tribebot-backend/internal/common/logger"
	"tribebot-backend/internal/features/account/repository"
	regservice "tribebot-backend/internal/features/registration/service"
)

// Outbox collects outbound messages per external identity so the webhook
// can return the replies produced for the event it delivered.
type Outbox struct {
	mu      sync.Mutex
	pending map[int64][]string
}

func NewOutbox() *Outbox {
	return &Outbox{pending: make(map[int64][]string)}
}

// Send implements the engine's Sender contract.
func (o *Outbox) Send(ctx context.Context, externalID int64, text string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pending[externalID] = append(o.pending[externalID], text)
	return nil
}

// Drain returns and clears the pending messages for an identity.
func (o *Outbox) Drain(externalID int64) []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	messages := o.pending[externalID]
	delete(o.pending, externalID)
	return messages
}

// NewRouter wires the webhook and probe routes.
func NewRouter(cfg *config.Config, engine *regservice.Engine, outbox *Outbox, store repository.AccountStore) *gin.Engine {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{cfg.Server.Origin}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Content-Type", "Accept"}
	router.Use(cors.New(corsConfig))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/events", handleEvent(engine, outbox))
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().UTC(),
			"service":   "tribebot-backend",
		})
	})

	router.GET("/live", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	router.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := store.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unready",
				"error":  "storage unavailable",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	return router
}

func handleEvent(engine *regservice.Engine, outbox *Outbox) gin.HandlerFunc {
	return func(c *gin.Context) {
		var event regservice.InboundEvent
		if err := c.ShouldBindJSON(&event); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event payload"})
			return
		}
		if event.ExternalID <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "external_id is required"})
			return
		}

		err := engine.HandleEvent(c.Request.Context(), event)
		messages := outbox.Drain(event.ExternalID)
		if err != nil {
			logger.Error().Err(err).Int64("external_id", event.ExternalID).Msg("Event handling failed")
			c.JSON(statusFor(err), gin.H{
				"error":    "event handling failed",
				"messages": messages,
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{"messages": messages})
	}
}

func statusFor(err error) int {
	if errors.Is(err, repository.ErrDuplicateIdentity) {
		return http.StatusConflict
	}
	if errors.Is(err, repository.ErrStorageUnavailable) {
		return http.StatusServiceUnavailable
	}
	if appErr, ok := apperrors.AsAppError(err); ok && appErr.IsValidation() {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
