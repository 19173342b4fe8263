package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	dispatchdomain "replypilot-backend/internal/dispatch/domain"
	dispatchrepo "replypilot-backend/internal/dispatch/repository"
	"replypilot-backend/internal/pipeline/usecase"
	"replypilot-backend/pkg/config"

	"github.com/gin-gonic/gin"
)

// trackingPixel is a 1x1 transparent GIF served by the open-tracking endpoint.
var trackingPixel = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00,
	0x00, 0x00, 0x00, 0x00, 0xFF, 0xFF, 0xFF, 0x21, 0xF9, 0x04, 0x01, 0x00,
	0x00, 0x00, 0x00, 0x2C, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00,
	0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3B,
}

type Handler struct {
	pipeline   *usecase.Pipeline
	registrar  *usecase.Registrar
	dispatches dispatchrepo.DispatchLogRepository
	config     *config.Config
}

func NewHandler(pipeline *usecase.Pipeline, registrar *usecase.Registrar, dispatches dispatchrepo.DispatchLogRepository, cfg *config.Config) *Handler {
	return &Handler{
		pipeline:   pipeline,
		registrar:  registrar,
		dispatches: dispatches,
		config:     cfg,
	}
}

// pushEnvelope is the HTTP push delivery wrapper Pub/Sub wraps around the
// Gmail notification payload.
type pushEnvelope struct {
	Message struct {
		Data      string `json:"data"`
		MessageID string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

type gmailNotification struct {
	EmailAddress string `json:"emailAddress"`
	HistoryID    uint64 `json:"historyId"`
}

// HandleGmailNotification is the HTTP push variant of the Pub/Sub doorbell.
// It always acknowledges with 204 before any processing so the delivery
// pipeline never redelivers on our internal failures.
func (h *Handler) HandleGmailNotification(c *gin.Context) {
	var envelope pushEnvelope
	if err := c.ShouldBindJSON(&envelope); err != nil {
		log.Printf("[Notifications] Malformed push envelope: %v", err)
		c.Status(http.StatusNoContent)
		return
	}
	c.Status(http.StatusNoContent)

	payload, err := base64.StdEncoding.DecodeString(envelope.Message.Data)
	if err != nil {
		log.Printf("[Notifications] Push payload not base64: %v", err)
		return
	}
	var notification gmailNotification
	if err := json.Unmarshal(payload, &notification); err != nil {
		log.Printf("[Notifications] Push payload not JSON: %v", err)
		return
	}
	if notification.EmailAddress == "" {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := h.pipeline.ReconcileMailbox(ctx, notification.EmailAddress); err != nil {
			if errors.Is(err, usecase.ErrUnknownMailbox) {
				log.Printf("[Notifications] No watch registered for %s, dropped", notification.EmailAddress)
				return
			}
			log.Printf("[Notifications] Reconciliation failed for %s: %v", notification.EmailAddress, err)
		}
	}()
}

// TrackOpen serves the pixel and records the open. The pixel is returned even
// for unknown ids so a broken dispatch never renders as a broken image.
func (h *Handler) TrackOpen(c *gin.Context) {
	id := c.Param("id")

	changed, err := h.dispatches.UpdateStatusForward(id, dispatchdomain.StatusOpened)
	if err != nil {
		log.Printf("[Tracking] Open update failed for dispatch %s: %v", id, err)
	} else if changed {
		log.Printf("[Tracking] Dispatch %s opened", id)
	}

	c.Header("Cache-Control", "no-store, no-cache, must-revalidate")
	c.Data(http.StatusOK, "image/gif", trackingPixel)
}

// TrackClick records the click and forwards the visitor to the original link.
func (h *Handler) TrackClick(c *gin.Context) {
	id := c.Param("id")

	changed, err := h.dispatches.UpdateStatusForward(id, dispatchdomain.StatusClicked)
	if err != nil {
		log.Printf("[Tracking] Click update failed for dispatch %s: %v", id, err)
	} else if changed {
		log.Printf("[Tracking] Dispatch %s clicked", id)
	}

	target := c.Query("url")
	if target == "" {
		target = h.config.AppURL
	}
	c.Redirect(http.StatusFound, target)
}

type statusWebhookRequest struct {
	TrackingID    string `json:"trackingId"`
	SentMessageID string `json:"sentMessageId"`
	Event         string `json:"event"`
}

// HandleStatusWebhook lets an external delivery provider report opens and
// clicks. The tracking id is the dispatch log id; a sent message id works as
// an alternative key. Transitions follow the same forward-only hierarchy as
// the pixel.
func (h *Handler) HandleStatusWebhook(c *gin.Context) {
	var req statusWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if dispatchdomain.StatusRank(req.Event) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown event"})
		return
	}

	id := req.TrackingID
	if id == "" && req.SentMessageID != "" {
		entry, err := h.dispatches.FindBySentMessageID(req.SentMessageID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
			return
		}
		if entry == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "dispatch not found"})
			return
		}
		id = entry.ID
	}
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "trackingId or sentMessageId required"})
		return
	}

	changed, err := h.dispatches.UpdateStatusForward(id, req.Event)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "updated": changed})
}

// StartWatch registers (or renews) the push watch for a mailbox.
func (h *Handler) StartWatch(c *gin.Context) {
	address := c.Param("address")

	watch, err := h.registrar.StartWatch(c.Request.Context(), address)
	if err != nil {
		if errors.Is(err, usecase.ErrNoCredential) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "no valid credential for mailbox"})
			return
		}
		log.Printf("[Watch] Registration failed for %s: %v", address, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to register watch"})
		return
	}
	c.JSON(http.StatusOK, watch)
}

// StopWatch tears down the push watch for a mailbox.
func (h *Handler) StopWatch(c *gin.Context) {
	address := c.Param("address")

	if err := h.registrar.StopWatch(c.Request.Context(), address); err != nil {
		log.Printf("[Watch] Teardown failed for %s: %v", address, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to stop watch"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "stopped"})
}

// ListDispatches returns the recent automated-reply activity for a mailbox.
func (h *Handler) ListDispatches(c *gin.Context) {
	address := c.Param("address")

	entries, err := h.dispatches.FindByMailboxID(address, 100)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list dispatches"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"dispatches": entries})
}

func (h *Handler) Start(addr string) error {
	r := gin.Default()
	gin.SetMode(gin.ReleaseMode)

	// CORS middleware
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		}

		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	SetupRoutes(r, h)

	return r.Run(addr)
}
