package webhook

import (
	"context"
	"errors"
	"net/http"

	"offerpay/internal/gateway"

	"github.com/gin-gonic/gin"
)

// Enqueuer hands unprocessed records to the replay queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, recordID int) error
}

type Handler struct {
	processor *Processor
	records   Repository
	queue     Enqueuer
}

func NewHandler(processor *Processor, records Repository, queue Enqueuer) *Handler {
	return &Handler{
		processor: processor,
		records:   records,
		queue:     queue,
	}
}

// Receive godoc
// @Summary      Inbound payment-gateway webhook
// @Description  Accepts raw provider events. Responses carry only an HTTP status; any non-2xx asks the provider to retry.
// @Tags         webhook
// @Accept       json
// @Produce      json
// @Param        provider path string true "Gateway provider"
// @Success      200 {object} map[string]string
// @Failure      400 {object} map[string]string
// @Router       /webhook/{provider} [post]
func (h *Handler) Receive(c *gin.Context) {
	// The signature covers the exact bytes on the wire; the body must not go
	// through any binding layer first.
	rawBody, err := c.GetRawData()
	if err != nil || len(rawBody) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"status": "rejected"})
		return
	}

	signature := c.GetHeader("X-Razorpay-Signature")
	if signature == "" {
		signature = c.GetHeader("X-Signature")
	}

	_, err = h.processor.HandleInbound(c.Request.Context(), c.Param("provider"), rawBody, signature)
	if err != nil {
		// No business detail leaves this endpoint.
		if errors.Is(err, gateway.ErrSignatureMismatch) {
			c.JSON(http.StatusBadRequest, gin.H{"status": "rejected"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"status": "retry"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type ReplayResponse struct {
	Enqueued int `json:"enqueued"`
}

// Replay godoc
// @Summary      Re-enqueue unprocessed webhook records
// @Tags         admin
// @Security     BearerAuth
// @Produce      json
// @Success      202 {object} ReplayResponse
// @Router       /admin/webhooks/replay [post]
func (h *Handler) Replay(c *gin.Context) {
	records, err := h.records.ListUnprocessed(c.Request.Context(), 100)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error"})
		return
	}

	enqueued := 0
	for _, record := range records {
		if err := h.queue.Enqueue(c.Request.Context(), record.ID); err != nil {
			break
		}
		enqueued++
	}

	c.JSON(http.StatusAccepted, ReplayResponse{Enqueued: enqueued})
}
