package handlers

import (
	"errors"

	"zoomgo/internal/models"
	"zoomgo/internal/services"
	"zoomgo/internal/utils"
	"zoomgo/pkg/logger"
	"zoomgo/pkg/websocket"

	"github.com/gin-gonic/gin"
)

const (
	streamBookingsFrame = "bookings"
	streamApprovedFrame = "booking_approved"
	streamErrorFrame    = "error"
)

// StreamHandler pushes the caller's booking list over a WebSocket every
// time it changes.
type StreamHandler struct {
	ledger    services.BookingLedger
	websocket *websocket.Handler
	logger    *logger.Logger
}

func NewStreamHandler(ledger services.BookingLedger, ws *websocket.Handler, log *logger.Logger) *StreamHandler {
	if log == nil {
		log = logger.Discard()
	}
	return &StreamHandler{
		ledger:    ledger,
		websocket: ws,
		logger:    log,
	}
}

// StreamBookings upgrades the request and holds it until the client leaves.
// The first frame is the current list.
func (h *StreamHandler) StreamBookings(c *gin.Context) {
	riderID := c.GetString(utils.ContextUserID)

	client, err := h.websocket.Accept(c, riderID)
	if err != nil {
		return
	}

	ctx := c.Request.Context()
	cancel, err := h.ledger.Subscribe(ctx, riderID, func(bookings []models.Booking) {
		if bookings == nil {
			bookings = []models.Booking{}
		}
		if err := client.Send(websocket.Message{Type: streamBookingsFrame, Data: bookings}); err != nil && !errors.Is(err, websocket.ErrClientClosed) {
			h.logger.WithContext(ctx).WithUserID(riderID).WithError(err).Warn("Dropped booking stream frame")
		}
	})
	if err != nil {
		_ = client.Send(websocket.Message{Type: streamErrorFrame, Data: utils.APIError{
			Code:    services.KindCode(err),
			Message: err.Error(),
		}})
		h.logger.WithContext(ctx).WithUserID(riderID).WithError(err).Warn("Booking stream subscription failed")
		client.Close()
		client.Serve()
		return
	}
	defer cancel()

	client.Serve()
}
