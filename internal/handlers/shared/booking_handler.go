package handlers

import (
	"context"
	"time"

	"zoomgo/internal/models"
	"zoomgo/internal/services"
	"zoomgo/internal/utils"
	"zoomgo/internal/validators"
	"zoomgo/pkg/logger"
	"zoomgo/pkg/websocket"

	"github.com/gin-gonic/gin"
)

type BookingHandler struct {
	ledger   services.BookingLedger
	notifier services.BookingNotifier
	hub      *websocket.Hub
	timeout  time.Duration
	logger   *logger.Logger
}

// NewBookingHandler accepts a nil notifier and a nil hub.
func NewBookingHandler(ledger services.BookingLedger, notifier services.BookingNotifier, hub *websocket.Hub, timeout time.Duration, log *logger.Logger) *BookingHandler {
	if log == nil {
		log = logger.Discard()
	}
	return &BookingHandler{
		ledger:   ledger,
		notifier: notifier,
		hub:      hub,
		timeout:  timeout,
		logger:   log,
	}
}

// RequestBooking records a pending booking for the caller
func (h *BookingHandler) RequestBooking(c *gin.Context) {
	var request validators.BookingRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}
	if errs := validators.ValidateBookingRequest(&request); len(errs) > 0 {
		respondValidation(c, errs)
		return
	}

	ctx, cancel := withTimeout(c, h.timeout)
	defer cancel()

	booking, err := h.ledger.RequestBooking(ctx, c.GetString(utils.ContextUserID),
		request.Pickup, request.Destination, models.RideType(request.RideType))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	utils.CreatedResponse(c, "Ride requested successfully", booking)
}

// ListBookings returns the caller's bookings, oldest first
func (h *BookingHandler) ListBookings(c *gin.Context) {
	ctx, cancel := withTimeout(c, h.timeout)
	defer cancel()

	bookings, err := h.ledger.ListBookings(ctx, c.GetString(utils.ContextUserID))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if bookings == nil {
		bookings = []models.Booking{}
	}

	utils.SuccessResponseWithMeta(c, "Bookings retrieved successfully", bookings, &utils.Meta{Count: len(bookings)})
}

// ApproveBooking prices a pending booking and notifies the rider
func (h *BookingHandler) ApproveBooking(c *gin.Context) {
	var request validators.ApproveBookingRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.ErrorResponse(c, StatusForError(services.ErrInvalidPrice), services.CodeInvalidPrice, "Invalid request: "+err.Error())
		return
	}

	price, err := services.ParsePrice(request.Price.Text)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	ctx, cancel := withTimeout(c, h.timeout)
	defer cancel()

	booking, err := h.ledger.Approve(ctx, c.Param("id"), price)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.announceApproval(c.Request.Context(), booking)
	utils.SuccessResponse(c, "Ride confirmed and approved", booking)
}

// announceApproval fans the approval out to open streams now and to push
// and sms in the background; neither affects the response.
func (h *BookingHandler) announceApproval(ctx context.Context, booking *models.Booking) {
	if h.hub != nil {
		h.hub.SendToUser(booking.RiderID, websocket.Message{Type: streamApprovedFrame, Data: booking})
	}
	if h.notifier == nil {
		return
	}

	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.notifyTimeout())
	go func() {
		defer cancel()
		_ = h.notifier.NotifyApproved(notifyCtx, booking)
	}()
}

func (h *BookingHandler) notifyTimeout() time.Duration {
	if h.timeout > 0 {
		return h.timeout
	}
	return 10 * time.Second
}
