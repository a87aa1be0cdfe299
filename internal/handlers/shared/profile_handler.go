package handlers

import (
	"time"

	"zoomgo/internal/services"
	"zoomgo/internal/utils"
	"zoomgo/internal/validators"
	"zoomgo/pkg/logger"

	"github.com/gin-gonic/gin"
)

type ProfileHandler struct {
	profiles services.ProfileService
	notifier services.BookingNotifier
	timeout  time.Duration
	logger   *logger.Logger
}

func NewProfileHandler(profiles services.ProfileService, notifier services.BookingNotifier, timeout time.Duration, log *logger.Logger) *ProfileHandler {
	if log == nil {
		log = logger.Discard()
	}
	return &ProfileHandler{
		profiles: profiles,
		notifier: notifier,
		timeout:  timeout,
		logger:   log,
	}
}

func (h *ProfileHandler) CreateProfile(c *gin.Context) {
	var request validators.CreateProfileRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}
	if errs := validators.ValidateStruct(&request); len(errs) > 0 {
		respondValidation(c, errs)
		return
	}

	ctx, cancel := withTimeout(c, h.timeout)
	defer cancel()

	profile, err := h.profiles.CreateProfile(ctx, request.Name, request.Email)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	utils.CreatedResponse(c, "Profile created successfully", profile)
}

func (h *ProfileHandler) GetProfile(c *gin.Context) {
	ctx, cancel := withTimeout(c, h.timeout)
	defer cancel()

	profile, err := h.profiles.GetProfile(ctx)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	utils.SuccessResponse(c, "Profile retrieved successfully", profile)
}

func (h *ProfileHandler) GetGreeting(c *gin.Context) {
	ctx, cancel := withTimeout(c, h.timeout)
	defer cancel()

	utils.SuccessResponse(c, "Greeting retrieved successfully", gin.H{"name": h.profiles.GreetingName(ctx)})
}

// UpdateContact stores the phone and push token the notifier uses and
// subscribes the token to the rider's topic.
func (h *ProfileHandler) UpdateContact(c *gin.Context) {
	var request validators.UpdateContactRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}
	if errs := validators.ValidateUpdateContact(&request); len(errs) > 0 {
		respondValidation(c, errs)
		return
	}

	ctx, cancel := withTimeout(c, h.timeout)
	defer cancel()

	if err := h.profiles.UpdateContact(ctx, request.Phone, request.PushToken); err != nil {
		respondError(c, h.logger, err)
		return
	}

	if request.PushToken != "" && h.notifier != nil {
		if err := h.notifier.RegisterDevice(ctx, c.GetString(utils.ContextUserID), request.PushToken); err != nil {
			h.logger.WithContext(ctx).WithError(err).Warn("Device registration failed")
		}
	}

	profile, err := h.profiles.GetProfile(ctx)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	utils.SuccessResponse(c, "Contact details updated successfully", profile)
}
