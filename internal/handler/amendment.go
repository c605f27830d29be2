package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/stayops/ota-bridge/internal/amendment"
	"github.com/stayops/ota-bridge/internal/repository"
)

// idempotencyTTL is how long a processed (channel, channelAmendmentId)
// pair blocks duplicate submissions.
const idempotencyTTL = 24 * time.Hour

// AmendmentHandler exposes the OTA amendment pipeline over HTTP: the
// channel-facing ingestion webhook and the manual decision endpoints
// used by reviewers.  The optional Redis client backs an idempotency
// guard on the external amendment correlator; when Redis is absent
// the guard degrades to accepting duplicates.
type AmendmentHandler struct {
	Coordinator *amendment.Coordinator
	BookingRepo *repository.BookingRepo
	Redis       *redis.Client
}

// NewAmendmentHandler constructs an AmendmentHandler.  Redis may be nil.
func NewAmendmentHandler(coordinator *amendment.Coordinator, bookingRepo *repository.BookingRepo, rdb *redis.Client) *AmendmentHandler {
	if coordinator == nil || bookingRepo == nil {
		panic("nil dependency passed to NewAmendmentHandler")
	}
	return &AmendmentHandler{Coordinator: coordinator, BookingRepo: bookingRepo, Redis: rdb}
}

// Receive handles POST /webhooks/ota/amendments.  The body carries the
// booking ID and the amendment payload as sent by the channel manager.
// Responses distinguish auto-approval, manual review and detected
// conflicts; validation failures return 400 with a message.
func (h *AmendmentHandler) Receive(c echo.Context) error {
	var body struct {
		BookingID     uint64 `json:"bookingId"`
		AmendmentData struct {
			Type               string                 `json:"type"`
			RequestedChanges   map[string]interface{} `json:"requestedChanges"`
			Channel            string                 `json:"channel"`
			ChannelAmendmentID string                 `json:"channelAmendmentId"`
			ReceivedAt         *time.Time             `json:"receivedAt"`
		} `json:"amendmentData"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"status": "error", "message": "invalid request body"})
	}
	if body.BookingID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"status": "error", "message": "bookingId is required"})
	}
	if body.AmendmentData.Type == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"status": "error", "message": "amendment type is required"})
	}
	if len(body.AmendmentData.RequestedChanges) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"status": "error", "message": "requestedChanges is required"})
	}
	ctx := c.Request().Context()

	// Duplicate webhooks from the same channel are common; the first
	// processed correlator wins and repeats are acknowledged as such.
	if h.Redis != nil && body.AmendmentData.ChannelAmendmentID != "" {
		key := "amd:seen:" + body.AmendmentData.Channel + ":" + body.AmendmentData.ChannelAmendmentID
		set, err := h.Redis.SetNX(ctx, key, body.BookingID, idempotencyTTL).Result()
		if err == nil && !set {
			return c.JSON(http.StatusOK, echo.Map{"status": "duplicate", "message": "amendment already received"})
		}
	}

	result, err := h.Coordinator.Receive(ctx, body.BookingID, amendment.Input{
		Type:               body.AmendmentData.Type,
		RequestedChanges:   body.AmendmentData.RequestedChanges,
		Channel:            body.AmendmentData.Channel,
		ChannelAmendmentID: body.AmendmentData.ChannelAmendmentID,
		ReceivedAt:         body.AmendmentData.ReceivedAt,
	})
	if err != nil {
		return amendmentError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"status": result.Status, "data": result})
}

// Approve handles POST /v1/ota/amendments/:bookingId/:amendmentId/approve.
func (h *AmendmentHandler) Approve(c echo.Context) error {
	bookingID, amendmentID, err := amendmentParams(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"status": "error", "message": err.Error()})
	}
	var body struct {
		Reason           string                 `json:"reason"`
		PartialChanges   map[string]interface{} `json:"partialChanges"`
		BypassValidation bool                   `json:"bypassValidation"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"status": "error", "message": "invalid request body"})
	}
	actor := actorFromContext(c)
	result, err := h.Coordinator.Approve(c.Request().Context(), bookingID, amendmentID, actor, body.Reason, body.PartialChanges, body.BypassValidation)
	if err != nil {
		return amendmentError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"status": result.Status, "data": result})
}

// Reject handles POST /v1/ota/amendments/:bookingId/:amendmentId/reject.
// The rejection reason is mandatory.
func (h *AmendmentHandler) Reject(c echo.Context) error {
	bookingID, amendmentID, err := amendmentParams(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"status": "error", "message": err.Error()})
	}
	var body struct {
		RejectionReason string `json:"rejectionReason"`
		NotifyGuest     *bool  `json:"notifyGuest"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"status": "error", "message": "invalid request body"})
	}
	notifyGuest := true
	if body.NotifyGuest != nil {
		notifyGuest = *body.NotifyGuest
	}
	actor := actorFromContext(c)
	result, err := h.Coordinator.Reject(c.Request().Context(), bookingID, amendmentID, actor, body.RejectionReason, notifyGuest)
	if err != nil {
		return amendmentError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"status": result.Status, "data": result})
}

// List handles GET /v1/ota/amendments/:bookingId.  It returns the full
// amendment history of a booking for the review tooling.
func (h *AmendmentHandler) List(c echo.Context) error {
	bookingID, err := strconv.ParseUint(c.Param("bookingId"), 10, 64)
	if err != nil || bookingID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"status": "error", "message": "invalid booking id"})
	}
	b, err := h.BookingRepo.GetByID(c.Request().Context(), bookingID)
	if err != nil {
		return amendmentError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"booking_id": b.ID,
		"flags":      b.Flags,
		"items":      b.OTAAmendments,
	})
}

func amendmentParams(c echo.Context) (uint64, string, error) {
	bookingID, err := strconv.ParseUint(c.Param("bookingId"), 10, 64)
	if err != nil || bookingID == 0 {
		return 0, "", errors.New("invalid booking id")
	}
	amendmentID := c.Param("amendmentId")
	if amendmentID == "" {
		return 0, "", errors.New("amendment id is required")
	}
	return bookingID, amendmentID, nil
}

// amendmentError maps pipeline errors onto HTTP responses.  Unknown
// errors are reported as a generic 500 without leaking internals.
func amendmentError(c echo.Context, err error) error {
	var vErr *amendment.ValidationError
	if errors.As(err, &vErr) {
		return c.JSON(http.StatusBadRequest, echo.Map{"status": "error", "message": vErr.Reason})
	}
	var pErr *amendment.PolicyError
	if errors.As(err, &pErr) {
		return c.JSON(http.StatusBadRequest, echo.Map{"status": "error", "message": pErr.Reason})
	}
	switch {
	case errors.Is(err, repository.ErrBookingNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"status": "error", "message": "booking not found"})
	case errors.Is(err, amendment.ErrAmendmentNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"status": "error", "message": "amendment not found"})
	case errors.Is(err, amendment.ErrAmendmentFinal):
		return c.JSON(http.StatusConflict, echo.Map{"status": "error", "message": "amendment already decided"})
	case errors.Is(err, amendment.ErrRejectionReasonRequired):
		return c.JSON(http.StatusBadRequest, echo.Map{"status": "error", "message": "rejectionReason is required"})
	case errors.Is(err, amendment.ErrConflictUnresolved):
		return c.JSON(http.StatusConflict, echo.Map{"status": "error", "message": "booking is being modified concurrently, retry later"})
	}
	c.Logger().Errorf("amendment pipeline error: %v", err)
	return c.JSON(http.StatusInternalServerError, echo.Map{"status": "error", "message": "internal error"})
}
