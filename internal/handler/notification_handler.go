package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/kursadbilgin/notification-dispatcher/internal/domain"
	"github.com/kursadbilgin/notification-dispatcher/internal/observability"
	"github.com/kursadbilgin/notification-dispatcher/internal/repository"
)

// Dispatcher runs inbound events through the notification pipeline.
type Dispatcher interface {
	SubmitTransaction(ctx context.Context, event domain.TransactionEvent) (*domain.DispatchResult, error)
	SubmitAccountStatus(ctx context.Context, event domain.AccountStatusEvent) (*domain.DispatchResult, error)
}

// Query serves read access to stored notification records.
type Query interface {
	List(ctx context.Context, params repository.ListParams) ([]domain.Notification, error)
	Recent(ctx context.Context) ([]domain.Notification, error)
	GetByID(ctx context.Context, id string) (*domain.Notification, error)
	Attempts(ctx context.Context, id string) ([]domain.DeliveryAttempt, error)
	Stats(ctx context.Context) (map[domain.Status]int64, error)
}

// ResweepTrigger starts a background resend of FAILED records. It reports
// false when a sweep is already running.
type ResweepTrigger interface {
	Trigger(ctx context.Context) bool
}

type NotificationHandler struct {
	dispatcher Dispatcher
	query      Query
	resweep    ResweepTrigger
}

func NewNotificationHandler(dispatcher Dispatcher, query Query, resweep ResweepTrigger) (*NotificationHandler, error) {
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if query == nil {
		return nil, fmt.Errorf("query service is required")
	}
	if resweep == nil {
		return nil, fmt.Errorf("resweep trigger is required")
	}
	return &NotificationHandler{dispatcher: dispatcher, query: query, resweep: resweep}, nil
}

func RegisterNotificationRoutes(router fiber.Router, dispatcher Dispatcher, query Query, resweep ResweepTrigger) error {
	h, err := NewNotificationHandler(dispatcher, query, resweep)
	if err != nil {
		return err
	}

	api := router.Group("/api/notifications")
	api.Post("/transaction", h.SubmitTransaction)
	api.Post("/account-status", h.SubmitAccountStatus)
	api.Post("/retry-failed", h.RetryFailed)
	api.Get("/", h.ListNotifications)
	api.Get("/recent", h.RecentNotifications)
	api.Get("/stats", h.Stats)
	api.Get("/:id", h.GetNotification)
	api.Get("/:id/attempts", h.GetAttempts)

	return nil
}

type dispatchResponse struct {
	NotificationID *string `json:"notificationId"`
	Status         string  `json:"status"`
	Message        string  `json:"message"`
}

type notificationResponse struct {
	ID             string     `json:"id"`
	RecipientEmail string     `json:"recipientEmail"`
	RecipientPhone string     `json:"recipientPhone,omitempty"`
	CustomerID     *int64     `json:"customerId,omitempty"`
	Kind           string     `json:"notificationType"`
	Channel        string     `json:"channel"`
	Subject        string     `json:"subject"`
	Message        string     `json:"message"`
	Status         string     `json:"status"`
	ErrorMessage   *string    `json:"errorMessage,omitempty"`
	ReferenceID    string     `json:"referenceId,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	SentAt         *time.Time `json:"sentAt,omitempty"`
	FailedAt       *time.Time `json:"failedAt,omitempty"`
}

type attemptResponse struct {
	ID                string    `json:"id"`
	AttemptNumber     int       `json:"attemptNumber"`
	Source            string    `json:"source"`
	Error             *string   `json:"error,omitempty"`
	ProviderMessageID *string   `json:"providerMessageId,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
}

func (h *NotificationHandler) SubmitTransaction(c *fiber.Ctx) error {
	var event domain.TransactionEvent
	if err := c.BodyParser(&event); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	result, err := h.dispatcher.SubmitTransaction(requestContext(c), event)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusCreated).JSON(toDispatchResponse(result))
}

func (h *NotificationHandler) SubmitAccountStatus(c *fiber.Ctx) error {
	var event domain.AccountStatusEvent
	if err := c.BodyParser(&event); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	result, err := h.dispatcher.SubmitAccountStatus(requestContext(c), event)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusCreated).JSON(toDispatchResponse(result))
}

func (h *NotificationHandler) RetryFailed(c *fiber.Ctx) error {
	started := h.resweep.Trigger(requestContext(c))

	message := "Retry of failed notifications started"
	if !started {
		message = "Retry of failed notifications already running"
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"message": message,
		"started": started,
	})
}

func (h *NotificationHandler) ListNotifications(c *fiber.Ctx) error {
	params, err := parseListParams(c)
	if err != nil {
		return toHTTPError(err)
	}

	notifications, err := h.query.List(requestContext(c), params)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toNotificationResponses(notifications))
}

func (h *NotificationHandler) RecentNotifications(c *fiber.Ctx) error {
	notifications, err := h.query.Recent(requestContext(c))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toNotificationResponses(notifications))
}

func (h *NotificationHandler) Stats(c *fiber.Ctx) error {
	counts, err := h.query.Stats(requestContext(c))
	if err != nil {
		return toHTTPError(err)
	}

	body := fiber.Map{}
	for _, status := range []domain.Status{domain.StatusPending, domain.StatusSent, domain.StatusFailed} {
		body[status.String()] = counts[status]
	}
	return c.Status(fiber.StatusOK).JSON(body)
}

func (h *NotificationHandler) GetNotification(c *fiber.Ctx) error {
	notification, err := h.query.GetByID(requestContext(c), c.Params("id"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toNotificationResponse(notification))
}

func (h *NotificationHandler) GetAttempts(c *fiber.Ctx) error {
	attempts, err := h.query.Attempts(requestContext(c), c.Params("id"))
	if err != nil {
		return toHTTPError(err)
	}

	responses := make([]attemptResponse, 0, len(attempts))
	for _, a := range attempts {
		responses = append(responses, attemptResponse{
			ID:                a.ID,
			AttemptNumber:     a.AttemptNumber,
			Source:            string(a.Source),
			Error:             a.Error,
			ProviderMessageID: a.ProviderMessageID,
			CreatedAt:         a.CreatedAt,
		})
	}
	return c.Status(fiber.StatusOK).JSON(responses)
}

func parseListParams(c *fiber.Ctx) (repository.ListParams, error) {
	var params repository.ListParams

	if rawStatus := strings.TrimSpace(c.Query("status")); rawStatus != "" {
		status, err := domain.ParseStatusFromString(rawStatus)
		if err != nil {
			return repository.ListParams{}, err
		}
		params.Status = &status
	}

	from, err := parseRFC3339Query(c.Query("from"), "from")
	if err != nil {
		return repository.ListParams{}, err
	}
	to, err := parseRFC3339Query(c.Query("to"), "to")
	if err != nil {
		return repository.ListParams{}, err
	}
	params.From = from
	params.To = to

	return params, nil
}

func parseRFC3339Query(value string, field string) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}

	t, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be RFC3339", domain.ErrValidation, field)
	}
	return &t, nil
}

// requestContext carries the request id into the pipeline as correlation id.
func requestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if id := requestCorrelationID(c); id != "" {
		ctx = observability.WithCorrelationID(ctx, id)
	}
	return ctx
}

// requestCorrelationID copies the id out of the request buffer; it outlives
// the handler in the resweep goroutine and the async logs.
func requestCorrelationID(c *fiber.Ctx) string {
	if value := strings.TrimSpace(c.Get(fiber.HeaderXRequestID)); value != "" {
		return utils.CopyString(value)
	}
	if value, ok := c.Locals("requestid").(string); ok {
		return utils.CopyString(strings.TrimSpace(value))
	}
	return ""
}

func toDispatchResponse(result *domain.DispatchResult) dispatchResponse {
	if result == nil {
		return dispatchResponse{}
	}

	resp := dispatchResponse{
		Status:  result.Status.String(),
		Message: result.Message,
	}
	if result.NotificationID != "" {
		id := result.NotificationID
		resp.NotificationID = &id
	}
	return resp
}

func toNotificationResponses(notifications []domain.Notification) []notificationResponse {
	responses := make([]notificationResponse, 0, len(notifications))
	for _, notification := range notifications {
		n := notification
		responses = append(responses, toNotificationResponse(&n))
	}
	return responses
}

// toNotificationResponse exposes only masked recipient fields; the sealed
// address never leaves the service.
func toNotificationResponse(n *domain.Notification) notificationResponse {
	if n == nil {
		return notificationResponse{}
	}

	return notificationResponse{
		ID:             n.ID,
		RecipientEmail: n.RecipientEmail,
		RecipientPhone: n.RecipientPhone,
		CustomerID:     n.CustomerID,
		Kind:           n.Kind.String(),
		Channel:        n.Channel.String(),
		Subject:        n.Subject,
		Message:        n.Message,
		Status:         n.Status.String(),
		ErrorMessage:   n.ErrorMessage,
		ReferenceID:    n.ReferenceID,
		CreatedAt:      n.CreatedAt,
		SentAt:         n.SentAt,
		FailedAt:       n.FailedAt,
	}
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrStoreUnavailable):
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	default:
		return err
	}
}
