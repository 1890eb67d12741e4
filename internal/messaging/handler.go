package messaging

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/swimdesk/lesson-notify/internal/domain"
	"github.com/swimdesk/lesson-notify/internal/pkg/ctxlog"
	"github.com/swimdesk/lesson-notify/internal/pkg/httputil"
)

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrBatchNotFound, Status: http.StatusNotFound, Message: "message batch not found"},
	{Error: ErrNoEligibleRecipients, Status: http.StatusBadRequest, Message: "no eligible recipients for the requested channel"},
}

// TwiML reply payloads for the inbound SMS webhook.
const (
	twimlEmpty  = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`
	twimlOptOut = `<?xml version="1.0" encoding="UTF-8"?>
<Response>
  <Message>You have been unsubscribed from SMS notifications. To re-subscribe, please contact us directly.</Message>
</Response>`
)

// Handler handles HTTP requests for the messaging module.
type Handler struct {
	service    *Service
	dispatcher *Dispatcher
	validator  *validator.Validate
}

// NewHandler creates a new messaging handler.
func NewHandler(service *Service, dispatcher *Dispatcher) *Handler {
	return &Handler{
		service:    service,
		dispatcher: dispatcher,
		validator:  validator.New(),
	}
}

// RegisterRoutes registers batch and webhook routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/batches", func(r chi.Router) {
		r.Post("/", h.CreateBatch)
		r.Get("/", h.ListBatches)
		r.Get("/{id}", h.GetBatch)
	})

	r.Post("/webhooks/sms", h.InboundSMS)
}

// RegisterDispatchRoute registers the tick trigger behind the shared
// secret guard. Wired separately so the guard wraps only this route.
func (h *Handler) RegisterDispatchRoute(r chi.Router, secret string) {
	r.Group(func(r chi.Router) {
		r.Use(httputil.BearerSecretMiddleware(secret))
		r.Get("/dispatch", h.RunDispatch)
	})
}

// CreateBatchRequest represents request body for creating a batch.
// lesson_id and lesson_ids are interchangeable; when lesson_ids is
// given, the first id is stored on the batch.
type CreateBatchRequest struct {
	LessonID  string   `json:"lesson_id" validate:"omitempty,uuid"`
	LessonIDs []string `json:"lesson_ids" validate:"omitempty,dive,uuid"`
	ClientIDs []string `json:"client_ids" validate:"required,min=1,dive,uuid"`
	Channel   string   `json:"channel" validate:"required,oneof=email sms both"`
	Subject   string   `json:"subject"`
	Body      string   `json:"body" validate:"required"`
}

// CreateBatch handles POST /batches.
func (h *Handler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	var req CreateBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	lessonID := req.LessonID
	if lessonID == "" && len(req.LessonIDs) > 0 {
		lessonID = req.LessonIDs[0]
	}

	receipt, err := h.service.CreateBatch(r.Context(), CreateBatchInput{
		LessonID:  lessonID,
		ClientIDs: req.ClientIDs,
		Channel:   domain.BatchChannel(req.Channel),
		Subject:   req.Subject,
		Body:      req.Body,
	})
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusCreated, receipt)
}

// ListBatches handles GET /batches.
func (h *Handler) ListBatches(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	batches, err := h.service.ListBatches(r.Context(), limit, offset)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, batches)
}

// GetBatch handles GET /batches/{id}.
func (h *Handler) GetBatch(w http.ResponseWriter, r *http.Request) {
	detail, err := h.service.GetBatch(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, detail)
}

// DispatchResponse is the tick trigger's reply.
type DispatchResponse struct {
	Success   bool `json:"success"`
	Processed int  `json:"processed"`
	Sent      int  `json:"sent"`
	Failed    int  `json:"failed"`
}

// RunDispatch handles GET /dispatch: runs one dispatch tick and
// reports its counts. Provider failures are absorbed into the counts,
// never surfaced as an HTTP error.
func (h *Handler) RunDispatch(w http.ResponseWriter, r *http.Request) {
	summary, err := h.dispatcher.RunTick(r.Context())
	if err != nil {
		ctxlog.FromContext(r.Context()).Error("dispatch tick failed", "error", err)
		httputil.Error(w, http.StatusInternalServerError, "dispatch failed")
		return
	}

	httputil.JSON(w, http.StatusOK, DispatchResponse{
		Success:   true,
		Processed: summary.Processed,
		Sent:      summary.Sent,
		Failed:    summary.Failed,
	})
}

// InboundSMS handles POST /webhooks/sms: the provider's inbound
// message callback, used for STOP/UNSUBSCRIBE processing. Always
// replies with TwiML, even on internal errors, so the provider does
// not retry the callback.
func (h *Handler) InboundSMS(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		httputil.XML(w, http.StatusOK, twimlEmpty)
		return
	}

	from := r.PostFormValue("From")
	body := r.PostFormValue("Body")

	ctx := ctxlog.With(r.Context(), "from", from)

	optedOut, err := h.service.ProcessInboundSMS(ctx, from, body)
	if err != nil {
		ctxlog.FromContext(ctx).Error("inbound sms processing failed", "error", err)
		httputil.XML(w, http.StatusOK, twimlEmpty)
		return
	}

	if optedOut {
		httputil.XML(w, http.StatusOK, twimlOptOut)
		return
	}

	httputil.XML(w, http.StatusOK, twimlEmpty)
}
