package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/payapp-backend/internal/apperr"
	"github.com/dmehra2102/payapp-backend/internal/payment/application"
	"github.com/dmehra2102/payapp-backend/internal/payment/domain"
)

const (
	callbackSuccess = "SUCCESS"
	callbackFailure = "FAIL"
)

type Handler struct {
	log       *slog.Logger
	service   *application.Service
	callbacks *application.Dispatcher
	failBody  string
	tracer    trace.Tracer
}

// NewHandler wires the payment API. failBody is the text returned to the
// gateway when a callback fails authentication.
func NewHandler(log *slog.Logger, service *application.Service, callbacks *application.Dispatcher, failBody string) *Handler {
	return &Handler{
		log:       log,
		service:   service,
		callbacks: callbacks,
		failBody:  failBody,
		tracer:    otel.Tracer("payapp-http"),
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/request", h.requestPayment)
	r.Post("/callback", h.callback)
	r.Get("/status/{orderId}", h.getStatus)
	r.Get("/orders", h.listOrders)
	r.Post("/cancel", h.cancelPayment)

	r.Route("/rebill", func(r chi.Router) {
		r.Post("/register", h.registerRebill)
		r.Post("/cancel", h.controlRebill(domain.RebillCancel))
		r.Post("/stop", h.controlRebill(domain.RebillStop))
		r.Post("/start", h.controlRebill(domain.RebillStart))
		r.Get("/{rebillNo}", h.getSubscription)
	})
	return r
}

type paymentResponse struct {
	Success bool   `json:"success"`
	OrderID string `json:"orderId"`
	PayURL  string `json:"payUrl"`
	QRURL   string `json:"qrUrl,omitempty"`
	MulNo   string `json:"mulNo,omitempty"`
}

type errorResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	ErrorCode string `json:"errorCode,omitempty"`
}

type orderResponse struct {
	Success     bool               `json:"success"`
	OrderID     string             `json:"orderId"`
	MulNo       string             `json:"mulNo,omitempty"`
	Status      domain.OrderStatus `json:"status"`
	PayState    *string            `json:"payState"`
	Amount      int64              `json:"amount"`
	Phone       string             `json:"phone"`
	ProductName string             `json:"productName"`
	Memo        string             `json:"memo,omitempty"`
	PayType     string             `json:"payType,omitempty"`
	PayDate     string             `json:"payDate,omitempty"`
	CardName    string             `json:"cardName,omitempty"`
	CreatedAt   time.Time          `json:"createdAt"`
	UpdatedAt   time.Time          `json:"updatedAt"`
}

type orderListResponse struct {
	Success bool            `json:"success"`
	Orders  []orderResponse `json:"orders"`
	Total   int             `json:"total"`
	Page    int             `json:"page"`
	Limit   int             `json:"limit"`
}

type rebillResponse struct {
	Success  bool   `json:"success"`
	OrderID  string `json:"orderId"`
	RebillNo string `json:"rebillNo"`
	PayURL   string `json:"payUrl"`
}

type rebillControlResponse struct {
	Success  bool                      `json:"success"`
	RebillNo string                    `json:"rebillNo"`
	Status   domain.SubscriptionStatus `json:"status,omitempty"`
}

type subscriptionResponse struct {
	Success      bool                      `json:"success"`
	RebillNo     string                    `json:"rebillNo"`
	OrderID      string                    `json:"orderId"`
	Status       domain.SubscriptionStatus `json:"status"`
	CycleType    domain.CycleType          `json:"cycleType"`
	CycleValue   int                       `json:"cycleValue,omitempty"`
	ExpireDate   string                    `json:"expireDate"`
	Amount       int64                     `json:"amount"`
	ProductName  string                    `json:"productName"`
	LastMulNo    string                    `json:"lastMulNo,omitempty"`
	LastPayState string                    `json:"lastPayState,omitempty"`
	LastPaidAt   string                    `json:"lastPaidAt,omitempty"`
	CreatedAt    time.Time                 `json:"createdAt"`
	UpdatedAt    time.Time                 `json:"updatedAt"`
}

func (h *Handler) requestPayment(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "RequestPayment")
	defer span.End()

	var req paymentRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, span, err)
		return
	}

	res, err := h.service.RequestPayment(ctx, req.input())
	if err != nil {
		h.fail(w, r, span, err)
		return
	}
	span.SetAttributes(attribute.String("order.id", res.OrderID), attribute.String("payapp.mul_no", res.MulNo))
	writeJSON(w, http.StatusOK, paymentResponse{
		Success: true,
		OrderID: res.OrderID,
		PayURL:  res.PayURL,
		QRURL:   res.QRURL,
		MulNo:   res.MulNo,
	})
}

// callback answers the gateway in plain text. Anything but SUCCESS makes the
// gateway retry.
func (h *Handler) callback(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "PayAppCallback")
	defer span.End()

	cb, err := decodeCallback(w, r)
	if err != nil {
		h.log.WarnContext(ctx, "callback body unreadable", "err", err)
		span.SetStatus(codes.Error, "unreadable body")
		writeText(w, http.StatusBadRequest, callbackFailure)
		return
	}
	span.SetAttributes(
		attribute.String("payapp.mul_no", cb.MulNo),
		attribute.String("payapp.pay_state", cb.PayState),
		attribute.String("payapp.rebill_no", cb.RebillNo),
	)

	switch err := h.callbacks.Handle(ctx, cb); {
	case err == nil:
		writeText(w, http.StatusOK, callbackSuccess)
	case errors.Is(err, apperr.ErrUnauthorized):
		span.SetStatus(codes.Error, "unauthorized")
		writeText(w, http.StatusUnauthorized, h.failBody)
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, apperr.Kind(err))
		writeText(w, http.StatusInternalServerError, callbackFailure)
	}
}

func (h *Handler) getStatus(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetOrderStatus")
	defer span.End()

	o, err := h.service.GetOrder(ctx, chi.URLParam(r, "orderId"))
	if err != nil {
		h.fail(w, r, span, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ListOrders")
	defer span.End()

	q := r.URL.Query()
	var f domain.OrderFilter
	for name, dst := range map[string]*int{"page": &f.Page, "limit": &f.Limit} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			h.fail(w, r, span, apperr.Invalid(name, "must be a positive integer"))
			return
		}
		*dst = n
	}
	if raw := q.Get("status"); raw != "" {
		st, ok := domain.ParseOrderStatus(raw)
		if !ok {
			h.fail(w, r, span, apperr.Invalid("status", "unknown order status"))
			return
		}
		f.Status = st
	}

	page, err := h.service.ListOrders(ctx, f)
	if err != nil {
		h.fail(w, r, span, err)
		return
	}
	resp := orderListResponse{
		Success: true,
		Orders:  make([]orderResponse, 0, len(page.Orders)),
		Total:   page.Total,
		Page:    page.Page,
		Limit:   page.Limit,
	}
	for _, o := range page.Orders {
		resp.Orders = append(resp.Orders, toOrderResponse(o))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) cancelPayment(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CancelPayment")
	defer span.End()

	var req cancelRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, span, err)
		return
	}
	if err := h.service.CancelPayment(ctx, application.CancelInput{MulNo: req.MulNo, Memo: req.Memo}); err != nil {
		h.fail(w, r, span, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "mulNo": req.MulNo})
}

func (h *Handler) registerRebill(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "RegisterRebill")
	defer span.End()

	var req rebillRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, span, err)
		return
	}

	res, err := h.service.RegisterRebill(ctx, req.input())
	if err != nil {
		h.fail(w, r, span, err)
		return
	}
	span.SetAttributes(attribute.String("payapp.rebill_no", res.RebillNo))
	writeJSON(w, http.StatusOK, rebillResponse{
		Success:  true,
		OrderID:  res.OrderID,
		RebillNo: res.RebillNo,
		PayURL:   res.PayURL,
	})
}

func (h *Handler) controlRebill(action domain.RebillAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := h.tracer.Start(r.Context(), "ControlRebill", trace.WithAttributes(attribute.String("payapp.rebill_action", string(action))))
		defer span.End()

		var req rebillControlRequest
		if err := decodeJSON(r, &req); err != nil {
			h.fail(w, r, span, err)
			return
		}
		status, err := h.service.ControlRebill(ctx, application.RebillControlInput{RebillNo: req.RebillNo, Action: action})
		if err != nil {
			h.fail(w, r, span, err)
			return
		}
		writeJSON(w, http.StatusOK, rebillControlResponse{Success: true, RebillNo: req.RebillNo, Status: status})
	}
}

func (h *Handler) getSubscription(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetSubscription")
	defer span.End()

	s, err := h.service.GetSubscription(ctx, chi.URLParam(r, "rebillNo"))
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorResponse{Message: "subscription not found"})
			return
		}
		h.fail(w, r, span, err)
		return
	}
	writeJSON(w, http.StatusOK, subscriptionResponse{
		Success:      true,
		RebillNo:     s.RebillNo,
		OrderID:      s.OrderID,
		Status:       s.Status,
		CycleType:    s.CycleType,
		CycleValue:   s.CycleValue,
		ExpireDate:   s.ExpireDate.Format(domain.DateLayout),
		Amount:       s.Amount,
		ProductName:  s.ProductName,
		LastMulNo:    s.LastMulNo,
		LastPayState: s.LastPayState,
		LastPaidAt:   s.LastPaidAt,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	})
}

// fail maps err onto the JSON error shape. Server side failures are logged
// with their cause; the caller only sees the public message.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, span trace.Span, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		span.RecordError(err)
		span.SetStatus(codes.Error, apperr.Kind(err))
		h.log.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "kind", apperr.Kind(err), "err", err)
	}
	writeJSON(w, status, errorResponse{
		Message:   apperr.PublicMessage(err),
		ErrorCode: apperr.Code(err),
	})
}

func toOrderResponse(o domain.Order) orderResponse {
	return orderResponse{
		Success:     true,
		OrderID:     o.ID,
		MulNo:       o.MulNo,
		Status:      o.Status,
		PayState:    payState(o.PayState),
		Amount:      o.Amount,
		Phone:       o.Phone,
		ProductName: o.ProductName,
		Memo:        o.Memo,
		PayType:     o.Details.PayType,
		PayDate:     o.Details.PayDate,
		CardName:    o.Details.CardName,
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
	}
}

// payState is null until the gateway has reported a code.
func payState(code string) *string {
	if code == "" {
		return nil
	}
	return &code
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
