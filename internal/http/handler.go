package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"Key2PayBridge/internal/auth"
	"Key2PayBridge/internal/key2pay"
	"Key2PayBridge/internal/models"
	"Key2PayBridge/internal/services"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type Handler struct {
	Checkout        *services.CheckoutService
	Reconcile       *services.ReconcileService
	Events          *EventHub
	WebhookAuth     auth.Strategy
	FallbackEnabled bool
	Log             *zap.Logger
}

func NewHandler(checkout *services.CheckoutService, reconcile *services.ReconcileService, events *EventHub, webhookAuth auth.Strategy, fallbackEnabled bool, log *zap.Logger) *Handler {
	return &Handler{
		Checkout:        checkout,
		Reconcile:       reconcile,
		Events:          events,
		WebhookAuth:     webhookAuth,
		FallbackEnabled: fallbackEnabled,
		Log:             log,
	}
}

type createOrderRequest struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
	Billing  struct {
		Email   string `json:"email"`
		Phone   string `json:"phone"`
		Country string `json:"country"`
		City    string `json:"city"`
		State   string `json:"state"`
		Address string `json:"address"`
		Zip     string `json:"zip"`
	} `json:"billing"`
}

type orderResponse struct {
	OrderID       string `json:"orderId"`
	Status        string `json:"status"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	TrackID       string `json:"trackId,omitempty"`
	TransactionID string `json:"transactionId,omitempty"`
	PaidAt        string `json:"paidAt,omitempty"`
	CreatedAt     string `json:"createdAt"`
}

func toOrderResponse(order *models.Order) orderResponse {
	resp := orderResponse{
		OrderID:   order.OrderID,
		Status:    string(order.Status),
		Amount:    order.Amount,
		Currency:  order.Currency,
		CreatedAt: order.CreatedAt.Format(time.RFC3339),
	}
	if order.TrackID != nil {
		resp.TrackID = *order.TrackID
	}
	if order.TransactionID != nil {
		resp.TransactionID = *order.TransactionID
	}
	if order.PaidAt != nil {
		resp.PaidAt = order.PaidAt.Format(time.RFC3339)
	}
	return resp
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	order, err := h.Checkout.CreateOrder(r.Context(), services.CreateOrderInput{
		Amount:   req.Amount,
		Currency: req.Currency,
		Billing: models.Billing{
			Email:      req.Billing.Email,
			Phone:      req.Billing.Phone,
			Country:    req.Billing.Country,
			City:       req.Billing.City,
			State:      req.Billing.State,
			Address:    req.Billing.Address,
			Zip:        req.Billing.Zip,
			CustomerIP: r.RemoteAddr,
		},
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidAmount), errors.Is(err, services.ErrInvalidCurrency):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "create order failed")
		}
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(order))
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, ok := h.loadOrder(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) InitiateCheckout(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	if orderID == "" {
		writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	redirectURL, err := h.Checkout.InitiatePayment(r.Context(), orderID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrOrderNotFound):
			writeError(w, http.StatusNotFound, "order not found")
		case errors.Is(err, services.ErrOrderFinalized):
			writeError(w, http.StatusConflict, "order already finalized")
		case errors.Is(err, key2pay.ErrSessionRejected), errors.Is(err, key2pay.ErrTransport):
			// Generic shopper-facing message; detail stays in the log.
			writeError(w, http.StatusBadGateway, "payment session could not be created, please try again")
		default:
			writeError(w, http.StatusInternalServerError, "checkout failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"redirectUrl": redirectURL})
}

func (h *Handler) OrderEvents(w http.ResponseWriter, r *http.Request) {
	order, ok := h.loadOrder(w, r)
	if !ok {
		return
	}
	h.Events.Subscribe(w, r, order)
}

type webhookPayload struct {
	Type          string `json:"type"`
	Result        string `json:"result"`
	ResponseCode  string `json:"responsecode"`
	TrackID       string `json:"trackid"`
	MerchantID    string `json:"merchantid"`
	TransactionID string `json:"transactionid"`
	ErrorCodeTag  string `json:"error_code_tag"`
	ErrorText     string `json:"error_text"`
}

// Webhook is the primary ingress: the processor pushes the payment outcome
// here. 200 acknowledges receipt regardless of the business outcome.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	if h.WebhookAuth.Type == auth.TypeSigned {
		if sig := r.Header.Get("X-Key2Pay-Signature"); sig != "" {
			if !h.WebhookAuth.VerifySignature(raw, sig) {
				writeError(w, http.StatusUnauthorized, "invalid signature")
				return
			}
		}
	}

	var payload webhookPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "unparseable body")
		return
	}

	_, err = h.Reconcile.HandleNotification(r.Context(), models.Notification{
		TrackID:       payload.TrackID,
		TransactionID: payload.TransactionID,
		Result:        payload.Result,
		ResponseCode:  payload.ResponseCode,
		ErrorText:     payload.ErrorText,
	}, models.SourceWebhook)
	if err != nil {
		if errors.Is(err, services.ErrOrderNotFound) {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "notification processing failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Return is the optional fallback ingress, hit when the shopper's browser
// comes back from the hosted page carrying result parameters. After
// processing it always redirects to a parameter-free URL so a refresh
// cannot re-process.
func (h *Handler) Return(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	trackID := q.Get("trackid")

	cleanURL := "/"
	if orderID, ok := services.OrderIDFromTrackID(trackID); ok {
		cleanURL = "/payments/orders/" + orderID
	}

	if !h.FallbackEnabled || trackID == "" || (q.Get("result") == "" && q.Get("responsecode") == "") {
		http.Redirect(w, r, cleanURL, http.StatusSeeOther)
		return
	}

	_, err := h.Reconcile.HandleNotification(r.Context(), models.Notification{
		TrackID:      trackID,
		Result:       q.Get("result"),
		ResponseCode: q.Get("responsecode"),
		ErrorText:    q.Get("responsedescription"),
	}, models.SourceReturnURL)
	if err != nil && !errors.Is(err, services.ErrOrderNotFound) {
		h.Log.Error("fallback notification processing failed",
			zap.String("trackid", trackID),
			zap.Error(err))
	}

	http.Redirect(w, r, cleanURL, http.StatusSeeOther)
}

func (h *Handler) loadOrder(w http.ResponseWriter, r *http.Request) (*models.Order, bool) {
	orderID := chi.URLParam(r, "orderId")
	if orderID == "" {
		writeError(w, http.StatusBadRequest, "missing order id")
		return nil, false
	}
	order, err := h.Checkout.GetOrder(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, services.ErrOrderNotFound) {
			writeError(w, http.StatusNotFound, "order not found")
			return nil, false
		}
		writeError(w, http.StatusInternalServerError, "get order failed")
		return nil, false
	}
	return order, true
}
