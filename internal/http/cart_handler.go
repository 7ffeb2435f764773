package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/fjod/go_cart/cart-engine/internal/domain"
	"github.com/fjod/go_cart/cart-engine/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// CartService is the subset of service.CartService the handlers call.
type CartService interface {
	GetCart(ctx context.Context, userID string) (domain.Cart, error)
	AddItem(ctx context.Context, userID string, req service.AddItemRequest) (domain.Cart, error)
	UpdateItemQuantity(ctx context.Context, userID string, req service.UpdateItemRequest) (domain.Cart, error)
	RemoveItem(ctx context.Context, userID, productID string) (domain.Cart, error)
	ClearCart(ctx context.Context, userID string) (domain.Cart, error)
}

type CartHandler struct {
	carts    CartService
	timeout  time.Duration
	validate *validator.Validate
	log      *slog.Logger
}

func NewCartHandler(carts CartService, timeout time.Duration, log *slog.Logger) *CartHandler {
	return &CartHandler{
		carts:    carts,
		timeout:  timeout,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      log.With("component", "cart_handler"),
	}
}

type AddItemRequestDTO struct {
	ProductID string `json:"productId" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"min=1"`
}

type UpdateQuantityRequestDTO struct {
	Quantity *int `json:"quantity" validate:"required,min=0"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

type CartItemResponse struct {
	Product          domain.ProductSnapshot `json:"product"`
	Quantity         int                    `json:"quantity"`
	PriceAtTime      float64                `json:"priceAtTime"`
	TaxRate          float64                `json:"taxRate"`
	UnitPriceWithTax float64                `json:"unitPriceWithTax"`
	SubtotalWithTax  float64                `json:"subtotalWithTax"`
	Subtotal         float64                `json:"subtotal"`
	AddedAt          time.Time              `json:"addedAt"`
}

type CartResponse struct {
	ID                 string             `json:"id,omitempty"`
	UserID             string             `json:"userId"`
	Items              []CartItemResponse `json:"items"`
	TotalItems         int                `json:"totalItems"`
	SubtotalWithoutTax float64            `json:"subtotalWithoutTax"`
	TotalTaxAmount     float64            `json:"totalTaxAmount"`
	Total              float64            `json:"total"`
	CreatedAt          time.Time          `json:"createdAt"`
	UpdatedAt          time.Time          `json:"updatedAt"`
}

func toCartResponse(c domain.Cart) CartResponse {
	items := make([]CartItemResponse, 0, len(c.Items))
	for _, it := range c.Items {
		items = append(items, CartItemResponse{
			Product:          it.Product,
			Quantity:         it.Quantity,
			PriceAtTime:      it.PriceAtTime,
			TaxRate:          it.TaxRate,
			UnitPriceWithTax: it.UnitPriceWithTax(),
			SubtotalWithTax:  it.SubtotalWithTax(),
			Subtotal:         it.Subtotal(),
			AddedAt:          it.AddedAt,
		})
	}
	return CartResponse{
		ID:                 c.ID,
		UserID:             c.UserID,
		Items:              items,
		TotalItems:         c.TotalItems(),
		SubtotalWithoutTax: c.SubtotalWithoutTax(),
		TotalTaxAmount:     c.TotalTaxAmount(),
		Total:              c.Total(),
		CreatedAt:          c.CreatedAt,
		UpdatedAt:          c.UpdatedAt,
	}
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	cart, err := h.carts.GetCart(ctx, userID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, toCartResponse(cart))
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondValidationError(w, err)
		return
	}

	cart, err := h.carts.AddItem(ctx, userID, service.AddItemRequest{
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, toCartResponse(cart))
}

func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	productID := chi.URLParam(r, "product_id")
	if err := h.validate.Var(productID, "required,uuid"); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be a UUID")
		return
	}

	var req UpdateQuantityRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondValidationError(w, err)
		return
	}

	cart, err := h.carts.UpdateItemQuantity(ctx, userID, service.UpdateItemRequest{
		ProductID: productID,
		Quantity:  *req.Quantity,
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, toCartResponse(cart))
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	productID := chi.URLParam(r, "product_id")
	if err := h.validate.Var(productID, "required,uuid"); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be a UUID")
		return
	}

	cart, err := h.carts.RemoveItem(ctx, userID, productID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, toCartResponse(cart))
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	cart, err := h.carts.ClearCart(ctx, userID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, toCartResponse(cart))
}

// handleServiceError converts cart errors to HTTP statuses. Internal causes
// are logged and never sent to the client.
func (h *CartHandler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.DeadlineExceeded) {
		respondError(w, http.StatusGatewayTimeout, "timeout", "request timed out")
		return
	}

	switch domain.KindOf(err) {
	case domain.KindBadRequest:
		respondError(w, http.StatusBadRequest, "bad_request", domain.Message(err))
	case domain.KindNotFound:
		respondError(w, http.StatusNotFound, "not_found", domain.Message(err))
	default:
		h.log.ErrorContext(r.Context(), "cart operation failed",
			"method", r.Method, "path", r.URL.Path, "request_id", RequestIDFromContext(r.Context()), "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", domain.Message(err))
	}
}

func respondValidationError(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid request")
		return
	}

	fe := verrs[0]
	switch fe.Field() {
	case "ProductID":
		respondError(w, http.StatusBadRequest, "invalid_product_id", "productId must be a UUID")
	case "Quantity":
		if fe.Tag() == "required" {
			respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity is required")
			return
		}
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be at least "+fe.Param())
	default:
		respondError(w, http.StatusBadRequest, "invalid_request", fe.Error())
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
