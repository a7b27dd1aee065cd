package status

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/pocketpay/internal/common"
)

// Handler exposes the status query over HTTP.
type Handler struct {
	Service Service
}

// GetPaymentStatus handles GET /api/v1/payments/{paymentID}/status.
func (h Handler) GetPaymentStatus(w http.ResponseWriter, r *http.Request) {
	callerID, _ := common.CallerID(r.Context())
	paymentID := chi.URLParam(r, "paymentID")

	view, err := h.Service.GetStatus(r.Context(), callerID, paymentID)
	if err != nil {
		switch {
		case errors.Is(err, ErrUnauthenticated):
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		case errors.Is(err, ErrNotFound):
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "payment not found", nil)
		case errors.Is(err, ErrPermissionDenied):
			common.JSONError(w, http.StatusForbidden, "FORBIDDEN", "not a participant of this payment", nil)
		default:
			common.RenderError(w, err)
		}
		return
	}
	common.JSON(w, http.StatusOK, view)
}
