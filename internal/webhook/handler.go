package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/pocketpay/internal/common"
	"github.com/noah-isme/pocketpay/internal/ledger"
	"github.com/noah-isme/pocketpay/internal/obs"
)

// Provider header names as delivered by PayPal.
const (
	HeaderSignature      = "paypal-transmission-sig"
	HeaderTransmissionID = "paypal-transmission-id"
)

const maxBodyBytes = 1 << 20

var validate = validator.New()

// Processor applies one verified event to the ledger.
type Processor interface {
	ProcessEvent(ctx context.Context, p ledger.ProcessParams) (ledger.Outcome, error)
}

// payload is the subset of the provider's webhook body this service reads.
// Amounts are deliberately absent: they are never trusted from the payload.
type payload struct {
	ID        string `json:"id"`
	EventType string `json:"event_type" validate:"required"`
	Resource  struct {
		ID                string `json:"id"`
		CustomID          string `json:"custom_id" validate:"required"`
		SupplementaryData struct {
			RelatedIDs struct {
				OrderID string `json:"order_id"`
			} `json:"related_ids"`
		} `json:"supplementary_data"`
	} `json:"resource"`
}

// Handler is the webhook ingress endpoint. Signature verification happens on
// the raw body before any JSON parsing; after that the ledger engine owns all
// state changes.
type Handler struct {
	Verifier  Verifier
	Engine    Processor
	Redis     *redis.Client
	ReplayTTL time.Duration
	Timeout   time.Duration
	Logger    zerolog.Logger
}

func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		common.JSONError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "only POST is accepted", nil)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "unable to read request body", nil)
		return
	}

	sig := r.Header.Get(HeaderSignature)
	eventID := r.Header.Get(HeaderTransmissionID)
	if sig == "" || eventID == "" {
		common.JSONError(w, http.StatusBadRequest, "MISSING_HEADERS", "required webhook headers are missing", nil)
		return
	}

	if err := h.Verifier.Verify(sig, body); err != nil {
		h.Logger.Warn().Str("event_id", eventID).Msg("webhook_signature_rejected")
		h.count("unknown", "invalid_signature")
		common.JSONError(w, http.StatusUnauthorized, "INVALID_SIGNATURE", "signature verification failed", nil)
		return
	}

	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "request body is not valid JSON", nil)
		return
	}
	if err := validate.Struct(p); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "payload is missing required fields", nil)
		return
	}

	newStatus, handled := TransitionFor(p.EventType)
	if !handled {
		h.Logger.Debug().Str("event_type", p.EventType).Str("event_id", eventID).Msg("webhook_event_ignored")
		h.count(p.EventType, "ignored")
		common.JSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	ctx := r.Context()
	if h.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.Timeout)
		defer cancel()
	}

	replayKey, firstSeen := h.claimDelivery(ctx, eventID)
	if !firstSeen {
		h.count(p.EventType, "replay")
		common.JSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
		return
	}

	orderID := p.Resource.SupplementaryData.RelatedIDs.OrderID
	if orderID == "" {
		orderID = p.Resource.ID
	}

	out, err := h.Engine.ProcessEvent(ctx, ledger.ProcessParams{
		EventID:   eventID,
		PaymentID: p.Resource.CustomID,
		OrderID:   orderID,
		NewStatus: newStatus,
	})
	if err != nil {
		h.releaseDelivery(replayKey)
		if ledger.Terminal(err) {
			// Redelivering this event can never succeed, so acknowledge it;
			// the error log keeps the failure details.
			h.Logger.Error().Err(err).
				Str("event_id", eventID).
				Str("event_type", p.EventType).
				Str("payment_id", p.Resource.CustomID).
				Msg("webhook_terminal_failure")
			h.count(p.EventType, "terminal")
			common.JSON(w, http.StatusOK, map[string]string{"status": "acknowledged"})
			return
		}
		h.Logger.Error().Err(err).
			Str("event_id", eventID).
			Str("event_type", p.EventType).
			Msg("webhook_processing_failed")
		h.count(p.EventType, "error")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "event processing failed", nil)
		return
	}

	result := "processed"
	if out.Duplicate {
		result = "replay"
	}
	h.count(p.EventType, result)
	common.JSON(w, http.StatusOK, map[string]string{
		"status":         result,
		"payment_status": string(out.Status),
	})
}

// claimDelivery is a best-effort fast path that drops obvious duplicate
// deliveries before a database transaction is opened. The webhook_deliveries
// row remains the authority; redis being down just skips the shortcut.
func (h *Handler) claimDelivery(ctx context.Context, eventID string) (string, bool) {
	if h.Redis == nil {
		return "", true
	}
	ttl := h.ReplayTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	key := "webhook:delivery:" + common.Sha256Hex(eventID)
	ok, err := h.Redis.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			h.Logger.Warn().Err(err).Msg("webhook_replay_guard_unavailable")
		}
		return "", true
	}
	return key, ok
}

// releaseDelivery frees the fast-path claim after a failed attempt so the
// provider's retry is not mistaken for a duplicate.
func (h *Handler) releaseDelivery(key string) {
	if h.Redis == nil || key == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.Redis.Del(ctx, key).Err(); err != nil {
		h.Logger.Warn().Err(err).Msg("webhook_replay_guard_release_failed")
	}
}

func (h *Handler) count(eventType, result string) {
	if obs.WebhookEventsTotal != nil {
		obs.WebhookEventsTotal.WithLabelValues(eventType, result).Inc()
	}
}
