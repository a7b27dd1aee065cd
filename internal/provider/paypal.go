package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/noah-isme/pocketpay/internal/obs"
	"github.com/noah-isme/pocketpay/internal/resilience"
)

// tokenRefreshMargin renews the cached OAuth token before it actually expires.
const tokenRefreshMargin = 60 * time.Second

// PayPal implements Reconciler against the PayPal Orders API using a
// client-credentials OAuth exchange. Access tokens are cached until shortly
// before expiry.
type PayPal struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	HTTP         resilience.HTTPClient
	Timeout      time.Duration

	mu       sync.Mutex
	token    string
	tokenExp time.Time
}

// GetOrder fetches the order's current amount and status from PayPal.
func (p *PayPal) GetOrder(ctx context.Context, orderID string) (Order, error) {
	start := time.Now()
	result := "error"
	defer func() {
		if obs.ReconcileTotal != nil {
			obs.ReconcileTotal.WithLabelValues(result).Inc()
		}
		if obs.ReconcileLatency != nil {
			obs.ReconcileLatency.WithLabelValues(result).Observe(obs.DurationMillis(time.Since(start)))
		}
	}()

	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: empty order id", ErrOrderNotFound)
	}
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	order, err := p.fetchOrder(ctx, orderID, false)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			result = "not_found"
		}
		return Order{}, err
	}
	result = "ok"
	return order, nil
}

func (p *PayPal) fetchOrder(ctx context.Context, orderID string, retried bool) (Order, error) {
	token, err := p.accessToken(ctx)
	if err != nil {
		return Order{}, err
	}

	endpoint := fmt.Sprintf("%s/v2/checkout/orders/%s", strings.TrimRight(p.BaseURL, "/"), url.PathEscape(orderID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Order{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := p.HTTP.Do(ctx, req)
	if err != nil {
		return Order{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Order{}, ErrOrderNotFound
	case resp.StatusCode == http.StatusUnauthorized && !retried:
		// Token may have been revoked upstream; drop the cache and retry once.
		p.invalidateToken()
		return p.fetchOrder(ctx, orderID, true)
	case resp.StatusCode != http.StatusOK:
		return Order{}, fmt.Errorf("%w: order fetch status %d", ErrProviderUnavailable, resp.StatusCode)
	}

	var payload struct {
		ID            string `json:"id"`
		Status        string `json:"status"`
		PurchaseUnits []struct {
			Amount struct {
				CurrencyCode string `json:"currency_code"`
				Value        string `json:"value"`
			} `json:"amount"`
		} `json:"purchase_units"`
		Payer struct {
			Address struct {
				CountryCode string `json:"country_code"`
			} `json:"address"`
		} `json:"payer"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Order{}, fmt.Errorf("%w: decode order: %v", ErrProviderUnavailable, err)
	}
	if len(payload.PurchaseUnits) == 0 {
		return Order{}, fmt.Errorf("%w: order has no purchase units", ErrProviderUnavailable)
	}

	cents, err := AmountToCents(payload.PurchaseUnits[0].Amount.Value)
	if err != nil {
		return Order{}, fmt.Errorf("%w: parse amount %q: %v", ErrProviderUnavailable, payload.PurchaseUnits[0].Amount.Value, err)
	}

	return Order{
		ID:           payload.ID,
		AmountCents:  cents,
		Status:       payload.Status,
		PayerCountry: strings.ToUpper(strings.TrimSpace(payload.Payer.Address.CountryCode)),
	}, nil
}

func (p *PayPal) accessToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	if p.token != "" && time.Now().Before(p.tokenExp.Add(-tokenRefreshMargin)) {
		token := p.token
		p.mu.Unlock()
		return token, nil
	}
	p.mu.Unlock()

	form := url.Values{"grant_type": {"client_credentials"}}
	endpoint := strings.TrimRight(p.BaseURL, "/") + "/v1/oauth2/token"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	req.SetBasicAuth(p.ClientID, p.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.HTTP.Do(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%w: token exchange: %v", ErrProviderUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: token exchange status %d", ErrProviderUnavailable, resp.StatusCode)
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("%w: decode token: %v", ErrProviderUnavailable, err)
	}
	if strings.TrimSpace(payload.AccessToken) == "" {
		return "", fmt.Errorf("%w: empty access token", ErrProviderUnavailable)
	}

	p.mu.Lock()
	p.token = payload.AccessToken
	p.tokenExp = time.Now().Add(time.Duration(payload.ExpiresIn) * time.Second)
	p.mu.Unlock()
	return payload.AccessToken, nil
}

func (p *PayPal) invalidateToken() {
	p.mu.Lock()
	p.token = ""
	p.tokenExp = time.Time{}
	p.mu.Unlock()
}

// AmountToCents converts a decimal currency string such as "25.00" into
// integer minor units without going through floating point.
func AmountToCents(value string) (int64, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, fmt.Errorf("empty amount")
	}
	negative := false
	if strings.HasPrefix(trimmed, "-") {
		negative = true
		trimmed = trimmed[1:]
	}
	whole, frac, _ := strings.Cut(trimmed, ".")
	if whole == "" {
		whole = "0"
	}
	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, err
	}
	var cents int64
	switch len(frac) {
	case 0:
		cents = 0
	case 1:
		d, err := strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return 0, err
		}
		cents = d * 10
	case 2:
		d, err := strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return 0, err
		}
		cents = d
	default:
		return 0, fmt.Errorf("unsupported precision %q", value)
	}
	total := units*100 + cents
	if negative {
		total = -total
	}
	return total, nil
}
