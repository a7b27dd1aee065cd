package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

// DefaultReplayWindow bounds how stale (or future-dated) a signed timestamp
// may be before the delivery is refused.
const DefaultReplayWindow = 300 * time.Second

// ErrSignatureInvalid is the single failure result for signature checks.
// Callers cannot tell whether parsing, the MAC or the replay window failed,
// so responses leak nothing an attacker can iterate on.
var ErrSignatureInvalid = errors.New("webhook: signature verification failed")

// Verifier checks the provider's signature header against the raw body.
// The header format is "t=<unix-seconds>,v1=<hex-hmac>" and the MAC is
// HMAC-SHA256(secret, "<t>.<body>") over the exact bytes received.
type Verifier struct {
	Secret []byte
	Window time.Duration
	Now    func() time.Time
}

// Verify returns nil only for a well-formed header whose timestamp is inside
// the replay window and whose MAC matches. The MAC comparison is constant
// time; everything before it fails fast since the header is attacker-visible
// anyway.
func (v Verifier) Verify(header string, body []byte) error {
	ts, sig, ok := parseSignatureHeader(header)
	if !ok {
		return ErrSignatureInvalid
	}

	issued, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return ErrSignatureInvalid
	}
	window := v.Window
	if window <= 0 {
		window = DefaultReplayWindow
	}
	now := time.Now()
	if v.Now != nil {
		now = v.Now()
	}
	age := now.Unix() - issued
	// A timestamp exactly window seconds old is still accepted; rejection is
	// strictly greater-than in both directions.
	if age > int64(window/time.Second) || -age > int64(window/time.Second) {
		return ErrSignatureInvalid
	}

	provided, err := hex.DecodeString(sig)
	if err != nil {
		return ErrSignatureInvalid
	}

	mac := hmac.New(sha256.New, v.Secret)
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(body)
	if !hmac.Equal(provided, mac.Sum(nil)) {
		return ErrSignatureInvalid
	}
	return nil
}

func parseSignatureHeader(header string) (ts, sig string, ok bool) {
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			return "", "", false
		}
		switch key {
		case "t":
			ts = value
		case "v1":
			sig = value
		}
	}
	return ts, sig, ts != "" && sig != ""
}
