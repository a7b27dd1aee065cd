package webhook_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/pocketpay/internal/webhook"
)

var testSecret = []byte("whsec_test")

func signedHeader(secret []byte, issued time.Time, body []byte) string {
	ts := fmt.Sprintf("%d", issued.Unix())
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(ts + "."))
	mac.Write(body)
	return fmt.Sprintf("t=%s,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func verifierAt(now time.Time) webhook.Verifier {
	return webhook.Verifier{Secret: testSecret, Window: 300 * time.Second, Now: func() time.Time { return now }}
}

func TestVerifyAcceptsFreshSignature(t *testing.T) {
	now := time.Unix(1_750_000_000, 0)
	body := []byte(`{"id":"WH-1"}`)
	require.NoError(t, verifierAt(now).Verify(signedHeader(testSecret, now, body), body))
}

func TestVerifyReplayWindowBoundaries(t *testing.T) {
	now := time.Unix(1_750_000_000, 0)
	body := []byte(`{"id":"WH-1"}`)
	v := verifierAt(now)

	cases := []struct {
		name   string
		issued time.Time
		ok     bool
	}{
		{name: "299s old", issued: now.Add(-299 * time.Second), ok: true},
		{name: "exactly 300s old", issued: now.Add(-300 * time.Second), ok: true},
		{name: "301s old", issued: now.Add(-301 * time.Second), ok: false},
		{name: "300s in the future", issued: now.Add(300 * time.Second), ok: true},
		{name: "301s in the future", issued: now.Add(301 * time.Second), ok: false},
	}
	for _, tc := range cases {
		err := v.Verify(signedHeader(testSecret, tc.issued, body), body)
		if tc.ok {
			require.NoError(t, err, tc.name)
		} else {
			require.ErrorIs(t, err, webhook.ErrSignatureInvalid, tc.name)
		}
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	now := time.Unix(1_750_000_000, 0)
	body := []byte(`{"id":"WH-1"}`)
	header := signedHeader([]byte("other-secret"), now, body)
	require.ErrorIs(t, verifierAt(now).Verify(header, body), webhook.ErrSignatureInvalid)
}

func TestVerifyRejectsTamperedBody(t *testing.T) {
	now := time.Unix(1_750_000_000, 0)
	header := signedHeader(testSecret, now, []byte(`{"amount":"25.00"}`))
	require.ErrorIs(t, verifierAt(now).Verify(header, []byte(`{"amount":"9925.00"}`)), webhook.ErrSignatureInvalid)
}

func TestVerifyRejectsMalformedHeaders(t *testing.T) {
	now := time.Unix(1_750_000_000, 0)
	body := []byte(`{}`)
	v := verifierAt(now)
	for _, header := range []string{
		"",
		"garbage",
		"t=123",
		"v1=abcd",
		"t=notanumber,v1=abcd",
		"t=123,v1=zzzz",
	} {
		require.ErrorIs(t, v.Verify(header, body), webhook.ErrSignatureInvalid, header)
	}
}
