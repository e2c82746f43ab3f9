package util

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/plaid/plaid-go/v41/plaid"
	"github.com/stretchr/testify/require"
)

func signWebhook(t *testing.T, key *ecdsa.PrivateKey, kid string, body []byte, iat time.Time) http.Header {
	t.Helper()
	sum := sha256.Sum256(body)
	token := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims{
		"iat":                 iat.Unix(),
		"request_body_sha256": hex.EncodeToString(sum[:]),
	})
	token.Header["kid"] = kid
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	h := http.Header{}
	h.Set("Plaid-Verification", signed)
	return h
}

func jwkFor(key *ecdsa.PrivateKey, kid string) *plaid.JWKPublicKey {
	return &plaid.JWKPublicKey{
		Kid: kid,
		Kty: "EC",
		Crv: "P-256",
		Alg: "ES256",
		X:   base64.RawURLEncoding.EncodeToString(key.PublicKey.X.FillBytes(make([]byte, 32))),
		Y:   base64.RawURLEncoding.EncodeToString(key.PublicKey.Y.FillBytes(make([]byte, 32))),
	}
}

func TestWebhookVerifier(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	fetches := 0
	v := NewWebhookVerifier(func(ctx context.Context, kid string) (*plaid.JWKPublicKey, error) {
		fetches++
		return jwkFor(key, kid), nil
	})
	now := time.Now()
	body := []byte(`{"webhook_type":"TRANSACTIONS","webhook_code":"SYNC_UPDATES_AVAILABLE","item_id":"item-1"}`)
	ctx := context.Background()

	require.NoError(t, v.Verify(ctx, body, signWebhook(t, key, "kid-1", body, now)))
	require.NoError(t, v.Verify(ctx, body, signWebhook(t, key, "kid-1", body, now)))
	require.Equal(t, 1, fetches)

	require.ErrorContains(t, v.Verify(ctx, []byte(`{}`), signWebhook(t, key, "kid-1", body, now)), "body hash mismatch")
	require.ErrorContains(t, v.Verify(ctx, body, signWebhook(t, key, "kid-1", body, now.Add(-10*time.Minute))), "too old")
	require.ErrorContains(t, v.Verify(ctx, body, http.Header{}), "missing Plaid-Verification")

	other, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	require.Error(t, v.Verify(ctx, body, signWebhook(t, other, "kid-1", body, now)))
}
