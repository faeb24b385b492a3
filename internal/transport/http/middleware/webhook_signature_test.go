package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	svix "github.com/svix/svix-webhooks/go"

	"github.com/baechuer/medimg-identity/internal/transport/http/response"
)

const testSigningSecret = "whsec_MfKQ9r8GKYqrTwjUPD8ILPZIo2LaLaSw"

func signedRequest(t *testing.T, wh *svix.Webhook, msgID, body string, ts time.Time) *http.Request {
	t.Helper()
	sig, err := wh.Sign(msgID, ts, []byte(body))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/clerk", strings.NewReader(body))
	req.Header.Set(HeaderSvixID, msgID)
	req.Header.Set(HeaderSvixTimestamp, strconv.FormatInt(ts.Unix(), 10))
	req.Header.Set(HeaderSvixSignature, sig)
	return req
}

func TestVerifyWebhook(t *testing.T) {
	wh, err := svix.NewWebhook(testSigningSecret)
	require.NoError(t, err)

	var gotBody, gotID string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		gotID = DeliveryIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	h := VerifyWebhook(wh, response.WriteError)(next)

	t.Run("valid signature passes body through", func(t *testing.T) {
		body := `{"type":"user.created","data":{"id":"usr_1"}}`
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, signedRequest(t, wh, "msg_1", body, time.Now()))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, body, gotBody)
		assert.Equal(t, "msg_1", gotID)
	})

	t.Run("tampered body", func(t *testing.T) {
		req := signedRequest(t, wh, "msg_2", `{"type":"user.created"}`, time.Now())
		req.Body = io.NopCloser(strings.NewReader(`{"type":"user.deleted"}`))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Contains(t, rr.Body.String(), `"code":"invalid_signature"`)
	})

	t.Run("stale timestamp", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, signedRequest(t, wh, "msg_3", `{}`, time.Now().Add(-time.Hour)))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("missing headers", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/webhooks/clerk", strings.NewReader(`{}`)))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("other secret", func(t *testing.T) {
		other, err := svix.NewWebhook("whsec_" + "c2VjcmV0LXNpZ25pbmcta2V5LW90aGVy")
		require.NoError(t, err)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, signedRequest(t, other, "msg_4", `{}`, time.Now()))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}
