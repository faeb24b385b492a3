package middleware

import (
	"bytes"
	"context"
	"io"
	"net/http"

	svix "github.com/svix/svix-webhooks/go"

	"github.com/baechuer/medimg-identity/internal/domain"
	"github.com/baechuer/medimg-identity/internal/logger"
)

const (
	HeaderSvixID        = "svix-id"
	HeaderSvixTimestamp = "svix-timestamp"
	HeaderSvixSignature = "svix-signature"

	maxWebhookBody = 1 << 20
)

type ctxDeliveryKey struct{}

// DeliveryIDFromContext returns the verified svix-id of the current delivery.
func DeliveryIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ctxDeliveryKey{}).(string)
	return v
}

// VerifyWebhook checks the Svix signature headers against the signing
// secret. The body is buffered so the handler can read it again.
func VerifyWebhook(wh *svix.Webhook, writeErr WriteErrFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get(HeaderSvixID) == "" || r.Header.Get(HeaderSvixTimestamp) == "" || r.Header.Get(HeaderSvixSignature) == "" {
				writeErr(w, r, domain.ErrSignatureInvalid(nil))
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
			if err != nil {
				writeErr(w, r, domain.ErrInvalidJSON(err))
				return
			}
			_ = r.Body.Close()

			if err := wh.Verify(body, r.Header); err != nil {
				logger.WithCtx(r.Context()).Warn().Err(err).
					Str("delivery_id", r.Header.Get(HeaderSvixID)).
					Msg("webhook signature rejected")
				writeErr(w, r, domain.ErrSignatureInvalid(err))
				return
			}

			r.Body = io.NopCloser(bytes.NewReader(body))
			ctx := context.WithValue(r.Context(), ctxDeliveryKey{}, r.Header.Get(HeaderSvixID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
