package middleware

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"github.com/Dan9191/transaction-service/internal/apperror"
	"github.com/Dan9191/transaction-service/internal/auth"
	"github.com/Dan9191/transaction-service/internal/logging"
	"github.com/Dan9191/transaction-service/internal/response"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// AuthMiddleware verifies the HMAC headers of every request and stores the
// resulting principal in the request context
func AuthMiddleware(authenticator *auth.Authenticator, log logrus.FieldLogger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var body []byte
			if r.Body != nil {
				var err error
				body, err = io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
				if err != nil {
					var tooLarge *http.MaxBytesError
					if errors.As(err, &tooLarge) {
						response.Error(w, log, apperror.Wrap(apperror.KindValidation, err, "Request body exceeds %d bytes", MaxBodyBytes))
						return
					}
					response.Error(w, log, apperror.Wrap(apperror.KindMalformedJSON, err, "Reading rest payload failed"))
					return
				}
				r.Body = io.NopCloser(bytes.NewReader(body))
			}

			principal, err := authenticator.Authenticate(auth.Request{
				Method:    r.Method,
				Path:      r.URL.Path,
				Query:     r.URL.RawQuery,
				Body:      body,
				APIKey:    r.Header.Get(auth.HeaderAPIKey),
				Signature: r.Header.Get(auth.HeaderSignature),
				Timestamp: r.Header.Get(auth.HeaderTimestamp),
			})
			if err != nil {
				response.Error(w, log.WithField(logging.FieldAPIKey, r.Header.Get(auth.HeaderAPIKey)), err)
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), principal)))
		})
	}
}
