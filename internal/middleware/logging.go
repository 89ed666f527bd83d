// Package middleware holds the HTTP adapters wrapped around the API routes.
package middleware

import (
	"bytes"
	"io"
	"net/http"
	"strings"

	"github.com/Dan9191/transaction-service/internal/auth"
	"github.com/Dan9191/transaction-service/internal/logging"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// MaxBodyBytes caps request bodies
const MaxBodyBytes = 1 << 20

// HeaderTraceID carries the generated trace id back to the caller
const HeaderTraceID = "X-Trace-Id"

const noBody = "No body"

// LoggingMiddleware logs every request and its response under one trace id
func LoggingMiddleware(log logrus.FieldLogger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			traceID := uuid.NewString()
			entry := log.WithField("trace_id", traceID)

			body := peekBody(r)
			entry.WithFields(logrus.Fields{
				"method":               r.Method,
				"uri":                  r.URL.RequestURI(),
				logging.FieldAPIKey:    r.Header.Get(auth.HeaderAPIKey),
				logging.FieldSignature: r.Header.Get(auth.HeaderSignature),
				"timestamp_header":     r.Header.Get(auth.HeaderTimestamp),
				"content_type":         r.Header.Get("Content-Type"),
				"request_body":         flatten(body),
			}).Info("Transaction Server Request Log")

			rec := &recorder{ResponseWriter: w, status: http.StatusOK}
			rec.Header().Set(HeaderTraceID, traceID)
			next.ServeHTTP(rec, r)

			entry.WithFields(logrus.Fields{
				"status":        rec.status,
				"content_type":  rec.Header().Get("Content-Type"),
				"response_body": flatten(rec.body.Bytes()),
			}).Info("Transaction Server Response Log")
		})
	}
}

// peekBody reads up to MaxBodyBytes of the body and puts everything back
func peekBody(r *http.Request) []byte {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	buf, _ := io.ReadAll(io.LimitReader(r.Body, MaxBodyBytes))
	r.Body = readCloser{io.MultiReader(bytes.NewReader(buf), r.Body), r.Body}
	return buf
}

type readCloser struct {
	io.Reader
	io.Closer
}

func flatten(body []byte) string {
	s := strings.TrimSpace(strings.NewReplacer("\n", " ", "\r", " ").Replace(string(body)))
	if s == "" {
		return noBody
	}
	return s
}

// recorder keeps the status and a copy of the body written by the handler
type recorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (r *recorder) WriteHeader(status int) {
	if !r.wroteHeader {
		r.status = status
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *recorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	if r.body.Len() < MaxBodyBytes {
		r.body.Write(b)
	}
	return r.ResponseWriter.Write(b)
}
