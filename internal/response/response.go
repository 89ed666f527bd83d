// Package response writes JSON bodies for handlers and middleware.
package response

import (
	"encoding/json"
	"net/http"

	"github.com/Dan9191/transaction-service/internal/apperror"
	"github.com/sirupsen/logrus"
)

// ErrorBody is the body of every error response
type ErrorBody struct {
	HTTPErrorCode string `json:"httpErrorCode"`
	ErrorCode     string `json:"errorCode"`
	ErrorMessage  string `json:"errorMessage"`
}

// JSON writes v with the given status
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// Error logs err with its cause and writes the public error body
func Error(w http.ResponseWriter, log logrus.FieldLogger, err error) {
	kind := apperror.KindOf(err)
	status := kind.HTTPStatus()

	entry := log.WithError(err).WithField("error_code", kind.Code())
	if status >= http.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.Warn("Request rejected")
	}

	JSON(w, status, ErrorBody{
		HTTPErrorCode: apperror.HTTPErrorCode(status),
		ErrorCode:     kind.Code(),
		ErrorMessage:  apperror.PublicMessage(err),
	})
}
