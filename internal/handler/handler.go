package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Dan9191/transaction-service/internal/apperror"
	"github.com/Dan9191/transaction-service/internal/models"
	"github.com/Dan9191/transaction-service/internal/response"
	"github.com/Dan9191/transaction-service/internal/service"
	"github.com/Dan9191/transaction-service/internal/statement"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	schemaMessage   = "Schema validation failures on http rest payload. Check logs for more details."
	readBodyMessage = "Reading rest payload failed. Check logs for more details."
	healthTimeout   = 2 * time.Second
)

// Handler serves the transaction API
type Handler struct {
	svc       *service.TransactionService
	maxAmount decimal.Decimal
	log       logrus.FieldLogger
}

// NewHandler creates the API handlers. Amounts above maxAmount are rejected
// before they reach the service.
func NewHandler(svc *service.TransactionService, maxAmount decimal.Decimal, log logrus.FieldLogger) *Handler {
	return &Handler{svc: svc, maxAmount: maxAmount, log: log}
}

type transactionRequest struct {
	AccountNumber   string           `json:"accountNumber"`
	TransactionType string           `json:"transactionType"`
	Amount          *decimal.Decimal `json:"amount"`
}

type transactionResponse struct {
	TransactionID   string      `json:"transactionId"`
	AccountNumber   string      `json:"accountNumber"`
	TransactionType string      `json:"transactionType"`
	Amount          json.Number `json:"amount"`
	Timestamp       time.Time   `json:"timestamp"`
	Status          string      `json:"status"`
}

type accountTransactionsResponse struct {
	AccountNumber string                `json:"accountNumber"`
	Balance       json.Number           `json:"balance"`
	Transactions  []transactionResponse `json:"transactions"`
}

func toResponse(txn *models.Transaction) transactionResponse {
	return transactionResponse{
		TransactionID:   txn.ID.String(),
		AccountNumber:   txn.AccountNumber,
		TransactionType: string(txn.Type),
		Amount:          json.Number(txn.Amount.String()),
		Timestamp:       txn.Timestamp,
		Status:          string(txn.Status),
	}
}

// CreateTransaction handles POST /api/transactions
func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	contentType := r.Header.Get("Content-Type")
	if mediaType, _, err := mime.ParseMediaType(contentType); err != nil || mediaType != "application/json" {
		response.Error(w, h.log, apperror.New(apperror.KindUnsupportedMediaType,
			"Content type (%s) not supported on request.", contentType))
		return
	}

	var req transactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, h.log, apperror.Wrap(apperror.KindMalformedJSON, err, readBodyMessage))
		return
	}
	typ, err := h.validate(req)
	if err != nil {
		response.Error(w, h.log, err)
		return
	}

	res, err := h.svc.CreateTransaction(r.Context(), req.AccountNumber, *req.Amount, typ)
	if err != nil {
		response.Error(w, h.log, err)
		return
	}
	response.JSON(w, http.StatusCreated, toResponse(res.Transaction))
}

func (h *Handler) validate(req transactionRequest) (models.TransactionType, error) {
	var problems []string
	if strings.TrimSpace(req.AccountNumber) == "" {
		problems = append(problems, "accountNumber is required")
	}
	typ := models.TransactionType(req.TransactionType)
	if req.TransactionType == "" {
		problems = append(problems, "transactionType is required")
	} else if !typ.Valid() {
		return "", apperror.Wrap(apperror.KindMalformedJSON,
			fmt.Errorf("unknown transactionType %q", req.TransactionType), readBodyMessage)
	}
	switch {
	case req.Amount == nil:
		problems = append(problems, "amount is required")
	case !req.Amount.IsPositive():
		problems = append(problems, "amount must be greater than 0")
	case !models.ValidScale(*req.Amount):
		problems = append(problems, fmt.Sprintf("amount must have at most %d decimal places", models.AmountScale))
	case req.Amount.GreaterThan(h.maxAmount):
		problems = append(problems, fmt.Sprintf("amount must not exceed %s", h.maxAmount))
	}
	if len(problems) > 0 {
		return "", apperror.Wrap(apperror.KindValidation, errors.New(strings.Join(problems, "; ")), schemaMessage)
	}
	return typ, nil
}

// GetTransaction handles GET /api/transactions/{transactionId}
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)["transactionId"]
	id, err := uuid.Parse(raw)
	if err != nil {
		response.Error(w, h.log, apperror.Wrap(apperror.KindValidation, err, "Invalid transactionId"))
		return
	}
	txn, err := h.svc.GetTransaction(r.Context(), id)
	if err != nil {
		response.Error(w, h.log, err)
		return
	}
	response.JSON(w, http.StatusOK, toResponse(txn))
}

// AccountTransactions handles GET /api/accounts/{accountNumber}/transactions.
// Accept: application/xml selects the XML statement.
func (h *Handler) AccountTransactions(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			response.Error(w, h.log, apperror.New(apperror.KindValidation, "limit must be a positive integer"))
			return
		}
		limit = n
	}

	st, err := h.svc.AccountStatement(r.Context(), mux.Vars(r)["accountNumber"], limit)
	if err != nil {
		response.Error(w, h.log, err)
		return
	}

	if strings.Contains(r.Header.Get("Accept"), statement.ContentType) {
		w.Header().Set("Content-Type", statement.ContentType)
		w.WriteHeader(http.StatusOK)
		if err := statement.Render(w, st.Account, st.Transactions, st.GeneratedAt); err != nil {
			h.log.WithError(err).Error("Failed to write statement")
		}
		return
	}

	out := accountTransactionsResponse{
		AccountNumber: st.Account.AccountNumber,
		Balance:       json.Number(st.Account.Balance.String()),
		Transactions:  make([]transactionResponse, 0, len(st.Transactions)),
	}
	for i := range st.Transactions {
		out.Transactions = append(out.Transactions, toResponse(&st.Transactions[i]))
	}
	response.JSON(w, http.StatusOK, out)
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()
	if err := h.svc.Ping(ctx); err != nil {
		h.log.WithError(err).Error("Health check failed")
		response.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "DOWN"})
		return
	}
	response.JSON(w, http.StatusOK, map[string]string{"status": "UP"})
}
