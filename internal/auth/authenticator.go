// Package auth verifies client identity and request integrity.
//
// A client signs every request with HMAC-SHA256 over the canonical string
//
//	METHOD:PATH:QUERY:TIMESTAMP:BODY
//
// using its secret key, and sends the base64 digest in X-HMAC-SIGNATURE
// together with X-API-KEY and X-TIMESTAMP (epoch milliseconds). QUERY is the
// raw query string without the leading '?', or empty. The API key is not part
// of the signed string.
package auth

import (
	"crypto/hmac"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Dan9191/transaction-service/internal/apperror"
	"github.com/Dan9191/transaction-service/internal/models"
	"github.com/Dan9191/transaction-service/internal/utils"
)

// Header names
const (
	HeaderAPIKey    = "X-API-KEY"
	HeaderSignature = "X-HMAC-SIGNATURE"
	HeaderTimestamp = "X-TIMESTAMP"
)

// DefaultMaxSkew is the accepted distance between client and server clocks
const DefaultMaxSkew = 30 * time.Minute

const delimiter = ":"

// Request is the part of an HTTP request covered by authentication
type Request struct {
	Method    string
	Path      string
	Query     string
	Body      []byte
	APIKey    string
	Signature string
	Timestamp string
}

// Principal is an authenticated client
type Principal struct {
	APIKey string
	Name   string
	Roles  []string
}

// HasRole reports whether the principal carries role
func (p *Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// ClientLookup resolves clients by API key
type ClientLookup interface {
	Lookup(apiKey string) (models.Client, bool)
}

// Authenticator validates signed requests against a client registry
type Authenticator struct {
	clients ClientLookup
	maxSkew time.Duration
	now     func() time.Time
}

// NewAuthenticator creates an authenticator. A zero maxSkew selects DefaultMaxSkew.
func NewAuthenticator(clients ClientLookup, maxSkew time.Duration) *Authenticator {
	if maxSkew <= 0 {
		maxSkew = DefaultMaxSkew
	}
	return &Authenticator{clients: clients, maxSkew: maxSkew, now: time.Now}
}

// WithClock replaces the time source
func (a *Authenticator) WithClock(now func() time.Time) *Authenticator {
	a.now = now
	return a
}

// Authenticate checks headers, timestamp and signature in that order and
// returns the principal on success. Every failure is an *apperror.Error with
// an auth kind.
func (a *Authenticator) Authenticate(req Request) (p *Principal, err error) {
	defer func() {
		if r := recover(); r != nil {
			p = nil
			err = apperror.Wrap(apperror.KindAuthInternal, fmt.Errorf("panic: %v", r), "Internal unexpected authentication error")
		}
	}()

	if strings.TrimSpace(req.APIKey) == "" {
		return nil, apperror.New(apperror.KindAuthMissingHeader, "%s is missing or empty!", HeaderAPIKey)
	}
	if strings.TrimSpace(req.Signature) == "" {
		return nil, apperror.New(apperror.KindAuthMissingHeader, "%s is missing or empty!", HeaderSignature)
	}
	if err := a.validateTimestamp(req.Timestamp); err != nil {
		return nil, err
	}

	client, ok := a.clients.Lookup(req.APIKey)
	if !ok {
		return nil, apperror.New(apperror.KindAuthGeneric, "Invalid API key")
	}

	expected := Sign(client.SecretKey, req.Method, req.Path, req.Query, req.Timestamp, req.Body)
	if !hmac.Equal([]byte(req.Signature), []byte(expected)) {
		return nil, apperror.New(apperror.KindAuthSignatureInvalid, "Invalid HMAC signature")
	}

	roles := make([]string, len(client.Roles))
	copy(roles, client.Roles)
	return &Principal{APIKey: client.APIKey, Name: client.Name, Roles: roles}, nil
}

func (a *Authenticator) validateTimestamp(raw string) error {
	ts, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return apperror.New(apperror.KindAuthInvalidTimestamp, "Invalid timestamp format")
	}
	if ts <= 0 {
		return apperror.New(apperror.KindAuthInvalidTimestamp, "Timestamp cannot be 0 or negative.")
	}
	now := a.now().UnixMilli()
	if ts > now {
		return apperror.New(apperror.KindAuthTimestampExpired, "Timestamp cannot be in the future")
	}
	if now-ts > a.maxSkew.Milliseconds() {
		return apperror.New(apperror.KindAuthTimestampExpired, "Timestamp expired")
	}
	return nil
}

// CanonicalString builds the string that is signed for a request
func CanonicalString(method, path, query, timestamp string, body []byte) string {
	var b strings.Builder
	b.Grow(len(method) + len(path) + len(query) + len(timestamp) + len(body) + 4)
	b.WriteString(strings.ToUpper(method))
	b.WriteString(delimiter)
	b.WriteString(path)
	b.WriteString(delimiter)
	b.WriteString(query)
	b.WriteString(delimiter)
	b.WriteString(timestamp)
	b.WriteString(delimiter)
	b.Write(body)
	return b.String()
}

// Sign returns the base64 HMAC-SHA256 signature of a request. Clients use the
// same function to produce X-HMAC-SIGNATURE.
func Sign(secret, method, path, query, timestamp string, body []byte) string {
	return utils.ComputeHMAC([]byte(CanonicalString(method, path, query, timestamp, body)), secret)
}
