// Package logging builds the service logger. All output is routed through
// MaskingFormatter so account numbers, transaction ids, API keys and
// signatures never reach the logs in clear text.
package logging

import (
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	maskChar     = "*"
	visibleFront = 4
	visibleBack  = 4
	minLength    = 3
)

// Field names whose values are always masked
const (
	FieldAccountNumber = "account_number"
	FieldTransactionID = "transaction_id"
	FieldAPIKey        = "api_key"
	FieldSignature     = "signature"
)

var sensitiveFields = map[string]bool{
	FieldAccountNumber: true,
	FieldTransactionID: true,
	FieldAPIKey:        true,
	FieldSignature:     true,
}

// Patterns with three groups keep the closing quote, two-group patterns end at the value.
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)("accountNumber"\s*:\s*")([^"]*)(")`),
	regexp.MustCompile(`(?i)("transactionId"\s*:\s*")([^"]*)(")`),
	regexp.MustCompile(`(?i)(X-API-Key:?\s*)([^,|\n\s]*)`),
	regexp.MustCompile(`(?i)(X-HMAC-Signature:?\s*)([^,|\n\s]*)`),
	regexp.MustCompile(`(accountNumber=)([A-Za-z0-9-]+)`),
	regexp.MustCompile(`(transactionId=)([A-Za-z0-9-]+)`),
	regexp.MustCompile(`(/accounts/)([^/?#\s"]+)`),
	regexp.MustCompile(`(/transactions/)([^/?#\s"]+)`),
}

// New creates a JSON logrus logger at the given level. Unknown levels fall back to info.
func New(level string, out io.Writer) *logrus.Logger {
	if out == nil {
		out = os.Stdout
	}
	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetFormatter(&MaskingFormatter{Inner: &logrus.JSONFormatter{}})
	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)
	return logger
}

// MaskingFormatter masks sensitive values before delegating to Inner.
type MaskingFormatter struct {
	Inner logrus.Formatter
}

// Format implements logrus.Formatter
func (f *MaskingFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	masked := entry.Dup()
	masked.Level = entry.Level
	masked.Caller = entry.Caller
	masked.Message = MaskSensitive(entry.Message)
	for k, v := range entry.Data {
		switch val := v.(type) {
		case string:
			if sensitiveFields[k] {
				masked.Data[k] = Mask(val)
			} else {
				masked.Data[k] = MaskSensitive(val)
			}
		case error:
			if k == logrus.ErrorKey {
				masked.Data[k] = MaskSensitive(val.Error())
			}
		case interface{ String() string }:
			if sensitiveFields[k] {
				masked.Data[k] = Mask(val.String())
			}
		}
	}
	return f.Inner.Format(masked)
}

// MaskSensitive masks every sensitive value found in free text.
func MaskSensitive(message string) string {
	if message == "" {
		return message
	}
	for _, p := range sensitivePatterns {
		message = maskPattern(message, p)
	}
	return message
}

func maskPattern(message string, p *regexp.Regexp) string {
	return p.ReplaceAllStringFunc(message, func(match string) string {
		groups := p.FindStringSubmatch(match)
		replacement := groups[1] + Mask(groups[2])
		if len(groups) == 4 {
			replacement += groups[3]
		}
		return replacement
	})
}

// Mask keeps a short prefix and suffix of value and replaces the rest.
func Mask(value string) string {
	n := len(value)
	switch {
	case strings.TrimSpace(value) == "":
		return value
	case n < minLength:
		return strings.Repeat(maskChar, n)
	case n <= visibleFront+visibleBack:
		show := n / 2
		return value[:show] + strings.Repeat(maskChar, n-show)
	default:
		return value[:visibleFront] + strings.Repeat(maskChar, n-visibleFront-visibleBack) + value[n-visibleBack:]
	}
}
