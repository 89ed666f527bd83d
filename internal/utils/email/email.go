package email

import (
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/Dan9191/transaction-service/internal/config"
	"github.com/Dan9191/transaction-service/internal/logging"
	"github.com/Dan9191/transaction-service/internal/models"
	"github.com/jordan-wright/email"
	"github.com/sirupsen/logrus"
)

// Sender handles sending emails via SMTP
type Sender struct {
	cfg    config.ReconcileConfig
	logger logrus.FieldLogger
	send   func(e *email.Email, addr string, a smtp.Auth) error
}

// NewSender creates a new email sender
func NewSender(cfg config.ReconcileConfig, logger logrus.FieldLogger) *Sender {
	return &Sender{
		cfg:    cfg,
		logger: logger,
		send:   (*email.Email).Send,
	}
}

// BuildFailedTransactionsReport formats the report of transactions left in
// FAILED status between since and until. Account numbers are masked.
func BuildFailedTransactionsReport(from string, to []string, txns []models.Transaction, since, until time.Time) *email.Email {
	e := email.NewEmail()
	e.From = from
	e.To = to
	e.Subject = fmt.Sprintf("Failed Transactions Report: %d transaction(s)", len(txns))

	var body strings.Builder
	body.WriteString("Hello,\n\n")
	fmt.Fprintf(&body,
		"The following transactions were recorded but their account update did not commit\n"+
			"between %s and %s (UTC). Balances were not changed.\n\n",
		since.UTC().Format("2006-01-02 15:04:05"), until.UTC().Format("2006-01-02 15:04:05"))
	for _, txn := range txns {
		fmt.Fprintf(&body, "- %s  %s  %-10s %s  account %s\n",
			txn.Timestamp.UTC().Format("2006-01-02 15:04:05"),
			txn.ID,
			txn.Type,
			txn.Amount.StringFixed(2),
			logging.Mask(txn.AccountNumber))
	}
	body.WriteString("\nBest regards,\nTransaction Service")
	e.Text = []byte(body.String())
	return e
}

// SendFailedTransactionsReport mails the report to the configured recipients
func (s *Sender) SendFailedTransactionsReport(txns []models.Transaction, since, until time.Time) error {
	e := BuildFailedTransactionsReport(s.cfg.SenderEmail, s.cfg.Recipients, txns, since, until)

	// Send email
	addr := fmt.Sprintf("%s:%s", s.cfg.SMTPHost, s.cfg.SMTPPort)
	auth := smtp.PlainAuth("", s.cfg.SMTPUsername, s.cfg.SMTPPassword, s.cfg.SMTPHost)
	if err := s.send(e, addr, auth); err != nil {
		s.logger.Errorf("Failed to send failed transactions report to %s: %v", strings.Join(s.cfg.Recipients, ","), err)
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Infof("Email sent to %s: %s", strings.Join(s.cfg.Recipients, ","), e.Subject)
	return nil
}
