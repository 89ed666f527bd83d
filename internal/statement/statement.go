// Package statement renders account statements as XML documents.
package statement

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/Dan9191/transaction-service/internal/models"
	"github.com/beevik/etree"
)

// ContentType is the media type of a rendered statement
const ContentType = "application/xml"

// Build creates the statement document
func Build(account *models.Account, txns []models.Transaction, generatedAt time.Time) *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	root := doc.CreateElement("AccountStatement")
	root.CreateAttr("accountNumber", account.AccountNumber)
	root.CreateAttr("generatedAt", generatedAt.UTC().Format(time.RFC3339))
	root.CreateElement("Balance").SetText(account.Balance.StringFixed(2))

	list := root.CreateElement("Transactions")
	list.CreateAttr("count", strconv.Itoa(len(txns)))
	for _, txn := range txns {
		el := list.CreateElement("Transaction")
		el.CreateAttr("id", txn.ID.String())
		el.CreateElement("Type").SetText(string(txn.Type))
		el.CreateElement("Amount").SetText(txn.Amount.StringFixed(2))
		el.CreateElement("Timestamp").SetText(txn.Timestamp.UTC().Format(time.RFC3339Nano))
		el.CreateElement("Status").SetText(string(txn.Status))
	}

	doc.Indent(2)
	return doc
}

// Render writes the statement document to w
func Render(w io.Writer, account *models.Account, txns []models.Transaction, generatedAt time.Time) error {
	if _, err := Build(account, txns, generatedAt).WriteTo(w); err != nil {
		return fmt.Errorf("failed to write statement: %w", err)
	}
	return nil
}
