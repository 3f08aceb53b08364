package sheets

import (
	"context"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
)

// Header is the first row of the export sheet.
var Header = []string{"Date", "Type", "Description", "Category", "Amount", "Ref", "Recorded At"}

// Row is one exported transaction, already formatted for the sheet.
type Row struct {
	Date        string
	Type        string
	Description string
	Category    string
	Amount      string
	Ref         string
	RecordedAt  string
}

// RowWriter appends exported rows to a destination.
type RowWriter interface {
	AppendRow(ctx context.Context, r Row) (ref string, err error)
}

// RowFromEvent formats ev as a sheet row. Amounts use two fixed decimals so
// the sheet parses them as numbers under USER_ENTERED.
func RowFromEvent(ev *amqp.TransactionEvent) Row {
	return Row{
		Date:        ev.Date,
		Type:        ev.Type,
		Description: ev.Description,
		Category:    ev.Category,
		Amount:      core.Money{Cents: ev.AmountCents}.Fixed(),
		Ref:         ev.Ref,
		RecordedAt:  ev.RecordedAt.UTC().Format(time.RFC3339),
	}
}

// Values returns the row in column order.
func (r Row) Values() []any {
	return []any{r.Date, r.Type, r.Description, r.Category, r.Amount, r.Ref, r.RecordedAt}
}
