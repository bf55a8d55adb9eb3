package receipt

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/shopspring/decimal"
)

// Snapshot is the render-ready view of a receipt handed to the PDF renderer
// and the confirmation e-mail. It is decoupled from the aggregate so the
// renderer never sees the confirmation token or internal ids it has no
// business with.
type Snapshot struct {
	Number       string
	SupplierName string
	Notes        string
	TotalAmount  decimal.Decimal
	Lines        []SnapshotLine
}

// SnapshotLine is one rendered line.
type SnapshotLine struct {
	ProductID int64
	Quantity  int64
	UnitPrice decimal.Decimal
	Subtotal  decimal.Decimal
}

// SnapshotOf projects the aggregate into its render-ready view.
func SnapshotOf(doc *GoodsReceipt, supplierName string) Snapshot {
	snap := Snapshot{
		Number:       doc.Number,
		SupplierName: supplierName,
		TotalAmount:  doc.TotalAmount,
	}
	if doc.Notes != nil {
		snap.Notes = *doc.Notes
	}
	for _, l := range doc.Lines {
		snap.Lines = append(snap.Lines, SnapshotLine{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			Subtotal:  l.Subtotal(),
		})
	}
	return snap
}

var confirmationBody = template.Must(template.New("confirmation").Parse(`<html>
<body>
<p>Dear {{.SupplierName}},</p>
<p>Goods receipt <strong>{{.Number}}</strong> is awaiting your confirmation.
The full document is attached as PDF.</p>
<p>
<a href="{{.ConfirmURL}}">Confirm the delivery</a> &middot;
<a href="{{.DeclineURL}}">Decline the delivery</a>
</p>
<p>The link is valid for a single use.</p>
</body>
</html>`))

// ConfirmationEmail builds the subject and HTML body of the supplier
// confirmation e-mail. The token is embedded in the confirm/decline URLs.
func ConfirmationEmail(snap Snapshot, baseURL, token string) (subject, htmlBody string, err error) {
	data := struct {
		Snapshot
		ConfirmURL string
		DeclineURL string
	}{
		Snapshot:   snap,
		ConfirmURL: fmt.Sprintf("%s/receipts/confirm?token=%s&confirmed=true", baseURL, token),
		DeclineURL: fmt.Sprintf("%s/receipts/confirm?token=%s&confirmed=false", baseURL, token),
	}
	var buf bytes.Buffer
	if err := confirmationBody.Execute(&buf, data); err != nil {
		return "", "", err
	}
	return fmt.Sprintf("Please confirm goods receipt %s", snap.Number), buf.String(), nil
}
