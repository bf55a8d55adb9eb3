package report

import (
	"bytes"
	"context"
	"html/template"

	"github.com/stockroom-wms/stockroom/internal/receipt"
)

var receiptDocument = template.Must(template.New("receipt_pdf").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<style>
body { font-family: Helvetica, Arial, sans-serif; margin: 40px; color: #222; }
h1 { font-size: 20px; border-bottom: 2px solid #222; padding-bottom: 8px; }
table { width: 100%; border-collapse: collapse; margin-top: 16px; }
th, td { border: 1px solid #999; padding: 6px 10px; font-size: 12px; text-align: left; }
th { background: #eee; }
td.num, th.num { text-align: right; }
.total { margin-top: 12px; font-size: 14px; font-weight: bold; text-align: right; }
.meta { font-size: 12px; margin-top: 8px; }
</style>
</head>
<body>
<h1>Goods Receipt {{.Number}}</h1>
<p class="meta">Supplier: {{.SupplierName}}</p>
{{if .Notes}}<p class="meta">Notes: {{.Notes}}</p>{{end}}
<table>
<tr><th>Product</th><th class="num">Quantity</th><th class="num">Unit Price</th><th class="num">Subtotal</th></tr>
{{range .Lines}}
<tr><td>#{{.ProductID}}</td><td class="num">{{.Quantity}}</td><td class="num">{{.UnitPrice}}</td><td class="num">{{.Subtotal}}</td></tr>
{{end}}
</table>
<p class="total">Total: {{.TotalAmount}}</p>
</body>
</html>`))

// ReceiptRenderer produces the PDF attached to supplier confirmation mail.
// Implements the receipt engine's PdfRenderer port.
type ReceiptRenderer struct {
	client *Client
}

// NewReceiptRenderer constructs a ReceiptRenderer.
func NewReceiptRenderer(client *Client) *ReceiptRenderer {
	return &ReceiptRenderer{client: client}
}

// Render converts the receipt snapshot into PDF bytes via Gotenberg.
func (r *ReceiptRenderer) Render(ctx context.Context, snap receipt.Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	if err := receiptDocument.Execute(&buf, snap); err != nil {
		return nil, err
	}
	return r.client.RenderHTML(ctx, buf.String())
}
