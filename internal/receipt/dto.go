package receipt

import "github.com/shopspring/decimal"

// CreateRequest carries the payload to create a goods receipt.
type CreateRequest struct {
	SupplierID int64         `json:"supplier_id" validate:"required,gt=0"`
	Notes      *string       `json:"notes,omitempty" validate:"omitempty,max=1000"`
	Draft      bool          `json:"draft,omitempty"`
	Lines      []LineRequest `json:"lines" validate:"required,min=1,dive"`
}

// LineRequest is one requested line. Subtotal is derived server-side.
type LineRequest struct {
	ProductID int64           `json:"product_id" validate:"required,gt=0"`
	Quantity  int64           `json:"quantity" validate:"required,gt=0"`
	UnitPrice decimal.Decimal `json:"unit_price" validate:"required"`
}

// ReplaceLinesRequest replaces the line details wholesale.
type ReplaceLinesRequest struct {
	Lines []LineRequest `json:"lines" validate:"required,min=1,dive"`
}

// DecisionRequest carries approval or rejection notes.
type DecisionRequest struct {
	Notes *string `json:"notes,omitempty" validate:"omitempty,max=1000"`
}

// ConfirmRequest is the unauthenticated supplier confirmation payload.
type ConfirmRequest struct {
	Token     string `json:"token" validate:"required"`
	Confirmed *bool  `json:"confirmed" validate:"required"`
}

// ListRequest filters and pages the receipt list.
type ListRequest struct {
	Status *Status
	Search *string
	Limit  int
	Offset int
}
