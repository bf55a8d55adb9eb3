package issue

import "github.com/shopspring/decimal"

// CreateRequest carries the payload to create a goods issue.
type CreateRequest struct {
	CustomerID      *int64          `json:"customer_id,omitempty" validate:"omitempty,gt=0"`
	DeliveryAddress *string         `json:"delivery_address,omitempty" validate:"omitempty,max=500"`
	Notes           *string         `json:"notes,omitempty" validate:"omitempty,max=1000"`
	Draft           bool            `json:"draft,omitempty"`
	Lines           []LineRequest   `json:"lines" validate:"required,min=1,dive"`
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

// DeliverRequest carries delivery details.
type DeliverRequest struct {
	DeliveryAddress *string `json:"delivery_address,omitempty" validate:"omitempty,max=500"`
	Notes           *string `json:"notes,omitempty" validate:"omitempty,max=1000"`
}

// CancelRequest carries the cancellation reason.
type CancelRequest struct {
	Reason *string `json:"reason,omitempty" validate:"omitempty,max=1000"`
}

// ListRequest filters and pages the issue list.
type ListRequest struct {
	Status *Status
	Search *string
	Limit  int
	Offset int
}
