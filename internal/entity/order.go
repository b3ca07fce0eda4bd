package entity

import "github.com/shopspring/decimal"

// Order is a pre-existing claim record a bill is mapped onto.
type Order struct {
	OrderID           string          `json:"order_id"`
	PatientFirstName  string          `json:"patient_first_name"`
	PatientLastName   string          `json:"patient_last_name"`
	PatientName       string          `json:"patient_name"`
	JurisdictionState string          `json:"jurisdiction_state"`
	ProviderID        string          `json:"provider_id"`
	FullyPaid         string          `json:"fully_paid"`
	BillsPaid         int             `json:"bills_paid"`
	BillsRec          int             `json:"bills_rec"`
	Lines             []OrderLineItem `json:"lines,omitempty"`
}

// IsFullyPaid reports the fully_paid flag.
func (o *Order) IsFullyPaid() bool {
	return o.FullyPaid == "Y"
}

// OrderLineItem is one service line of an order.
type OrderLineItem struct {
	ID       int64               `json:"id"`
	OrderID  string              `json:"order_id"`
	DOS      string              `json:"dos"`
	CPT      string              `json:"cpt"`
	Modifier string              `json:"modifier"`
	Units    int                 `json:"units"`
	Charge   decimal.NullDecimal `json:"charge"`
}
