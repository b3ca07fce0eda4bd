package llm

import (
	"context"

	"github.com/joseph-ayodele/provider-bills/constants"
)

// PatientInfo is box 2/3/5 of the claim form.
type PatientInfo struct {
	PatientName string `json:"patient_name,omitempty"`
	PatientDOB  string `json:"patient_dob,omitempty"`
	PatientZip  string `json:"patient_zip,omitempty"`
}

// BillingInfo is boxes 25/26/28/33 of the claim form.
type BillingInfo struct {
	BillingProviderName    string `json:"billing_provider_name,omitempty"`
	BillingProviderAddress string `json:"billing_provider_address,omitempty"`
	BillingProviderTIN     string `json:"billing_provider_tin,omitempty"`
	BillingProviderNPI     string `json:"billing_provider_npi,omitempty"`
	TotalCharge            string `json:"total_charge,omitempty"` // decimal, may carry $ and commas
	PatientAccountNo       string `json:"patient_account_no,omitempty"`
}

// ServiceLine is one row of box 24.
type ServiceLine struct {
	DateOfService    string   `json:"date_of_service,omitempty"`
	PlaceOfService   string   `json:"place_of_service,omitempty"`
	CPTCode          string   `json:"cpt_code,omitempty"`
	Modifiers        []string `json:"modifiers,omitempty"`
	DiagnosisPointer string   `json:"diagnosis_pointer,omitempty"`
	ChargeAmount     string   `json:"charge_amount,omitempty"`
	Units            *int     `json:"units,omitempty"`
}

// HCFAFields is the normalized shape we want from the extraction model.
type HCFAFields struct {
	PatientInfo  PatientInfo   `json:"patient_info"`
	BillingInfo  BillingInfo   `json:"billing_info"`
	ServiceLines []ServiceLine `json:"service_lines"`
}

// Request is one page to extract.
type Request struct {
	BillID      string
	Pass        constants.Pass
	Strategy    constants.Strategy
	Image       []byte // PNG of the prepared page
	ZoneImage   []byte // optional PNG crop of the service lines
	ZoneMap     string // optional zone description for the prompt
	PriorError  string // last_error of the failed first pass
	Temperature float32
}

// Result is a schema-valid extraction.
type Result struct {
	Fields     HCFAFields
	Raw        []byte
	Model      string
	Confidence []float64 // one per service line
	Warnings   []string
}

// Extractor is the interface our pipeline depends on.
type Extractor interface {
	Extract(ctx context.Context, req Request) (*Result, error)
}
