// Package invoice builds the body of the tax authority invoice approval
// call.
//
// The body is either the built-in sample invoice from Default, or an
// invoice read from a yaml file whose keys are the api field names, for
// example:
//
//	Invoice_ID: "INV-1001"
//	Invoice_Type: 305
//	Vat_Number: 777777715
//	Invoice_Date: 2024-05-01
//	Items:
//	  - Index: 1
//	    Description: consulting
//	    Quantity: 1
//	    Price_Per_Unit: 100
package invoice

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// VATRate is the vat percentage used for the sample invoice
const VATRate = 18.0

// Item is an invoice line
type Item struct {
	Index                  int     `json:"Index" yaml:"Index"`
	CatalogID              string  `json:"Catalog_ID" yaml:"Catalog_ID"`
	Category               int     `json:"Category" yaml:"Category"`
	Description            string  `json:"Description" yaml:"Description"`
	MeasureUnitDescription string  `json:"Measure_Unit_Description" yaml:"Measure_Unit_Description"`
	Quantity               float64 `json:"Quantity" yaml:"Quantity"`
	PricePerUnit           float64 `json:"Price_Per_Unit" yaml:"Price_Per_Unit"`
	Discount               float64 `json:"Discount" yaml:"Discount"`
	TotalAmount            float64 `json:"Total_Amount" yaml:"Total_Amount"`
	VATRate                float64 `json:"VAT_Rate" yaml:"VAT_Rate"`
	VATAmount              float64 `json:"VAT_Amount" yaml:"VAT_Amount"`
}

// Invoice is the approval request body
type Invoice struct {
	InvoiceID                 string  `json:"Invoice_ID" yaml:"Invoice_ID"`
	InvoiceType               int     `json:"Invoice_Type" yaml:"Invoice_Type"`
	VATNumber                 int     `json:"Vat_Number" yaml:"Vat_Number"`
	UnionVATNumber            int     `json:"Union_Vat_Number" yaml:"Union_Vat_Number"`
	InvoiceReferenceNumber    string  `json:"Invoice_Reference_Number" yaml:"Invoice_Reference_Number"`
	CustomerVATNumber         int     `json:"Customer_VAT_Number" yaml:"Customer_VAT_Number"`
	CustomerName              string  `json:"Customer_Name" yaml:"Customer_Name"`
	InvoiceDate               Date    `json:"Invoice_Date" yaml:"Invoice_Date"`
	InvoiceIssuanceDate       Date    `json:"Invoice_Issuance_Date" yaml:"Invoice_Issuance_Date"`
	BranchID                  string  `json:"Branch_ID" yaml:"Branch_ID"`
	AccountingSoftwareNumber  int     `json:"Accounting_Software_Number" yaml:"Accounting_Software_Number"`
	ClientSoftwareKey         string  `json:"Client_Software_Key" yaml:"Client_Software_Key"`
	AmountBeforeDiscount      float64 `json:"Amount_Before_Discount" yaml:"Amount_Before_Discount"`
	Discount                  float64 `json:"Discount" yaml:"Discount"`
	PaymentAmount             float64 `json:"Payment_Amount" yaml:"Payment_Amount"`
	VATAmount                 float64 `json:"VAT_Amount" yaml:"VAT_Amount"`
	PaymentAmountIncludingVAT float64 `json:"Payment_Amount_Including_VAT" yaml:"Payment_Amount_Including_VAT"`
	InvoiceNote               string  `json:"Invoice_Note" yaml:"Invoice_Note"`
	Action                    int     `json:"Action" yaml:"Action"`
	AdditionalInformation     string  `json:"Additional_Information" yaml:"Additional_Information"`
	Items                     []Item  `json:"Items" yaml:"Items"`
}

// Default returns the fixed sample invoice sent when no invoice file is
// configured
func Default() *Invoice {
	date := NewDate(2024, time.May, 1)
	item := Item{
		Index:                  1,
		CatalogID:              "SRV-001",
		Category:               1,
		Description:            "Consulting services",
		MeasureUnitDescription: "unit",
		Quantity:               1,
		PricePerUnit:           100,
		TotalAmount:            100,
		VATRate:                VATRate,
		VATAmount:              18,
	}
	return &Invoice{
		InvoiceID:                 "1001",
		InvoiceType:               305,
		VATNumber:                 777777715,
		InvoiceReferenceNumber:    "1001",
		CustomerVATNumber:         18,
		CustomerName:              "Sample Customer Ltd",
		InvoiceDate:               date,
		InvoiceIssuanceDate:       date,
		BranchID:                  "1",
		AccountingSoftwareNumber:  123456,
		ClientSoftwareKey:         "sandbox",
		AmountBeforeDiscount:      100,
		PaymentAmount:             100,
		VATAmount:                 18,
		PaymentAmountIncludingVAT: 118,
		InvoiceNote:               "sample invoice",
		Action:                    0,
		Items:                     []Item{item},
	}
}

// Validate checks that the invoice is usable as an approval body
func (i *Invoice) Validate() error {
	if i.InvoiceID == "" {
		return errors.New("invoice id cannot be empty")
	}
	if i.VATNumber == 0 {
		return errors.New("vat number cannot be empty")
	}
	if len(i.Items) < 1 {
		return errors.New("invoice has no items")
	}
	return nil
}

// Load reads an invoice from a yaml file
func Load(path string) (*Invoice, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read invoice file: %w", err)
	}
	var inv Invoice
	if err := yaml.Unmarshal(data, &inv); err != nil {
		return nil, fmt.Errorf("failed to parse invoice file: %w", err)
	}
	if err := inv.Validate(); err != nil {
		return nil, fmt.Errorf("invalid invoice %s: %w", path, err)
	}
	return &inv, nil
}

// Builder provides the approval body. With an empty Path the sample
// invoice is used; otherwise the file is read on every build so edits
// are picked up without a restart.
type Builder struct {
	Path string
}

// Build returns the invoice for the approval call
func (b Builder) Build() (any, error) {
	if b.Path == "" {
		return Default(), nil
	}
	return Load(b.Path)
}
