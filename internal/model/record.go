package model

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Record is a single procurement lot as extracted from the portal. Numeric
// fields keep the raw text; use Normalize before sending to the prediction
// service.
type Record struct {
	LotID        string `json:"lot_id" yaml:"lot_id"`
	Announcement string `json:"announcement" yaml:"announcement"`
	Customer     string `json:"customer" yaml:"customer"`
	Subject      string `json:"subject" yaml:"subject"`
	SubjectLink  string `json:"subject_link" yaml:"subject_link"`
	Quantity     string `json:"quantity" yaml:"quantity"`
	Amount       string `json:"amount" yaml:"amount"`
	PurchaseType string `json:"purchase_type" yaml:"purchase_type"`
	Status       string `json:"status" yaml:"status"`
}

// AnalysisRecord is the wire shape accepted by the prediction service:
// a Record with numeric quantity and amount.
type AnalysisRecord struct {
	LotID        string  `json:"lot_id" yaml:"lot_id"`
	Announcement string  `json:"announcement" yaml:"announcement"`
	Customer     string  `json:"customer" yaml:"customer"`
	Subject      string  `json:"subject" yaml:"subject"`
	SubjectLink  string  `json:"subject_link" yaml:"subject_link"`
	Quantity     float64 `json:"quantity" yaml:"quantity"`
	Amount       float64 `json:"amount" yaml:"amount"`
	PurchaseType string  `json:"purchase_type" yaml:"purchase_type"`
	Status       string  `json:"status" yaml:"status"`
}

// Normalize converts the raw quantity and amount into numbers.
func (r Record) Normalize() AnalysisRecord {
	return AnalysisRecord{
		LotID:        r.LotID,
		Announcement: r.Announcement,
		Customer:     r.Customer,
		Subject:      r.Subject,
		SubjectLink:  r.SubjectLink,
		Quantity:     NormalizeNumber(r.Quantity),
		Amount:       NormalizeNumber(r.Amount),
		PurchaseType: r.PurchaseType,
		Status:       r.Status,
	}
}

// NormalizeAll normalizes a batch of records, preserving order.
func NormalizeAll(recs []Record) []AnalysisRecord {
	out := make([]AnalysisRecord, len(recs))
	for i, r := range recs {
		out[i] = r.Normalize()
	}
	return out
}

var (
	nonNumericRe     = regexp.MustCompile(`[^\d.]`)
	leadingDecimalRe = regexp.MustCompile(`^\d*(?:\.\d*)?`)
)

// NormalizeNumber strips every character except digits and the decimal point
// and parses the longest leading decimal. Unparsable input yields 0. The
// result is never negative since the sign is stripped with everything else.
func NormalizeNumber(raw string) float64 {
	cleaned := nonNumericRe.ReplaceAllString(raw, "")
	lead := strings.TrimSuffix(leadingDecimalRe.FindString(cleaned), ".")
	if lead == "" || lead == "." {
		return 0
	}
	v, err := strconv.ParseFloat(lead, 64)
	if err != nil {
		return 0
	}
	return v
}

// FormatNumber renders a normalized number without exponent so that it
// survives another pass through NormalizeNumber unchanged.
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// SyntheticLotID returns the placeholder id used when a page carries no
// recoverable lot number.
func SyntheticLotID(now time.Time) string {
	return fmt.Sprintf("PARSED-%d", now.UnixMilli())
}

// Record converts a normalized record back to its raw text form.
func (a AnalysisRecord) Record() Record {
	return Record{
		LotID:        a.LotID,
		Announcement: a.Announcement,
		Customer:     a.Customer,
		Subject:      a.Subject,
		SubjectLink:  a.SubjectLink,
		Quantity:     FormatNumber(a.Quantity),
		Amount:       FormatNumber(a.Amount),
		PurchaseType: a.PurchaseType,
		Status:       a.Status,
	}
}
