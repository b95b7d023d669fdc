// Package analyzer produces advisory signals about uploaded receipts: a
// consistency score over OCR text and a field-by-field comparison against the
// values declared on the ticket. Nothing here approves or rejects a ticket;
// the output is shown to a reviewer next to the receipt.
package analyzer

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	amountRe = regexp.MustCompile(`(?i)(\d{1,3}(?:[.,\s]?\d{3})*(?:[.,]\d{2})?)\s*(?:TRY|TL)`)
	ibanRe   = regexp.MustCompile(`(?i)TR[0-9A-Z]{24}`)
	dateRe   = regexp.MustCompile(`\d{1,2}[./-]\d{1,2}[./-]\d{4}`)
	nameRe   = regexp.MustCompile(`[A-ZĞÜŞİÖÇ][a-zğüşıöç]+(?:\s+[A-ZĞÜŞİÖÇ][a-zğüşıöç]+)+`)
)

const tokenWeight = 25

// Report is the consistency assessment of one receipt text
type Report struct {
	HasAmount            bool   `json:"hasAmount"`
	HasIban              bool   `json:"hasIban"`
	HasDate              bool   `json:"hasDate"`
	HasName              bool   `json:"hasName"`
	TextLength           int    `json:"textLength"`
	ConsistencyScore     int    `json:"consistencyScore"`
	FraudRisk            int    `json:"fraudRisk"`
	RiskLevel            string `json:"riskLevel"`
	ManipulationDetected bool   `json:"manipulationDetected"`
	ManipulationDetails  string `json:"manipulationDetails"`
	DocumentConsistency  string `json:"documentConsistency"`
	ConsistencyDetails   string `json:"consistencyDetails"`
	TextQuality          string `json:"textQuality"`
	IsGenuine            bool   `json:"isGenuine"`
	ConfidenceLevel      string `json:"confidenceLevel"`
	Recommendation       string `json:"recommendation"`
	Advisory             bool   `json:"advisory"`
}

// Score checks text for an amount with currency, an IBAN, a date and a
// person name. Each present token adds 25 points to the consistency score;
// the fraud risk is its complement.
func Score(text string) Report {
	trimmed := strings.TrimSpace(text)
	r := Report{
		HasAmount:  amountRe.MatchString(text),
		HasIban:    ibanRe.MatchString(text),
		HasDate:    dateRe.MatchString(text),
		HasName:    nameRe.MatchString(text),
		TextLength: utf8.RuneCountInString(trimmed),
		Advisory:   true,
	}
	for _, present := range []bool{r.HasAmount, r.HasIban, r.HasDate, r.HasName} {
		if present {
			r.ConsistencyScore += tokenWeight
		}
	}
	r.FraudRisk = 100 - r.ConsistencyScore

	switch {
	case r.FraudRisk >= 70:
		r.RiskLevel = "high"
	case r.FraudRisk >= 40:
		r.RiskLevel = "medium"
	default:
		r.RiskLevel = "low"
	}

	r.ManipulationDetected = r.TextLength < 30 || !r.HasAmount || !r.HasIban
	if r.ManipulationDetected {
		r.ManipulationDetails = "Not enough information found on the receipt or required fields are missing."
	} else {
		r.ManipulationDetails = "Basic information appears to be present."
	}

	switch {
	case r.ConsistencyScore >= 75:
		r.DocumentConsistency = "good"
	case r.ConsistencyScore >= 50:
		r.DocumentConsistency = "fair"
	default:
		r.DocumentConsistency = "poor"
	}
	r.ConsistencyDetails = fmt.Sprintf("amount: %s, iban: %s, date: %s, name: %s",
		yesNo(r.HasAmount), yesNo(r.HasIban), yesNo(r.HasDate), yesNo(r.HasName))

	switch {
	case r.TextLength > 100:
		r.TextQuality = "good"
	case r.TextLength > 50:
		r.TextQuality = "fair"
	default:
		r.TextQuality = "poor"
	}

	r.IsGenuine = r.FraudRisk < 50
	if r.ConsistencyScore >= 75 {
		r.ConfidenceLevel = "medium"
		r.Recommendation = "The receipt looks consistent. Manual review is still recommended."
	} else {
		r.ConfidenceLevel = "low"
		r.Recommendation = "Check the receipt image. Some information appears to be missing."
	}
	return r
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
