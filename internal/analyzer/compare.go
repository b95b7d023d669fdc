package analyzer

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"receipt_desk/internal/domain"
)

var (
	currencyRe  = regexp.MustCompile(`(?i)(TRY|TL|USD|EUR|€|\$)`)
	dateSplitRe = regexp.MustCompile(`[./-]`)
	spaceRe     = regexp.MustCompile(`\s+`)
)

// Confidence levels of a field match
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
	ConfidenceNone   = "none"
)

// Fields are the ticket-relevant tokens found in a receipt text
type Fields struct {
	Amount      string  `json:"amount"`      // Amount as printed
	AmountValue float64 `json:"amountValue"` // Parsed amount, 0 when absent
	Currency    string  `json:"currency"`
	Iban        string  `json:"iban"`
	Date        string  `json:"date"` // DD.MM.YYYY
	Name        string  `json:"name"`

	text string
}

// Extract returns the first amount, IBAN, date and name found in text.
func Extract(text string) Fields {
	f := Fields{Currency: "TRY", text: text}
	if m := amountRe.FindStringSubmatch(text); m != nil {
		f.Amount = strings.TrimSpace(m[1])
		f.AmountValue = ParseAmount(f.Amount)
	}
	if m := currencyRe.FindString(text); m != "" {
		f.Currency = strings.ToUpper(m)
	}
	f.Iban = strings.ToUpper(ibanRe.FindString(text))
	if m := dateRe.FindString(text); m != "" {
		f.Date = normalizeDate(m)
	}
	f.Name = nameRe.FindString(text)
	return f
}

// ParseAmount reads amounts printed either as 1.500,00 or as 1,500.00. A
// separator followed by exactly three digits is taken as a thousands
// separator. Returns 0 when s holds no number.
func ParseAmount(s string) float64 {
	s = spaceRe.ReplaceAllString(strings.TrimSpace(s), "")
	if s == "" {
		return 0
	}
	last := strings.LastIndexAny(s, ".,")
	var normalized string
	if last >= 0 && len(s)-last-1 != 3 {
		intPart := strings.NewReplacer(".", "", ",", "").Replace(s[:last])
		normalized = intPart + "." + s[last+1:]
	} else {
		normalized = strings.NewReplacer(".", "", ",", "").Replace(s)
	}
	v, err := strconv.ParseFloat(normalized, 64)
	if err != nil {
		return 0
	}
	return v
}

func normalizeDate(s string) string {
	parts := dateSplitRe.Split(s, -1)
	if len(parts) != 3 {
		return s
	}
	for i := 0; i < 2; i++ {
		if len(parts[i]) == 1 {
			parts[i] = "0" + parts[i]
		}
	}
	return strings.Join(parts, ".")
}

func normalizeIban(s string) string {
	return strings.ToUpper(spaceRe.ReplaceAllString(s, ""))
}

// FieldMatch is the comparison of one declared value with the extracted one
type FieldMatch struct {
	Match      bool   `json:"match"`
	Declared   string `json:"declared"`
	Extracted  string `json:"extracted"`
	Confidence string `json:"confidence"`
}

// Comparison diffs a ticket's declared values against a receipt's fields
type Comparison struct {
	Amount        FieldMatch `json:"amount"`
	Iban          FieldMatch `json:"iban"`
	Date          FieldMatch `json:"date"`
	Name          FieldMatch `json:"name"`
	MatchedFields int        `json:"matchedFields"`
	Advisory      bool       `json:"advisory"`
}

// Compare matches the extracted fields against the ticket. Dates are compared
// as calendar days in loc.
func Compare(f Fields, t *domain.Ticket, loc *time.Location) Comparison {
	if loc == nil {
		loc = time.UTC
	}
	c := Comparison{
		Amount:   compareAmount(f, t.InvestmentAmount),
		Iban:     compareIban(f, t.RecipientIban),
		Date:     compareDate(f, t.InvestmentDateTime.In(loc).Format("02.01.2006")),
		Name:     compareName(f, t.RecipientName),
		Advisory: true,
	}
	for _, m := range []FieldMatch{c.Amount, c.Iban, c.Date, c.Name} {
		if m.Match {
			c.MatchedFields++
		}
	}
	return c
}

func compareAmount(f Fields, declared float64) FieldMatch {
	m := FieldMatch{
		Declared:   strconv.FormatFloat(declared, 'f', 2, 64),
		Extracted:  f.Amount,
		Confidence: ConfidenceNone,
	}
	if f.AmountValue <= 0 || declared <= 0 {
		return m
	}
	diff := math.Abs(f.AmountValue-declared) / declared
	switch {
	case math.Abs(f.AmountValue-declared) < 0.005, diff <= 0.01:
		m.Match, m.Confidence = true, ConfidenceHigh
	case diff <= 0.03:
		m.Match, m.Confidence = true, ConfidenceMedium
	case diff <= 0.05:
		m.Match, m.Confidence = true, ConfidenceLow
	}
	return m
}

func compareIban(f Fields, declared string) FieldMatch {
	want := normalizeIban(declared)
	got := normalizeIban(f.Iban)
	m := FieldMatch{Declared: declared, Extracted: f.Iban, Confidence: ConfidenceNone}
	switch {
	case want == "":
	case got == want:
		m.Match, m.Confidence = true, ConfidenceHigh
	case got != "" && (strings.Contains(got, want) || strings.Contains(want, got)):
		m.Match, m.Confidence = true, ConfidenceMedium
	case got == "" && len(want) >= 6 && strings.Contains(normalizeIban(f.text), want[len(want)-6:]):
		// OCR often splits the IBAN; the tail alone is still a weak signal.
		m.Match, m.Confidence = true, ConfidenceLow
		m.Extracted = fmt.Sprintf("...%s", want[len(want)-6:])
	}
	return m
}

func compareDate(f Fields, declared string) FieldMatch {
	m := FieldMatch{Declared: declared, Extracted: f.Date, Confidence: ConfidenceNone}
	if f.Date != "" && f.Date == declared {
		m.Match, m.Confidence = true, ConfidenceHigh
	}
	return m
}

func compareName(f Fields, declared string) FieldMatch {
	want := strings.ToLower(strings.TrimSpace(declared))
	got := strings.ToLower(strings.TrimSpace(f.Name))
	m := FieldMatch{Declared: declared, Extracted: f.Name, Confidence: ConfidenceNone}
	switch {
	case want == "" || got == "":
	case want == got:
		m.Match, m.Confidence = true, ConfidenceHigh
	case strings.Contains(got, want) || strings.Contains(want, got):
		m.Match, m.Confidence = true, ConfidenceMedium
	}
	return m
}
