package domain

import (
	"strings"
	"time"
)

// TicketStatus is the review state of a ticket
type TicketStatus string

// Ticket statuses
const (
	StatusPending  TicketStatus = "pending"  // Initial state
	StatusApproved TicketStatus = "approved" // Receipt accepted by an admin
	StatusRejected TicketStatus = "rejected" // Receipt refused by an admin
)

// Valid reports whether s is one of the three known statuses
func (s TicketStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Ticket Model
type Ticket struct {
	ID                  uint         `gorm:"primaryKey" json:"id"`                                 // Primary key
	UserID              string       `gorm:"size:191;not null;index" json:"userId"`                // Submitter identifier
	RecipientName       string       `gorm:"size:255;not null" json:"recipientName"`               // Payee name
	RecipientIban       string       `gorm:"size:64;not null" json:"recipientIban"`                // Payee IBAN
	InvestmentMethod    string       `gorm:"size:64;not null" json:"investmentMethod"`             // Bank label
	InvestmentAmount    float64      `gorm:"not null" json:"investmentAmount"`                     // Transferred amount
	InvestmentDateTime  time.Time    `gorm:"not null" json:"investmentDateTime"`                   // Claimed transfer time
	ReceiptFileName     string       `gorm:"size:255;not null;uniqueIndex" json:"receiptFileName"` // Stored blob name
	ReceiptOriginalName string       `gorm:"size:255;not null" json:"receiptOriginalName"`         // Uploaded file name
	ReceiptMimeType     string       `gorm:"size:100;not null" json:"receiptMimeType"`             // Detected content type
	ReceiptSize         int64        `gorm:"not null;default:0" json:"receiptSize"`                // Blob size in bytes
	ReceiptURL          string       `gorm:"-" json:"receiptUrl"`                                  // Derived download URL
	Status              TicketStatus `gorm:"size:16;not null;default:pending;index" json:"status"` // Review state
	AdminNote           string       `gorm:"type:text;not null" json:"adminNote"`                  // Reviewer note
	SearchText          string       `gorm:"type:text" json:"-"`                                   // Folded name, IBAN and method
	CreatedAt           time.Time    `gorm:"index" json:"createdAt"`                               // Set once at insert
	UpdatedAt           time.Time    `json:"updatedAt"`                                            // Bumped on every update
}

// turkishDotless maps the dotless i, which has no lowercase fold to ASCII i
var turkishDotless = strings.NewReplacer("ı", "i")

// FoldSearch lowercases s the same way for stored text and search terms.
// Database LOWER() is ASCII-only on some drivers, so folding happens here.
func FoldSearch(s string) string {
	return turkishDotless.Replace(strings.ToLower(s))
}

// FillSearchText derives SearchText from the searchable fields
func (t *Ticket) FillSearchText() {
	t.SearchText = FoldSearch(t.RecipientName + " " + t.RecipientIban + " " + t.InvestmentMethod)
}
