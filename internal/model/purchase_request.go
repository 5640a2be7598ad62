package model

import "time"

// PurchaseRequest is a manual bank-transfer submission awaiting admin reconciliation.
// It is created once and never mutated.
type PurchaseRequest struct {
	ID        string    `json:"id"`
	Depositor string    `json:"depositor"`
	Email     string    `json:"email"`
	BookSlug  string    `json:"slug"`
	Memo      string    `json:"memo,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
