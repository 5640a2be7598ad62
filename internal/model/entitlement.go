package model

import "time"

// EntitlementYears is the number of calendar years a purchase stays downloadable.
const EntitlementYears = 1

// Entitlement records a user's right to download a book.
// AcquiredAt is written once at grant time and never changes.
type Entitlement struct {
	UserID     string    `json:"-"`
	BookSlug   string    `json:"slug"`
	AcquiredAt time.Time `json:"acquiredAt"`
}

// ExpiresAt returns the end of the download window.
// The window is a calendar year, so a grant on Feb 29 normalizes the way time.AddDate does.
func (e *Entitlement) ExpiresAt() time.Time {
	return e.AcquiredAt.AddDate(EntitlementYears, 0, 0)
}

// IsExpiredAt reports whether the window has elapsed at now.
// The expiry instant itself is still inside the window.
func (e *Entitlement) IsExpiredAt(now time.Time) bool {
	return now.After(e.ExpiresAt())
}

// Purchase is an entitlement joined with the current book metadata.
type Purchase struct {
	Title      string    `json:"title"`
	Slug       string    `json:"slug"`
	Category   string    `json:"category"`
	TitleIndex int       `json:"titleIndex"`
	AcquiredAt time.Time `json:"acquiredAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
	Expired    bool      `json:"expired"`
}
