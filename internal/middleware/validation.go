package middleware

import (
	"errors"
	"net/http"
	"regexp"

	"github.com/go-chi/chi/v5"
)

// MaxSlugLength bounds a slug path parameter.
const MaxSlugLength = 64

// Validation errors.
var (
	ErrSlugEmpty   = errors.New("slug is empty")
	ErrSlugTooLong = errors.New("slug exceeds maximum length")
	ErrSlugInvalid = errors.New("slug contains invalid characters")
)

// validSlugPattern matches stored slugs: lowercase letters, digits, hyphen.
var validSlugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// ValidateSlug checks a slug taken from a URL.
func ValidateSlug(slug string) error {
	if slug == "" {
		return ErrSlugEmpty
	}
	if len(slug) > MaxSlugLength {
		return ErrSlugTooLong
	}
	if !validSlugPattern.MatchString(slug) {
		return ErrSlugInvalid
	}
	return nil
}

// SlugParam rejects requests whose chi URL parameter is not a well-formed
// slug. A malformed slug can never name a book, so it is answered with the
// same 404 as an unknown one without touching the database.
func SlugParam(name string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := ValidateSlug(chi.URLParam(r, name)); err != nil {
				writeError(w, http.StatusNotFound, "NOT_FOUND", "Book not found")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
