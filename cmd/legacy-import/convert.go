package main

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/careerbooks/careerbooks/internal/model"
)

// legacyBook is a document from the old books collection. Only title, slug
// and fileName were required there; later documents carry the pricing fields.
type legacyBook struct {
	Title         string     `bson:"title"`
	Slug          string     `bson:"slug"`
	Description   string     `bson:"description"`
	FileName      string     `bson:"fileName"`
	Category      string     `bson:"category"`
	TitleIndex    *int       `bson:"titleIndex"`
	Price         int64      `bson:"price"`
	OriginalPrice int64      `bson:"originalPrice"`
	KmongURL      string     `bson:"kmongUrl"`
	SalesCount    int64      `bson:"salesCount"`
	CreatedAt     *time.Time `bson:"createdAt"`
}

// legacyUser is a document from the old users collection. Entitlements were
// stored either as bare slugs or as {slug, purchasedAt} objects.
type legacyUser struct {
	UserID         string          `bson:"userId"`
	Password       string          `bson:"password"`
	Nickname       string          `bson:"nickname"`
	Role           string          `bson:"role"`
	PurchasedBooks []bson.RawValue `bson:"purchasedBooks"`
	CreatedAt      *time.Time      `bson:"createdAt"`
}

type legacyPurchase struct {
	Slug        string     `bson:"slug"`
	PurchasedAt *time.Time `bson:"purchasedAt"`
}

// convertBooks maps legacy books onto the catalog model. Books without a
// title index are numbered after the highest explicit one, in slug order.
func convertBooks(docs []legacyBook, filePrefix string, now time.Time) ([]*model.Book, error) {
	sorted := make([]legacyBook, len(docs))
	copy(sorted, docs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Slug < sorted[j].Slug })

	next := 0
	used := make(map[int]string)
	for _, d := range sorted {
		if d.TitleIndex == nil {
			continue
		}
		if other, ok := used[*d.TitleIndex]; ok {
			return nil, fmt.Errorf("books %q and %q share title index %d", other, d.Slug, *d.TitleIndex)
		}
		used[*d.TitleIndex] = d.Slug
		if *d.TitleIndex >= next {
			next = *d.TitleIndex + 1
		}
	}

	books := make([]*model.Book, 0, len(sorted))
	for _, d := range sorted {
		slug := strings.TrimSpace(d.Slug)
		if slug == "" {
			return nil, fmt.Errorf("book %q has no slug", d.Title)
		}

		idx := next
		if d.TitleIndex != nil {
			idx = *d.TitleIndex
		} else {
			next++
		}

		category := d.Category
		if category == "" {
			category = categoryFromSlug(slug)
		}

		b := &model.Book{
			ID:            bookID(slug),
			Title:         strings.TrimSpace(d.Title),
			Slug:          slug,
			Category:      category,
			TitleIndex:    idx,
			Price:         d.Price,
			OriginalPrice: d.OriginalPrice,
			KmongURL:      d.KmongURL,
			SalesCount:    d.SalesCount,
			CreatedAt:     now,
		}
		b.FileRef, b.FileName = fileRefFor(slug, d.FileName, filePrefix)
		if d.CreatedAt != nil {
			b.CreatedAt = d.CreatedAt.UTC()
		}
		books = append(books, b)
	}
	return books, nil
}

// fileRefFor maps the legacy fileName. Older documents hold a bare object
// name; production documents hold the full URL of the public file host, which
// is kept as-is and served under "<slug>.zip".
func fileRefFor(slug, fileName, prefix string) (ref, name string) {
	fileName = strings.TrimSpace(fileName)
	switch {
	case fileName == "":
		return "", ""
	case strings.HasPrefix(fileName, "https://"), strings.HasPrefix(fileName, "http://"):
		return fileName, slug + ".zip"
	default:
		return prefix + fileName, fileName
	}
}

// bookID derives a stable ID so repeated imports agree with each other.
func bookID(slug string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("careerbooks:book:"+slug)).String()
}

// categoryFromSlug strips the trailing volume number: "frontend01" -> "frontend".
func categoryFromSlug(slug string) string {
	trimmed := strings.TrimRightFunc(slug, unicode.IsDigit)
	trimmed = strings.TrimRight(trimmed, "-")
	if trimmed == "" {
		return slug
	}
	return trimmed
}

// convertUser maps a legacy account. The bcrypt hash is carried over and
// upgraded on the user's next login.
func convertUser(d legacyUser, id string, now time.Time) (*model.User, error) {
	handle := strings.TrimSpace(d.UserID)
	if handle == "" {
		return nil, fmt.Errorf("user without userId")
	}
	if d.Password == "" {
		return nil, fmt.Errorf("user %q has no password hash", handle)
	}

	role := model.Role(d.Role)
	if !role.IsValid() {
		role = model.RoleUser
	}
	nickname := strings.TrimSpace(d.Nickname)
	if nickname == "" {
		nickname = handle
	}

	u := &model.User{
		ID:           id,
		Handle:       handle,
		PasswordHash: d.Password,
		Nickname:     nickname,
		Role:         role,
		CreatedAt:    now,
	}
	if d.CreatedAt != nil {
		u.CreatedAt = d.CreatedAt.UTC()
	}
	return u, nil
}

// normalizeEntitlements converts the mixed legacy array into entitlements.
// Bare slugs get the fallback acquisition time; a slug listed twice keeps its
// earliest time. Entries that are neither shape are reported as skipped.
func normalizeEntitlements(userID string, raw []bson.RawValue, fallback time.Time) ([]model.Entitlement, []string) {
	earliest := make(map[string]time.Time)
	var order []string
	var skipped []string

	add := func(slug string, at time.Time) {
		slug = strings.TrimSpace(slug)
		if slug == "" {
			skipped = append(skipped, "empty slug")
			return
		}
		prev, seen := earliest[slug]
		if !seen {
			order = append(order, slug)
			earliest[slug] = at
			return
		}
		if at.Before(prev) {
			earliest[slug] = at
		}
	}

	for i, v := range raw {
		switch v.Type {
		case bson.TypeString:
			add(v.StringValue(), fallback)
		case bson.TypeEmbeddedDocument:
			var p legacyPurchase
			if err := v.Unmarshal(&p); err != nil {
				skipped = append(skipped, fmt.Sprintf("entry %d: %v", i, err))
				continue
			}
			at := fallback
			if p.PurchasedAt != nil && !p.PurchasedAt.IsZero() {
				at = p.PurchasedAt.UTC()
			}
			add(p.Slug, at)
		default:
			skipped = append(skipped, fmt.Sprintf("entry %d: unexpected %s", i, v.Type))
		}
	}

	out := make([]model.Entitlement, 0, len(order))
	for _, slug := range order {
		out = append(out, model.Entitlement{UserID: userID, BookSlug: slug, AcquiredAt: earliest[slug]})
	}
	return out, skipped
}
