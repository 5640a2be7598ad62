package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/careerbooks/careerbooks/internal/model"
)

// decodeUser round-trips a document through BSON so the raw array values
// look exactly like they do when read from the legacy collection.
func decodeUser(t *testing.T, doc bson.D) legacyUser {
	t.Helper()
	data, err := bson.Marshal(doc)
	require.NoError(t, err)
	var u legacyUser
	require.NoError(t, bson.Unmarshal(data, &u))
	return u
}

func TestNormalizeEntitlements(t *testing.T) {
	fallback := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	bought := time.Date(2024, 6, 15, 9, 30, 0, 0, time.UTC)
	earlier := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		purchases   bson.A
		want        map[string]time.Time
		wantSkipped int
	}{
		{
			name:      "bare slugs use the fallback date",
			purchases: bson.A{"frontend01", "backend01"},
			want:      map[string]time.Time{"frontend01": fallback, "backend01": fallback},
		},
		{
			name:      "objects keep their purchase date",
			purchases: bson.A{bson.D{{Key: "slug", Value: "frontend01"}, {Key: "purchasedAt", Value: bought}}},
			want:      map[string]time.Time{"frontend01": bought},
		},
		{
			name: "object without date falls back",
			purchases: bson.A{
				bson.D{{Key: "slug", Value: "frontend01"}},
			},
			want: map[string]time.Time{"frontend01": fallback},
		},
		{
			name: "mixed shapes in one array",
			purchases: bson.A{
				"frontend00",
				bson.D{{Key: "slug", Value: "backend01"}, {Key: "purchasedAt", Value: bought}},
			},
			want: map[string]time.Time{"frontend00": fallback, "backend01": bought},
		},
		{
			name: "duplicate slug keeps the earliest time",
			purchases: bson.A{
				bson.D{{Key: "slug", Value: "frontend01"}, {Key: "purchasedAt", Value: bought}},
				"frontend01",
				bson.D{{Key: "slug", Value: "frontend01"}, {Key: "purchasedAt", Value: earlier}},
			},
			want: map[string]time.Time{"frontend01": earlier},
		},
		{
			name:        "unexpected entries are skipped",
			purchases:   bson.A{int32(7), "", "frontend01"},
			want:        map[string]time.Time{"frontend01": fallback},
			wantSkipped: 2,
		},
		{
			name:      "no purchases",
			purchases: bson.A{},
			want:      map[string]time.Time{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := decodeUser(t, bson.D{
				{Key: "userId", Value: "reader01"},
				{Key: "purchasedBooks", Value: tt.purchases},
			})

			ents, skipped := normalizeEntitlements("user-1", u.PurchasedBooks, fallback)

			got := make(map[string]time.Time, len(ents))
			for _, e := range ents {
				assert.Equal(t, "user-1", e.UserID)
				got[e.BookSlug] = e.AcquiredAt
			}
			assert.Len(t, ents, len(tt.want))
			for slug, at := range tt.want {
				require.Contains(t, got, slug)
				assert.True(t, at.Equal(got[slug]), "%s: want %v, got %v", slug, at, got[slug])
			}
			assert.Len(t, skipped, tt.wantSkipped)
		})
	}
}

func TestConvertBooks(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	two := 2

	books, err := convertBooks([]legacyBook{
		{Title: "백엔드 면접", Slug: "backend01", FileName: "backend01.pdf"},
		{Title: "무료 샘플", Slug: "frontend00", FileName: "sample.pdf", TitleIndex: &two, Category: "free"},
		{Title: "프론트엔드 면접", Slug: "frontend01", FileName: "frontend01.pdf", Price: 9900},
	}, "books/", now)
	require.NoError(t, err)
	require.Len(t, books, 3)

	bySlug := map[string]*model.Book{}
	for _, b := range books {
		bySlug[b.Slug] = b
	}

	assert.Equal(t, 2, bySlug["frontend00"].TitleIndex)
	assert.Equal(t, "free", bySlug["frontend00"].Category)
	assert.Equal(t, 3, bySlug["backend01"].TitleIndex)
	assert.Equal(t, 4, bySlug["frontend01"].TitleIndex)
	assert.Equal(t, "backend", bySlug["backend01"].Category)
	assert.Equal(t, "books/frontend01.pdf", bySlug["frontend01"].FileRef)
	assert.Equal(t, int64(9900), bySlug["frontend01"].Price)
	assert.Equal(t, now, bySlug["backend01"].CreatedAt)
	assert.Equal(t, bookID("backend01"), bySlug["backend01"].ID, "IDs are stable across runs")
}

func TestConvertBooks_FileReferences(t *testing.T) {
	books, err := convertBooks([]legacyBook{
		{Title: "프론트엔드 면접", Slug: "frontend01", FileName: "https://pub-example.r2.dev/frontend01.zip"},
		{Title: "백엔드 면접", Slug: "backend01", FileName: "backend01.pdf"},
		{Title: "준비 중", Slug: "devops01"},
	}, "books/", time.Now())
	require.NoError(t, err)

	bySlug := map[string]*model.Book{}
	for _, b := range books {
		bySlug[b.Slug] = b
	}

	remote := bySlug["frontend01"]
	assert.Equal(t, "https://pub-example.r2.dev/frontend01.zip", remote.FileRef)
	assert.True(t, remote.HasRemoteFile())
	assert.Equal(t, "frontend01.zip", remote.FileName)
	assert.Equal(t, "frontend01.zip", remote.DownloadName())

	stored := bySlug["backend01"]
	assert.Equal(t, "books/backend01.pdf", stored.FileRef)
	assert.False(t, stored.HasRemoteFile())
	assert.Equal(t, "backend01.pdf", stored.FileName)

	assert.Empty(t, bySlug["devops01"].FileRef)
	assert.Empty(t, bySlug["devops01"].FileName)
}

func TestConvertBooks_DuplicateTitleIndex(t *testing.T) {
	one := 1
	_, err := convertBooks([]legacyBook{
		{Title: "A", Slug: "a01", TitleIndex: &one},
		{Title: "B", Slug: "b01", TitleIndex: &one},
	}, "books/", time.Now())
	assert.Error(t, err)
}

func TestConvertUser(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		doc      legacyUser
		wantErr  bool
		wantRole model.Role
		wantNick string
	}{
		{"regular user", legacyUser{UserID: "reader01", Password: "$2a$10$hash", Nickname: "독자"}, false, model.RoleUser, "독자"},
		{"admin keeps role", legacyUser{UserID: "owner", Password: "$2a$10$hash", Nickname: "운영자", Role: "admin"}, false, model.RoleAdmin, "운영자"},
		{"unknown role becomes user", legacyUser{UserID: "odd", Password: "$2a$10$hash", Nickname: "n", Role: "superuser"}, false, model.RoleUser, "n"},
		{"missing nickname uses handle", legacyUser{UserID: "quiet", Password: "$2a$10$hash"}, false, model.RoleUser, "quiet"},
		{"missing handle", legacyUser{Password: "$2a$10$hash"}, true, "", ""},
		{"missing hash", legacyUser{UserID: "nohash"}, true, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := convertUser(tt.doc, "id-1", now)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "id-1", u.ID)
			assert.Equal(t, tt.wantRole, u.Role)
			assert.Equal(t, tt.wantNick, u.Nickname)
			assert.Equal(t, tt.doc.Password, u.PasswordHash)
		})
	}
}

func TestCategoryFromSlug(t *testing.T) {
	assert.Equal(t, "frontend", categoryFromSlug("frontend01"))
	assert.Equal(t, "system-design", categoryFromSlug("system-design-2"))
	assert.Equal(t, "123", categoryFromSlug("123"))
}

func TestParseFlags(t *testing.T) {
	t.Setenv("MONGODB_URI", "")
	t.Setenv("DATABASE_URL", "")

	_, err := parseFlags([]string{"-database-url", "postgres://x"})
	assert.Error(t, err, "mongo uri is required")

	o, err := parseFlags([]string{"-mongo-uri", "mongodb://legacy:27017", "-dry-run", "-fallback-date", "2024-12-31"})
	require.NoError(t, err)
	assert.True(t, o.dryRun)
	assert.Equal(t, time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC), o.fallbackDate)

	_, err = parseFlags([]string{"-mongo-uri", "mongodb://legacy:27017", "-database-url", "postgres://x", "-fallback-date", "31/12/2024"})
	assert.Error(t, err)
}
