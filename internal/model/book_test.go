package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBook_IsFree(t *testing.T) {
	t.Parallel()

	free := &Book{Slug: "frontend00", TitleIndex: 0}
	paid := &Book{Slug: "frontend01", TitleIndex: 1}

	assert.True(t, free.IsFree("frontend00"))
	assert.False(t, paid.IsFree("frontend00"))
	assert.False(t, free.IsFree(""), "empty free slug disables the free sample")
}

func TestBook_DiscountRate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		price, original int64
		want            int
	}{
		{9900, 19800, 50},
		{15000, 15000, 0},
		{15000, 0, 0},
		{20000, 10000, 0},
		{6930, 9900, 30},
	}

	for _, tt := range tests {
		b := &Book{Price: tt.price, OriginalPrice: tt.original}
		assert.Equal(t, tt.want, b.DiscountRate(), "price=%d original=%d", tt.price, tt.original)
	}
}

func TestBook_HasRemoteFile(t *testing.T) {
	t.Parallel()

	assert.True(t, (&Book{FileRef: "https://files.example.com/frontend01.zip"}).HasRemoteFile())
	assert.False(t, (&Book{FileRef: "ebooks/frontend01.zip"}).HasRemoteFile())
}

func TestBook_DownloadName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		book Book
		want string
	}{
		{"explicit file name", Book{Slug: "a", FileName: "guide.zip", FileRef: "x/y.zip"}, "guide.zip"},
		{"object key", Book{Slug: "a", FileRef: "ebooks/frontend01.zip"}, "frontend01.zip"},
		{"url with query", Book{Slug: "a", FileRef: "https://cdn.example.com/f/book.zip?sig=1"}, "book.zip"},
		{"fallback to slug", Book{Slug: "backend02"}, "backend02.zip"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.book.DownloadName())
		})
	}
}
