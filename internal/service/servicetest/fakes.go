// Package servicetest provides in-memory implementations of the service
// persistence and integration interfaces for use in tests.
package servicetest

import (
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/careerbooks/careerbooks/internal/cache"
	"github.com/careerbooks/careerbooks/internal/mail"
	"github.com/careerbooks/careerbooks/internal/model"
	"github.com/careerbooks/careerbooks/internal/repository"
	"github.com/careerbooks/careerbooks/internal/storage"
)

// Store implements every persistence interface with repository semantics.
type Store struct {
	mu           sync.Mutex
	users        map[string]*model.User
	books        map[string]*model.Book
	entitlements map[string]model.Entitlement
	requests     []*model.PurchaseRequest
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		users:        make(map[string]*model.User),
		books:        make(map[string]*model.Book),
		entitlements: make(map[string]model.Entitlement),
	}
}

func entKey(userID, slug string) string { return userID + "|" + slug }

func (m *Store) CreateUser(_ context.Context, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Handle == u.Handle {
			return repository.ErrHandleExists
		}
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *Store) GetUserByID(_ context.Context, id string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *Store) GetUserByHandle(_ context.Context, handle string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Handle == handle {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (m *Store) ListUsers(_ context.Context) ([]*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.User
	for _, u := range m.users {
		cp := *u
		for _, e := range m.entitlements {
			if e.UserID == u.ID {
				cp.Entitlements = append(cp.Entitlements, e)
			}
		}
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Handle < out[j].Handle })
	return out, nil
}

func (m *Store) UpdatePasswordHash(_ context.Context, id, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.PasswordHash = hash
	return nil
}

// slugHeld reports leftover entitlements for a slug with no book.
func (m *Store) slugHeld(slug string) bool {
	for _, e := range m.entitlements {
		if e.BookSlug == slug {
			return true
		}
	}
	return false
}

func (m *Store) CreateBook(_ context.Context, b *model.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, live := m.books[b.Slug]; !live && m.slugHeld(b.Slug) {
		return repository.ErrSlugRetired
	}
	for _, existing := range m.books {
		if existing.Slug == b.Slug {
			return repository.ErrSlugExists
		}
		if existing.TitleIndex == b.TitleIndex {
			return repository.ErrTitleIndexExists
		}
	}
	cp := *b
	m.books[b.Slug] = &cp
	return nil
}

func (m *Store) GetBookBySlug(_ context.Context, slug string) (*model.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[slug]
	if !ok {
		return nil, repository.ErrBookNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *Store) sortedBooks(less func(a, b *model.Book) bool) []*model.Book {
	var out []*model.Book
	for _, b := range m.books {
		cp := *b
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func (m *Store) ListBooks(_ context.Context, filter repository.BookFilter, offset, limit int) ([]*model.Book, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.sortedBooks(func(a, b *model.Book) bool { return a.TitleIndex < b.TitleIndex })
	var matched []*model.Book
	for _, b := range all {
		if filter.Category == "" || b.Category == filter.Category {
			matched = append(matched, b)
		}
	}
	total := len(matched)
	if limit <= 0 {
		return matched, total, nil
	}
	if offset >= total {
		return []*model.Book{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (m *Store) PopularBooks(_ context.Context, limit int) ([]*model.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.sortedBooks(func(a, b *model.Book) bool {
		if a.SalesCount != b.SalesCount {
			return a.SalesCount > b.SalesCount
		}
		return a.TitleIndex < b.TitleIndex
	})
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (m *Store) UpdateBook(_ context.Context, slug string, b *model.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.books[slug]
	if !ok {
		return repository.ErrBookNotFound
	}
	if _, live := m.books[b.Slug]; b.Slug != slug && !live && m.slugHeld(b.Slug) {
		return repository.ErrSlugRetired
	}
	for s, other := range m.books {
		if s == slug {
			continue
		}
		if other.Slug == b.Slug {
			return repository.ErrSlugExists
		}
		if other.TitleIndex == b.TitleIndex {
			return repository.ErrTitleIndexExists
		}
	}
	b.ID = existing.ID
	b.SalesCount = existing.SalesCount
	b.CreatedAt = existing.CreatedAt
	b.UpdatedAt = time.Now().UTC()
	delete(m.books, slug)
	cp := *b
	m.books[b.Slug] = &cp
	if b.Slug != slug {
		for k, e := range m.entitlements {
			if e.BookSlug == slug {
				delete(m.entitlements, k)
				e.BookSlug = b.Slug
				m.entitlements[entKey(e.UserID, e.BookSlug)] = e
			}
		}
	}
	return nil
}

func (m *Store) DeleteBook(_ context.Context, slug string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.books[slug]; !ok {
		return repository.ErrBookNotFound
	}
	delete(m.books, slug)
	return nil
}

func (m *Store) GetEntitlement(_ context.Context, userID, slug string) (*model.Entitlement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entitlements[entKey(userID, slug)]
	if !ok {
		return nil, repository.ErrEntitlementNotFound
	}
	return &e, nil
}

func (m *Store) GrantEntitlement(_ context.Context, userID, slug string, at time.Time) (*model.Entitlement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[userID]; !ok {
		return nil, repository.ErrUserNotFound
	}
	if _, ok := m.entitlements[entKey(userID, slug)]; ok {
		return nil, repository.ErrEntitlementExists
	}
	book, ok := m.books[slug]
	if !ok {
		return nil, repository.ErrBookNotFound
	}
	e := model.Entitlement{UserID: userID, BookSlug: slug, AcquiredAt: at}
	m.entitlements[entKey(userID, slug)] = e
	book.SalesCount++
	return &e, nil
}

func (m *Store) ListPurchases(_ context.Context, userID string) ([]model.Purchase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Purchase, 0)
	for _, e := range m.entitlements {
		if e.UserID != userID {
			continue
		}
		b, ok := m.books[e.BookSlug]
		if !ok {
			continue
		}
		out = append(out, model.Purchase{
			Title:      b.Title,
			Slug:       b.Slug,
			Category:   b.Category,
			TitleIndex: b.TitleIndex,
			AcquiredAt: e.AcquiredAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AcquiredAt.After(out[j].AcquiredAt) })
	return out, nil
}

func (m *Store) CreatePurchaseRequest(_ context.Context, req *model.PurchaseRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *req
	m.requests = append(m.requests, &cp)
	return nil
}

func (m *Store) ListPurchaseRequests(_ context.Context, offset, limit int) ([]*model.PurchaseRequest, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.PurchaseRequest, 0)
	for i := len(m.requests) - 1 - offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.requests[i])
	}
	return out, len(m.requests), nil
}

// SetRole changes a stored user's role.
func (m *Store) SetRole(userID string, role model.Role) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[userID]; ok {
		u.Role = role
	}
}

// SalesCount returns the current sales counter of a book.
func (m *Store) SalesCount(slug string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.books[slug].SalesCount
}

// Cache is a BookCache without expiry.
type Cache struct {
	mu       sync.Mutex
	books    map[string]*model.Book
	negative map[string]bool
	popular  []*model.Book
}

// NewCache returns an empty Cache.
func NewCache() *Cache {
	return &Cache{books: make(map[string]*model.Book), negative: make(map[string]bool)}
}

func (c *Cache) GetBook(_ context.Context, slug string) (*model.Book, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.books[slug]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	cp := *b
	return &cp, nil
}

func (c *Cache) SetBook(_ context.Context, b *model.Book) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *b
	c.books[b.Slug] = &cp
	delete(c.negative, b.Slug)
	return nil
}

func (c *Cache) DeleteBook(_ context.Context, slug string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.books, slug)
	delete(c.negative, slug)
	return nil
}

func (c *Cache) IsNegativelyCached(_ context.Context, slug string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.negative[slug], nil
}

func (c *Cache) SetNegativeCache(_ context.Context, slug string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.negative[slug] = true
	return nil
}

func (c *Cache) GetPopular(context.Context) ([]*model.Book, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.popular == nil {
		return nil, cache.ErrCacheMiss
	}
	return c.popular, nil
}

func (c *Cache) SetPopular(_ context.Context, books []*model.Book) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.popular = books
	return nil
}

func (c *Cache) InvalidatePopular(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.popular = nil
	return nil
}

// Descriptions keeps markdown in memory.
type Descriptions struct {
	mu      sync.Mutex
	content map[string]string
}

// NewDescriptions returns an empty Descriptions.
func NewDescriptions() *Descriptions {
	return &Descriptions{content: make(map[string]string)}
}

func (d *Descriptions) Get(_ context.Context, slug string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.content[slug], nil
}

func (d *Descriptions) Put(_ context.Context, slug, content string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.content[slug] = content
	return nil
}

func (d *Descriptions) Rename(_ context.Context, oldSlug, newSlug string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if c, ok := d.content[oldSlug]; ok {
		d.content[newSlug] = c
		delete(d.content, oldSlug)
	}
	return nil
}

func (d *Descriptions) Delete(_ context.Context, slug string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.content, slug)
	return nil
}

// Files presigns object keys as fake URLs and streams remote refs from memory.
type Files struct {
	Err  error
	Body string
}

func (f *Files) Locate(_ context.Context, b *model.Book) (*storage.FileLocation, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	if b.FileRef == "" {
		return nil, storage.ErrNoFile
	}
	if b.HasRemoteFile() {
		return &storage.FileLocation{
			Body:        io.NopCloser(strings.NewReader(f.Body)),
			ContentType: "application/pdf",
			FileName:    b.DownloadName(),
		}, nil
	}
	return &storage.FileLocation{RedirectURL: "https://s3.test/" + b.FileRef, FileName: b.DownloadName()}, nil
}

func (f *Files) Open(_ context.Context, b *model.Book) (*storage.FileLocation, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return &storage.FileLocation{
		Body:          io.NopCloser(strings.NewReader(f.Body)),
		ContentLength: int64(len(f.Body)),
		FileName:      b.DownloadName(),
	}, nil
}

func (f *Files) LinkFor(_ context.Context, b *model.Book) (string, error) {
	if b.FileRef == "" {
		return "", storage.ErrNoFile
	}
	if b.HasRemoteFile() {
		return b.FileRef, nil
	}
	return "https://s3.test/" + b.FileRef + "?long", nil
}

// Notifier records every purchase request it is asked to announce.
type Notifier struct {
	mu    sync.Mutex
	Calls []*model.PurchaseRequest
	Err   error
}

func (n *Notifier) NotifyPurchaseRequest(_ context.Context, req *model.PurchaseRequest, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Calls = append(n.Calls, req)
	return n.Err
}

// Mailer captures sent ebooks. Attached holds the read attachment bodies.
type Mailer struct {
	Enabled  bool
	MaxSize  int64
	Sent     []mail.Ebook
	Attached []string
	Err      error
}

func (m *Mailer) Configured() bool { return m.Enabled }

func (m *Mailer) WantsAttachment(size int64) bool { return size > 0 && size <= m.MaxSize }

func (m *Mailer) SendEbook(_ context.Context, e mail.Ebook) error {
	if m.Err != nil {
		return m.Err
	}
	if e.Attachment != nil {
		b, _ := io.ReadAll(e.Attachment)
		m.Attached = append(m.Attached, string(b))
	}
	m.Sent = append(m.Sent, e)
	return nil
}

// Deliveries remembers the status filter of the last listing.
type Deliveries struct {
	Statuses []string
}

func (f *Deliveries) ListDeliveries(_ context.Context, statuses []string, _ int) ([]*model.NotificationDelivery, error) {
	f.Statuses = statuses
	return []*model.NotificationDelivery{}, nil
}
