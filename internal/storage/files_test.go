package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careerbooks/careerbooks/internal/model"
)

func newTestFileStore(t *testing.T) *FileStore {
	t.Helper()
	fs, err := NewFileStore(context.Background(), FileStoreConfig{
		Endpoint:        "http://localhost:9000",
		Region:          "us-east-1",
		Bucket:          "ebooks",
		AccessKeyID:     "test-access",
		SecretAccessKey: "test-secret",
		UsePathStyle:    true,
		PresignTTL:      15 * time.Minute,
		HTTPTimeout:     5 * time.Second,
	})
	require.NoError(t, err)
	return fs
}

func TestFileStore_LocatePresignsObjectKeys(t *testing.T) {
	fs := newTestFileStore(t)
	book := &model.Book{Slug: "frontend01", FileRef: "books/frontend01.zip", FileName: "frontend01.zip"}

	loc, err := fs.Locate(context.Background(), book)
	require.NoError(t, err)
	require.Nil(t, loc.Body)

	u, err := url.Parse(loc.RedirectURL)
	require.NoError(t, err)
	assert.Equal(t, "localhost:9000", u.Host)
	assert.Equal(t, "/ebooks/books/frontend01.zip", u.Path)

	q := u.Query()
	assert.Equal(t, "900", q.Get("X-Amz-Expires"))
	assert.Contains(t, q.Get("response-content-disposition"), "frontend01.zip")
}

func TestFileStore_LocateProxiesRemoteFiles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/zip")
		_, _ = w.Write([]byte("PK-zip-bytes"))
	}))
	defer srv.Close()

	fs := newTestFileStore(t)
	book := &model.Book{Slug: "backend01", FileRef: srv.URL + "/files/backend01.zip"}

	loc, err := fs.Locate(context.Background(), book)
	require.NoError(t, err)
	require.NotNil(t, loc.Body)
	defer loc.Body.Close()

	body, err := io.ReadAll(loc.Body)
	require.NoError(t, err)
	assert.Equal(t, "PK-zip-bytes", string(body))
	assert.Equal(t, "application/zip", loc.ContentType)
	assert.Equal(t, "backend01.zip", loc.FileName)
}

func TestFileStore_RemoteFailureIsUpstream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	fs := newTestFileStore(t)
	_, err := fs.Locate(context.Background(), &model.Book{Slug: "x", FileRef: srv.URL + "/x.zip"})
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestFileStore_NoFile(t *testing.T) {
	fs := newTestFileStore(t)

	_, err := fs.Locate(context.Background(), &model.Book{Slug: "x"})
	assert.ErrorIs(t, err, ErrNoFile)

	_, err = fs.LinkFor(context.Background(), &model.Book{Slug: "x"})
	assert.ErrorIs(t, err, ErrNoFile)
}

func TestFileStore_LinkForRemoteReturnsURL(t *testing.T) {
	fs := newTestFileStore(t)
	link, err := fs.LinkFor(context.Background(), &model.Book{FileRef: "https://files.careerbooks.kr/a.zip"})
	require.NoError(t, err)
	assert.Equal(t, "https://files.careerbooks.kr/a.zip", link)
}

func newRemoteStore(t *testing.T, stall time.Duration) *FileStore {
	t.Helper()
	fs, err := NewFileStore(context.Background(), FileStoreConfig{
		Region:          "us-east-1",
		Bucket:          "ebooks",
		AccessKeyID:     "test-access",
		SecretAccessKey: "test-secret",
		HTTPTimeout:     stall,
	})
	require.NoError(t, err)
	return fs
}

func TestFileStore_SlowSteadyHostIsNotCutOff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "10")
		w.WriteHeader(http.StatusOK)
		for i := 0; i < 10; i++ {
			_, _ = w.Write([]byte{'0' + byte(i)})
			w.(http.Flusher).Flush()
			time.Sleep(100 * time.Millisecond)
		}
	}))
	defer srv.Close()

	// The whole transfer takes about a second, well past the stall limit.
	fs := newRemoteStore(t, 400*time.Millisecond)
	loc, err := fs.Locate(context.Background(), &model.Book{Slug: "frontend01", FileRef: srv.URL + "/frontend01.zip"})
	require.NoError(t, err)
	defer loc.Body.Close()

	body, err := io.ReadAll(loc.Body)
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(body))
	assert.Equal(t, int64(10), loc.ContentLength)
}

func TestFileStore_StalledHostIsAborted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "10")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("PK"))
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	fs := newRemoteStore(t, 200*time.Millisecond)
	loc, err := fs.Locate(context.Background(), &model.Book{Slug: "frontend01", FileRef: srv.URL + "/frontend01.zip"})
	require.NoError(t, err)
	defer loc.Body.Close()

	start := time.Now()
	body, err := io.ReadAll(loc.Body)
	assert.Error(t, err)
	assert.Equal(t, "PK", string(body))
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestFileStore_SlowHeadersTimeOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	fs := newRemoteStore(t, 200*time.Millisecond)
	_, err := fs.Locate(context.Background(), &model.Book{Slug: "frontend01", FileRef: srv.URL + "/frontend01.zip"})
	assert.ErrorIs(t, err, ErrUpstream)
}
