package handler

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careerbooks/careerbooks/internal/storage"
)

// trickle yields one byte per read with a pause before each.
type trickle struct {
	data  []byte
	pause time.Duration
}

func (t *trickle) Read(p []byte) (int, error) {
	if len(t.data) == 0 {
		return 0, io.EOF
	}
	time.Sleep(t.pause)
	p[0] = t.data[0]
	t.data = t.data[1:]
	return 1, nil
}

func TestDownload_StreamOutlastsWriteTimeout(t *testing.T) {
	h := NewDownloadHandler(nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.stream(w, "frontend01", &storage.FileLocation{
			Body:          io.NopCloser(&trickle{data: []byte("%PDF-1.7 ok"), pause: 50 * time.Millisecond}),
			ContentType:   "application/pdf",
			ContentLength: 11,
			FileName:      "frontend01.pdf",
		})
	}))
	// The copy takes about 550ms.
	srv.Config.WriteTimeout = 200 * time.Millisecond
	srv.Start()
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "%PDF-1.7 ok", string(body))
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	assert.Equal(t, "attachment; filename=frontend01.pdf", resp.Header.Get("Content-Disposition"))
}
