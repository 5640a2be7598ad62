// Package storage provides access to ebook files and book descriptions.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/careerbooks/careerbooks/internal/model"
)

// Errors returned by the file store.
var (
	ErrNoFile   = errors.New("book has no stored file")
	ErrUpstream = errors.New("file host unavailable")
)

// LinkTTL is the lifetime of presigned links sent by email (the S3 maximum).
const LinkTTL = 7 * 24 * time.Hour

// FileStoreConfig configures the S3 compatible file store.
type FileStoreConfig struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	PresignTTL      time.Duration
	// HTTPTimeout is how long a proxied host may go silent, both before it
	// sends headers and between body reads. A slow but steady transfer is
	// never cut off.
	HTTPTimeout     time.Duration
}

// FileLocation tells the caller how to deliver a file. Exactly one of
// RedirectURL or Body is set; Body must be closed by the caller.
type FileLocation struct {
	RedirectURL   string
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64
	FileName      string
}

// presignGetObject is a seam for testing presigning without credentials.
var presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	return pc.PresignGetObject(ctx, in, optFns...)
}

// FileStore resolves a book's file reference. Object keys are served from
// the bucket through presigned URLs; absolute http(s) URLs are proxied.
type FileStore struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
	ttl     time.Duration
	http    *http.Client
	stall   time.Duration
}

// NewFileStore creates a FileStore. Static credentials are used when given,
// otherwise the default AWS credential chain applies.
func NewFileStore(ctx context.Context, cfg FileStoreConfig) (*FileStore, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	ttl := cfg.PresignTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}

	stall := cfg.HTTPTimeout
	if stall <= 0 {
		stall = defaultStallTimeout
	}

	return &FileStore{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  cfg.Bucket,
		ttl:     ttl,
		http:    NewHTTPClient(stall),
		stall:   stall,
	}, nil
}

const defaultStallTimeout = 30 * time.Second

// NewHTTPClient creates the client used to proxy files from external hosts.
// There is no overall deadline: a book may take minutes to stream. Only the
// connection setup and the wait for response headers are bounded here; body
// stalls are caught by the reader returned from Locate.
func NewHTTPClient(headerTimeout time.Duration) *http.Client {
	if headerTimeout <= 0 {
		headerTimeout = defaultStallTimeout
	}
	return &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: headerTimeout,
			MaxIdleConns:          50,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
		},
	}
}

// Locate returns where the book's file can be downloaded from.
func (f *FileStore) Locate(ctx context.Context, book *model.Book) (*FileLocation, error) {
	if book.FileRef == "" {
		return nil, ErrNoFile
	}
	if book.HasRemoteFile() {
		return f.fetch(ctx, book)
	}

	url, err := f.presignURL(ctx, book, f.ttl)
	if err != nil {
		return nil, err
	}
	return &FileLocation{RedirectURL: url, FileName: book.DownloadName()}, nil
}

// Open streams the file content regardless of where it is stored.
func (f *FileStore) Open(ctx context.Context, book *model.Book) (*FileLocation, error) {
	if book.FileRef == "" {
		return nil, ErrNoFile
	}
	if book.HasRemoteFile() {
		return f.fetch(ctx, book)
	}

	out, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(book.FileRef),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: get object %s: %v", ErrUpstream, book.FileRef, err)
	}

	loc := &FileLocation{
		Body:        out.Body,
		ContentType: aws.ToString(out.ContentType),
		FileName:    book.DownloadName(),
	}
	if out.ContentLength != nil {
		loc.ContentLength = *out.ContentLength
	}
	return loc, nil
}

// LinkFor returns a long-lived URL suitable for an email.
func (f *FileStore) LinkFor(ctx context.Context, book *model.Book) (string, error) {
	if book.FileRef == "" {
		return "", ErrNoFile
	}
	if book.HasRemoteFile() {
		return book.FileRef, nil
	}
	return f.presignURL(ctx, book, LinkTTL)
}

func (f *FileStore) presignURL(ctx context.Context, book *model.Book, ttl time.Duration) (string, error) {
	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": book.DownloadName()})

	req, err := presignGetObject(f.presign, ctx, &s3.GetObjectInput{
		Bucket:                     aws.String(f.bucket),
		Key:                        aws.String(book.FileRef),
		ResponseContentDisposition: aws.String(disposition),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("%w: presign %s: %v", ErrUpstream, book.FileRef, err)
	}
	return req.URL, nil
}

func (f *FileStore) fetch(ctx context.Context, book *model.Book) (*FileLocation, error) {
	ctx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, book.FileRef, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("build file request: %w", err)
	}
	req.Header.Set("User-Agent", "CareerBooks-Download/1.0")

	resp, err := f.http.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("%w: HTTP %d", ErrUpstream, resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	return &FileLocation{
		Body:          newStallReader(resp.Body, f.stall, cancel),
		ContentType:   contentType,
		ContentLength: resp.ContentLength,
		FileName:      book.DownloadName(),
	}, nil
}

// stallReader aborts the upstream request once no bytes have arrived for the
// idle period. Each successful read rearms the timer.
type stallReader struct {
	body   io.ReadCloser
	idle   time.Duration
	timer  *time.Timer
	cancel context.CancelFunc
}

func newStallReader(body io.ReadCloser, idle time.Duration, cancel context.CancelFunc) *stallReader {
	return &stallReader{body: body, idle: idle, timer: time.AfterFunc(idle, cancel), cancel: cancel}
}

func (r *stallReader) Read(p []byte) (int, error) {
	n, err := r.body.Read(p)
	if n > 0 {
		r.timer.Reset(r.idle)
	}
	return n, err
}

func (r *stallReader) Close() error {
	r.timer.Stop()
	r.cancel()
	return r.body.Close()
}
