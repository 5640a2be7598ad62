package notify

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"
)

const (
	// SignatureHeader carries "v1=<hex hmac>" when a signing secret is configured.
	SignatureHeader = "X-CareerBooks-Signature"
	// TimestampHeader carries the unix time the signature was computed at.
	TimestampHeader = "X-CareerBooks-Timestamp"

	// DefaultReplayWindow bounds how old a signed post may be when verified.
	DefaultReplayWindow = 5 * time.Minute
)

var (
	ErrReplayWindowExceeded = errors.New("timestamp outside replay window")
	ErrInvalidSignature     = errors.New("invalid signature")
)

// Sign returns the v1 signature for payload at timestamp.
// The signed string is "{timestamp}.{payload}".
func Sign(secret string, timestamp int64, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte{'.'})
	mac.Write(payload)
	return "v1=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a signature produced by Sign. Receivers behind a relay can
// use it to reject forged or replayed purchase-request posts.
func Verify(secret, signature, timestamp string, payload []byte, window time.Duration, now time.Time) error {
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad timestamp", ErrInvalidSignature)
	}
	age := now.Sub(time.Unix(ts, 0))
	if age > window || age < -window {
		return ErrReplayWindowExceeded
	}
	if !hmac.Equal([]byte(Sign(secret, ts, payload)), []byte(signature)) {
		return ErrInvalidSignature
	}
	return nil
}
