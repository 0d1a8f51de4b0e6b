package stripe

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultSignatureTolerance bounds how stale a signed webhook payload may be.
const DefaultSignatureTolerance = 600 * time.Second

// Signature verification failures. All of them indicate either a
// misconfigured secret or a forged/replayed request.
var (
	ErrMissingSignature = errors.New("stripe: missing signature header")
	ErrNoValidSignature = errors.New("stripe: no valid signature found")
	ErrSignatureTooOld  = errors.New("stripe: signature timestamp outside tolerance")
	errMalformedHeader  = errors.New("stripe: malformed signature header")
	errMissingTimestamp = errors.New("stripe: signature header missing timestamp")
)

// VerifySignature checks the Stripe-Signature header against the raw payload.
// The header carries a unix timestamp and one or more v1 HMAC-SHA256
// signatures computed over "timestamp.payload".
func VerifySignature(payload []byte, header, secret string, tolerance time.Duration, now time.Time) error {
	header = strings.TrimSpace(header)
	if header == "" {
		return ErrMissingSignature
	}

	var (
		timestamp  int64
		signatures [][]byte
		haveTS     bool
	)
	for _, pair := range strings.Split(header, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(parts) != 2 {
			return errMalformedHeader
		}
		switch parts[0] {
		case "t":
			ts, err := strconv.ParseInt(parts[1], 10, 64)
			if err != nil {
				return fmt.Errorf("%w: bad timestamp", errMalformedHeader)
			}
			timestamp = ts
			haveTS = true
		case "v1":
			sig, err := hex.DecodeString(parts[1])
			if err != nil {
				continue
			}
			signatures = append(signatures, sig)
		}
	}
	if !haveTS {
		return errMissingTimestamp
	}

	expected := computeSignature(timestamp, payload, secret)
	matched := false
	for _, sig := range signatures {
		if hmac.Equal(expected, sig) {
			matched = true
			break
		}
	}
	if !matched {
		return ErrNoValidSignature
	}

	if tolerance <= 0 {
		tolerance = DefaultSignatureTolerance
	}
	if now.Sub(time.Unix(timestamp, 0)) > tolerance {
		return ErrSignatureTooOld
	}
	return nil
}

// SignPayload produces a Stripe-Signature header for the payload. Used to
// build signed fixtures in tests.
func SignPayload(payload []byte, secret string, at time.Time) string {
	ts := at.Unix()
	sig := computeSignature(ts, payload, secret)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(sig))
}

func computeSignature(timestamp int64, payload []byte, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return mac.Sum(nil)
}
