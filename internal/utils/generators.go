package utils

import (
	"crypto/rand"
	"io"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	BookingCodePrefix = "TS-"
	suffixLength      = 4
	base36Alphabet    = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// NewID returns a random identifier for a persisted row.
func NewID() string {
	return uuid.NewString()
}

// GenerateBookingCode returns a shareable code such as TS-MF3K2A1B-7QX0. Codes are
// unlikely but not guaranteed to be unique; the bookings table has the final say.
func GenerateBookingCode() string {
	return generateCode(BookingCodePrefix, time.Now(), rand.Reader)
}

func GeneratePaymentReference() string {
	return generateCode("PAY-", time.Now(), rand.Reader)
}

func GeneratePayoutReference() string {
	return generateCode("PO-", time.Now(), rand.Reader)
}

func generateCode(prefix string, now time.Time, r io.Reader) string {
	stamp := strings.ToUpper(strconv.FormatInt(now.UnixMilli(), 36))
	return prefix + stamp + "-" + randomSuffix(r, suffixLength)
}

func randomSuffix(r io.Reader, n int) string {
	var sb strings.Builder
	max := big.NewInt(int64(len(base36Alphabet)))
	for i := 0; i < n; i++ {
		idx, err := rand.Int(r, max)
		if err != nil {
			// fall back to the time source rather than emit a short code
			idx = big.NewInt(time.Now().UnixNano() % int64(len(base36Alphabet)))
		}
		sb.WriteByte(base36Alphabet[idx.Int64()])
	}
	return sb.String()
}
