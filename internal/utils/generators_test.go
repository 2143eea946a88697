package utils

import (
	"bytes"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var bookingCodePattern = regexp.MustCompile(`^TS-[0-9A-Z]+-[0-9A-Z]{4}$`)

func TestGenerateBookingCode_Format(t *testing.T) {
	for i := 0; i < 200; i++ {
		code := GenerateBookingCode()
		assert.True(t, strings.HasPrefix(code, BookingCodePrefix))
		assert.Regexp(t, bookingCodePattern, code)
	}
}

func TestGenerateCode_EncodesTimestamp(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	code := generateCode(BookingCodePrefix, now, bytes.NewReader(make([]byte, 64)))

	parts := strings.Split(code, "-")
	require.Len(t, parts, 3)
	ms, err := strconv.ParseInt(strings.ToLower(parts[1]), 36, 64)
	require.NoError(t, err)
	assert.Equal(t, now.UnixMilli(), ms)
	assert.Equal(t, "0000", parts[2])
}

func TestGenerateCode_SameMillisecondDiffersBySuffix(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	a := generateCode(BookingCodePrefix, now, bytes.NewReader(bytes.Repeat([]byte{0x00}, 64)))
	b := generateCode(BookingCodePrefix, now, bytes.NewReader(bytes.Repeat([]byte{0x05}, 64)))

	assert.NotEqual(t, a, b)
	assert.Regexp(t, bookingCodePattern, a)
	assert.Regexp(t, bookingCodePattern, b)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy exhausted") }

func TestGenerateCode_SurvivesReaderFailure(t *testing.T) {
	code := generateCode(BookingCodePrefix, time.Now(), failingReader{})
	assert.Regexp(t, bookingCodePattern, code)
}

func TestReferences(t *testing.T) {
	assert.Regexp(t, `^PAY-[0-9A-Z]+-[0-9A-Z]{4}$`, GeneratePaymentReference())
	assert.Regexp(t, `^PO-[0-9A-Z]+-[0-9A-Z]{4}$`, GeneratePayoutReference())
	assert.NotEqual(t, NewID(), NewID())
}

func TestDueDate(t *testing.T) {
	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, created.Add(48*time.Hour), DueDate(created, 48))
}
