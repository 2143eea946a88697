package qr

import (
	"errors"
	"net/url"

	"github.com/skip2/go-qrcode"
)

const DefaultSize = 256

// ShareQR renders QR codes pointing at a booking's public tracking page.
type ShareQR struct {
	baseURL string
}

func NewShareQR(baseURL string) *ShareQR {
	return &ShareQR{baseURL: baseURL}
}

// ShareURL is the link encoded for bookingCode.
func (q *ShareQR) ShareURL(bookingCode string) string {
	return q.baseURL + "/bookings/" + url.PathEscape(bookingCode)
}

// PNG encodes the share link as a PNG of size x size pixels.
func (q *ShareQR) PNG(bookingCode string, size int) ([]byte, error) {
	if bookingCode == "" {
		return nil, errors.New("empty booking code")
	}
	if size < 64 || size > 1024 {
		size = DefaultSize
	}
	return qrcode.Encode(q.ShareURL(bookingCode), qrcode.Medium, size)
}
