package booking

import (
	"torashaout/internal/models"
	"torashaout/internal/validation"
)

var bookingMessages = validation.Messages{
	"talentId.required":       "Talent ID is required",
	"recipientName.required":  "Recipient name is required",
	"occasion.required":       "Occasion is required",
	"instructions.required":   "Instructions are required",
	"fromName.required":       "Sender name is required",
	"fromEmail.required":      "Sender email is required",
	"fromEmail.email":         "Sender email must be a valid email address",
	"currency.required":       "Currency is required",
	"paymentGateway.required": "Payment gateway is required",
}

// ValidateBookingRequest trims req in place and returns every presence or shape
// problem. It does not look at talents or prices.
func ValidateBookingRequest(req *models.CreateBookingRequest) []string {
	validation.TrimStrings(req)
	return validation.Struct(req, bookingMessages)
}
