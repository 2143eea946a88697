package services

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"torashaout/internal/models"
)

var ErrVerificationFailed = errors.New("gateway did not confirm the payment")

// VerifyRequest is what a customer claims to have paid.
type VerifyRequest struct {
	Gateway   string
	Reference string
	Amount    decimal.Decimal
	Currency  string
	Requested models.PaymentStatus
}

// Verifier asks a payment gateway for the real status of a payment reference.
type Verifier interface {
	Verify(ctx context.Context, req VerifyRequest) (models.PaymentStatus, error)
}

// Simulated trusts the status the client reported. It stands in for gateways the
// service has no integration with.
type Simulated struct{}

func (Simulated) Verify(_ context.Context, req VerifyRequest) (models.PaymentStatus, error) {
	if req.Requested == "" {
		return models.PaymentCompleted, nil
	}
	return req.Requested, nil
}

// Registry routes verification to the integration registered for a gateway and
// falls back to Simulated for the rest.
type Registry struct {
	fallback  Verifier
	byGateway map[string]Verifier
}

func NewRegistry() *Registry {
	return &Registry{fallback: Simulated{}, byGateway: map[string]Verifier{}}
}

func (r *Registry) Register(gateway string, v Verifier) *Registry {
	r.byGateway[strings.ToLower(gateway)] = v
	return r
}

func (r *Registry) Verify(ctx context.Context, req VerifyRequest) (models.PaymentStatus, error) {
	if v, ok := r.byGateway[strings.ToLower(req.Gateway)]; ok {
		return v.Verify(ctx, req)
	}
	return r.fallback.Verify(ctx, req)
}
