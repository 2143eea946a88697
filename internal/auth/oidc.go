package auth

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"

	"torashaout/internal/models"
)

// OIDCVerifier validates ID tokens from the hosted identity provider.
type OIDCVerifier struct {
	verifier  *oidc.IDTokenVerifier
	roleClaim string
}

func NewOIDCVerifier(ctx context.Context, issuer, clientID, roleClaim string) (*OIDCVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}

	cfg := &oidc.Config{ClientID: clientID}
	if clientID == "" {
		cfg.SkipClientIDCheck = true
	}
	if roleClaim == "" {
		roleClaim = "role"
	}
	return &OIDCVerifier{verifier: provider.Verifier(cfg), roleClaim: roleClaim}, nil
}

func (v *OIDCVerifier) Verify(ctx context.Context, rawToken string) (models.Caller, error) {
	idToken, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return models.Caller{}, fmt.Errorf("invalid token: %w", err)
	}

	var claims map[string]interface{}
	if err := idToken.Claims(&claims); err != nil {
		return models.Caller{}, fmt.Errorf("failed to parse claims: %w", err)
	}

	email, _ := claims["email"].(string)
	return callerFromClaims(idToken.Subject, roleFromClaims(claims, v.roleClaim), email)
}

// roleFromClaims reads a flat role claim, falling back to Keycloak's realm_access.roles.
func roleFromClaims(claims map[string]interface{}, roleClaim string) string {
	if role, ok := claims[roleClaim].(string); ok {
		return role
	}
	realm, ok := claims["realm_access"].(map[string]interface{})
	if !ok {
		return ""
	}
	roles, _ := realm["roles"].([]interface{})
	best := ""
	for _, r := range roles {
		s, _ := r.(string)
		switch models.Role(s) {
		case models.RoleAdmin:
			return s
		case models.RoleTalent:
			best = s
		case models.RoleFan:
			if best == "" {
				best = s
			}
		}
	}
	return best
}
