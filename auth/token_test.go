package auth

import (
	"context"
	"errors"
	"testing"

	"marketplace/apperr"
	"marketplace/identity"
	"marketplace/user"
)

func TestAuthenticate(t *testing.T) {
	h := newHarness()
	verifiedCustomer(t, h)
	ctx := context.Background()
	sub := h.provider.identities[identity.TenantGeneral]["asha@example.com"].Subject

	h.verifier.principal = identity.Principal{Tenant: identity.TenantGeneral, Subject: sub}
	p, err := h.svc.Authenticate(ctx, "access-asha@example.com")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if p.User.Email != "asha@example.com" || p.User.Type != user.TypeCustomer || p.Tenant != identity.TenantGeneral {
		t.Fatalf("unexpected principal: %+v", p)
	}
}

func TestAuthenticateRejects(t *testing.T) {
	h := newHarness()
	verifiedCustomer(t, h)
	if _, err := h.svc.SignUp(context.Background(), SignUpRequest{
		FirstName: "Pending",
		Email:     "pending@example.com",
		Phone:     "15551234567",
		UserType:  user.TypeVendor,
	}); err != nil {
		t.Fatalf("sign up: %v", err)
	}
	sub := h.provider.identities[identity.TenantGeneral]["asha@example.com"].Subject
	pendingSub := h.provider.identities[identity.TenantGeneral]["pending@example.com"].Subject

	tests := []struct {
		name      string
		token     string
		principal identity.Principal
		verifyErr error
		message   string
	}{
		{name: "missing", token: " ", message: "Missing bearer token"},
		{name: "bad signature", token: "access-asha@example.com", verifyErr: errors.New("bad signature"), message: "Invalid token"},
		{
			name:      "subject mismatch",
			token:     "access-asha@example.com",
			principal: identity.Principal{Tenant: identity.TenantGeneral, Subject: "someone-else"},
			message:   "Invalid token",
		},
		{
			name:      "wrong tenant",
			token:     "access-asha@example.com",
			principal: identity.Principal{Tenant: identity.TenantAdmin, Subject: sub},
			message:   "Invalid token",
		},
		{
			name:      "not in directory",
			token:     "access-pending@example.com",
			principal: identity.Principal{Tenant: identity.TenantGeneral, Subject: pendingSub},
			message:   "User not found in local directory",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h.verifier.principal = tt.principal
			h.verifier.err = tt.verifyErr

			_, err := h.svc.Authenticate(context.Background(), tt.token)
			ae := requireKind(t, err, apperr.KindUnauthorized)
			if ae.Message != tt.message {
				t.Fatalf("expected %q, got %q", tt.message, ae.Message)
			}
		})
	}
}
