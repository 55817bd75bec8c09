package auth

import (
	"context"
	"errors"
	"testing"

	"marketplace/apperr"
	"marketplace/user"
	"marketplace/vendorprofile"
)

func strPtr(s string) *string { return &s }

func onboardingRequest() OnboardingRequest {
	return OnboardingRequest{
		FirstName:  "Vikram",
		LastName:   "Shah",
		Email:      "vikram@example.com",
		Phone:      "919812345678",
		ExternalID: "ext-1",
		Country:    "India",
		City:       "Pune",
		Business: vendorprofile.Business{
			BusinessName: strPtr("Shah Textiles"),
			CompanyName:  strPtr("Shah Textiles Pvt Ltd"),
			BusinessType: strPtr("Manufacturer"),
		},
	}
}

func TestOnboardVendorCreatesUserAndProfile(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	res, err := h.svc.OnboardVendor(ctx, onboardingRequest(), OnboardingFiles{LogoURL: "https://cdn.example.com/logo.png"})
	if err != nil {
		t.Fatalf("onboard: %v", err)
	}
	if res.User.Type != user.TypeVendor || res.User.IsProfileUpdated == nil || !*res.User.IsProfileUpdated {
		t.Fatalf("unexpected user summary: %+v", res.User)
	}
	if res.VendorProfile.BusinessName != "Shah Textiles" {
		t.Fatalf("unexpected profile summary: %+v", res.VendorProfile)
	}

	u, err := h.users.GetByExternalID(ctx, h.pool, "ext-1")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if !u.IsProfileUpdated || u.Phone == nil || *u.Phone != "+919812345678" {
		t.Fatalf("unexpected stored user: %+v", u)
	}
	p, err := h.profiles.GetByUserID(ctx, h.pool, u.ID)
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if p.Logo == nil || *p.Logo != "https://cdn.example.com/logo.png" || p.BusinessRegistrationCertificate != nil {
		t.Fatalf("unexpected file urls: %+v", p)
	}
	if p.Country == nil || *p.Country != "India" {
		t.Fatalf("profile country should fall back to the user's, got %v", p.Country)
	}
}

func TestOnboardVendorTwiceConflicts(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	if _, err := h.svc.OnboardVendor(ctx, onboardingRequest(), OnboardingFiles{}); err != nil {
		t.Fatalf("first onboarding: %v", err)
	}
	_, err := h.svc.OnboardVendor(ctx, onboardingRequest(), OnboardingFiles{})
	ae := requireKind(t, err, apperr.KindConflict)
	if ae.Message != "User or vendor profile already exists" {
		t.Fatalf("unexpected message %q", ae.Message)
	}
	if h.store.userCount() != 1 || h.store.profileCount() != 1 {
		t.Fatalf("expected one user and one profile, got %d and %d", h.store.userCount(), h.store.profileCount())
	}
}

func TestOnboardVendorStorageConflict(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	if _, err := h.svc.OnboardVendor(ctx, onboardingRequest(), OnboardingFiles{}); err != nil {
		t.Fatalf("first onboarding: %v", err)
	}
	// A racing request passes the existence check and hits the constraint.
	h.profiles.skipCheck = true

	_, err := h.svc.OnboardVendor(ctx, onboardingRequest(), OnboardingFiles{})
	requireKind(t, err, apperr.KindConflict)
	if h.store.profileCount() != 1 {
		t.Fatalf("expected one profile, got %d", h.store.profileCount())
	}
}

func TestOnboardVendorProfileFailureRollsBackUser(t *testing.T) {
	h := newHarness()
	boom := errors.New("disk full")
	h.profiles.createErr = boom

	_, err := h.svc.OnboardVendor(context.Background(), onboardingRequest(), OnboardingFiles{})
	if !errors.Is(err, boom) {
		t.Fatalf("expected profile error, got %v", err)
	}
	if apperr.IsKind(err, apperr.KindConflict) {
		t.Fatalf("storage failure must not look like a conflict")
	}
	if h.store.userCount() != 0 {
		t.Fatalf("user insert should be rolled back, got %d users", h.store.userCount())
	}
	if tx := h.pool.lastTx(); tx == nil || !tx.rolled || tx.committed {
		t.Fatalf("transaction should be rolled back")
	}
}

func TestOnboardVendorReusesExistingUser(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	verifiedCustomer(t, h)

	req := onboardingRequest()
	req.Email = "asha@example.com"
	req.ExternalID = ""
	if _, err := h.svc.OnboardVendor(ctx, req, OnboardingFiles{}); err != nil {
		t.Fatalf("onboard existing user: %v", err)
	}
	if h.store.userCount() != 1 || h.store.profileCount() != 1 {
		t.Fatalf("expected existing user to gain a profile, got %d users %d profiles", h.store.userCount(), h.store.profileCount())
	}
}

func TestOnboardVendorValidation(t *testing.T) {
	year := int32(1200)
	tests := []struct {
		name   string
		mutate func(*OnboardingRequest)
		field  string
	}{
		{name: "first name", mutate: func(r *OnboardingRequest) { r.FirstName = " " }, field: "first_name"},
		{name: "email", mutate: func(r *OnboardingRequest) { r.Email = "nope" }, field: "email"},
		{name: "phone", mutate: func(r *OnboardingRequest) { r.Phone = "abc" }, field: "phone"},
		{name: "type", mutate: func(r *OnboardingRequest) { r.Type = "broker" }, field: "type"},
		{name: "establishment", mutate: func(r *OnboardingRequest) { r.Business.Establishment = &year }, field: "establishment"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			req := onboardingRequest()
			tt.mutate(&req)

			_, err := h.svc.OnboardVendor(context.Background(), req, OnboardingFiles{})
			ae := requireKind(t, err, apperr.KindInvalidFormat)
			if len(ae.Fields) != 1 || ae.Fields[0] != tt.field {
				t.Fatalf("expected field %q, got %v", tt.field, ae.Fields)
			}
			if len(h.pool.txs) != 0 {
				t.Fatalf("no transaction expected for invalid input")
			}
		})
	}
}

func TestOnboardVendorRejectsAdminType(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	if _, err := h.svc.SignUp(ctx, customerSignUp()); err != nil {
		t.Fatalf("sign up: %v", err)
	}

	req := onboardingRequest()
	req.Email = "asha@example.com"
	req.ExternalID = ""
	req.Type = user.TypeAdmin
	_, err := h.svc.OnboardVendor(ctx, req, OnboardingFiles{})
	ae := requireKind(t, err, apperr.KindInvalidRequest)
	if len(ae.Fields) != 1 || ae.Fields[0] != "type" {
		t.Fatalf("expected field type, got %v", ae.Fields)
	}
	if h.store.userCount() != 0 || len(h.pool.txs) != 0 {
		t.Fatalf("expected no local user and no transaction, got %d users %d txs", h.store.userCount(), len(h.pool.txs))
	}

	// The pending sign-up can still be verified as a customer.
	res, err := h.svc.VerifyCode(ctx, "asha@example.com", "123456", MethodEmail)
	if err != nil {
		t.Fatalf("verify after rejected onboarding: %v", err)
	}
	if res.User.Type != user.TypeCustomer {
		t.Fatalf("expected customer, got %s", res.User.Type)
	}
}

func TestOnboardVendorRejectsExistingAdmin(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	registeredAdmin(t, h)

	req := onboardingRequest()
	req.Email = "admin@example.com"
	req.ExternalID = ""
	_, err := h.svc.OnboardVendor(ctx, req, OnboardingFiles{})
	requireKind(t, err, apperr.KindInvalidRequest)
	if h.store.profileCount() != 0 {
		t.Fatalf("expected no vendor profile for an admin, got %d", h.store.profileCount())
	}
	if tx := h.pool.lastTx(); tx == nil || !tx.rolled {
		t.Fatalf("expected onboarding transaction to roll back")
	}
}
