package auth

import (
	"context"
	"testing"
	"time"

	"marketplace/apperr"
	"marketplace/identity"
	"marketplace/user"
)

func verifiedCustomer(t *testing.T, h *harness) {
	t.Helper()
	ctx := context.Background()
	if _, err := h.svc.SignUp(ctx, customerSignUp()); err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if _, err := h.svc.VerifyCode(ctx, "asha@example.com", "123456", MethodEmail); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func registeredAdmin(t *testing.T, h *harness) {
	t.Helper()
	_, err := h.svc.SignUp(context.Background(), SignUpRequest{
		FirstName: "Root",
		LastName:  "Admin",
		Email:     "admin@example.com",
		Phone:     "+15550009999",
		UserType:  user.TypeAdmin,
		Password:  "Sup3r$ecret",
	})
	if err != nil {
		t.Fatalf("admin sign up: %v", err)
	}
}

func TestPasswordlessSignInByEmail(t *testing.T) {
	h := newHarness()
	verifiedCustomer(t, h)
	ctx := context.Background()

	challenge, err := h.svc.SignIn(ctx, "asha@example.com", "")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if challenge.Session == "" || challenge.Method != MethodEmail {
		t.Fatalf("unexpected challenge: %+v", challenge)
	}
	if h.provider.count("ResendCode") != 1 {
		t.Fatalf("sign in should dispatch an email code")
	}

	res, err := h.svc.CompleteSignIn(ctx, "asha@example.com", "123456", challenge.Session)
	if err != nil {
		t.Fatalf("complete sign in: %v", err)
	}
	if res.Tokens.AccessToken != "access-asha@example.com" || res.User.Email != "asha@example.com" {
		t.Fatalf("unexpected sign in result: %+v", res)
	}
}

func TestPasswordlessSignInByPhone(t *testing.T) {
	h := newHarness()
	verifiedCustomer(t, h)

	challenge, err := h.svc.SignIn(context.Background(), "+2466689410", "")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if challenge.Method != MethodPhone || h.provider.count("ResendCodeSMS") != 1 {
		t.Fatalf("expected sms challenge, got %+v", challenge)
	}
}

func TestSignInByPhoneDropsStaleIndexEntry(t *testing.T) {
	h := newHarness()
	index := newMapIndex()
	h.svc.phones = identity.NewPhoneResolver(h.provider, index, time.Hour, nil)
	verifiedCustomer(t, h)
	ctx := context.Background()
	const key = "phone-index:general:+2466689410"

	if _, err := h.svc.SignIn(ctx, "+2466689410", ""); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if !index.has(key) {
		t.Fatalf("phone lookup should be indexed")
	}

	h.provider.mu.Lock()
	delete(h.provider.identities[identity.TenantGeneral], "asha@example.com")
	h.provider.mu.Unlock()

	_, err := h.svc.SignIn(ctx, "+2466689410", "")
	if ae, ok := apperr.As(err); !ok || ae.Kind != apperr.KindUnauthorized {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if index.has(key) {
		t.Fatalf("stale index entry should be dropped")
	}
}

func TestSignInRejectsAdminBeforeChallenge(t *testing.T) {
	h := newHarness()
	registeredAdmin(t, h)

	_, err := h.svc.SignIn(context.Background(), "admin@example.com", "")
	requireKind(t, err, apperr.KindInvalidRequest)
	if h.provider.count("InitiateCustomAuth") != 0 {
		t.Fatalf("challenge must not be opened for an admin")
	}
}

func TestSignInFailures(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	_, err := h.svc.SignIn(ctx, "not an identifier", "")
	requireKind(t, err, apperr.KindInvalidFormat)

	_, err = h.svc.SignIn(ctx, "ghost@example.com", "")
	requireKind(t, err, apperr.KindUnauthorized)

	_, err = h.svc.SignIn(ctx, "+19998887777", "")
	requireKind(t, err, apperr.KindUnauthorized)

	if h.provider.count("InitiateCustomAuth") != 0 {
		t.Fatalf("no challenge expected for unknown users")
	}
}

func TestCompleteSignInWrongCode(t *testing.T) {
	h := newHarness()
	verifiedCustomer(t, h)
	ctx := context.Background()

	challenge, err := h.svc.SignIn(ctx, "asha@example.com", "")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	_, err = h.svc.CompleteSignIn(ctx, "asha@example.com", "999999", challenge.Session)
	ae := requireKind(t, err, apperr.KindUnauthorized)
	if ae.Message != "Incorrect username or password." {
		t.Fatalf("provider message should pass through, got %q", ae.Message)
	}

	_, err = h.svc.CompleteSignIn(ctx, "asha@example.com", "", challenge.Session)
	requireKind(t, err, apperr.KindInvalidFormat)
}

func TestAdminSignIn(t *testing.T) {
	h := newHarness()
	registeredAdmin(t, h)
	verifiedCustomer(t, h)
	ctx := context.Background()

	res, err := h.svc.AdminSignIn(ctx, "admin@example.com", "Sup3r$ecret")
	if err != nil {
		t.Fatalf("admin sign in: %v", err)
	}
	if res.Tokens.AccessToken != "admin-access" || res.User.Phone != "" {
		t.Fatalf("unexpected admin sign in: %+v", res)
	}

	tests := []struct {
		name     string
		email    string
		password string
		message  string
	}{
		{name: "wrong password", email: "admin@example.com", password: "nope", message: "Incorrect email or password"},
		{name: "not admin", email: "asha@example.com", password: "x", message: "Invalid credentials or user is not an admin"},
		{name: "unknown", email: "ghost@example.com", password: "x", message: "Invalid credentials or user is not an admin"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.AdminSignIn(ctx, tt.email, tt.password)
			ae := requireKind(t, err, apperr.KindUnauthorized)
			if ae.Message != tt.message {
				t.Fatalf("expected %q, got %q", tt.message, ae.Message)
			}
		})
	}
}

func TestAdminPasswordReset(t *testing.T) {
	h := newHarness()
	registeredAdmin(t, h)
	verifiedCustomer(t, h)
	ctx := context.Background()

	if _, err := h.svc.AdminForgotPassword(ctx, "asha@example.com"); err == nil {
		t.Fatalf("non-admin reset should fail")
	}
	if h.provider.count("ForgotPassword") != 0 {
		t.Fatalf("provider should not be asked to reset a non-admin")
	}

	if _, err := h.svc.AdminForgotPassword(ctx, "admin@example.com"); err != nil {
		t.Fatalf("forgot password: %v", err)
	}

	err := h.svc.AdminConfirmForgotPassword(ctx, "admin@example.com", "654321", "short")
	requireKind(t, err, apperr.KindInvalidFormat)

	err = h.svc.AdminConfirmForgotPassword(ctx, "admin@example.com", "111111", "N3wPassword!")
	requireKind(t, err, apperr.KindInvalidFormat)

	if err := h.svc.AdminConfirmForgotPassword(ctx, "admin@example.com", "654321", "N3wPassword!"); err != nil {
		t.Fatalf("confirm reset: %v", err)
	}
	if _, err := h.svc.AdminSignIn(ctx, "admin@example.com", "N3wPassword!"); err != nil {
		t.Fatalf("sign in with new password: %v", err)
	}
}
