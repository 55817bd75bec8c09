package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"marketplace/apperr"
	"marketplace/auth"
	"marketplace/user"
	"marketplace/vendorprofile"
)

// Identity is one vendor the actors fight over.
type Identity struct {
	Email      string
	ExternalID string
}

// Identities builds n identities. Few identities mean more contention.
func Identities(n int, salt int64) []Identity {
	out := make([]Identity, n)
	for i := range out {
		out[i] = Identity{
			Email:      fmt.Sprintf("vendor-%d-%d@example.com", salt, i),
			ExternalID: fmt.Sprintf("ext-%d-%d", salt, i),
		}
	}
	return out
}

// Lookup finds the local user for an identity's external id.
type Lookup func(ctx context.Context, externalID string) (user.User, error)

// Stats counts actor outcomes.
type Stats struct {
	Onboarded atomic.Int64
	Conflicts atomic.Int64
	Removed   atomic.Int64
	Transient atomic.Int64
}

// Onboarder repeatedly onboards random identities. Conflicts are the
// expected outcome once an identity has a profile.
func Onboarder(ctx context.Context, svc *auth.Service, ids []Identity, seed int64, stats *Stats, stop <-chan struct{}) error {
	rng := rand.New(rand.NewSource(seed))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		id := ids[rng.Intn(len(ids))]
		name := fmt.Sprintf("Business %d", rng.Intn(1000))
		req := auth.OnboardingRequest{
			FirstName:  "Stress",
			LastName:   "Vendor",
			Email:      id.Email,
			ExternalID: id.ExternalID,
			Country:    "India",
			Business:   vendorprofile.Business{BusinessName: &name},
		}
		// Half the requests omit the external id so the email path races too.
		if rng.Intn(2) == 0 {
			req.ExternalID = ""
		}

		_, err := svc.OnboardVendor(ctx, req, auth.OnboardingFiles{})
		switch {
		case err == nil:
			stats.Onboarded.Add(1)
		case apperr.IsKind(err, apperr.KindConflict):
			stats.Conflicts.Add(1)
		case Transient(err):
			stats.Transient.Add(1)
		default:
			return fmt.Errorf("onboard %s: %w", id.Email, err)
		}
		time.Sleep(time.Duration(5+rng.Intn(15)) * time.Millisecond)
	}
}

// Remover deletes the profile of a random identity so it can be onboarded again.
func Remover(ctx context.Context, lookup Lookup, profiles *vendorprofile.Service, ids []Identity, seed int64, stats *Stats, stop <-chan struct{}) error {
	rng := rand.New(rand.NewSource(seed))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		id := ids[rng.Intn(len(ids))]
		err := remove(ctx, lookup, profiles, id)
		switch {
		case err == nil:
			stats.Removed.Add(1)
		case errors.Is(err, user.ErrNotFound), errors.Is(err, vendorprofile.ErrNotFound):
		case Transient(err):
			stats.Transient.Add(1)
		default:
			return fmt.Errorf("remove %s: %w", id.Email, err)
		}
		time.Sleep(time.Duration(20+rng.Intn(40)) * time.Millisecond)
	}
}

func remove(ctx context.Context, lookup Lookup, profiles *vendorprofile.Service, id Identity) error {
	u, err := lookup(ctx, id.ExternalID)
	if err != nil {
		return err
	}
	p, err := profiles.GetByUserID(ctx, u.ID)
	if err != nil {
		return err
	}
	return profiles.Remove(ctx, p.ID, "stress")
}

// StatusFlipper moves random users between states while onboarding runs.
func StatusFlipper(ctx context.Context, lookup Lookup, users *user.Service, ids []Identity, seed int64, stats *Stats, stop <-chan struct{}) error {
	rng := rand.New(rand.NewSource(seed))
	states := []user.Status{user.StatusActive, user.StatusSuspended, user.StatusInactive, user.StatusPending}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		id := ids[rng.Intn(len(ids))]
		u, err := lookup(ctx, id.ExternalID)
		if err == nil {
			_, err = users.UpdateStatus(ctx, u.ID, states[rng.Intn(len(states))], "stress", "stress run")
		}
		switch {
		case err == nil, errors.Is(err, user.ErrNotFound):
		case Transient(err):
			stats.Transient.Add(1)
		default:
			return fmt.Errorf("flip status %s: %w", id.Email, err)
		}
		time.Sleep(time.Duration(30+rng.Intn(30)) * time.Millisecond)
	}
}

// Transient reports failures caused by chaos or shutdown rather than logic:
// killed backends, dropped connections and cancelled contexts.
func Transient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// 57: operator intervention, 08: connection exception, 40: rollback.
		switch pgErr.Code[:2] {
		case "57", "08", "40":
			return true
		}
		return false
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	return pgconn.SafeToRetry(err) || pgconn.Timeout(err) || isClosedConn(err)
}

func isClosedConn(err error) bool {
	msg := err.Error()
	for _, s := range []string{"conn closed", "connection reset", "unexpected EOF", "broken pipe", "terminating connection"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
