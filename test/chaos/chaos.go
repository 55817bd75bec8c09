package chaos

import (
	"context"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AppName tags stress connections so chaos only kills our own backends.
const AppName = "marketplace-stress"

// TerminateRandomBackend kills one of our backends now and then, roughly
// every fifth tick, and counts how many it killed.
func TerminateRandomBackend(ctx context.Context, pool *pgxpool.Pool, seed int64, killed *atomic.Int64, stop <-chan struct{}) {
	rng := rand.New(rand.NewSource(seed))
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if rng.Intn(5) != 0 {
				continue
			}
			var n int64
			err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM (
                    SELECT pg_terminate_backend(pid) FROM pg_stat_activity
                    WHERE datname = current_database()
                      AND application_name = $1
                      AND pid <> pg_backend_pid()
                    ORDER BY random() LIMIT 1) t`, AppName).Scan(&n)
			if err == nil {
				killed.Add(n)
			}
		}
	}
}
