package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_single_profile_per_user",
			SQL: `SELECT user_id, COUNT(*) FROM vendor_profiles
                  GROUP BY user_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O2_no_orphan_profile",
			SQL: `SELECT p.id FROM vendor_profiles p
                  LEFT JOIN users u ON u.id = p.user_id
                  WHERE u.id IS NULL`,
		},
		{
			Name: "O3_profile_flag_consistent",
			SQL: `SELECT u.id FROM users u
                  JOIN vendor_profiles p ON p.user_id = u.id
                  WHERE NOT u.is_profile_updated`,
		},
		{
			Name: "O4_single_user_per_identity",
			SQL: `SELECT lower(email), COUNT(*) FROM users
                  GROUP BY lower(email) HAVING COUNT(*) > 1`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row text) or empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		has := rows.Next()
		if has {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
