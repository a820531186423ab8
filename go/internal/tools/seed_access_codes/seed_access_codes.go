package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/livescore/go/internal/dbconfig"
)

// Match is the match a seeded access code is bound to.
type Match struct {
	ID       uuid.UUID `json:"id"`
	HomeName string    `json:"home_name"`
	AwayName string    `json:"away_name"`
	HomeLogo string    `json:"home_logo"`
	AwayLogo string    `json:"away_logo"`
}

// AccessCode mirrors the JSON fixture layout.
type AccessCode struct {
	Code    string    `json:"code"`
	UserID  uuid.UUID `json:"user_id"`
	MaxUses int       `json:"max_uses"`
	Match   Match     `json:"match"`
}

func main() {
	path := "go/internal/assets/access_codes.json"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	// 1) Load the JSON fixtures
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read JSON: %v\n", err)
		os.Exit(1)
	}
	var codes []AccessCode
	if err := json.Unmarshal(data, &codes); err != nil {
		fmt.Fprintf(os.Stderr, "unmarshal JSON: %v\n", err)
		os.Exit(1)
	}

	// 2) Connect using shared dbconfig
	ctx := context.Background()
	cfg := dbconfig.NewConfigFromEnv()
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	// 3) Insert each match and code together and count
	var (
		total    = len(codes)
		inserted int
		skipped  int
		errs     int
	)

	for _, c := range codes {
		ok, err := seed(ctx, pool, c)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error seeding access code %s: %v\n", c.Code, err)
			errs++
			continue
		}
		if ok {
			inserted++
		} else {
			skipped++
		}
	}

	// 4) Print summary
	fmt.Printf(
		"Access code seed complete: %d total, %d inserted, %d skipped, %d errors\n",
		total, inserted, skipped, errs,
	)
}

func seed(ctx context.Context, pool *pgxpool.Pool, c AccessCode) (bool, error) {
	if c.Match.ID == uuid.Nil {
		c.Match.ID = uuid.New()
	}
	if c.MaxUses <= 0 {
		c.MaxUses = 1
	}

	var inserted bool
	err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
            INSERT INTO matches (id, home_name, away_name, home_logo, away_logo)
            VALUES ($1, $2, $3, $4, $5)
            ON CONFLICT (id) DO NOTHING
        `,
			c.Match.ID, c.Match.HomeName, c.Match.AwayName, c.Match.HomeLogo, c.Match.AwayLogo,
		); err != nil {
			return fmt.Errorf("insert match: %w", err)
		}

		tag, err := tx.Exec(ctx, `
            INSERT INTO access_codes (code, status, max_uses, user_id, match_id)
            VALUES ($1, 'active', $2, $3, $4)
            ON CONFLICT (code) DO NOTHING
        `,
			c.Code, c.MaxUses, c.UserID, c.Match.ID,
		)
		if err != nil {
			return fmt.Errorf("insert access code: %w", err)
		}
		inserted = tag.RowsAffected() == 1
		return nil
	})
	return inserted, err
}
