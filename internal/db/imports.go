package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// ResolveLatestImport returns the most recently imported schedule database
// whose name contains city, read from public.latest_successful_imports on
// the cluster's meta database.
func ResolveLatestImport(ctx context.Context, meta *sql.DB, city string) (string, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		return "", fmt.Errorf("city is required")
	}
	q := `
SELECT db_name
FROM public.latest_successful_imports
WHERE db_name ILIKE '%' || $1 || '%'
ORDER BY imported_at DESC
LIMIT 1`
	var name sql.NullString
	if err := meta.QueryRowContext(ctx, q, city).Scan(&name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("no schedule import found for city like %q", city)
		}
		return "", err
	}
	if !name.Valid || name.String == "" {
		return "", fmt.Errorf("empty db_name for city like %q", city)
	}
	return name.String, nil
}

// OpenSchedule connects to the schedule database, resolving the latest
// per-city import first when city is set.
func OpenSchedule(ctx context.Context, dsn, city string) (*sql.DB, string, error) {
	target := dsn
	name := ""
	if city != "" {
		metaDSN, err := WithDBName(dsn, "postgres")
		if err != nil {
			return nil, "", fmt.Errorf("invalid base DSN: %w", err)
		}
		meta, err := Open(metaDSN)
		if err != nil {
			return nil, "", fmt.Errorf("db open (meta): %w", err)
		}
		defer meta.Close()
		if err := Ping(ctx, meta); err != nil {
			return nil, "", fmt.Errorf("db ping (meta): %w", err)
		}
		if name, err = ResolveLatestImport(ctx, meta, city); err != nil {
			return nil, "", err
		}
		if target, err = WithDBName(dsn, name); err != nil {
			return nil, "", fmt.Errorf("compose DSN: %w", err)
		}
	}
	conn, err := Open(target)
	if err != nil {
		return nil, "", fmt.Errorf("db open: %w", err)
	}
	if err := Ping(ctx, conn); err != nil {
		conn.Close()
		return nil, "", fmt.Errorf("db ping: %w", err)
	}
	return conn, name, nil
}
