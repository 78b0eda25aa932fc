package repository

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/opensource-finance/claimwatch/internal/domain"
	_ "modernc.org/sqlite"
)

const defaultSQLitePath = "./claimwatch.db"

// sqlitePragmas keep foreign keys on so flag rows cascade with their claim.
var sqlitePragmas = []string{
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"busy_timeout(5000)",
	"foreign_keys(ON)",
}

func inMemory(cfg domain.RepositoryConfig) bool {
	return cfg.Driver == "sqlite" && cfg.SQLitePath == ":memory:"
}

// sqliteDSN builds a modernc.org/sqlite URI. An in-memory database uses a
// shared cache so the pool's single connection keeps its tables.
func sqliteDSN(path string) string {
	q := url.Values{}
	for _, p := range sqlitePragmas {
		q.Add("_pragma", p)
	}
	if path == ":memory:" {
		q.Set("cache", "shared")
		return "file::memory:?" + q.Encode()
	}
	return "file:" + path + "?" + q.Encode()
}

func openSQLite(cfg domain.RepositoryConfig) (*sql.DB, error) {
	path := cfg.SQLitePath
	if path == "" {
		path = defaultSQLitePath
	}
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite directory %s: %w", dir, err)
			}
		}
	}

	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}
	return db, nil
}
