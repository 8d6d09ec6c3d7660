package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/scrubline/backend/internal/config"
	"github.com/scrubline/backend/internal/db"
	"github.com/scrubline/backend/internal/handlers"
	"github.com/scrubline/backend/internal/httpserver"
	"github.com/scrubline/backend/internal/logging"
	"github.com/scrubline/backend/internal/middleware"
	"github.com/scrubline/backend/internal/repositories"
)

// Run bootstraps the scrubline backend application.
func Run(ctx context.Context, args []string) error {
	return run(ctx, args, os.Stdout)
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errors.New("expected command: serve, migrate, upload, or hover")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	switch args[0] {
	case "serve":
		return serve(ctx, cfg)
	case "migrate":
		return runMigrations(ctx, cfg, args[1:], out)
	case "upload":
		return runUpload(ctx, cfg, args[1:], out)
	case "hover":
		return runHover(ctx, cfg, args[1:], out)
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func serve(ctx context.Context, cfg config.Config) error {
	logger := logging.New(os.Stdout, cfg.SlogLevel())
	slog.SetDefault(logger)

	deps, cleanup, err := buildDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	handlers.RegisterRoutes(mux, deps)

	handler := middleware.CORS(cfg.CORSOrigins)(
		middleware.RequestLogger(logger)(
			middleware.Metrics(middleware.DefaultMetricsConfig())(mux),
		),
	)

	srv := httpserver.New(cfg.AppPort, handler)

	logger.Info("starting http server", "port", cfg.AppPort, "storage", cfg.StorageBackend)

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- srv.Start()
	}()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signalCh)

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("context canceled, shutting down server")
	case sig := <-signalCh:
		logger.Info("received signal, shutting down", "signal", sig.String())
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			runErr = err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), httpserver.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("shutdown http server: %w", err))
	}
	if err := cleanup(shutdownCtx); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("drain thumbnail workers: %w", err))
	}
	return runErr
}

const (
	migrationMaxRetries  = 3
	migrationBaseBackoff = 100 * time.Millisecond
	migrationMaxBackoff  = 3 * time.Second
)

var retryablePgErrorCodes = map[string]struct{}{
	"40001": {}, // serialization_failure
	"40P01": {}, // deadlock_detected
	"55P03": {}, // lock_not_available
}

func runMigrations(ctx context.Context, cfg config.Config, args []string, out io.Writer) error {
	command := "up"
	if len(args) > 0 {
		command = args[0]
	}

	if strings.HasPrefix(cfg.DatabaseURL, repositories.SQLitePrefix) {
		repo, err := repositories.OpenSQLite(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, "sqlite schema is up to date")
		return repo.Close()
	}

	migrations, migrationDir, err := listMigrations(cfg.MigrationDir)
	if err != nil {
		return err
	}

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
                version TEXT PRIMARY KEY,
                applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )`); err != nil {
		return fmt.Errorf("ensure schema_migrations table: %w", err)
	}

	applied, err := appliedMigrations(ctx, conn)
	if err != nil {
		return err
	}

	switch command {
	case "status":
		for _, name := range migrations {
			if _, ok := applied[name]; ok {
				fmt.Fprintf(out, "[x] %s\n", name)
			} else {
				fmt.Fprintf(out, "[ ] %s\n", name)
			}
		}
		return nil
	case "up", "":
		if len(migrations) == 0 {
			fmt.Fprintln(out, "no migrations to apply")
			return nil
		}

		for _, name := range migrations {
			if _, ok := applied[name]; ok {
				continue
			}

			contents, err := os.ReadFile(filepath.Join(migrationDir, name))
			if err != nil {
				return fmt.Errorf("read migration %s: %w", name, err)
			}

			if err := applyMigrationWithRetry(ctx, conn, name, string(contents), out); err != nil {
				return err
			}

			fmt.Fprintf(out, "applied migration %s\n", name)
		}
		return nil
	case "down":
		return errors.New("down migrations are not supported")
	default:
		return fmt.Errorf("unknown migrate command %q", command)
	}
}

// listMigrations returns the sorted .sql files in dir and its absolute path.
func listMigrations(dir string) ([]string, string, error) {
	if !filepath.IsAbs(dir) {
		wd, err := os.Getwd()
		if err != nil {
			return nil, "", fmt.Errorf("determine working directory: %w", err)
		}
		dir = filepath.Join(wd, dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, "", fmt.Errorf("read migrations directory: %w", err)
	}

	var migrations []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".sql" {
			continue
		}
		migrations = append(migrations, entry.Name())
	}
	sort.Strings(migrations)
	return migrations, dir, nil
}

func appliedMigrations(ctx context.Context, conn *pgxpool.Conn) (map[string]struct{}, error) {
	rows, err := conn.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("fetch applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]struct{})
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("scan applied migration: %w", err)
		}
		applied[version] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applied migrations: %w", err)
	}
	return applied, nil
}

func applyMigrationWithRetry(ctx context.Context, conn *pgxpool.Conn, name string, contents string, out io.Writer) error {
	var attempt int
	for attempt = 0; attempt < migrationMaxRetries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(migrationBackoff(attempt))
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		tx, err := conn.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
		if err != nil {
			return fmt.Errorf("begin migration transaction for %s: %w", name, err)
		}

		if _, err := tx.Exec(ctx, contents); err != nil {
			_ = tx.Rollback(ctx)
			if shouldRetryMigration(err) && attempt < migrationMaxRetries-1 {
				fmt.Fprintf(out, "transient error applying migration %s (attempt %d/%d): %v\n", name, attempt+1, migrationMaxRetries, err)
				continue
			}
			return fmt.Errorf("apply migration %s: %w", name, err)
		}

		if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, name); err != nil {
			_ = tx.Rollback(ctx)
			if shouldRetryMigration(err) && attempt < migrationMaxRetries-1 {
				fmt.Fprintf(out, "transient error recording migration %s (attempt %d/%d): %v\n", name, attempt+1, migrationMaxRetries, err)
				continue
			}
			return fmt.Errorf("record migration %s: %w", name, err)
		}

		if err := tx.Commit(ctx); err != nil {
			_ = tx.Rollback(ctx)
			if shouldRetryMigration(err) && attempt < migrationMaxRetries-1 {
				fmt.Fprintf(out, "transient error committing migration %s (attempt %d/%d): %v\n", name, attempt+1, migrationMaxRetries, err)
				continue
			}
			return fmt.Errorf("commit migration %s: %w", name, err)
		}

		return nil
	}

	return fmt.Errorf("apply migration %s: exceeded max retries (%d)", name, attempt)
}

// migrationBackoff doubles from migrationBaseBackoff up to migrationMaxBackoff.
func migrationBackoff(attempt int) time.Duration {
	backoff := time.Duration(math.Pow(2, float64(attempt-1))) * migrationBaseBackoff
	if backoff > migrationMaxBackoff {
		backoff = migrationMaxBackoff
	}
	return backoff
}

func shouldRetryMigration(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if _, ok := retryablePgErrorCodes[pgErr.Code]; ok {
			return true
		}
	}

	return errors.Is(err, pgx.ErrTxClosed)
}
