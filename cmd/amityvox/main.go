// Package main is the CLI entrypoint for the AmityVox Gateway. It provides
// subcommands for running the server (serve), managing database migrations
// (migrate), administering users (admin), and printing version information
// (version). The serve command loads configuration, connects to PostgreSQL
// and NATS, runs pending migrations, starts the WebSocket gateway, and
// handles graceful shutdown on SIGINT/SIGTERM.
package main

import (
	"context"
	"crypto/ed25519"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/amityvox/amityvox/internal/auth"
	"github.com/amityvox/amityvox/internal/config"
	"github.com/amityvox/amityvox/internal/database"
	"github.com/amityvox/amityvox/internal/events"
	"github.com/amityvox/amityvox/internal/gateway"
	"github.com/amityvox/amityvox/internal/models"
)

// Build-time variables set via ldflags.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		if err := runServe(); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	case "migrate":
		if err := runMigrate(); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	case "admin":
		if err := runAdmin(); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	case "version":
		runVersion()
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// printUsage prints the CLI usage information.
func printUsage() {
	fmt.Println("AmityVox Gateway — real-time WebSocket fan-out")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  amityvox <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve     Start the WebSocket gateway")
	fmt.Println("  migrate   Run database migrations")
	fmt.Println("  admin     Manage users and instance settings")
	fmt.Println("  version   Print version information")
	fmt.Println("  help      Show this help message")
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println("  Config file:  amityvox.toml (or set AMITYVOX_CONFIG_PATH)")
	fmt.Println("  Env prefix:   AMITYVOX_ (e.g. AMITYVOX_DATABASE_URL)")
}

// runServe starts the Gateway: loads config, connects to PostgreSQL and NATS,
// runs migrations, bootstraps the local instance, creates the auth service,
// starts the WebSocket gateway, and handles graceful shutdown on
// SIGINT/SIGTERM.
func runServe() error {
	logger := setupLogger("info", "json")

	logger.Info("starting AmityVox gateway",
		slog.String("version", version),
		slog.String("commit", commit),
	)

	cfgPath := configPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger = setupLogger(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("configuration loaded", slog.String("path", cfgPath))

	ctx := context.Background()

	db, err := database.New(ctx, cfg.Database.URL, cfg.Database.MaxConnections, logger)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	if err := database.MigrateUp(cfg.Database.URL, logger); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	instanceID, err := ensureLocalInstance(ctx, db, cfg)
	if err != nil {
		return fmt.Errorf("bootstrapping local instance: %w", err)
	}
	logger.Info("local instance ready", slog.String("instance_id", instanceID))

	bus, err := events.New(cfg.NATS.URL, logger)
	if err != nil {
		return fmt.Errorf("connecting to NATS: %w", err)
	}
	defer bus.Close()

	if err := bus.EnsureStreams(); err != nil {
		return fmt.Errorf("ensuring NATS streams: %w", err)
	}

	sessionDuration, err := cfg.Auth.SessionDurationParsed()
	if err != nil {
		return fmt.Errorf("parsing session duration: %w", err)
	}

	authSvc := auth.NewService(db.Pool, auth.Config{
		SessionDuration: sessionDuration,
	})

	heartbeatInterval, err := cfg.WebSocket.HeartbeatIntervalParsed()
	if err != nil {
		return fmt.Errorf("parsing heartbeat interval: %w", err)
	}
	latencyBuffer, err := cfg.WebSocket.LatencyBufferParsed()
	if err != nil {
		return fmt.Errorf("parsing latency buffer: %w", err)
	}
	resumeRetention, err := cfg.WebSocket.ResumeRetentionParsed()
	if err != nil {
		return fmt.Errorf("parsing resume retention: %w", err)
	}

	gw := gateway.NewServer(gateway.ServerConfig{
		Validator:         authSvc,
		EventBus:          bus,
		Pool:              db.Pool,
		ListenAddr:        cfg.WebSocket.Listen,
		HeartbeatInterval: heartbeatInterval,
		LatencyBuffer:     latencyBuffer,
		BroadcastCapacity: cfg.WebSocket.BroadcastCapacity,
		ResumeMaxEntries:  cfg.WebSocket.ResumeMaxEntries,
		ResumeRetention:   resumeRetention,
		Logger:            logger,
	})

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		if err := gw.Start(ctx); err != nil {
			errCh <- fmt.Errorf("WebSocket gateway: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case sig := <-shutdownCh:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := gw.Shutdown(shutdownCtx); err != nil {
		logger.Error("gateway shutdown error", slog.String("error", err.Error()))
	}

	logger.Info("AmityVox gateway stopped")
	return nil
}

// ensureLocalInstance checks if the local instance record exists in the database
// (matched by domain). If not, it creates one with a generated Ed25519 key pair
// for federation signing. Returns the instance ID.
func ensureLocalInstance(ctx context.Context, db *database.DB, cfg *config.Config) (string, error) {
	var id string
	err := db.Pool.QueryRow(ctx,
		`SELECT id FROM instances WHERE domain = $1`,
		cfg.Instance.Domain,
	).Scan(&id)

	if err == nil {
		return id, nil
	}

	// Instance doesn't exist yet — generate an Ed25519 key pair and create it.
	pubKey, _, err := ed25519.GenerateKey(nil)
	if err != nil {
		return "", fmt.Errorf("generating Ed25519 key pair: %w", err)
	}

	pubKeyBytes, err := x509.MarshalPKIXPublicKey(pubKey)
	if err != nil {
		return "", fmt.Errorf("marshaling public key: %w", err)
	}

	pubKeyPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: pubKeyBytes,
	})

	id = models.NewULID().String()
	_, err = db.Pool.Exec(ctx,
		`INSERT INTO instances (id, domain, public_key, name, created_at)
		 VALUES ($1, $2, $3, $4, now())
		 ON CONFLICT (domain) DO NOTHING`,
		id, cfg.Instance.Domain, string(pubKeyPEM), cfg.Instance.Name,
	)
	if err != nil {
		return "", fmt.Errorf("creating local instance record: %w", err)
	}

	// Re-read in case of race (ON CONFLICT DO NOTHING).
	err = db.Pool.QueryRow(ctx,
		`SELECT id FROM instances WHERE domain = $1`,
		cfg.Instance.Domain,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("reading instance ID after insert: %w", err)
	}

	return id, nil
}

// runMigrate handles the migrate subcommand with up/down/status operations.
func runMigrate() error {
	logger := setupLogger("info", "text")

	cfgPath := configPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	action := "up"
	if len(os.Args) >= 3 {
		action = os.Args[2]
	}

	switch action {
	case "up":
		return database.MigrateUp(cfg.Database.URL, logger)
	case "down":
		return database.MigrateDown(cfg.Database.URL, logger)
	case "status":
		v, dirty, err := database.MigrateStatus(cfg.Database.URL)
		if err != nil {
			return err
		}
		fmt.Printf("Migration version: %d\n", v)
		fmt.Printf("Dirty: %v\n", dirty)
		return nil
	default:
		return fmt.Errorf("unknown migrate action: %s (use: up, down, status)", action)
	}
}

// runAdmin handles admin subcommands for user and instance management.
func runAdmin() error {
	if len(os.Args) < 3 {
		fmt.Println("Usage: amityvox admin <action>")
		fmt.Println()
		fmt.Println("Actions:")
		fmt.Println("  create-user  Create a new user account")
		fmt.Println("  suspend      Suspend a user account")
		fmt.Println("  unsuspend    Unsuspend a user account")
		fmt.Println("  set-admin    Grant admin flag to a user")
		fmt.Println("  unset-admin  Remove admin flag from a user")
		fmt.Println("  list-users   List all user accounts")
		return nil
	}

	logger := setupLogger("info", "text")

	cfgPath := configPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx := context.Background()
	db, err := database.New(ctx, cfg.Database.URL, cfg.Database.MaxConnections, logger)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	switch os.Args[2] {
	case "create-user":
		if len(os.Args) < 5 {
			return fmt.Errorf("usage: amityvox admin create-user <username> <password>")
		}
		username, password := os.Args[3], os.Args[4]

		var instanceID string
		if err := db.Pool.QueryRow(ctx, `SELECT id FROM instances WHERE domain = $1`, cfg.Instance.Domain).Scan(&instanceID); err != nil {
			return fmt.Errorf("instance not found — run 'amityvox serve' first to bootstrap")
		}

		hash, err := auth.HashPassword(password)
		if err != nil {
			return fmt.Errorf("hashing password: %w", err)
		}

		userID := models.NewULID().String()
		_, err = db.Pool.Exec(ctx,
			`INSERT INTO users (id, instance_id, username, password_hash, created_at) VALUES ($1, $2, $3, $4, now())`,
			userID, instanceID, username, hash)
		if err != nil {
			return fmt.Errorf("creating user: %w", err)
		}
		fmt.Printf("Created user %s (ID: %s)\n", username, userID)

	case "suspend":
		if len(os.Args) < 4 {
			return fmt.Errorf("usage: amityvox admin suspend <username>")
		}
		tag, err := db.Pool.Exec(ctx,
			`UPDATE users SET flags = flags | $1 WHERE username = $2`,
			models.UserFlagSuspended, os.Args[3])
		if err != nil {
			return fmt.Errorf("suspending user: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("user %q not found", os.Args[3])
		}
		fmt.Printf("Suspended user %s\n", os.Args[3])

	case "unsuspend":
		if len(os.Args) < 4 {
			return fmt.Errorf("usage: amityvox admin unsuspend <username>")
		}
		tag, err := db.Pool.Exec(ctx,
			`UPDATE users SET flags = flags & ~$1 WHERE username = $2`,
			models.UserFlagSuspended, os.Args[3])
		if err != nil {
			return fmt.Errorf("unsuspending user: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("user %q not found", os.Args[3])
		}
		fmt.Printf("Unsuspended user %s\n", os.Args[3])

	case "set-admin":
		if len(os.Args) < 4 {
			return fmt.Errorf("usage: amityvox admin set-admin <username>")
		}
		tag, err := db.Pool.Exec(ctx,
			`UPDATE users SET flags = flags | $1 WHERE username = $2`,
			models.UserFlagAdmin, os.Args[3])
		if err != nil {
			return fmt.Errorf("setting admin: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("user %q not found", os.Args[3])
		}
		fmt.Printf("Granted admin to %s\n", os.Args[3])

	case "unset-admin":
		if len(os.Args) < 4 {
			return fmt.Errorf("usage: amityvox admin unset-admin <username>")
		}
		tag, err := db.Pool.Exec(ctx,
			`UPDATE users SET flags = flags & ~$1 WHERE username = $2`,
			models.UserFlagAdmin, os.Args[3])
		if err != nil {
			return fmt.Errorf("unsetting admin: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("user %q not found", os.Args[3])
		}
		fmt.Printf("Removed admin from %s\n", os.Args[3])

	case "list-users":
		rows, err := db.Pool.Query(ctx,
			`SELECT id, username, display_name, email, flags, created_at FROM users ORDER BY created_at`)
		if err != nil {
			return fmt.Errorf("listing users: %w", err)
		}
		defer rows.Close()

		fmt.Printf("%-28s %-20s %-20s %-30s %6s %s\n", "ID", "Username", "DisplayName", "Email", "Flags", "Created")
		fmt.Println(strings.Repeat("-", 130))
		for rows.Next() {
			var id, username string
			var displayName, email *string
			var flags int
			var createdAt time.Time
			if err := rows.Scan(&id, &username, &displayName, &email, &flags, &createdAt); err != nil {
				return fmt.Errorf("scanning user: %w", err)
			}
			dn := ""
			if displayName != nil {
				dn = *displayName
			}
			em := ""
			if email != nil {
				em = *email
			}
			fmt.Printf("%-28s %-20s %-20s %-30s %6d %s\n", id, username, dn, em, flags, createdAt.Format(time.RFC3339))
		}

	default:
		return fmt.Errorf("unknown admin action: %s", os.Args[2])
	}

	return nil
}

// runVersion prints version information and exits.
func runVersion() {
	fmt.Printf("AmityVox Gateway %s\n", version)
	fmt.Printf("  commit:     %s\n", commit)
	fmt.Printf("  built:      %s\n", buildDate)
}

// configPath returns the config file path from AMITYVOX_CONFIG_PATH env var
// or the default "amityvox.toml".
func configPath() string {
	if p := os.Getenv("AMITYVOX_CONFIG_PATH"); p != "" {
		return p
	}
	return "amityvox.toml"
}

// setupLogger creates a slog.Logger with the given level and format.
func setupLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
