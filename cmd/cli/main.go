package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"fitness-whoop-sync/internal/config"
	"fitness-whoop-sync/internal/database"
	syncer "fitness-whoop-sync/internal/sync"
	"fitness-whoop-sync/internal/whoop"
)

func main() {
	// Disable structured logging for CLI
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError, // Only show errors
	})))

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	if command == "help" {
		printUsage()
		return
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Open database
	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	switch command {
	case "connections":
		handleConnections(db)
	case "status":
		handleStatus(db)
	case "queue":
		handleQueue(db)
	case "enqueue":
		handleEnqueue(db)
	case "sync":
		handleSync(db, cfg)
	default:
		fmt.Fprintf(os.Stderr, "Error: Unknown command '%s'\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`fitness-whoop-sync CLI - Sync Administration

Usage:
  cli <command> [options]

Commands:
  connections             List connected WHOOP users
  status <user_id>        Show recent sync passes for a user
  queue                   Show sync job queue depths
  enqueue <user_id> [job_type]  Queue a sync job (default: sync_all)
  sync <user_id> [kind]   Run a sync immediately (kind: all, profile,
                          cycle, sleep, recovery or workout)
  help                    Show this help message

Examples:
  cli connections
  cli status 10129
  cli enqueue 10129 sync_workout
  cli sync 10129 cycle

Environment Variables Required:
  WHOOP_CLIENT_ID       - WHOOP application client ID
  WHOOP_CLIENT_SECRET   - WHOOP application client secret
  WHOOP_REDIRECT_URI    - OAuth redirect URI
  INTERNAL_API_KEY      - Key for the internal sync API
  DATABASE_PATH         - SQLite database file (default: ./data.db)`)
}

func parseUserID(arg string) int64 {
	var userID int64
	if _, err := fmt.Sscanf(arg, "%d", &userID); err != nil || userID <= 0 {
		fmt.Fprintf(os.Stderr, "Error: Invalid user ID: %s\n", arg)
		os.Exit(1)
	}
	return userID
}

func handleConnections(db *database.DB) {
	conns, err := db.ListConnections()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to list connections: %v\n", err)
		os.Exit(1)
	}

	if len(conns) == 0 {
		fmt.Println("No connected users found.")
		return
	}

	fmt.Printf("Found %d connection(s):\n\n", len(conns))
	for _, c := range conns {
		expires := time.Unix(c.ExpiresAt, 0).Format(time.RFC3339)
		fmt.Printf("User ID: %d\n", c.UserID)
		fmt.Printf("  Provider: %s (provider user %d)\n", c.Provider, c.ProviderUserID)
		fmt.Printf("  Scope: %s\n", c.Scope)
		fmt.Printf("  Token Expires: %s\n", expires)
		fmt.Println()
	}
}

func handleStatus(db *database.DB) {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "Error: User ID required")
		fmt.Fprintln(os.Stderr, "Usage: cli status <user_id>")
		os.Exit(1)
	}
	userID := parseUserID(os.Args[2])

	entries, err := db.ListSyncHistory(userID, 20)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to load sync history: %v\n", err)
		os.Exit(1)
	}

	if len(entries) == 0 {
		fmt.Printf("No sync passes recorded for user %d.\n", userID)
		return
	}

	fmt.Printf("Recent sync passes for user %d:\n\n", userID)
	for _, e := range entries {
		fmt.Printf("%s  %-8s  inserted=%d  %dms",
			e.StartedAt.Format(time.RFC3339), e.Kind, e.Inserted, e.DurationMs)
		if e.Error != nil {
			fmt.Printf("  FAILED: %s", *e.Error)
		}
		fmt.Println()
	}
}

func handleQueue(db *database.DB) {
	total, err := db.GetSyncJobQueueLength()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to read queue: %v\n", err)
		os.Exit(1)
	}
	ready, err := db.GetReadySyncJobQueueLength()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to read queue: %v\n", err)
		os.Exit(1)
	}
	processing, err := db.GetProcessingSyncJobQueueLength()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to read queue: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Sync job queue:")
	fmt.Printf("  Total:      %d\n", total)
	fmt.Printf("  Ready:      %d\n", ready)
	fmt.Printf("  Processing: %d\n", processing)
}

func handleEnqueue(db *database.DB) {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "Error: User ID required")
		fmt.Fprintln(os.Stderr, "Usage: cli enqueue <user_id> [job_type]")
		os.Exit(1)
	}
	userID := parseUserID(os.Args[2])

	jobType := "sync_all"
	if len(os.Args) >= 4 {
		jobType = os.Args[3]
	}

	conn, err := db.GetConnection(userID, database.ProviderWhoop)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if conn == nil {
		fmt.Fprintf(os.Stderr, "Error: User %d is not connected\n", userID)
		os.Exit(1)
	}

	jobID, err := db.EnqueueSyncJob(userID, jobType)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to enqueue job: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✓ Queued %s job %d for user %d\n", jobType, jobID, userID)
}

func handleSync(db *database.DB, cfg *config.Config) {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "Error: User ID required")
		fmt.Fprintln(os.Stderr, "Usage: cli sync <user_id> [kind]")
		os.Exit(1)
	}
	userID := parseUserID(os.Args[2])

	kind := "all"
	if len(os.Args) >= 4 {
		kind = os.Args[3]
	}

	client := whoop.NewClient(cfg, db)
	s := syncer.NewSyncer(db, client)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	if kind == "all" {
		counts, err := s.SyncAll(ctx, userID)
		for k, n := range counts {
			fmt.Printf("  %s: %d inserted\n", k, n)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	} else {
		inserted, err := s.SyncKind(ctx, userID, syncer.Kind(kind), nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("  %s: %d inserted\n", kind, inserted)
	}

	fmt.Println("✓ Sync complete")
}
