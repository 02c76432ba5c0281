// Package cmd provides the paperchat CLI commands.
//
// Commands:
//   - serve: HTTP API server for the chat core
//   - migrate: apply database migrations and exit
//
// Signal handling and graceful shutdown are implemented for serve via
// context cancellation.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
)

// Execute is the main entry point for the paperchat application.
func Execute() error {
	// Initialize logger once at entry point
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if len(os.Args) < 2 {
		runHelp()
		return nil
	}

	switch os.Args[1] {
	case "serve":
		return runServe(os.Args[2:])
	case "migrate":
		return runMigrate()
	case "version", "--version", "-v":
		runVersion()
		return nil
	case "help", "--help", "-h":
		runHelp()
		return nil
	default:
		return fmt.Errorf("unknown command: %s", os.Args[1])
	}
}

// runHelp displays the help message.
func runHelp() {
	fmt.Println("paperchat - conversational access to a corpus of NLP papers")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  paperchat serve [addr]   Start the HTTP API server (default: :8080)")
	fmt.Println("  paperchat serve --memory Serve with the in-memory store (no database)")
	fmt.Println("  paperchat migrate        Apply database migrations and exit")
	fmt.Println("  paperchat --version      Show version information")
	fmt.Println("  paperchat --help         Show this help")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  DATABASE_URL             Optional: overrides the configured PostgreSQL connection")
	fmt.Println("  PAPERCHAT_RATE_BURST     Optional: per-IP rate limiter burst size")
	fmt.Println("  DEBUG                    Optional: enable debug logging")
	fmt.Println()
	fmt.Println("Configuration is read from ~/.paperchat/config.yaml, overridable via")
	fmt.Println("PAPERCHAT_* environment variables.")
}
