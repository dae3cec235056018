package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	_ "time/tzdata"

	"github.com/udit-pandey/kairon/internal/chathistory"
	"github.com/udit-pandey/kairon/internal/config"
	"github.com/udit-pandey/kairon/internal/endpoint"
	"github.com/udit-pandey/kairon/internal/server"
	"github.com/udit-pandey/kairon/internal/store"
	"github.com/udit-pandey/kairon/internal/trainingdata"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = ""
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "serve":
			runServe(os.Args[2:])
			return
		case "load":
			runLoad(os.Args[2:])
			return
		case "token":
			runToken(os.Args[2:])
			return
		case "version", "--version", "-v":
			fmt.Printf("kairon %s (commit %s, built %s)\n",
				version, commit, buildDate)
			return
		case "help", "--help", "-h":
			printUsage()
			return
		}
	}

	runServe(os.Args[1:])
}

func printUsage() {
	fmt.Printf(`kairon %s - conversation history and analytics server

Stores tracker events in SQLite, serves per-tenant chat history and
aggregate metrics, and proxies tenants whose history lives on a
remote peer instance.

Usage:
  kairon [flags]          Start the server (default command)
  kairon serve [flags]    Start the server (explicit)
  kairon load [flags]     Import tracker events from a JSONL file
  kairon token <value>    Persist the expected auth token
  kairon version          Show version information
  kairon help             Show this help

Server flags:
  -host string        Host to bind to (default "127.0.0.1")
  -port int           Port to listen on (default 8080)
  -data-dir string    Data directory (database, config)
  -auth-token string  Expected bearer token (empty = open)
  -tenant string      Default tenant id (default "default")

Load flags:
  -file string        JSONL file to import (required)
  -tenant string      Tenant for lines that carry no tenant_id

Environment variables:
  KAIRON_HOST             Host to bind to
  KAIRON_PORT             Port to listen on
  KAIRON_DATA_DIR         Data directory (database, config)
  KAIRON_AUTH_TOKEN       Expected bearer token
  KAIRON_DEFAULT_TENANT   Default tenant id

Data is stored in ~/.kairon/ by default.
`, version)
}

func runServe(args []string) {
	cfg := mustLoadConfig(args)

	// Opening the store up front creates the data dir and schema so
	// the per-request engines only ever see an initialized file.
	db, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	db.Close()

	resolver, err := endpoint.NewResolver(cfg.TenantsPath, endpoint.Descriptor{
		Mode: endpoint.ModeLocal,
		DB:   cfg.DBPath,
	})
	if err != nil {
		log.Fatalf("Failed to load tenant endpoints: %v", err)
	}
	if err := resolver.Watch(); err != nil {
		log.Printf("Endpoint file watcher unavailable: %v", err)
	}
	defer resolver.Close()

	training, err := trainingdata.NewFileStore(cfg.TrainingPath)
	if err != nil {
		log.Fatalf("Failed to load training examples: %v", err)
	}
	if err := training.Watch(); err != nil {
		log.Printf("Training file watcher unavailable: %v", err)
	}
	defer training.Close()

	facade := chathistory.New(resolver, training)
	srv := server.New(cfg, facade)

	port := server.FindAvailablePort(cfg.Host, cfg.Port)
	if port != cfg.Port {
		log.Printf("Port %d unavailable, using %d", cfg.Port, port)
		srv.SetPort(port)
	}

	if err := srv.ListenAndServe(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func runLoad(args []string) {
	fs := flag.NewFlagSet("load", flag.ExitOnError)
	file := fs.String("file", "", "JSONL file to import (required)")
	fs.String("data-dir", "", "Data directory (database, config)")
	fs.String("tenant", "", "Tenant for lines that carry no tenant_id")
	fs.Parse(args)

	if *file == "" {
		fmt.Fprintln(os.Stderr, "load: -file is required")
		fs.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(fs)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	stats, err := db.ImportJSONL(*file, cfg.DefaultTenant)
	if err != nil {
		log.Fatalf("Import failed: %v", err)
	}
	fmt.Printf("Imported %d events across %d sessions (%d lines skipped)\n",
		stats.Events, stats.Sessions, stats.Skipped)
}

func runToken(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: kairon token <value>")
		os.Exit(2)
	}
	cfg, err := config.Load(nil)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.SaveAuthToken(args[0]); err != nil {
		log.Fatalf("Failed to save token: %v", err)
	}
	fmt.Println("Auth token saved.")
}

func mustLoadConfig(args []string) config.Config {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	config.RegisterServeFlags(fs)
	fs.Parse(args)

	cfg, err := config.Load(fs)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}
