// Package main is the tutor CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/tutor/internal/cli"
	"github.com/hyperjump/tutor/internal/config"
	"github.com/hyperjump/tutor/internal/ingest"
	"github.com/hyperjump/tutor/internal/models"
	"github.com/hyperjump/tutor/internal/server"
	"github.com/hyperjump/tutor/internal/watcher"
	"github.com/hyperjump/tutor/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "config.yaml"

// loadConfig loads config from path. A missing file at the default path is not an error:
// defaults and the environment are used instead, so a bare .env is enough to run.
// Returns the config and the path that was actually loaded ("" when none).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			cfg, err := config.Load("")
			return cfg, "", err
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "ingest":
		runIngest()
	case "search":
		runSearch()
	case "ask":
		runAsk()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("tutor version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// setup loads config, builds the logger and all components, exiting on failure.
func setup(configPath string, debugFlag bool) (*config.Config, *zap.Logger, *Components) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || debugFlag
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	logger.Debug("config loaded", zap.String("config_path", resolved), zap.Bool("debug", debugMode))

	components, err := initializeComponents(cfg, logger, debugMode)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	return cfg, logger, components
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	watch := fs.Bool("watch", false, "re-ingest docs_dir files when they change (overrides ingest.watch)")
	_ = fs.Parse(os.Args[2:])

	cfg, logger, components := setup(*configPath, *debug)
	defer logger.Sync()
	defer components.Close()

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if (cfg.Ingest.Watch || *watch) && components.Ingester != nil {
		w, err := watcher.New(cfg.Ingest.DocsDir, cfg.Ingest.Extensions, watcher.IngestHandler{
			Root:     cfg.Ingest.DocsDir,
			Ingester: components.Ingester,
			Logger:   logger,
		}, watcher.WithLogger(logger))
		if err != nil {
			logger.Fatal("Failed to create watcher", zap.Error(err))
		}
		if err := w.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		defer w.Stop()
		logger.Info("watching docs", zap.String("dir", w.Root()))
	}

	srv := server.NewServer(components.ServerDeps(), cfg, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	root := fs.String("root", "", "directory sources are made relative to (default: the docs_dir, or the argument itself when it is a directory)")
	_ = fs.Parse(searchArgsReorder(os.Args[2:]))

	cfg, logger, components := setup(*configPath, *debug)
	defer logger.Sync()
	defer components.Close()
	if components.Ingester == nil {
		fmt.Println("Ingestion needs the vector strategy: set OPENAI_API_KEY or retrieval.backend: vector")
		os.Exit(1)
	}

	target := cfg.Ingest.DocsDir
	if fs.NArg() > 0 {
		target = fs.Arg(0)
	}
	info, err := os.Stat(target)
	if err != nil {
		fmt.Printf("Failed to stat %s: %v\n", target, err)
		os.Exit(1)
	}

	ctx := context.Background()
	if info.IsDir() {
		sum, err := components.Ingester.IngestDirectory(ctx, target, cfg.Ingest.Extensions)
		if err != nil {
			fmt.Printf("Ingestion failed after %d files: %v\n", sum.Files, err)
			os.Exit(1)
		}
		fmt.Printf("Ingested %d files (%d chunks) from %s\n", sum.Files, sum.Chunks, target)
		return
	}

	base := *root
	if base == "" {
		base = cfg.Ingest.DocsDir
		if _, _, err := ingest.SourceFor(base, target); err != nil {
			base = filepath.Dir(target)
		}
	}
	res, err := components.Ingester.IngestFile(ctx, base, target)
	if err != nil {
		fmt.Printf("Ingestion failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Ingested %d chunks from %s\n", res.Chunks, res.Source)
}

func printSearchUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: tutor search [flags] <query>\n\n")
	fmt.Fprintf(fs.Output(), "Query is all remaining arguments joined by spaces.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Examples:
  tutor search what is lidar
  tutor search --limit 3 --output json "inverse kinematics"
  tutor search --server http://localhost:8000 ros2 topics
`)
}

// buildSearchQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// searchArgsReorder moves any flags (and their values) that appear after the positional
// arguments to the front so flag.Parse sees them; the flag package stops at the first
// non-flag argument.
func searchArgsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "", "query a running server instead of building components locally")
	limit := fs.Int("limit", 0, "number of results (default: retrieval.default_limit)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	debug := fs.Bool("debug", false, "enable debug logging")
	fs.Usage = func() { printSearchUsage(fs) }
	_ = fs.Parse(searchArgsReorder(os.Args[2:]))

	query := models.SearchQuery{Query: buildSearchQuery(fs.Args()), Limit: *limit}
	if query.Query == "" {
		printSearchUsage(fs)
		os.Exit(1)
	}
	format, err := cli.ParseFormat(*outputFormat)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	if *serverURL != "" {
		res, err := searchViaHTTP(*serverURL, &query)
		if err != nil {
			fmt.Printf("Search failed: %v\n", err)
			os.Exit(1)
		}
		_ = cli.WriteSearchResults(os.Stdout, *res, format)
		return
	}

	cfg, logger, components := setup(*configPath, *debug)
	defer logger.Sync()
	defer components.Close()
	if err := query.Validate(cfg.Retrieval.DefaultLimit, cfg.Retrieval.MaxLimit); err != nil {
		fmt.Printf("Search failed: %v\n", err)
		os.Exit(1)
	}
	results, err := components.Retriever.Retrieve(context.Background(), query.Query, query.Limit)
	if err != nil {
		fmt.Printf("Search failed: %v\n", err)
		os.Exit(1)
	}
	_ = cli.WriteSearchResults(os.Stdout, cli.SearchResults{
		Query:   query.Query,
		Backend: components.Retriever.Name(),
		Results: results,
	}, format)
}

// searchViaHTTP posts the query to a running server's /api/search.
func searchViaHTTP(serverURL string, query *models.SearchQuery) (*cli.SearchResults, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}
	client := &http.Client{Timeout: 60 * time.Second}
	resp, err := client.Post(strings.TrimRight(serverURL, "/")+"/api/search", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, e.Error)
		}
		return nil, fmt.Errorf("server returned %d", resp.StatusCode)
	}
	var out cli.SearchResults
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	out.Query = query.Query
	return &out, nil
}

func runAsk() {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	selection := fs.String("selection", "", "selected passage to ask about; answers from it alone")
	outputFormat := fs.String("output", "text", "output format: text or json")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(searchArgsReorder(os.Args[2:]))

	question := buildSearchQuery(fs.Args())
	if question == "" {
		fmt.Println("Usage: tutor ask [flags] <question>")
		os.Exit(1)
	}
	format, err := cli.ParseFormat(*outputFormat)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	_, logger, components := setup(*configPath, *debug)
	defer logger.Sync()
	defer components.Close()

	ctx := context.Background()
	answer := components.Chat.Answer
	if *selection != "" {
		answer = components.Chat.AnswerSelection
	}
	ans, err := answer(ctx, question, *selection)
	if err != nil {
		fmt.Printf("Ask failed: %v\n", err)
		os.Exit(1)
	}
	_ = cli.WriteAnswer(os.Stdout, ans, format)
}

var statusKeys = []string{
	"retrieval_backend", "vector_backend", "collection", "dimension", "records",
	"embedding_model", "chat_model", "chunk_size", "chunk_overlap", "docs_dir",
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseFormat(*outputFormat)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	cfg, logger, components := setup(*configPath, false)
	defer logger.Sync()
	defer components.Close()

	status := map[string]interface{}{
		"retrieval_backend": components.Retriever.Name(),
		"chat_model":        cfg.Generation.Model,
		"chunk_size":        cfg.Chunking.Size,
		"chunk_overlap":     cfg.Chunking.Overlap,
		"docs_dir":          cfg.Ingest.DocsDir,
	}
	if col := components.Collection; col != nil {
		status["vector_backend"] = col.Index().Backend()
		status["collection"] = col.Name()
		status["dimension"] = col.Dimension()
		status["embedding_model"] = cfg.Embedding.Model
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if n, err := col.Count(ctx); err != nil {
			status["records"] = "unavailable: " + err.Error()
		} else {
			status["records"] = n
		}
	}
	_ = cli.WriteStatus(os.Stdout, status, statusKeys, format)
}

func printUsage() {
	fmt.Println(`tutor - retrieval-augmented tutor for the Physical AI textbook

Usage:
  tutor server [flags]             Start the HTTP API
  tutor ingest [flags] [path]      Ingest a file or directory (default: ingest.docs_dir)
  tutor search [flags] <query>     Retrieve passages for a query
  tutor ask [flags] <question>     Answer a question from the textbook
  tutor status [flags]             Show backends, collection and record count
  tutor version                    Print version
  tutor help                       Show this help

Common flags:
  -config string   config file path (default "config.yaml"; missing file means defaults + environment)
  -debug           enable debug logging

Environment:
  OPENAI_API_KEY, OPENAI_BASE_URL, OPENAI_EMBEDDING_MODEL, OPENAI_CHAT_MODEL,
  QDRANT_URL, QDRANT_API_KEY, QDRANT_COLLECTION_NAME, DOCS_DIR, TUTOR_DEBUG
  A .env file next to the config file is loaded first.`)
}
