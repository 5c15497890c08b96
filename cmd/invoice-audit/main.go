package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/invoice-audit/internal/backoffice"
	"github.com/zombor/invoice-audit/internal/ledger"
	"github.com/zombor/invoice-audit/internal/scanning"
	"github.com/zombor/invoice-audit/internal/scanning/azure"
	"github.com/zombor/invoice-audit/internal/scanning/tesseract"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	// A .env file is optional; real environment variables win
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "error: loading .env: %v\n", err)
		os.Exit(1)
	}

	flags := ff.NewFlagSet("invoice-audit")
	var (
		port          = flags.IntLong("port", 8080, "HTTP server port")
		backend       = flags.StringLong("backend", "bolt", "Storage backend: 'bolt', 'sqlite' or 'postgres'")
		dbPath        = flags.StringLong("db", "invoice-audit.db", "Database file path (bolt and sqlite)")
		databaseURL   = flags.StringLong("database-url", "", "PostgreSQL connection string (postgres backend)")
		storagePath   = flags.StringLong("storage", "./invoices", "Directory for original invoice files")
		recognizerArg = flags.StringLong("recognizer", "tesseract", "Text recognizer: 'tesseract', 'gemini', 'ollama' or 'azure'")
		tesseractLang = flags.StringLong("tesseract-lang", "fra+eng", "Tesseract languages, joined with '+'")
		geminiKey     = flags.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel   = flags.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		ollamaURL     = flags.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel   = flags.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, qwen2-vl)")
		azureEndpoint = flags.StringLong("azure-endpoint", "", "Azure Computer Vision endpoint")
		azureKey      = flags.StringLong("azure-key", "", "Azure Computer Vision key")
		azureLanguage = flags.StringLong("azure-language", "fr", "Azure OCR language code ('unk' to detect)")
		ocrTimeout    = flags.DurationLong("ocr-timeout", 2*time.Minute, "Maximum time spent on OCR per upload")
		logLevel      = flags.StringLong("log-level", "info", "Log level: debug, info, warn or error")
		authUser      = flags.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass      = flags.StringLong("auth-pass", "", "Basic auth password (optional)")
		showVersion   = flags.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(flags, os.Args[1:],
		ff.WithEnvVarPrefix("INVOICE_AUDIT"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(flags))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		fmt.Fprintf(os.Stderr, "error: invalid log level %q\n", *logLevel)
		os.Exit(1)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// Initialize database
	logger.Info("Initializing database...", "backend", *backend)
	db, err := openDB(*backend, *dbPath, *databaseURL)
	if err != nil {
		logger.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Initialize recognizer based on type
	recognizer, err := newRecognizer(logger, *recognizerArg, recognizerConfig{
		tesseractLang: *tesseractLang,
		geminiKey:     *geminiKey,
		geminiModel:   *geminiModel,
		ollamaURL:     *ollamaURL,
		ollamaModel:   *ollamaModel,
		azureEndpoint: *azureEndpoint,
		azureKey:      *azureKey,
		azureLanguage: *azureLanguage,
	})
	if err != nil {
		logger.Error("Failed to initialize recognizer", "recognizer", *recognizerArg, "error", err)
		os.Exit(1)
	}
	defer recognizer.Close()

	// Initialize storage
	logger.Info("Initializing storage...", "path", *storagePath)
	store, err := backoffice.NewLocalStorage(*storagePath)
	if err != nil {
		logger.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	pipeline := scanning.NewPipeline(recognizer, logger)
	service := backoffice.NewService(db, pipeline, store, logger)
	service.SetOCRTimeout(*ocrTimeout)

	basicAuth := backoffice.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := backoffice.NewServer(service, basicAuth, logger)

	if *authUser != "" || *authPass != "" {
		logger.Info("Basic auth enabled", "user", *authUser)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := fmt.Sprintf(":%d", *port)
	if err := server.Run(ctx, addr); err != nil {
		logger.Error("Server error", "error", err)
		os.Exit(1)
	}
	logger.Info("Shut down")
}

func openDB(backend, path, url string) (ledger.DB, error) {
	switch backend {
	case "bolt":
		return ledger.NewBoltDB(path)
	case "sqlite":
		return ledger.OpenSQLite(path)
	case "postgres":
		if url == "" {
			return nil, fmt.Errorf("--database-url is required for the postgres backend")
		}
		return ledger.OpenPostgres(url)
	default:
		return nil, fmt.Errorf("unknown backend %q (valid: bolt, sqlite, postgres)", backend)
	}
}

type recognizerConfig struct {
	tesseractLang string
	geminiKey     string
	geminiModel   string
	ollamaURL     string
	ollamaModel   string
	azureEndpoint string
	azureKey      string
	azureLanguage string
}

func newRecognizer(logger *slog.Logger, kind string, cfg recognizerConfig) (scanning.Recognizer, error) {
	switch kind {
	case "tesseract":
		logger.Info("Initializing Tesseract recognizer...", "languages", cfg.tesseractLang)
		return tesseract.New(cfg.tesseractLang)
	case "gemini":
		// Get Gemini API key from flag or environment
		apiKey := cfg.geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("gemini API key is required: set --gemini-key or GEMINI_API_KEY")
		}
		logger.Info("Initializing Gemini recognizer...", "model", cfg.geminiModel)
		return scanning.NewGemini(apiKey, cfg.geminiModel)
	case "ollama":
		logger.Info("Initializing Ollama recognizer...", "url", cfg.ollamaURL, "model", cfg.ollamaModel)
		return scanning.NewOllama(cfg.ollamaURL, cfg.ollamaModel)
	case "azure":
		logger.Info("Initializing Azure recognizer...", "endpoint", cfg.azureEndpoint, "language", cfg.azureLanguage)
		return azure.New(cfg.azureEndpoint, cfg.azureKey, cfg.azureLanguage)
	default:
		return nil, fmt.Errorf("unknown recognizer %q (valid: tesseract, gemini, ollama, azure)", kind)
	}
}
