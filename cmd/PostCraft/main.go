package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/BTreeMap/PostCraft/internal/api"
	"github.com/BTreeMap/PostCraft/internal/export"
	"github.com/BTreeMap/PostCraft/internal/gateway"
	"github.com/BTreeMap/PostCraft/internal/genai"
	"github.com/BTreeMap/PostCraft/internal/imagegen"
	"github.com/BTreeMap/PostCraft/internal/lockfile"
	"github.com/BTreeMap/PostCraft/internal/objectstore"
	"github.com/BTreeMap/PostCraft/internal/store"
	"github.com/BTreeMap/PostCraft/internal/supabase"
	"github.com/BTreeMap/PostCraft/internal/twiliowhatsapp"
	"github.com/BTreeMap/PostCraft/internal/util"
	"github.com/joho/godotenv"
	"github.com/mdp/qrterminal/v3"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for PostCraft state data
	DefaultStateDir = "/var/lib/postcraft"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "postcraft.db"
	// DefaultMediaDirName holds locally stored images when Supabase is not configured
	DefaultMediaDirName = "media"
)

// Datastore drivers accepted by -db-driver.
const (
	DriverSupabase = "supabase"
	DriverPgx      = "pgx"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

func main() {
	// Load environment configuration
	config := loadEnvironmentConfig()

	// Parse command line flags
	flags, err := parseCommandLineFlags(config, flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	// Initialize structured logger
	initializeLogger(flags.logLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, flags); err != nil {
		slog.Error("PostCraft failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("PostCraft exited successfully")
}

// Config holds environment configuration
type Config struct {
	LogLevel      string
	StateDir      string
	DbDriver      string
	DatabaseURL   string
	APIAddr       string
	PublicURL     string
	OpenRouterKey string
	OpenRouterURL string
	TextModel     string
	TextTemp      float64
	TextMaxTokens int64
	ImageBaseURL  string
	ImageModel    string
	SupabaseURL   string
	Bucket        string
	Table         string
	GenAIDebug    bool
}

// Flags holds command line flag values
type Flags struct {
	logLevel      string
	stateDir      string
	dbDriver      string
	dbDSN         string
	apiAddr       string
	publicURL     string
	openrouterKey string
	openrouterURL string
	textModel     string
	textTemp      float64
	textMaxTokens int64
	imageBaseURL  string
	imageModel    string
	bucket        string
	table         string
	genaiDebug    bool
	showQR        bool

	// supabaseURL is only taken from the environment.
	supabaseURL string
}

// initializeLogger sets up structured logging at the requested level
func initializeLogger(level string) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(level)}))
	slog.SetDefault(logger)
}

// parseLogLevel maps a level name to slog.Level, defaulting to debug.
func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelDebug
	}
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		LogLevel:      os.Getenv("LOG_LEVEL"),
		StateDir:      os.Getenv("POSTCRAFT_STATE_DIR"),
		DbDriver:      os.Getenv("DB_DRIVER"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		APIAddr:       os.Getenv("API_ADDR"),
		PublicURL:     os.Getenv("PUBLIC_URL"),
		OpenRouterKey: os.Getenv("OPENROUTER_API_KEY"),
		OpenRouterURL: os.Getenv("OPENROUTER_BASE_URL"),
		TextModel:     os.Getenv("TEXT_MODEL"),
		TextTemp:      util.ParseFloatEnv("TEXT_TEMPERATURE", 0),
		TextMaxTokens: util.ParseIntEnv("TEXT_MAX_TOKENS", 0),
		ImageBaseURL:  os.Getenv("IMAGE_BASE_URL"),
		ImageModel:    os.Getenv("IMAGE_MODEL"),
		SupabaseURL:   util.FirstEnv("SUPABASE_URL", "VITE_SUPABASE_URL"),
		Bucket:        os.Getenv("SUPABASE_BUCKET"),
		Table:         os.Getenv("SUPABASE_TABLE"),
		GenAIDebug:    util.ParseBoolEnv("GENAI_DEBUG", false),
	}

	// Set default state directory if not specified
	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No POSTCRAFT_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.APIAddr == "" {
		config.APIAddr = api.DefaultAddr
	}
	if config.Bucket == "" {
		config.Bucket = gateway.DefaultBucket
	}
	if config.Table == "" {
		config.Table = store.DefaultSupabaseTable
	}

	slog.Debug("environment variables loaded",
		"POSTCRAFT_STATE_DIR", config.StateDir,
		"DB_DRIVER", config.DbDriver,
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"API_ADDR", config.APIAddr,
		"PUBLIC_URL", config.PublicURL,
		"OPENROUTER_API_KEY_SET", config.OpenRouterKey != "",
		"SUPABASE_URL_SET", config.SupabaseURL != "",
		"GENAI_DEBUG", config.GenAIDebug)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config, fs *flag.FlagSet, args []string) (Flags, error) {
	var flags Flags
	fs.StringVar(&flags.logLevel, "log-level", config.LogLevel, "log level: debug, info, warn, error (overrides $LOG_LEVEL)")
	fs.StringVar(&flags.stateDir, "state-dir", config.StateDir, "state directory for PostCraft data (overrides $POSTCRAFT_STATE_DIR)")
	fs.StringVar(&flags.dbDriver, "db-driver", config.DbDriver, "datastore: supabase, pgx, postgres, sqlite or memory (overrides $DB_DRIVER)")
	fs.StringVar(&flags.dbDSN, "db-dsn", config.DatabaseURL, "database DSN (overrides $DATABASE_URL)")
	fs.StringVar(&flags.apiAddr, "api-addr", config.APIAddr, "API server address (overrides $API_ADDR)")
	fs.StringVar(&flags.publicURL, "public-url", config.PublicURL, "externally reachable base URL (overrides $PUBLIC_URL)")
	fs.StringVar(&flags.openrouterKey, "openrouter-api-key", config.OpenRouterKey, "OpenRouter API key (overrides $OPENROUTER_API_KEY)")
	fs.StringVar(&flags.openrouterURL, "openrouter-base-url", config.OpenRouterURL, "chat completion base URL (overrides $OPENROUTER_BASE_URL)")
	fs.StringVar(&flags.textModel, "text-model", config.TextModel, "text model (overrides $TEXT_MODEL)")
	fs.Float64Var(&flags.textTemp, "text-temperature", config.TextTemp, "sampling temperature, 0 for the provider default (overrides $TEXT_TEMPERATURE)")
	fs.Int64Var(&flags.textMaxTokens, "text-max-tokens", config.TextMaxTokens, "completion token cap, 0 for the provider default (overrides $TEXT_MAX_TOKENS)")
	fs.StringVar(&flags.imageBaseURL, "image-base-url", config.ImageBaseURL, "image provider base URL (overrides $IMAGE_BASE_URL)")
	fs.StringVar(&flags.imageModel, "image-model", config.ImageModel, "image model (overrides $IMAGE_MODEL)")
	fs.StringVar(&flags.bucket, "bucket", config.Bucket, "object storage bucket (overrides $SUPABASE_BUCKET)")
	fs.StringVar(&flags.table, "table", config.Table, "Supabase posts table (overrides $SUPABASE_TABLE)")
	fs.BoolVar(&flags.genaiDebug, "genai-debug", config.GenAIDebug, "write completion calls to <state-dir>/debug (overrides $GENAI_DEBUG)")
	fs.BoolVar(&flags.showQR, "qr", false, "print a QR code of the public URL on startup")

	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}
	flags.supabaseURL = config.SupabaseURL

	if flags.publicURL == "" {
		flags.publicURL = defaultPublicURL(flags.apiAddr)
	}
	flags.publicURL = strings.TrimRight(flags.publicURL, "/")

	switch flags.dbDriver {
	case "", DriverSupabase, DriverPgx, DriverPostgres, DriverSQLite, DriverMemory:
	default:
		return Flags{}, fmt.Errorf("unknown db driver %q", flags.dbDriver)
	}
	if flags.textTemp < 0 || flags.textTemp > 2 {
		return Flags{}, fmt.Errorf("text temperature %v out of range [0, 2]", flags.textTemp)
	}
	if flags.textMaxTokens < 0 {
		return Flags{}, fmt.Errorf("text max tokens %d must not be negative", flags.textMaxTokens)
	}

	slog.Debug("flags parsed",
		"stateDir", flags.stateDir,
		"dbDriver", flags.dbDriver,
		"dbDSN_set", flags.dbDSN != "",
		"apiAddr", flags.apiAddr,
		"publicURL", flags.publicURL,
		"openrouterKeySet", flags.openrouterKey != "",
		"textTemperature", flags.textTemp,
		"textMaxTokens", flags.textMaxTokens,
		"genaiDebug", flags.genaiDebug,
		"showQR", flags.showQR)

	return flags, nil
}

// defaultPublicURL derives a localhost URL from a listen address.
func defaultPublicURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "http://localhost" + addr
	}
	return "http://" + addr
}

// resolveDriver picks the datastore when -db-driver is not given: a Postgres DSN wins,
// then Supabase when configured, then SQLite in the state directory.
func resolveDriver(flags Flags) string {
	if flags.dbDriver != "" {
		return flags.dbDriver
	}
	if flags.dbDSN != "" {
		if store.DetectDSNType(flags.dbDSN) == "postgres" {
			return DriverPostgres
		}
		return DriverSQLite
	}
	if flags.supabaseURL != "" {
		return DriverSupabase
	}
	return DriverSQLite
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(flags Flags, driver string) []store.Option {
	var storeOpts []store.Option
	switch driver {
	case DriverPgx, DriverPostgres:
		slog.Debug("Configuring PostgreSQL store", "driver", driver, "dsn_set", flags.dbDSN != "")
		storeOpts = append(storeOpts, store.WithPostgresDSN(flags.dbDSN))
	case DriverSQLite:
		dsn := flags.dbDSN
		if dsn == "" {
			dsn = filepath.Join(flags.stateDir, DefaultDBFileName)
		}
		slog.Debug("Configuring SQLite store", "db_path", dsn)
		storeOpts = append(storeOpts, store.WithSQLiteDSN(dsn))
	}
	return storeOpts
}

// buildGenAIOptions constructs GenAI configuration options
func buildGenAIOptions(flags Flags) []genai.Option {
	genaiOpts := []genai.Option{
		genai.WithReferer(flags.publicURL),
		genai.WithStateDir(flags.stateDir),
		genai.WithDebugMode(flags.genaiDebug),
	}
	if flags.openrouterKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(flags.openrouterKey))
	}
	if flags.openrouterURL != "" {
		genaiOpts = append(genaiOpts, genai.WithBaseURL(flags.openrouterURL))
	}
	if flags.textModel != "" {
		genaiOpts = append(genaiOpts, genai.WithModel(flags.textModel))
	}
	if flags.textTemp > 0 {
		genaiOpts = append(genaiOpts, genai.WithTemperature(flags.textTemp))
	}
	if flags.textMaxTokens > 0 {
		genaiOpts = append(genaiOpts, genai.WithMaxTokens(flags.textMaxTokens))
	}
	return genaiOpts
}

// buildImageOptions constructs image provider options
func buildImageOptions(flags Flags) []imagegen.Option {
	var imageOpts []imagegen.Option
	if flags.imageBaseURL != "" {
		imageOpts = append(imageOpts, imagegen.WithBaseURL(flags.imageBaseURL))
	}
	if flags.imageModel != "" {
		imageOpts = append(imageOpts, imagegen.WithModel(flags.imageModel))
	}
	return imageOpts
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	apiOpts := []api.Option{
		api.WithPublicURL(flags.publicURL),
		api.WithSecureCookies(strings.HasPrefix(flags.publicURL, "https://")),
	}
	if flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(flags.apiAddr))
	}
	return apiOpts
}

// openStore opens the datastore selected by driver.
func openStore(ctx context.Context, flags Flags, driver string, supa *supabase.Client) (store.Store, error) {
	opts := buildStoreOptions(flags, driver)
	switch driver {
	case DriverSupabase:
		if supa == nil {
			return nil, errors.New("supabase driver selected but SUPABASE_URL is not set")
		}
		return store.NewSupabaseStore(supa, flags.table), nil
	case DriverPgx:
		return store.NewPgxStore(ctx, opts...)
	case DriverPostgres:
		return store.NewPostgresStore(opts...)
	case DriverMemory:
		slog.Warn("Using in-memory store; posts are lost on restart")
		return store.NewInMemoryStore(), nil
	default:
		return store.NewSQLiteStore(opts...)
	}
}

// buildSharer returns a Twilio sender when credentials are present, or nil.
func buildSharer() twiliowhatsapp.Sender {
	if os.Getenv("TWILIO_ACCOUNT_SID") == "" {
		slog.Debug("Twilio not configured, WhatsApp sharing disabled")
		return nil
	}
	client, err := twiliowhatsapp.NewClient()
	if err != nil {
		slog.Warn("Twilio client unavailable, WhatsApp sharing disabled", "error", err)
		return nil
	}
	return client
}

// run wires every component and serves until ctx is cancelled.
func run(ctx context.Context, flags Flags) error {
	if err := os.MkdirAll(flags.stateDir, store.DefaultDirPermissions); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	lock, err := lockfile.AcquireLock(flags.stateDir, flags.apiAddr)
	if err != nil {
		return err
	}
	defer lock.Release()

	var supa *supabase.Client
	if flags.supabaseURL != "" {
		supa, err = supabase.NewClient(supabase.WithURL(flags.supabaseURL))
		if err != nil {
			return fmt.Errorf("failed to create Supabase client: %w", err)
		}
	}

	driver := resolveDriver(flags)
	slog.Info("Opening datastore", "driver", driver)
	st, err := openStore(ctx, flags, driver, supa)
	if err != nil {
		return fmt.Errorf("failed to open datastore: %w", err)
	}
	defer st.Close()

	var objects objectstore.Store
	var exportOpts []export.Option
	var mediaDir string
	if supa != nil {
		objects = supa
		exportOpts = append(exportOpts, export.WithAllowedPrefix(supa.PublicURL(flags.bucket, "")))
	} else {
		mediaDir = filepath.Join(flags.stateDir, DefaultMediaDirName)
		local, err := objectstore.NewLocalStore(mediaDir, flags.publicURL+"/media")
		if err != nil {
			return fmt.Errorf("failed to create media store: %w", err)
		}
		objects = local
		exportOpts = append(exportOpts, export.WithLocalStore(local))
	}

	textClient, err := genai.NewClient(buildGenAIOptions(flags)...)
	if err != nil {
		return fmt.Errorf("failed to create text client: %w", err)
	}
	imageClient := imagegen.NewClient(buildImageOptions(flags)...)

	deps := api.Dependencies{
		Text:     gateway.NewTextGateway(textClient),
		Image:    gateway.NewImageGateway(imageClient, objects, gateway.WithBucket(flags.bucket)),
		Posts:    gateway.NewPostGateway(st),
		Exporter: export.NewExporter(exportOpts...),
		Sharer:   buildSharer(),
		MediaDir: mediaDir,
	}

	server, err := api.NewServer(deps, buildAPIOptions(flags)...)
	if err != nil {
		return err
	}

	slog.Info("Bootstrapping PostCraft", "public_url", flags.publicURL, "state_dir", flags.stateDir)
	if flags.showQR {
		qrterminal.GenerateHalfBlock(flags.publicURL, qrterminal.L, os.Stdout)
	}
	return server.Run(ctx)
}
