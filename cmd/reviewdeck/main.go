package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"

	"reviewdeck/internal/handler"
	appI18n "reviewdeck/internal/i18n"
	"reviewdeck/internal/llm"
	"reviewdeck/internal/model"
	"reviewdeck/internal/realtime"
	"reviewdeck/internal/session"
	"reviewdeck/internal/store"
)

func main() {
	// A .env file is a convenience for local runs; absence is fine.
	_ = godotenv.Load()
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "reviewdeck",
		Short: "Assessment-management console for student reviews",
	}

	serve := serveCmd()
	root.AddCommand(serve, addUserCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP console server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "reviewdeck.db", "SQLite database path")
	f.StringSliceP("questions", "q", nil, "Paths to question pool JSON files to import on first run (repeatable)")
	f.StringP("lang", "l", "en", "Console message language (en, ru)")
	f.Bool("secure-cookies", true, "Set Secure flag on session cookies")
	f.Bool("sync", true, "Mirror grading sessions across devices")
	f.String("llm-url", "", "OpenAI-compatible API base URL for guidance drafting (empty = disabled)")
	f.String("llm-key", "", "API key for guidance drafting")
	f.String("llm-model", "llama3.2", "Model name for guidance drafting")
	f.String("admin-password", "", "Initial admin password (or set REVIEWDECK_ADMIN_PASSWORD)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func addUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "adduser USERNAME",
		Short: "Create a console user",
		Args:  cobra.ExactArgs(1),
		RunE:  runAddUser,
	}
	f := cmd.Flags()
	f.String("db", "reviewdeck.db", "SQLite database path")
	f.String("display-name", "", "Display name (defaults to the username)")
	f.String("role", string(model.UserRoleProctor), "Role (proctor, admin)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("REVIEWDECK")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("reviewdeck")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/reviewdeck")
	v.AddConfigPath("/etc/reviewdeck")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := seedAdmin(db, v.GetString("admin-password")); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	if err := importQuestions(db, v.GetStringSlice("questions")); err != nil {
		return fmt.Errorf("import questions: %w", err)
	}
	if err := db.CleanupExpiredSessions(); err != nil {
		slog.Warn("auth session cleanup failed", "error", err)
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	var llmClient *llm.Client
	if url := v.GetString("llm-url"); url != "" {
		llmClient = llm.New(url, v.GetString("llm-key"), v.GetString("llm-model"))
		if err := llmClient.Ping(cmd.Context()); err != nil {
			return fmt.Errorf("LLM health check: %w", err)
		}
		slog.Info("guidance drafting enabled", "url", url, "model", v.GetString("llm-model"))
	}

	snapshots := session.NewSnapshots(db)
	finalizer := session.NewFinalizer(db, snapshots)

	var newMirror session.MirrorFactory
	if v.GetBool("sync") {
		docs := realtime.NewMemoryStore()
		newMirror = func(reviewID int64, m *session.Machine) session.Mirror {
			return realtime.NewMirror(docs, reviewID, m)
		}
	}
	sessions := session.NewManager(db, snapshots, finalizer, newMirror)
	defer sessions.Shutdown()

	h := handler.New(db, sessions, llmClient, v.GetBool("secure-cookies"))

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))
	h.Routes(r)

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"db", v.GetString("db"),
		"lang", lang,
		"sync", v.GetBool("sync"),
	)
	return http.ListenAndServe(addr, r)
}

func runAddUser(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	role := model.UserRole(v.GetString("role"))
	if role != model.UserRoleProctor && role != model.UserRoleAdmin {
		return fmt.Errorf("invalid role %q", role)
	}

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	fmt.Fprint(os.Stderr, "Password: ")
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}
	if len(password) == 0 {
		return fmt.Errorf("password must not be empty")
	}

	hash, err := bcrypt.GenerateFromPassword(password, bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	username := args[0]
	displayName := v.GetString("display-name")
	if displayName == "" {
		displayName = username
	}

	_, err = db.CreateUser(model.User{
		Username:     username,
		DisplayName:  displayName,
		PasswordHash: string(hash),
		Role:         role,
		Active:       true,
	})
	return err
}

// questionImport is the question pool file entry format.
type questionImport struct {
	Text     string `json:"text"`
	ModuleID int    `json:"module_id"`
	Answer   string `json:"answer"`
}

// importQuestions loads system questions from JSON files on first run. A
// non-empty pool skips the import so existing sessions keep their cursor
// positions.
func importQuestions(db *store.Store, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	count, err := db.QuestionCount()
	if err != nil {
		return err
	}
	if count > 0 {
		slog.Info("question pool already populated, skipping import")
		return nil
	}

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		var questions []questionImport
		if err := json.Unmarshal(data, &questions); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		for _, qi := range questions {
			if qi.Text == "" || qi.ModuleID < 1 {
				continue
			}
			if _, err := db.InsertQuestion(model.Question{
				ModuleID: qi.ModuleID,
				Text:     qi.Text,
				Answer:   qi.Answer,
			}); err != nil {
				return fmt.Errorf("insert question from %s: %w", path, err)
			}
		}
		slog.Info("imported questions", "path", path, "count", len(questions))
	}
	return nil
}

func seedAdmin(db *store.Store, password string) error {
	count, err := db.UserCount()
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	if password == "" {
		return fmt.Errorf("admin password is required: set --admin-password flag or REVIEWDECK_ADMIN_PASSWORD env var")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	_, err = db.CreateUser(model.User{
		Username:     "admin",
		DisplayName:  "Administrator",
		PasswordHash: string(hash),
		Role:         model.UserRoleAdmin,
		Active:       true,
	})
	if err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}

	slog.Info("seeded default admin user", "username", "admin")
	return nil
}
