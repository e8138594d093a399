package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bobbyillbrian-max/family-ms/internal/access"
	"github.com/bobbyillbrian-max/family-ms/internal/blob"
	"github.com/bobbyillbrian-max/family-ms/internal/config"
	"github.com/bobbyillbrian-max/family-ms/internal/database"
	"github.com/bobbyillbrian-max/family-ms/internal/handlers"
	"github.com/bobbyillbrian-max/family-ms/internal/logging"
	"github.com/bobbyillbrian-max/family-ms/internal/metrics"
	"github.com/bobbyillbrian-max/family-ms/internal/repository"
	"github.com/bobbyillbrian-max/family-ms/internal/security"
	"github.com/bobbyillbrian-max/family-ms/internal/service"
)

const (
	shutdownTimeout      = 15 * time.Second
	limiterSweepInterval = 5 * time.Minute
	// login attempts per client IP per minute
	loginRateLimit = 10
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "familyvault",
	Short: "Family vault - shared family documents and photos",
	Long: `familyvault stores documents and photos for families.

A family signs in with a shared family password, then each member signs in
with their own password to upload, share and browse files.`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a TOML config file (default $FAMILYVAULT_CONFIG)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(familyCmd)
	rootCmd.AddCommand(blobCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app holds the process-wide dependencies built from the config
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *database.DB
}

func loadApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	db, err := database.InitializeWithConfig(cfg)
	if err != nil {
		logger.Sync()
		return nil, err
	}
	return &app{cfg: cfg, logger: logger, db: db}, nil
}

func (a *app) Close() {
	a.db.Close()
	a.logger.Sync()
}

func (a *app) passwordHashers() (family, member *security.PasswordHasher, err error) {
	family, err = security.NewPasswordHasher(security.FamilyDomain, a.cfg.BcryptCost)
	if err != nil {
		return nil, nil, err
	}
	member, err = security.NewPasswordHasher(security.MemberDomain, a.cfg.BcryptCost)
	if err != nil {
		return nil, nil, err
	}
	return family, member, nil
}

// tokenIssuer falls back to a random per-process secret, so tokens do not survive a restart
func (a *app) tokenIssuer() (*security.TokenIssuer, error) {
	secret := []byte(a.cfg.Token.Secret)
	if len(secret) == 0 {
		a.logger.Warn("token secret not configured, generating an ephemeral one")
		secret = securecookie.GenerateRandomKey(security.MinTokenSecretLength)
	}
	return security.NewTokenIssuer(secret, a.cfg.Token.Issuer, a.cfg.SessionDuration)
}

func (a *app) familySessions() *security.FamilySessions {
	hashKey, _ := hex.DecodeString(a.cfg.Cookie.HashKey)
	blockKey, _ := hex.DecodeString(a.cfg.Cookie.BlockKey)
	if len(hashKey) == 0 {
		a.logger.Warn("cookie keys not configured, generating ephemeral ones")
		hashKey = securecookie.GenerateRandomKey(32)
		blockKey = securecookie.GenerateRandomKey(32)
	}
	return security.NewFamilySessions(hashKey, blockKey, a.cfg.SessionDuration)
}

func (a *app) identityService() (*service.IdentityService, *security.TokenIssuer, error) {
	familyHasher, memberHasher, err := a.passwordHashers()
	if err != nil {
		return nil, nil, err
	}
	tokens, err := a.tokenIssuer()
	if err != nil {
		return nil, nil, err
	}
	identity := service.NewIdentityService(
		repository.NewFamilyRepository(a.db),
		repository.NewUserRepository(a.db),
		familyHasher,
		memberHasher,
		tokens,
	)
	return identity, tokens, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()
	logger := a.logger

	if a.cfg.MigrateOnStart {
		if err := a.db.RunMigrations(); err != nil {
			return err
		}
		logger.Info("migrations applied")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.NewRegistry())

	backend, err := blob.NewBackendFromConfig(ctx, a.cfg.Blob)
	if err != nil {
		return fmt.Errorf("blob backend: %w", err)
	}
	defer backend.Close()
	blobs := blob.NewStore(backend, a.cfg.UploadMaxSize, m)
	if err := blobs.ValidateSetup(ctx); err != nil {
		return fmt.Errorf("blob backend: %w", err)
	}

	identity, tokens, err := a.identityService()
	if err != nil {
		return err
	}
	families := a.familySessions()
	gate := access.NewGate(tokens, families)

	documents := service.NewDocumentService(repository.NewDocumentRepository(a.db), repository.NewUserRepository(a.db))
	uploads := service.NewUploadService(blobs, documents, identity, logger)
	limiter := security.NewRateLimiter(loginRateLimit, time.Minute)

	router := handlers.NewRouter(handlers.RouterConfig{
		Auth:         handlers.NewAuthHandler(identity, families, logger),
		Members:      handlers.NewMemberHandler(identity, gate, logger),
		Uploads:      handlers.NewUploadHandler(uploads, a.cfg.UploadMaxSize, logger),
		Files:        handlers.NewFileHandler(blobs, logger),
		Documents:    handlers.NewDocumentHandler(documents, gate, logger),
		Health:       handlers.NewHealthHandler(a.db, logger),
		Middleware:   handlers.NewMiddleware(gate, logger),
		Metrics:      m,
		LoginLimiter: limiter,
	})

	server := &http.Server{
		Addr:              ":" + a.cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server starting",
			zap.String("addr", server.Addr),
			zap.String("database", a.db.Dialect.DriverName()),
			zap.String("blob_backend", a.cfg.Blob.Type),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		limiter.Run(gctx, limiterSweepInterval)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
