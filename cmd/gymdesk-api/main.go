package main

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/MarcoPoloResearchLab/gymdesk/internal/archive"
	"github.com/MarcoPoloResearchLab/gymdesk/internal/attendance"
	"github.com/MarcoPoloResearchLab/gymdesk/internal/auth"
	"github.com/MarcoPoloResearchLab/gymdesk/internal/checkin"
	"github.com/MarcoPoloResearchLab/gymdesk/internal/clock"
	"github.com/MarcoPoloResearchLab/gymdesk/internal/config"
	"github.com/MarcoPoloResearchLab/gymdesk/internal/database"
	"github.com/MarcoPoloResearchLab/gymdesk/internal/logging"
	"github.com/MarcoPoloResearchLab/gymdesk/internal/members"
	"github.com/MarcoPoloResearchLab/gymdesk/internal/payments"
	"github.com/MarcoPoloResearchLab/gymdesk/internal/qrcode"
	"github.com/MarcoPoloResearchLab/gymdesk/internal/rowstore"
	"github.com/MarcoPoloResearchLab/gymdesk/internal/server"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	cfgFile string
	envFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "gymdesk-api",
		Short: "Gym front-desk backend service",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newQRCommand(), newHashPasswordCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to an optional dotenv file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-driver", defaults.GetString("database.driver"), "Database driver (sqlite, postgres)")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("database-dsn", "", "Postgres connection string")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-file", "", "Optional log file path")
	cmd.PersistentFlags().String("signing-secret", "", "Session signing secret (overrides env)")
	cmd.PersistentFlags().String("timezone", defaults.GetString("clock.timezone"), "IANA timezone of the gym")
	cmd.PersistentFlags().String("rowstore-backend", defaults.GetString("rowstore.backend"), "Attendance store (memory, database, xlsx)")
	cmd.PersistentFlags().String("xlsx-path", defaults.GetString("rowstore.xlsx_path"), "Workbook path for the xlsx attendance store")
	cmd.PersistentFlags().String("checkin-policy", defaults.GetString("checkin.policy"), "Check-in policy (open, known_member, active_membership)")
	cmd.PersistentFlags().String("public-base-url", defaults.GetString("public.base_url"), "Public URL encoded into QR codes")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.driver", "database-driver")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "database.dsn", "database-dsn")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.file", "log-file")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "clock.timezone", "timezone")
	bindFlag(cmd, "rowstore.backend", "rowstore-backend")
	bindFlag(cmd, "rowstore.xlsx_path", "xlsx-path")
	bindFlag(cmd, "checkin.policy", "checkin-policy")
	bindFlag(cmd, "public.base_url", "public-base-url")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFile)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.Open(database.Config{
		Driver: appConfig.DatabaseDriver,
		Path:   appConfig.DatabasePath,
		DSN:    appConfig.DatabaseDSN,
	}, logger)
	if err != nil {
		return err
	}
	defer database.Close(db) //nolint:errcheck

	gymClock, err := clock.New(appConfig.Timezone, time.Now)
	if err != nil {
		return err
	}

	store, closeStore, err := openRowStore(appConfig, db)
	if err != nil {
		return err
	}
	defer closeStore()

	locker, closeLocker, err := openLocker(appConfig)
	if err != nil {
		return err
	}
	defer closeLocker()

	reconciler, err := attendance.NewReconciler(attendance.ReconcilerConfig{
		Store:        store,
		Partitioning: attendance.Partitioning(appConfig.Partitioning),
		Locker:       locker,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	ledger, err := payments.NewLedger(payments.LedgerConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: payments.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	memberService, err := members.NewService(members.ServiceConfig{
		Database: db,
		Ledger:   ledger,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	policy, err := checkin.ParsePolicy(appConfig.CheckInPolicy)
	if err != nil {
		return err
	}
	realtime := server.NewRealtimeDispatcher()
	checkInService, err := checkin.NewService(checkin.ServiceConfig{
		Reconciler: reconciler,
		Members:    memberService,
		Clock:      gymClock,
		Policy:     policy,
		Publisher:  realtime,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	tokenIssuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		TokenTTL:      appConfig.SessionTTL,
	})
	if err != nil {
		return err
	}
	sessionValidator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		CookieName:    appConfig.CookieName,
	})
	if err != nil {
		return err
	}
	credentials := auth.NewCredentials(auth.CredentialsConfig{
		AdminUsername:     appConfig.AdminUsername,
		AdminPasswordHash: appConfig.AdminPasswordHash,
		APIToken:          appConfig.APIToken,
	})
	if appConfig.AdminPasswordHash == "" {
		logger.Warn("admin login disabled", zap.String("reason", "auth.admin_password_hash not set"))
	}

	generator, err := qrcode.NewGenerator(qrcode.GeneratorConfig{BaseURL: appConfig.PublicBaseURL})
	if err != nil {
		return err
	}

	deps := server.Dependencies{
		CheckIn:          checkInService,
		Attendance:       reconciler,
		Members:          memberService,
		Payments:         ledger,
		Sessions:         tokenIssuer,
		SessionValidator: sessionValidator,
		Credentials:      credentials,
		QRCodes:          generator,
		Clock:            gymClock,
		Realtime:         realtime,
		AllowedOrigins:   appConfig.CORSAllowedOrigins,
		SecureCookies:    strings.HasPrefix(strings.ToLower(appConfig.PublicBaseURL), "https://"),
		Logger:           logger,
	}
	if appConfig.Archive.Enabled() {
		archiver, err := archive.NewS3Archiver(archive.S3Config{
			Bucket:          appConfig.Archive.Bucket,
			Region:          appConfig.Archive.Region,
			Endpoint:        appConfig.Archive.Endpoint,
			AccessKeyID:     appConfig.Archive.AccessKeyID,
			SecretAccessKey: appConfig.Archive.SecretAccessKey,
			KeyPrefix:       appConfig.Archive.KeyPrefix,
			Logger:          logger,
		})
		if err != nil {
			return err
		}
		deps.Archiver = archiver
	}

	handler, err := server.NewHTTPHandler(deps)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("address", appConfig.HTTPAddress),
			zap.String("timezone", gymClock.Location().String()),
			zap.String("rowstore", appConfig.RowStoreBackend),
			zap.String("policy", string(policy)))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("server shutting down")
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func openRowStore(appConfig config.AppConfig, db *gorm.DB) (rowstore.Store, func(), error) {
	switch appConfig.RowStoreBackend {
	case config.RowStoreMemory:
		store, err := rowstore.NewMemoryStore(attendance.Layout)
		return store, func() {}, err
	case config.RowStoreXLSX:
		store, err := rowstore.OpenWorkbookStore(appConfig.XLSXPath, attendance.Layout)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	default:
		store, err := rowstore.NewDatabaseStore(db, attendance.Layout)
		return store, func() {}, err
	}
}

func openLocker(appConfig config.AppConfig) (attendance.Locker, func(), error) {
	if appConfig.CheckInLock != config.LockRedis {
		return attendance.NewKeyedLocker(), func() {}, nil
	}
	client := redis.NewClient(&redis.Options{Addr: appConfig.RedisAddress})
	locker, err := attendance.NewRedisLocker(attendance.RedisLockerConfig{Client: client})
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return locker, func() { _ = client.Close() }, nil
}
