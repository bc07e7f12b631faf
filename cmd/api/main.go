package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/berfenger/meteremu/internal/adapter/enlighten"
	"github.com/berfenger/meteremu/internal/config"
	"github.com/berfenger/meteremu/internal/core/domain"
	"github.com/berfenger/meteremu/internal/core/port"
	"github.com/berfenger/meteremu/internal/core/service"
	"github.com/berfenger/meteremu/internal/registry"
	"github.com/berfenger/meteremu/internal/server"
	"github.com/berfenger/meteremu/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func gracefulShutdown(apiServer *http.Server, backend port.Backend, frontend port.Frontend, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Println("shutting down gracefully, press Ctrl+C again to force")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}
	if err := frontend.Stop(ctx); err != nil {
		log.Printf("Frontend stopped with error: %v", err)
	}
	if err := backend.Stop(ctx); err != nil {
		log.Printf("Backend stopped with error: %v", err)
	}

	log.Println("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func main() {

	// load and print config
	cfg, err := initConfig()
	if err != nil {
		slog.Error("config errors", "error", err)
		os.Exit(1)
	}
	safePrintConfig(*cfg)

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())
	defer logger.Sync()

	identity := domain.DeviceIdentity{MAC: cfg.ResolveMAC(domain.DeriveMAC)}
	logger.Info("meteremu starting",
		zap.String("version", versioninfo.Short()),
		zap.String("frontend", cfg.Frontend.Type),
		zap.String("backend", cfg.Backend.Type),
		zap.String("device_id", identity.DeviceID()))

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)

	eventStream := &eventstream.EventStream{}
	deps := registry.Deps{
		Root:        as.Root,
		Config:      *cfg,
		Identity:    identity,
		Store:       service.NewSnapshotStore(eventStream, cfg.Frontend.Shelly.Phases),
		EventStream: eventStream,
		Login:       enlighten.NewClient(actorutil.ActorLogger("enlighten", logger)),
		Logger:      logger,
	}

	backend, err := registry.NewBackend(deps)
	if err != nil {
		logger.Fatal("backend", zap.Error(err))
	}
	frontend, err := registry.NewFrontend(deps)
	if err != nil {
		logger.Fatal("frontend", zap.Error(err))
	}

	startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := frontend.Start(startCtx); err != nil {
		logger.Fatal("could not start frontend", zap.Error(err))
	}
	if err := backend.Start(startCtx); err != nil {
		logger.Fatal("could not start backend", zap.Error(err))
	}

	server := server.NewServer(*cfg, backend, frontend)
	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(server, backend, frontend, done)

	err = server.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		panic(fmt.Sprintf("http server error: %s", err))
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Println("Graceful shutdown complete.")

	as.Shutdown()
}

func initConfig() (*config.Config, error) {

	flags := pflag.NewFlagSet("meteremu", pflag.ExitOnError)
	configFile := flags.StringP("config", "c", os.Getenv("CONFIG_FILE"), "path to a yaml config file")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return nil, err
	}

	// alias PORT => METEREMU_SERVER_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("METEREMU_SERVER_PORT", port)
	}

	setConfigDefaults()

	viper.SetEnvPrefix("meteremu")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// if defined, try to load config from yaml file
	if *configFile != "" {
		if _, err := os.Stat(*configFile); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
		slog.Info("Using config", "file", *configFile)
		viper.SetConfigFile(*configFile)
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	// ${VAR} references in string values
	for _, key := range viper.AllKeys() {
		value, ok := viper.Get(key).(string)
		if !ok {
			continue
		}
		substituted, err := config.SubstituteEnv(value, os.LookupEnv)
		if err != nil {
			return nil, fmt.Errorf("config param %s: %w", key, err)
		}
		if substituted != value {
			viper.Set(key, substituted)
		}
	}

	var cfg config.Config

	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	// parse log level
	switch viper.GetString("log_level") {
	case "trace":
		cfg.LogLevel = zap.DebugLevel
	case "debug":
		cfg.LogLevel = zap.DebugLevel
	case "info":
		cfg.LogLevel = zap.InfoLevel
	case "error":
		cfg.LogLevel = zap.ErrorLevel
	case "warn":
		cfg.LogLevel = zap.WarnLevel
	case "fatal":
		cfg.LogLevel = zap.FatalLevel
	default:
		cfg.LogLevel = zap.InfoLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("http_log", false)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 80)
	viper.SetDefault("frontend.type", config.FRONTEND_TYPE_SHELLY)
	viper.SetDefault("frontend.shelly.mac", "")
	viper.SetDefault("frontend.shelly.phases", 1)
	viper.SetDefault("frontend.shelly.mdns", true)
	viper.SetDefault("frontend.shelly.advertise_ip", "")
	viper.SetDefault("frontend.shelly.notify_status", true)
	viper.SetDefault("frontend.sunspec.host", "0.0.0.0")
	viper.SetDefault("frontend.sunspec.port", 502)
	viper.SetDefault("frontend.sunspec.manufacturer", "Fronius")
	viper.SetDefault("frontend.sunspec.model", "Smart Meter TS 65A-3")
	viper.SetDefault("frontend.sunspec.serial", "")
	viper.SetDefault("backend.type", config.BACKEND_TYPE_ENVOY)
	viper.SetDefault("backend.envoy.host", "")
	viper.SetDefault("backend.envoy.token", "")
	viper.SetDefault("backend.envoy.username", "")
	viper.SetDefault("backend.envoy.password", "")
	viper.SetDefault("backend.envoy.serial", "")
	viper.SetDefault("backend.envoy.poll_interval_millis", 2000)
	viper.SetDefault("backend.envoy.verify_ssl", false)
	viper.SetDefault("backend.envoy.refresh_check_hours", 24)
	viper.SetDefault("mqtt.enable", false)
	viper.SetDefault("mqtt.host", "")
	viper.SetDefault("mqtt.port", 1883)
	viper.SetDefault("mqtt.username", "")
	viper.SetDefault("mqtt.password", "")
	viper.SetDefault("mqtt.topic_prefix", "")
}

func safePrintConfig(cfg config.Config) {
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	cfg.Backend.Envoy.Token = "*redacted*"
	cfg.Backend.Envoy.Password = "*redacted*"
	slog.Info("Using", "config", cfg)
}
