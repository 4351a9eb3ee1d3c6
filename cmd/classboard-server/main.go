// classboard-server hosts the classroom relay: it serves the client
// assets, exposes the websocket hub the clients meet on, and reports its
// transport settings so every client dials the same place.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/classboard/classboard/pkg/common/config"
	"github.com/classboard/classboard/pkg/observability"
	"github.com/classboard/classboard/pkg/transport"
)

var (
	version = "1.0.0"
	commit  = "unknown"
)

func main() {
	var (
		listenAddr  = flag.String("listen", "", "Listen address (overrides config)")
		logLevel    = flag.String("log-level", "", "Log level (debug, info, warn, error)")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("classboard-server v%s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *listenAddr != "" {
		cfg.Server.ListenAddress = *listenAddr
	}

	level := cfg.Logging.Level
	if *logLevel != "" {
		level = *logLevel
	}
	levelMap := map[string]observability.LogLevel{
		"debug": observability.LogLevelDebug,
		"info":  observability.LogLevelInfo,
		"warn":  observability.LogLevelWarn,
		"error": observability.LogLevelError,
	}
	logLvl, ok := levelMap[level]
	if !ok {
		logLvl = observability.LogLevelInfo
	}
	logger := observability.NewLoggerWithLevel("classboard", logLvl)
	metrics := observability.NewMetricsClient()

	logger.Info("Server starting", map[string]interface{}{
		"version": version,
		"listen":  cfg.Server.ListenAddress,
		"mode":    cfg.Transport.Mode,
	})

	relay := transport.NewRelayServer(cfg.Transport.RateLimit, cfg.Transport.RateBurst, logger.WithPrefix("relay"), metrics)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"version": version,
		})
	})

	// Clients read their transport settings from here before dialing.
	router.GET("/config.js", func(c *gin.Context) {
		c.Header("Content-Type", "application/javascript")
		c.String(http.StatusOK,
			"window.CLASSBOARD_CONFIG = {mode: %q, relayURL: %q};\n",
			cfg.Transport.Mode, cfg.Transport.RelayURL)
	})

	router.GET("/ws", gin.WrapH(relay))

	if cfg.Server.StaticDir != "" {
		if _, err := os.Stat(cfg.Server.StaticDir); err == nil {
			router.NoRoute(gin.WrapH(http.FileServer(http.Dir(cfg.Server.StaticDir))))
		} else {
			logger.Warn("Static dir missing, assets disabled", map[string]interface{}{
				"dir": cfg.Server.StaticDir,
			})
		}
	}

	// No Read/WriteTimeout: the /ws route holds connections open for the
	// length of a lesson.
	srv := &http.Server{
		Addr:              cfg.Server.ListenAddress,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	shutdownDone := make(chan struct{})
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan

		logger.Info("Received shutdown signal", map[string]interface{}{
			"signal": sig.String(),
		})

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", map[string]interface{}{
				"error": err.Error(),
			})
		}
		close(shutdownDone)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server failed", map[string]interface{}{
			"error": err.Error(),
		})
		os.Exit(1)
	}
	<-shutdownDone
	logger.Info("Shutdown complete", nil)
}
