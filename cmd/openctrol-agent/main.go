package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/openctrol/agent/internal/config"
	"github.com/openctrol/agent/internal/console"
	"github.com/openctrol/agent/internal/health"
	"github.com/openctrol/agent/internal/httpapi"
	"github.com/openctrol/agent/internal/httputil"
	"github.com/openctrol/agent/internal/logging"
	"github.com/openctrol/agent/internal/privilege"
	"github.com/openctrol/agent/internal/remote/desktop"
	"github.com/openctrol/agent/internal/secmem"
)

var (
	version = "0.1.0"
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "openctrol-agent",
	Short: "Openctrol remote desktop agent",
	Long:  `Openctrol Agent - host-resident remote desktop engine serving screen capture and input injection over a local API`,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the agent",
	Run: func(cmd *cobra.Command, args []string) {
		runAgent()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Openctrol Agent v%s\n", version)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Query a running agent's capture status",
	Run: func(cmd *cobra.Command, args []string) {
		queryAgent("/api/v1/rd/status")
	},
}

var monitorsCmd = &cobra.Command{
	Use:   "monitors",
	Short: "List a running agent's displays",
	Run: func(cmd *cobra.Command, args []string) {
		queryAgent("/api/v1/rd/monitors")
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is the platform config dir)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(monitorsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runAgent() {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logOutput := os.Stderr
	if cfg.LogFile != "" {
		rw, err := logging.NewRotatingWriter(cfg.LogFile, 10, 3)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
			os.Exit(1)
		}
		defer rw.Close()
		logging.Init(cfg.LogFormat, cfg.LogLevel, rw)
	} else {
		logging.Init(cfg.LogFormat, cfg.LogLevel, logOutput)
	}
	log := logging.L("main")

	cfg.Validate()

	if cfg.AgentID == "" {
		cfg.AgentID = uuid.NewString()
		if err := config.Save(cfg); err != nil {
			log.Warn("could not persist generated agent id", "error", err.Error())
		}
		log.Info("generated agent id", "agent_id", cfg.AgentID)
	}

	if !privilege.IsElevated() {
		log.Warn("running without elevation, login and lock screen capture will be unavailable")
	}

	registry := desktop.NewRegistry(nil)
	if err := registry.Refresh(); err != nil {
		log.Error("display enumeration failed", "error", err.Error())
		os.Exit(1)
	}
	if cfg.DefaultMonitorID != "" {
		if err := registry.Select(cfg.DefaultMonitorID); err != nil {
			log.Warn("default monitor not available", "monitorId", cfg.DefaultMonitorID, "error", err.Error())
		}
	}

	capturer, err := desktop.NewScreenCapturer()
	if err != nil {
		log.Error("screen capture unavailable", "error", err.Error())
		os.Exit(1)
	}
	switcher := console.NewSwitcher()

	injector, err := desktop.NewInjector()
	if err != nil {
		log.Warn("input injection unavailable", "error", err.Error())
	}

	dist := desktop.NewDistributor()
	engine := desktop.NewEngine(desktop.EngineConfig{
		TargetFPS:   cfg.TargetFPS,
		JPEGQuality: cfg.JPEGQuality,
	}, registry, capturer, switcher, dist)
	dispatcher := desktop.NewDispatcher(injector, switcher, registry)

	monitor := health.NewMonitor()
	monitor.Update("capture", health.Healthy, "")

	apiKey := secmem.New(cfg.APIKey)
	defer apiKey.Zero()
	if apiKey.IsEmpty() {
		log.Warn("no API key configured, the local API is unauthenticated")
	}

	server := httpapi.New(httpapi.Config{
		ListenAddr:  cfg.ListenAddr,
		AgentID:     cfg.AgentID,
		APIKey:      apiKey,
		Version:     version,
		MaxSessions: cfg.MaxSessions,
	}, engine, dispatcher, dist, monitor)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	server.SetBaseContext(ctx)

	if err := engine.Start(); err != nil {
		log.Error("engine start failed", "error", err.Error())
		os.Exit(1)
	}

	go watchEngineHealth(ctx, engine, monitor)

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	log.Info("agent started", "version", version, "agent_id", cfg.AgentID, "addr", cfg.ListenAddr)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			log.Error("api server failed", "error", err.Error())
		}
	}

	cancel()
	if err := server.Shutdown(context.Background()); err != nil {
		log.Warn("shutdown incomplete", "error", err.Error())
	}
	engine.Stop()
}

// watchEngineHealth mirrors the engine's degraded flag into the health
// monitor.
func watchEngineHealth(ctx context.Context, engine *desktop.Engine, monitor *health.Monitor) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := engine.Status()
			switch {
			case !st.Running:
				monitor.Update("capture", health.Unhealthy, "engine stopped")
			case st.Degraded:
				monitor.Update("capture", health.Degraded, "repeated capture failures")
			default:
				monitor.Update("capture", health.Healthy, "")
			}
			monitor.Update("sessions", health.Healthy, fmt.Sprintf("%d active", st.Subscribers))
		}
	}
}

// queryAgent hits the local API of a running agent and prints the response.
func queryAgent(path string) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	addr := cfg.ListenAddr
	if addr == "" {
		addr = ":8090"
	}
	if addr[0] == ':' {
		addr = "127.0.0.1" + addr
	}

	headers := http.Header{}
	if cfg.APIKey != "" {
		headers.Set("X-Openctrol-Key", cfg.APIKey)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := httputil.Get(ctx, client, "http://"+addr+path, headers, httputil.DefaultRetryConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Agent not reachable at %s: %v\n", addr, err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	var body any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	out, _ := json.MarshalIndent(body, "", "  ")
	fmt.Println(string(out))
}
