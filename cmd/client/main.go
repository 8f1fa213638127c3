package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/aeolun/kindred/pkg/api"
	"github.com/aeolun/kindred/pkg/client"
	"github.com/aeolun/kindred/pkg/client/ui"
	"github.com/aeolun/kindred/pkg/eventloop"
	"github.com/aeolun/kindred/pkg/metrics"
	"github.com/aeolun/kindred/pkg/presence"
	"github.com/aeolun/kindred/pkg/store"
	tea "github.com/charmbracelet/bubbletea"
)

var Version = "dev"

const (
	queueSize       = 256
	presenceBacklog = 32
	shutdownTimeout = 3 * time.Second
)

func main() {
	configPath := flag.String("config", client.DefaultConfigPath, "Path to config file")
	apiURL := flag.String("api", "", "REST API base URL (overrides config)")
	wsURL := flag.String("ws", "", "Live-update websocket URL (overrides config)")
	debug := flag.Bool("debug", false, "Verbose log lines with source locations")
	version := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *version {
		fmt.Println(Version)
		return
	}

	config, err := client.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *apiURL != "" {
		config.Server.APIURL = *apiURL
	}
	if *wsURL != "" {
		config.Server.WSURL = *wsURL
	}

	logger, closeLog, err := openLogger(config.Client.LogPath, *debug)
	if err != nil {
		log.Fatalf("Failed to open log file: %v", err)
	}
	defer closeLog()

	if err := run(config, logger); err != nil {
		closeLog()
		fmt.Fprintf(os.Stderr, "kindred: %v\n", err)
		os.Exit(1)
	}
}

// openLogger logs to a file since the terminal belongs to the UI. An empty
// path discards everything.
func openLogger(path string, debug bool) (*log.Logger, func(), error) {
	if path == "" {
		return log.New(io.Discard, "", 0), func() {}, nil
	}
	path, err := client.ExpandPath(path)
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, nil, err
	}

	flags := log.LstdFlags
	if debug {
		flags |= log.Lmicroseconds | log.Lshortfile
	}
	return log.New(f, "", flags), func() { f.Close() }, nil
}

func run(config client.TOMLConfig, logger *log.Logger) error {
	logger.Printf("kindred %s starting (api=%s)", Version, config.Server.APIURL)

	statePath, err := client.ExpandPath(config.Client.StatePath)
	if err != nil {
		return err
	}
	state, err := client.OpenState(statePath)
	if err != nil {
		return fmt.Errorf("failed to open state database: %w", err)
	}
	defer state.Close()

	m := metrics.New()
	if addr := config.Metrics.ListenAddr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Printf("metrics server stopped: %v", err)
			}
		}()
		defer srv.Close()
		logger.Printf("serving metrics on %s", addr)
	}

	apiClient := api.New(config.Server.APIURL, api.WithLogger(logger), api.WithRecorder(m))

	queue := eventloop.NewQueue(queueSize)
	defer queue.Close()
	clock := eventloop.NewClock(queue)

	runner := presence.NewSerialRunner(presenceBacklog, logger)
	defer runner.Close()
	announcer := presence.NewAnnouncer(apiClient, runner, logger)
	typing := presence.NewTyping(apiClient, clock, runner, logger)

	st := store.New()
	conn := client.NewConnection(client.NewWebSocketDialer(config.Server.WSURL, logger), st, announcer, queue, clock)
	conn.SetLogger(logger)
	conn.SetMetrics(m)
	st.Attach(conn)
	st.Attach(typing)

	model := ui.NewModel(ui.Deps{
		Store:         st,
		API:           apiClient,
		Channel:       conn,
		Typing:        typing,
		Presence:      announcer,
		State:         state,
		Queue:         queue,
		Metrics:       m,
		Logger:        logger,
		ResumeToken:   state.GetToken(),
		Notifications: config.Client.Notifications,
	})
	conn.SetDirectMessageHandler(model.HandleDirectMessage)

	program := tea.NewProgram(model, tea.WithAltScreen())
	_, runErr := program.Run()

	// Closing the terminal is the client's unload: say goodbye while the
	// token is still valid, then drop the channel.
	if st.Token() != "" {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := announcer.OfflineNow(ctx); err != nil {
			logger.Printf("offline announcement failed: %v", err)
		}
		cancel()
	}
	conn.Stop()
	logger.Printf("kindred stopped")

	return runErr
}
