package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"evcal/internal/capture"
	"evcal/internal/config"
	"evcal/internal/feed"
	appLog "evcal/internal/log"
	"evcal/internal/resolve"
	"evcal/internal/web"
)

type flagConfig struct {
	configPath string
	listen     string
	logLevel   string
	once       bool
	snapshot   string
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.logLevel != "" {
		conf.LogLevel = flags.logLevel
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	loc := resolveLocationOrLocal(conf.Timezone)

	appLog.Info("evcal starting",
		"listen", conf.Listen,
		"timezone", loc.String(),
		"refresh", conf.RefreshCron,
		"feeds", len(conf.Feeds),
		"once", flags.once,
		"snapshot", flags.snapshot,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loader := feed.NewLoader(conf, loc)
	resolver := resolve.NewResolver(loc)

	switch {
	case flags.once:
		err = runOnce(ctx, loader, resolver)
	case flags.snapshot != "":
		err = runSnapshot(ctx, conf, web.NewServer(conf, loader, resolver), flags.snapshot)
	default:
		err = runServer(ctx, conf, web.NewServer(conf, loader, resolver), loc)
	}
	if err != nil {
		appLog.Error("evcal failed", err)
		os.Exit(1)
	}
	appLog.Info("evcal exiting")
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "./config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.StringVar(&cfg.logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Run one resolution pass, print the ordered table and exit")
	flag.StringVar(&cfg.snapshot, "snapshot", "", "Capture the event page to this PNG path and exit")

	flag.Parse()

	return cfg
}

// runOnce performs a single pass and prints the ordered table to stdout.
func runOnce(ctx context.Context, loader *feed.Loader, resolver *resolve.Resolver) error {
	records, err := loader.Load(ctx)
	if err != nil && len(records) == 0 {
		return err
	}
	return writeTable(os.Stdout, resolver.Pass(records, time.Now()))
}

// runServer serves HTTP and refreshes on the configured cron schedule
// until ctx is cancelled.
func runServer(ctx context.Context, conf *config.Config, srv *web.Server, loc *time.Location) error {
	if err := srv.Refresh(ctx); err != nil {
		appLog.Warn("initial refresh incomplete", "error", err.Error())
	}

	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)),
	)
	if _, err := c.AddFunc(conf.RefreshCron, func() { scheduledRefresh(ctx, conf, srv) }); err != nil {
		return err
	}
	c.Start()
	defer func() { <-c.Stop().Done() }()

	httpSrv := &http.Server{
		Addr:              conf.Listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+conf.Listen)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		appLog.Info("shutdown requested")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

func scheduledRefresh(ctx context.Context, conf *config.Config, srv *web.Server) {
	if err := srv.Refresh(ctx); err != nil {
		appLog.Warn("scheduled refresh incomplete", "error", err.Error())
	}
	if conf.Snapshot.Output == "" {
		return
	}
	url := conf.Snapshot.URL
	if url == "" {
		url = localURL(conf.Listen)
	}
	if err := capture.CapturePNG(ctx, snapshotOptions(conf, url, conf.Snapshot.Output)); err != nil {
		appLog.Error("scheduled snapshot failed", err)
	}
}

// runSnapshot serves the page on an ephemeral local listener long enough
// to capture it.
func runSnapshot(ctx context.Context, conf *config.Config, srv *web.Server, output string) error {
	if err := srv.Refresh(ctx); err != nil {
		appLog.Warn("refresh incomplete", "error", err.Error())
	}

	url := conf.Snapshot.URL
	if url == "" {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return err
		}
		httpSrv := &http.Server{Handler: srv.Handler(), ReadHeaderTimeout: 10 * time.Second}
		go func() { _ = httpSrv.Serve(ln) }()
		defer httpSrv.Close()
		url = localURL(ln.Addr().String())
	}

	return capture.CapturePNG(ctx, snapshotOptions(conf, url, output))
}

func snapshotOptions(conf *config.Config, url, output string) capture.Options {
	return capture.Options{
		URL:        url,
		OutputPath: output,
		Width:      conf.Snapshot.Width,
		Height:     conf.Snapshot.Height,
	}
}

// localURL turns a listen address into a loopback URL for the page root.
func localURL(listen string) string {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return "http://" + listen + "/"
	}
	if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port) + "/"
}

func resolveLocationOrLocal(name string) *time.Location {
	if name == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "name", name)
		return time.Local
	}
	return loc
}
