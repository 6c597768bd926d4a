// scanner is the door-side check-in console. It binds to a scanner
// session on the coordinator, keeps a local copy of the guest list and
// keeps admitting guests while the network is down, replaying the
// offline scans once the coordinator is reachable again.
//
// Decoded QR payloads arrive as input lines: a handheld scanner in
// keyboard mode types them into the console, or an operator pastes or
// types a guest code. Lines starting with a slash are commands.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"checkin-backend/localtime"
	"checkin-backend/scanner"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var (
		configPath string
		serverURL  string
		dataDir    string
		token      string
		plain      bool
	)

	flagSet := pflag.NewFlagSet("scanner", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to the YAML config (default: $SCANNER_CONFIG)")
	flagSet.StringVar(&serverURL, "server", "", "coordinator base URL, overrides server_url")
	flagSet.StringVar(&dataDir, "data-dir", "", "directory for the local store, overrides data_dir")
	flagSet.StringVar(&token, "token", "", "scanner session token; binds this device to the token's event")
	flagSet.BoolVar(&plain, "plain", false, "line mode without the terminal UI")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return fmt.Errorf("unexpected argument: %s", rest[0])
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if serverURL != "" {
		cfg.ServerURL = serverURL
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if err := cfg.validate(); err != nil {
		return err
	}

	log, closeLog, err := openLogger(cfg, plain)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := scanner.OpenStore(cfg.DataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	sess, err := resolveSession(ctx, cfg, store, token, flagSet.Changed("server"))
	if err != nil {
		return err
	}
	api := scanner.NewHTTPClient(sess.ServerURL, cfg.RequestTimeout)
	sc := scanner.NewSessionContext(sess, api, store, localtime.Load(cfg.DisplayTimezone), log)

	drainer := scanner.NewDrainer(sc)
	drainer.DrainInterval = cfg.DrainInterval
	drainer.ProbeInterval = cfg.ProbeInterval
	reports := make(chan scanner.DrainReport, 16)
	drainer.OnReport = func(r scanner.DrainReport) {
		select {
		case reports <- r:
		default:
		}
	}

	refreshCtx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
	n, err := sc.Directory.Refresh(refreshCtx, sc)
	cancel()
	if err != nil {
		// the cached snapshot is enough to start at the door
		log.Warn("guest list refresh failed, starting offline", "error", err)
		drainer.SetOnline(false)
	} else {
		log.Info("guest list refreshed", "guests", n)
		drainer.SetOnline(true)
	}

	drainer.Start(ctx)
	defer drainer.Stop()

	loop := scanner.NewLoop(sc, drainer, scanner.LoopConfig{
		DebounceWindow: cfg.DebounceWindow,
		RequestTimeout: cfg.RequestTimeout,
		SearchLimit:    cfg.SearchLimit,
	})
	loop.StartCamera()
	c := newConsole(sc, loop, drainer, cfg.RequestTimeout)

	if plain {
		return runPlain(ctx, c, reports, os.Stdin, os.Stdout)
	}

	program := tea.NewProgram(newModel(c, reports), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err = program.Run()
	loop.Wait()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// resolveSession binds with token when one is given and otherwise loads
// the binding saved by an earlier run. The coordinator URL saved with
// the binding wins over the config file unless --server was passed.
func resolveSession(ctx context.Context, cfg Config, store *scanner.Store, token string, serverFlag bool) (scanner.Session, error) {
	if token = strings.TrimSpace(token); token != "" {
		bindCtx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
		defer cancel()
		api := scanner.NewHTTPClient(cfg.ServerURL, cfg.RequestTimeout)
		return scanner.Bind(bindCtx, api, store, cfg.ServerURL, token)
	}

	sess, err := store.LoadSession(ctx)
	if errors.Is(err, scanner.ErrNoSession) {
		return sess, fmt.Errorf("this device is not bound to an event; run with --token <scanner token>")
	}
	if err != nil {
		return sess, err
	}
	if serverFlag || sess.ServerURL == "" {
		sess.ServerURL = cfg.ServerURL
	}
	return sess, nil
}

// openLogger logs to stderr in plain mode. The TUI owns the terminal,
// so it logs to a file under the data directory instead.
func openLogger(cfg Config, plain bool) (*slog.Logger, func(), error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelWarn
	}
	opts := &slog.HandlerOptions{Level: level}

	if plain {
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), func() {}, nil
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create data directory: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(cfg.DataDir, "scanner.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return slog.New(slog.NewTextHandler(f, opts)), func() { f.Close() }, nil
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `scanner: door-side check-in console.

Binds this device to a scanner session with --token, then reads decoded
guest codes and commands from the terminal. Scans keep working offline
and are replayed to the coordinator when it is reachable again.

Usage:
  scanner [flags]

Examples:
  # First run: bind to the session issued for this door
  scanner --server https://checkin.example.com --token <scanner token>

  # Later runs reuse the saved binding
  scanner

  # Line mode for a keyboard-wedge barcode scanner
  scanner --plain

Commands:
%s

Flags:
`, helpText)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
