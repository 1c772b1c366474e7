// Command palimpsest corrects OCR output against a manual transcription.
//
// It runs in two modes. With -serve it starts the HTTP correction service;
// without it, it corrects a single document on the command line:
//
//	palimpsest -ocr page.xml -transcription page.txt -out corrected.xml
//	palimpsest -serve -config config.yaml
package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jvbeek/palimpsest/internal/align"
	"github.com/jvbeek/palimpsest/internal/config"
	"github.com/jvbeek/palimpsest/internal/health"
	"github.com/jvbeek/palimpsest/internal/observe"
	"github.com/jvbeek/palimpsest/internal/pagexml"
	"github.com/jvbeek/palimpsest/internal/server"
	"github.com/jvbeek/palimpsest/internal/textio"
	"github.com/jvbeek/palimpsest/internal/usage"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	serve := flag.Bool("serve", false, "run the HTTP correction service")
	ocrPath := flag.String("ocr", "", "OCR document to correct (PAGE-XML or plain text)")
	manPath := flag.String("transcription", "", "manual transcription (plain text)")
	outPath := flag.String("out", "", "output path (default: stdout)")
	addOriginal := flag.Bool("add-original", false, "emit corrections as [original~corrected]")
	unmatched := flag.String("unmatched", "", "policy for unmatched words: bracket or keep")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		// The CLI mode works without any configuration file. The server
		// needs one, if only to know where to listen.
		if !errors.Is(err, os.ErrNotExist) || *serve {
			fmt.Fprintf(os.Stderr, "palimpsest: %v\n", err)
			return 1
		}
		cfg = &config.Config{}
	}

	level := new(slog.LevelVar)
	level.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := cfg.Correction.Options()
	if *addOriginal {
		opts = append(opts, align.WithShowOriginal(true))
	}
	if *unmatched != "" {
		p := align.UnmatchedPolicy(*unmatched)
		if !p.IsValid() {
			fmt.Fprintf(os.Stderr, "palimpsest: -unmatched: %q is not a recognised policy\n", *unmatched)
			return 1
		}
		opts = append(opts, align.WithUnmatchedPolicy(p))
	}

	if !*serve {
		if *ocrPath == "" || *manPath == "" {
			fmt.Fprintln(os.Stderr, "palimpsest: -ocr and -transcription are required (or pass -serve)")
			flag.Usage()
			return 2
		}
		if err := correctFile(*ocrPath, *manPath, *outPath, opts); err != nil {
			fmt.Fprintf(os.Stderr, "palimpsest: %v\n", err)
			return 1
		}
		return 0
	}

	return runServer(ctx, *configPath, cfg, level)
}

// correctFile runs one correction from disk to disk (or stdout). PAGE-XML
// input comes back as PAGE-XML with the line text rewritten; anything else is
// treated as plain text.
func correctFile(ocrPath, manPath, outPath string, opts []align.Option) error {
	ocrData, err := os.ReadFile(ocrPath)
	if err != nil {
		return fmt.Errorf("reading %s: %w", ocrPath, err)
	}

	// The same rule as the HTTP surface: content that claims to be XML must
	// parse as PAGE-XML, only non-XML content is treated as plain text.
	var doc *pagexml.Document
	var ocrLines []string
	if pagexml.LooksLikeXML(ocrData) {
		doc, err = pagexml.Parse(bytes.NewReader(ocrData))
		if err != nil {
			return fmt.Errorf("%s: %w", ocrPath, err)
		}
		ocrLines = doc.Lines()
	} else {
		ocrLines, err = textio.ReadLines(bytes.NewReader(ocrData))
		if err != nil {
			return fmt.Errorf("%s: %w", ocrPath, err)
		}
	}

	manLines, err := textio.ReadFile(manPath)
	if err != nil {
		return err
	}

	ocrSeq, err := align.Tokenize(ocrLines)
	if err != nil {
		return fmt.Errorf("%s: %w", ocrPath, err)
	}
	manSeq, err := align.Tokenize(manLines)
	if err != nil {
		return fmt.Errorf("%s: %w", manPath, err)
	}

	res, err := align.New(opts...).Correct(ocrSeq, manSeq)
	if err != nil {
		return err
	}

	lines := res.TextLines()

	slog.Info("corrected document",
		"ocr_words", len(ocrSeq.Words),
		"substituted", res.Stats.Substituted,
		"fallbacks", res.Stats.Fallbacks,
		"insertions", res.Stats.Insertions,
		"unmatched", res.Stats.Unmatched)

	var out bytes.Buffer
	if doc != nil {
		if err := doc.UpdateLines(lines); err != nil {
			return err
		}
		if _, err := doc.WriteTo(&out); err != nil {
			return err
		}
	} else if err := textio.WriteLines(&out, lines); err != nil {
		return err
	}

	if outPath == "" {
		_, err = os.Stdout.Write(out.Bytes())
		return err
	}
	return os.WriteFile(outPath, out.Bytes(), 0o644)
}

// runServer wires the usage store, telemetry, and config watcher, then runs
// the HTTP service until the context is cancelled.
func runServer(ctx context.Context, configPath string, cfg *config.Config, level *slog.LevelVar) int {
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "palimpsest",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("initialising telemetry", "error", err)
		return 1
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			slog.Warn("telemetry shutdown", "error", err)
		}
	}()

	var store usage.Store
	var mem *usage.MemStore
	var checks []health.Checker

	if dsn := cfg.Database.DSN; dsn != "" {
		pg, err := usage.NewPostgres(ctx, dsn)
		if err != nil {
			slog.Error("connecting usage store", "error", err)
			return 1
		}
		store = usage.NewGuard(pg, usage.GuardConfig{})
		checks = append(checks, health.Pinger("database", pg))
	} else {
		mem = usage.NewMemStore()
		mem.SetKeys(staticCredentials(cfg.Auth.Keys))
		store = mem
	}
	defer store.Close()

	watcher, err := config.NewWatcher(configPath, func(old, new *config.Config) {
		diff := config.Diff(old, new)
		if diff.LogLevelChanged {
			level.Set(slogLevel(diff.NewLogLevel))
			slog.Info("log level changed", "level", diff.NewLogLevel)
		}
		if diff.CorrectionChanged {
			slog.Info("correction parameters reloaded")
		}
		if diff.AuthKeysChanged && mem != nil {
			mem.SetKeys(staticCredentials(new.Auth.Keys))
			slog.Info("static api keys reloaded", "keys", len(new.Auth.Keys))
		}
		if diff.RequiresRestart {
			slog.Warn("configuration change requires a restart to take effect")
		}
	})
	if err != nil {
		slog.Error("watching configuration", "error", err)
		return 1
	}
	defer watcher.Stop()

	srv := server.New(watcher.Current, store, observe.DefaultMetrics(), checks...)

	slog.Info("palimpsest serving",
		"listen_addr", cfg.Server.ListenAddr,
		"tls", cfg.Server.TLS != nil,
		"auth", cfg.Auth.Enabled,
		"config", configPath)

	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("server error", "error", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func staticCredentials(keys []config.StaticKey) []usage.Credential {
	creds := make([]usage.Credential, len(keys))
	for i, k := range keys {
		creds[i] = usage.Credential{Organisation: k.Organisation, Secret: k.Secret}
	}
	return creds
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
