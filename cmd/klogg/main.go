/*
klogg is the command-line entry point for the core data plane: it opens
each file argument, indexes it, and (with --follow) keeps it live.
Everything beyond opening and indexing files (the GUI shell's windows,
menus, session restore) is out of scope for this core — those flags are
parsed and handed back to the shell unexamined.

Grounded on mpenkov-bsearch/cmd/bsearch_selftest/bsearch_selftest.go's
flags.NewParser(&opts, flags.Default&^flags.PrintErrors) / custom usage()
pattern, with the debug-level logger wiring from bsearch_test.go's
zerolog.ConsoleWriter/SetGlobalLevel pattern moved here since this is the
first place in the corpus's idiom that a log level gets fixed once, at
process start.
*/
package main

import (
	"context"
	"fmt"
	"os"

	flags "github.com/jessevdk/go-flags"
	"github.com/rs/zerolog"

	"github.com/klogg-go/klogg/internal/config"
	"github.com/klogg-go/klogg/internal/logdata"
	"github.com/klogg-go/klogg/internal/watch"
)

// opts mirrors the CLI surface of spec.md §6. Shell-only flags
// (NewSession, LoadSession, Multi, WindowWidth, WindowHeight) are parsed
// and stored but never interpreted by this core binary.
var opts struct {
	Follow      bool   `short:"f" long:"follow" description:"enable auto-refresh on all opened files"`
	NewSession  bool   `short:"n" long:"new-session" description:"start a new session (shell concern)"`
	LoadSession string `short:"s" long:"load-session" description:"load a saved session (shell concern)"`
	Multi       bool   `short:"m" long:"multi" description:"allow multiple instances (shell concern)"`
	Debug       int    `short:"d" long:"debug" description:"verbosity level" default:"0"`
	Log         string `long:"log" description:"write diagnostic log to a file"`
	WindowWidth int    `long:"window-width" description:"initial window width (shell concern)"`
	WindowHeight int   `long:"window-height" description:"initial window height (shell concern)"`
	Args        struct {
		Files []string `positional-arg-name:"file"`
	} `positional-args:"yes"`
}

var parser = flags.NewParser(&opts, flags.Default&^flags.PrintErrors)

func usage() {
	parser.WriteHelp(os.Stderr)
	os.Exit(2)
}

func newLogger() zerolog.Logger {
	level := zerolog.WarnLevel
	switch {
	case opts.Debug >= 2:
		level = zerolog.TraceLevel
	case opts.Debug == 1:
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	out := os.Stderr
	if opts.Log != "" {
		f, err := os.OpenFile(opts.Log, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err == nil {
			return zerolog.New(f).With().Timestamp().Logger()
		}
		fmt.Fprintf(os.Stderr, "klogg: could not open --log file %q: %v\n", opts.Log, err)
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: out}).With().Timestamp().Logger()
}

func main() {
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "%s\n\n", err)
		usage()
	}

	logger := newLogger()
	cfg := config.DefaultConfig()

	var w *watch.Watcher
	if opts.Follow {
		w = watch.New(cfg.PollInterval, cfg.DebounceWindow, cfg.FingerprintSampleSize, nil, &logger)
		defer w.Close()
	}

	exitCode := 0
	following := false
	for _, path := range opts.Args.Files {
		if err := openAndSummarize(path, cfg, w, &logger); err != nil {
			fmt.Fprintf(os.Stderr, "klogg: %s: %v\n", path, err)
			exitCode = 1
			continue
		}
		following = following || opts.Follow
	}
	if following {
		<-context.Background().Done()
	}
	os.Exit(exitCode)
}

// openAndSummarize opens path, indexes it, and reports its line count.
// With --follow the file stays open (and watched) for the life of the
// process. The GUI shell normally owns the render loop; this core binary's
// own main() exists only to exercise and smoke-test the core end to end.
func openAndSummarize(path string, cfg *config.Config, w *watch.Watcher, logger *zerolog.Logger) error {
	ld, err := logdata.Open(path, cfg, w, logger)
	if err != nil {
		return err
	}

	reg := ld.AttachListener(func(ev logdata.Event) {
		if ev.Kind == logdata.EventError {
			logger.Error().Str("path", path).Err(ev.Err).Msg("indexing error")
		}
	})
	if !opts.Follow {
		defer ld.Close()
		defer reg.Close()
	}

	fmt.Printf("%s: %d lines, encoding=%s\n", path, ld.LineCount(), ld.Encoding())
	return nil
}
