// Command storyctl edits and publishes stories on an inkwell server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/inkwell-space/core/internal/client"
)

const defaultServer = "http://localhost:2333"

type cli struct {
	server string
	creds  *client.CredentialStore
	logger *zap.Logger
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

type command struct {
	usage string
	run   func(ctx context.Context, app *cli, args []string) error
}

var commands = map[string]command{
	"login":     {"login                      read the write password from stdin and save a token", runLogin},
	"logout":    {"logout                     forget the saved token", runLogout},
	"list":      {"list [-page N] [-size N]   list stories, drafts included", runList},
	"write":     {"write [-id ID] [-title T]  append stdin lines to a story, auto-saving as you type", runWrite},
	"publish":   {"publish [flags] ID         publish a story", runPublish},
	"unpublish": {"unpublish ID               take a story offline", runUnpublish},
	"rm":        {"rm ID                      delete a story", runRemove},
}

var commandOrder = []string{"login", "logout", "list", "write", "publish", "unpublish", "rm"}

func main() {
	fs := flag.NewFlagSet("storyctl", flag.ExitOnError)
	server := fs.String("server", envOr("INKWELL_SERVER", defaultServer), "Server base URL")
	credsPath := fs.String("credentials", "", "Credentials file (default: user config dir)")
	verbose := fs.Bool("v", false, "Verbose logging")
	fs.Usage = func() { usage(fs) }
	_ = fs.Parse(os.Args[1:])

	if fs.NArg() == 0 {
		fs.Usage()
		os.Exit(2)
	}
	cmd, ok := commands[fs.Arg(0)]
	if !ok {
		fmt.Fprintf(os.Stderr, "storyctl: unknown command %q\n", fs.Arg(0))
		fs.Usage()
		os.Exit(2)
	}

	logger := newLogger(*verbose)
	defer logger.Sync()

	path := *credsPath
	if path == "" {
		var err error
		if path, err = client.DefaultCredentialsPath(); err != nil {
			logger.Fatal("locate credentials file", zap.Error(err))
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli{
		server: *server,
		creds:  client.NewCredentialStore(path),
		logger: logger,
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
	if err := cmd.run(ctx, app, fs.Args()[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "storyctl:", err)
		if errors.Is(err, client.ErrNotLoggedIn) || errors.Is(err, client.ErrSessionExpired) {
			fmt.Fprintln(os.Stderr, "run `storyctl login` first")
		}
		os.Exit(1)
	}
}

func usage(fs *flag.FlagSet) {
	out := fs.Output()
	fmt.Fprintln(out, "usage: storyctl [-server URL] [-credentials FILE] [-v] <command> [args]")
	fmt.Fprintln(out, "\ncommands:")
	for _, name := range commandOrder {
		fmt.Fprintln(out, "  "+commands[name].usage)
	}
	fmt.Fprintln(out, "\nflags:")
	fs.PrintDefaults()
}

func newLogger(verbose bool) *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	cfg.DisableStacktrace = true
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
