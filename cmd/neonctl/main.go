// Command neonctl is a terminal dashboard for the vault. It reads markets and
// accounts straight from the chain, submits wallet actions, and lists the
// cold-storage archive.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/neonslash/neonvault/internal/config"
)

const usage = `usage: neonctl [-config path] [-v] <command> [args]

read commands:
  markets [-category C] [-page N] [-user ADDR]   browse the catalog
  market <id>                                    one market
  stats                                          market counts by state and category
  account <address>                              derived account state
  bets <address>                                 the user's bet history

wallet commands (need a private key):
  stake <amount>
  withdraw <amount>
  claim-yield
  bet <market-id> <yes|no> <points>
  claim <market-id>
  create-market -desc D -category C [-duration 2h]
  resolve <market-id> <yes|no>
  redeem-nft

operator commands:
  archives [prefix]                              list archived objects
  archive-cat [-n N] <path>                      print records of one archived object
  encrypt-key -out path                          write an encrypted key file
  keyfile <path>                                 show the address and KDF of a key file
`

var errUsage = errors.New("usage")

func main() {
	configPath := flag.String("config", "config.toml", "path to configuration file (optional)")
	verbose := flag.Bool("v", false, "log debug output to stderr")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := config.LoadOptional(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "neonctl: load config %s: %v\n", *configPath, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := newCLI(cfg, os.Stdout, logger)
	err = c.run(ctx, flag.Args())
	c.close()
	switch {
	case err == nil:
	case errors.Is(err, errUsage):
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	default:
		fmt.Fprintf(os.Stderr, "neonctl: %v\n", err)
		os.Exit(1)
	}
}

// cli holds the lazily connected collaborators of one invocation.
type cli struct {
	cfg     *config.Config
	out     io.Writer
	logger  *slog.Logger
	closers []func()
}

func newCLI(cfg *config.Config, out io.Writer, logger *slog.Logger) *cli {
	return &cli{cfg: cfg, out: out, logger: logger}
}

func (c *cli) close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}
