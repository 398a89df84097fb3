package main

import (
	"context"
	"flag"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/neonslash/neonvault/internal/app"
	s3blob "github.com/neonslash/neonvault/internal/blob/s3"
	"github.com/neonslash/neonvault/internal/crypto"
	"github.com/neonslash/neonvault/internal/notify"
	"github.com/neonslash/neonvault/internal/service"
	"github.com/neonslash/neonvault/internal/state"
)

// conn is a chain connection with the read and write services on top.
type conn struct {
	catalog *service.Catalog
	actions *service.Actions
}

// connect dials the vault network. The CLI runs without Redis or Postgres:
// every read goes to the chain.
func (c *cli) connect(ctx context.Context) (*conn, error) {
	cd, cleanup, err := app.DialChain(ctx, c.cfg, c.logger)
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, cleanup)

	sessions := state.NewRegistry(cd.Vault, cd.Token, state.SessionConfig{
		LockPeriod:      c.cfg.Engine.LockPeriod.Duration,
		BondRate:        c.cfg.Engine.BondRate,
		Tick:            c.cfg.Engine.TickInterval.Duration,
		RewardThreshold: c.cfg.Engine.RewardThreshold,
		TokenDecimals:   c.cfg.Chain.TokenDecimals,
		Spender:         c.cfg.Chain.VaultAddress,
	}, c.logger)
	c.closers = append(c.closers, sessions.Close)

	inbox := notify.NewInbox(c.cfg.Notify.TTL.Duration, nil, c.logger)
	return &conn{
		catalog: service.NewCatalog(cd.Vault, nil, nil, sessions, c.cfg.Engine.PageSize, c.logger),
		actions: service.NewActions(cd.Vault, cd.Token, sessions, inbox, nil, nil, service.ActionsConfig{
			Spender:       c.cfg.Chain.VaultAddress,
			TokenDecimals: c.cfg.Chain.TokenDecimals,
			RefetchDelay:  c.cfg.Engine.RefetchDelay.Duration,
		}, c.logger),
	}, nil
}

func (c *cli) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, rest := args[0], args[1:]

	switch cmd {
	case "archives":
		return c.archives(ctx, rest)
	case "archive-cat":
		return c.archiveCat(ctx, rest)
	case "encrypt-key":
		return c.encryptKey(rest)
	case "keyfile":
		if len(rest) != 1 {
			return errUsage
		}
		info, err := crypto.InspectKeyFile(rest[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "address %s | version %d | pbkdf2 iterations %d\n", info.Address.Hex(), info.Version, info.Iterations)
		return nil
	case "help", "-h", "--help":
		return errUsage
	}

	cn, err := c.connect(ctx)
	if err != nil {
		return err
	}

	switch cmd {
	case "markets":
		return c.markets(ctx, cn, rest)
	case "market":
		id, err := argMarketID(rest, 0)
		if err != nil {
			return err
		}
		m, err := cn.catalog.Market(ctx, id)
		if err != nil {
			return err
		}
		return renderMarkets(c.out, []service.MarketJSON{m})
	case "stats":
		st, err := cn.catalog.Stats(ctx)
		if err != nil {
			return err
		}
		return renderStats(c.out, st)
	case "account":
		if len(rest) != 1 {
			return errUsage
		}
		acct, err := cn.catalog.Account(ctx, rest[0])
		if err != nil {
			return err
		}
		return renderAccount(c.out, acct)
	case "bets":
		if len(rest) != 1 {
			return errUsage
		}
		bets, err := cn.catalog.Bets(ctx, rest[0])
		if err != nil {
			return err
		}
		return renderBets(c.out, bets)
	default:
		res, err := c.action(ctx, cn.actions, cmd, rest)
		if err != nil {
			return err
		}
		return renderResult(c.out, cn.actions.Actor(), res)
	}
}

func (c *cli) markets(ctx context.Context, cn *conn, args []string) error {
	fs := flag.NewFlagSet("markets", flag.ContinueOnError)
	category := fs.String("category", "", "category filter; History lists the user's bets")
	page := fs.Int("page", 1, "1-based page")
	user := fs.String("user", "", "user address for bet state and History")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	p, err := cn.catalog.Browse(ctx, *user, *category, *page)
	if err != nil {
		return err
	}
	return renderCatalog(c.out, p)
}

// action runs one wallet command.
func (c *cli) action(ctx context.Context, a *service.Actions, cmd string, args []string) (service.ActionResult, error) {
	switch cmd {
	case "stake", "withdraw":
		if len(args) != 1 {
			return service.ActionResult{}, errUsage
		}
		if cmd == "stake" {
			return a.Stake(ctx, args[0])
		}
		return a.Withdraw(ctx, args[0])
	case "claim-yield":
		return a.ClaimYield(ctx)
	case "redeem-nft":
		return a.RedeemNFT(ctx)
	case "bet":
		if len(args) != 3 {
			return service.ActionResult{}, errUsage
		}
		id, err := argMarketID(args, 0)
		if err != nil {
			return service.ActionResult{}, err
		}
		pred, err := parsePrediction(args[1])
		if err != nil {
			return service.ActionResult{}, err
		}
		return a.PlaceBet(ctx, id, pred, args[2])
	case "claim":
		id, err := argMarketID(args, 0)
		if err != nil {
			return service.ActionResult{}, err
		}
		return a.ClaimWinnings(ctx, id)
	case "resolve":
		if len(args) != 2 {
			return service.ActionResult{}, errUsage
		}
		id, err := argMarketID(args, 0)
		if err != nil {
			return service.ActionResult{}, err
		}
		result, err := parsePrediction(args[1])
		if err != nil {
			return service.ActionResult{}, err
		}
		return a.ResolveMarket(ctx, id, result)
	case "create-market":
		fs := flag.NewFlagSet("create-market", flag.ContinueOnError)
		desc := fs.String("desc", "", "market question")
		category := fs.String("category", "", "market category")
		dur := fs.Duration("duration", 2*time.Hour, "betting window")
		if err := fs.Parse(args); err != nil {
			return service.ActionResult{}, errUsage
		}
		return a.CreateMarket(ctx, *desc, *category, *dur)
	default:
		return service.ActionResult{}, fmt.Errorf("unknown command %q: %w", cmd, errUsage)
	}
}

func (c *cli) archiveReader(ctx context.Context) (*s3blob.Reader, error) {
	client, err := s3blob.New(ctx, s3blob.ClientConfig{
		Endpoint:       c.cfg.S3.Endpoint,
		Region:         c.cfg.S3.Region,
		Bucket:         c.cfg.S3.Bucket,
		AccessKey:      c.cfg.S3.AccessKey,
		SecretKey:      c.cfg.S3.SecretKey,
		UseSSL:         c.cfg.S3.UseSSL,
		ForcePathStyle: c.cfg.S3.ForcePathStyle,
		Prefix:         c.cfg.S3.Prefix,
	})
	if err != nil {
		return nil, err
	}
	return s3blob.NewReader(client), nil
}

func (c *cli) archives(ctx context.Context, args []string) error {
	prefix := ""
	if len(args) > 0 {
		prefix = args[0]
	}
	r, err := c.archiveReader(ctx)
	if err != nil {
		return err
	}
	blobs, err := r.List(ctx, prefix)
	if err != nil {
		return err
	}
	return renderBlobs(c.out, blobs)
}

// archiveCat prints the first records of one archived JSONL object.
func (c *cli) archiveCat(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("archive-cat", flag.ContinueOnError)
	n := fs.Int("n", 20, "records to print; 0 prints all")
	if err := fs.Parse(args); err != nil || fs.NArg() != 1 {
		return errUsage
	}
	r, err := c.archiveReader(ctx)
	if err != nil {
		return err
	}
	body, err := r.Get(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	defer body.Close()
	return copyRecords(c.out, body, *n)
}

func (c *cli) encryptKey(args []string) error {
	fs := flag.NewFlagSet("encrypt-key", flag.ContinueOnError)
	out := fs.String("out", "", "path of the encrypted key file")
	if err := fs.Parse(args); err != nil || *out == "" {
		return errUsage
	}
	key, err := crypto.LoadKey(crypto.KeyConfig{RawPrivateKey: c.cfg.Wallet.PrivateKey})
	if err != nil {
		return err
	}
	if c.cfg.Wallet.KeyPassword == "" {
		return fmt.Errorf("encrypt-key: set NEONVAULT_WALLET_KEY_PASSWORD")
	}
	addr, err := crypto.WriteEncryptedKey(*out, key, c.cfg.Wallet.KeyPassword)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "encrypted key for %s written to %s\n", addr.Hex(), *out)
	return nil
}

func argMarketID(args []string, i int) (uint64, error) {
	if len(args) <= i {
		return 0, errUsage
	}
	id, err := strconv.ParseUint(args[i], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid market id %q", args[i])
	}
	return id, nil
}

func parsePrediction(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "yes", "y", "true":
		return true, nil
	case "no", "n", "false":
		return false, nil
	}
	return false, fmt.Errorf("prediction must be yes or no, got %q", s)
}
