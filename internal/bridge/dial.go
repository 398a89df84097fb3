package bridge

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/neonslash/neonvault/internal/chain"
	"github.com/neonslash/neonvault/internal/config"
	"github.com/neonslash/neonvault/internal/crypto"
)

// Dialed is a Client together with the source-chain connections it owns.
type Dialed struct {
	*Client
	clients []*ethclient.Client
}

// Close releases the source-chain connections.
func (d *Dialed) Close() {
	for _, c := range d.clients {
		c.Close()
	}
}

// Dial connects to every configured source network and builds a Client
// that mints through dest.
func Dial(ctx context.Context, cfg config.BridgeConfig, signer *crypto.Signer, dest *chain.Transactor, logger *slog.Logger) (*Dialed, error) {
	transmitter, err := chain.ParseAddress(cfg.MessageTransmitter)
	if err != nil {
		return nil, fmt.Errorf("bridge: message transmitter: %w", err)
	}
	d := &Dialed{}
	sources := make([]Source, 0, len(cfg.Sources))
	for _, sc := range cfg.Sources {
		ec, err := chain.Dial(ctx, sc.RPCURL)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("bridge: source %s: %w", sc.Name, err)
		}
		d.clients = append(d.clients, ec)

		tokenAddr, err := chain.ParseAddress(sc.TokenAddress)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("bridge: source %s token: %w", sc.Name, err)
		}
		messengerAddr, err := chain.ParseAddress(sc.TokenMessenger)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("bridge: source %s messenger: %w", sc.Name, err)
		}

		backend := chain.Throttle(ec, cfg.RatePerSec*5)
		tx := chain.NewTransactor(backend, signer.ForChain(sc.ChainID), chain.TransactorConfig{}, logger)
		sources = append(sources, Source{
			Name:             sc.Name,
			Domain:           sc.Domain,
			Token:            chain.NewToken(backend, tokenAddr, tx),
			TokenAddress:     tokenAddr,
			Messenger:        chain.NewTokenMessenger(messengerAddr, tx),
			MessengerAddress: messengerAddr,
		})
	}

	d.Client = New(
		sources,
		NewIrisClient(cfg.AttestationURL, cfg.RatePerSec),
		chain.NewMessageTransmitter(transmitter, dest),
		signer.Address(),
		Options{
			Destination:       cfg.Destination,
			DestinationDomain: cfg.DestinationDomain,
			PollInterval:      cfg.PollInterval.Duration,
			Timeout:           cfg.Timeout.Duration,
		},
		logger,
	)
	return d, nil
}
