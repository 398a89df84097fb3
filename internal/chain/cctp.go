package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/neonslash/neonvault/internal/domain"
)

// Standard finality threshold for CCTP v2 burns.
const finalizedThreshold uint32 = 2000

// TokenMessenger binds a CCTP TokenMessenger on a source chain.
type TokenMessenger struct {
	address common.Address
	tx      *Transactor
}

// NewTokenMessenger binds the messenger at address, sending through tx.
func NewTokenMessenger(address common.Address, tx *Transactor) *TokenMessenger {
	return &TokenMessenger{address: address, tx: tx}
}

// DepositForBurn burns amount of burnToken for minting to recipient on
// destDomain.
func (m *TokenMessenger) DepositForBurn(ctx context.Context, amount *big.Int, destDomain uint32, recipient, burnToken common.Address) (domain.PendingTx, error) {
	if m.tx == nil {
		return nil, fmt.Errorf("chain: depositForBurn: %w", domain.ErrNoSigner)
	}
	data, err := tokenMessengerABI.Pack("depositForBurn",
		amount,
		destDomain,
		common.BytesToHash(recipient.Bytes()),
		burnToken,
		[32]byte{},
		new(big.Int),
		finalizedThreshold,
	)
	if err != nil {
		return nil, fmt.Errorf("chain: pack depositForBurn: %w", err)
	}
	return m.tx.Send(ctx, m.address, data, "depositForBurn")
}

// MessageTransmitter binds a CCTP MessageTransmitter on the destination
// chain.
type MessageTransmitter struct {
	address common.Address
	tx      *Transactor
}

// NewMessageTransmitter binds the transmitter at address.
func NewMessageTransmitter(address common.Address, tx *Transactor) *MessageTransmitter {
	return &MessageTransmitter{address: address, tx: tx}
}

// ReceiveMessage mints on the destination chain from an attested message.
func (m *MessageTransmitter) ReceiveMessage(ctx context.Context, message, attestation []byte) (domain.PendingTx, error) {
	if m.tx == nil {
		return nil, fmt.Errorf("chain: receiveMessage: %w", domain.ErrNoSigner)
	}
	data, err := messageTransmitterABI.Pack("receiveMessage", message, attestation)
	if err != nil {
		return nil, fmt.Errorf("chain: pack receiveMessage: %w", err)
	}
	return m.tx.Send(ctx, m.address, data, "receiveMessage")
}
