package domain

import (
	"context"
	"math/big"
	"time"
)

// BridgeState is the lifecycle of a cross-chain transfer.
type BridgeState string

const (
	BridgePending   BridgeState = "pending"   // burn submitted, awaiting attestation
	BridgeAttested  BridgeState = "attested"  // attestation available, mint not yet done
	BridgeCompleted BridgeState = "completed" // minted on the destination chain
	BridgeFailed    BridgeState = "failed"
)

// BridgeRequest asks the bridge collaborator to move Amount of the stable
// asset from Source to Destination.
type BridgeRequest struct {
	Source      string
	Destination string
	Amount      *big.Int
	Recipient   string
}

// BridgeTransfer identifies an in-flight transfer.
type BridgeTransfer struct {
	Source      string
	Destination string
	Amount      *big.Int
	BurnTxHash  string
	StartedAt   time.Time
}

// BridgeStatus is the observed progress of a transfer.
type BridgeStatus struct {
	State       BridgeState
	Message     []byte
	Attestation []byte
	MintTxHash  string
	Detail      string
}

// Bridge moves the stable asset across chains. Retries and attestation are
// its internal concern.
type Bridge interface {
	Transfer(ctx context.Context, req BridgeRequest) (BridgeTransfer, error)
	Status(ctx context.Context, t BridgeTransfer) (BridgeStatus, error)
}
