package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Signer holds the wallet key and signs transactions for one chain.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    *big.Int
	txSigner   types.Signer
}

// NewSigner creates a Signer from a hex-encoded secp256k1 private key.
func NewSigner(privateKeyHex string, chainID int64) (*Signer, error) {
	pk, err := ethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}
	id := big.NewInt(chainID)
	return &Signer{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
		chainID:    id,
		txSigner:   types.LatestSignerForChainID(id),
	}, nil
}

// Address returns the Ethereum address derived from the signer's private key.
func (s *Signer) Address() common.Address {
	return s.address
}

// ChainID returns the chain the signer signs for.
func (s *Signer) ChainID() *big.Int {
	return new(big.Int).Set(s.chainID)
}

// ForChain returns a signer with the same key for another chain.
func (s *Signer) ForChain(chainID int64) *Signer {
	id := big.NewInt(chainID)
	return &Signer{
		privateKey: s.privateKey,
		address:    s.address,
		chainID:    id,
		txSigner:   types.LatestSignerForChainID(id),
	}
}

// SignTx signs tx for the signer's chain.
func (s *Signer) SignTx(tx *types.Transaction) (*types.Transaction, error) {
	signed, err := types.SignTx(tx, s.txSigner, s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: signing tx: %w", err)
	}
	return signed, nil
}

// SignMessage produces an EIP-191 personal_sign signature over msg, hex
// encoded with v in {27,28}.
func (s *Signer) SignMessage(msg []byte) (string, error) {
	sig, err := ethcrypto.Sign(accounts.TextHash(msg), s.privateKey)
	if err != nil {
		return "", fmt.Errorf("crypto/signer: signing message: %w", err)
	}
	sig[64] += 27
	return "0x" + hex.EncodeToString(sig), nil
}

// RecoverMessageSigner returns the address that produced an EIP-191
// signature over msg.
func RecoverMessageSigner(msg []byte, sigHex string) (common.Address, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto/signer: signature is not hex: %w", err)
	}
	if len(sig) != 65 {
		return common.Address{}, fmt.Errorf("crypto/signer: signature must be 65 bytes, got %d", len(sig))
	}
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	pub, err := ethcrypto.SigToPub(accounts.TextHash(msg), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto/signer: recovering key: %w", err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}

// VerifyMessage reports whether sigHex is address's signature over msg.
func VerifyMessage(address string, msg []byte, sigHex string) bool {
	got, err := RecoverMessageSigner(msg, sigHex)
	if err != nil {
		return false
	}
	return got == common.HexToAddress(address)
}
