// Package crypto loads the wallet key that signs vault transactions and
// verifies wallet-signed messages.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/pbkdf2"
)

const (
	kdfName           = "pbkdf2-sha256"
	defaultIterations = 480_000
	saltLen           = 16
	aesKeyLen         = 32

	// keyFileVersion 2 records the KDF parameters and binds the wallet
	// address into the ciphertext. Version 1 files (fixed iterations, no
	// address) still decrypt.
	keyFileVersion = 2
)

// ErrNoKey is returned by LoadKey when neither key source is configured.
var ErrNoKey = errors.New("crypto: no private key source configured (set private_key or encrypted_key_path)")

type kdfParams struct {
	Name       string `json:"name"`
	Iterations int    `json:"iterations"`
	Salt       []byte `json:"salt"`
}

// keyFile is the on-disk wallet key. []byte fields encode as base64.
type keyFile struct {
	Version    int       `json:"version"`
	Address    string    `json:"address,omitempty"`
	KDF        kdfParams `json:"kdf"`
	Salt       []byte    `json:"salt,omitempty"` // version 1 only
	Nonce      []byte    `json:"nonce"`
	Ciphertext []byte    `json:"ciphertext"`
}

// KeyConfig lists where LoadKey may find the wallet key. A raw key wins over
// the encrypted file.
type KeyConfig struct {
	RawPrivateKey    string
	EncryptedKeyPath string
	KeyPassword      string
}

// KeyInfo is what can be learned from a key file without its password.
type KeyInfo struct {
	Version    int
	Address    common.Address
	Iterations int
}

func sealer(password string, salt []byte, iterations int) (cipher.AEAD, error) {
	block, err := aes.NewCipher(pbkdf2.Key([]byte(password), salt, iterations, aesKeyLen, sha256.New))
	if err != nil {
		return nil, fmt.Errorf("crypto: cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: gcm: %w", err)
	}
	return gcm, nil
}

// parseKey validates a hex secp256k1 key and returns it without 0x together
// with its address.
func parseKey(privateKeyHex string) (string, common.Address, error) {
	k := strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x")
	pk, err := ethcrypto.HexToECDSA(k)
	if err != nil {
		return "", common.Address{}, fmt.Errorf("crypto: invalid private key: %w", err)
	}
	return strings.ToLower(k), ethcrypto.PubkeyToAddress(pk.PublicKey), nil
}

// EncryptKey seals a hex private key under password with PBKDF2-SHA256 and
// AES-256-GCM and returns the key file JSON.
func EncryptKey(privateKeyHex string, password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("crypto: password must not be empty")
	}
	k, addr, err := parseKey(privateKeyHex)
	if err != nil {
		return nil, err
	}
	raw, _ := hex.DecodeString(k)

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: salt: %w", err)
	}
	gcm, err := sealer(password, salt, defaultIterations)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: nonce: %w", err)
	}

	f := keyFile{
		Version:    keyFileVersion,
		Address:    addr.Hex(),
		KDF:        kdfParams{Name: kdfName, Iterations: defaultIterations, Salt: salt},
		Nonce:      nonce,
		Ciphertext: gcm.Seal(nil, nonce, raw, []byte(addr.Hex())),
	}
	return json.MarshalIndent(f, "", "  ")
}

func readKeyFile(data []byte) (keyFile, error) {
	var f keyFile
	if err := json.Unmarshal(data, &f); err != nil {
		return keyFile{}, fmt.Errorf("crypto: parse key file: %w", err)
	}
	switch f.Version {
	case 1:
		f.KDF = kdfParams{Name: kdfName, Iterations: defaultIterations, Salt: f.Salt}
	case keyFileVersion:
		if f.KDF.Name != kdfName || f.KDF.Iterations <= 0 {
			return keyFile{}, fmt.Errorf("crypto: unsupported kdf %q", f.KDF.Name)
		}
	default:
		return keyFile{}, fmt.Errorf("crypto: unsupported key file version %d", f.Version)
	}
	return f, nil
}

// DecryptKey opens a key file and returns the hex private key without 0x.
func DecryptKey(encryptedJSON []byte, password string) (string, error) {
	if password == "" {
		return "", errors.New("crypto: password must not be empty")
	}
	f, err := readKeyFile(encryptedJSON)
	if err != nil {
		return "", err
	}
	gcm, err := sealer(password, f.KDF.Salt, f.KDF.Iterations)
	if err != nil {
		return "", err
	}
	var aad []byte
	if f.Version >= 2 {
		aad = []byte(f.Address)
	}
	plain, err := gcm.Open(nil, f.Nonce, f.Ciphertext, aad)
	if err != nil {
		return "", fmt.Errorf("crypto: decrypt key (wrong password?): %w", err)
	}
	return hex.EncodeToString(plain), nil
}

// InspectKeyFile reads the public header of the key file at path.
func InspectKeyFile(path string) (KeyInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return KeyInfo{}, fmt.Errorf("crypto: read key file: %w", err)
	}
	f, err := readKeyFile(data)
	if err != nil {
		return KeyInfo{}, err
	}
	info := KeyInfo{Version: f.Version, Iterations: f.KDF.Iterations}
	if common.IsHexAddress(f.Address) {
		info.Address = common.HexToAddress(f.Address)
	}
	return info, nil
}

// LoadKey resolves the private key from cfg.
func LoadKey(cfg KeyConfig) (string, error) {
	switch {
	case cfg.RawPrivateKey != "":
		k, _, err := parseKey(cfg.RawPrivateKey)
		return k, err
	case cfg.EncryptedKeyPath != "":
		data, err := os.ReadFile(cfg.EncryptedKeyPath)
		if err != nil {
			return "", fmt.Errorf("crypto: read key file: %w", err)
		}
		return DecryptKey(data, cfg.KeyPassword)
	default:
		return "", ErrNoKey
	}
}

// LoadSigner resolves the key and builds a Signer for chainID.
func LoadSigner(cfg KeyConfig, chainID int64) (*Signer, error) {
	k, err := LoadKey(cfg)
	if err != nil {
		return nil, err
	}
	return NewSigner(k, chainID)
}

// WriteEncryptedKey encrypts privateKeyHex to path with owner-only
// permissions and returns the wallet address it belongs to.
func WriteEncryptedKey(path, privateKeyHex, password string) (common.Address, error) {
	blob, err := EncryptKey(privateKeyHex, password)
	if err != nil {
		return common.Address{}, err
	}
	if err := os.WriteFile(path, blob, 0o600); err != nil {
		return common.Address{}, fmt.Errorf("crypto: write key file: %w", err)
	}
	_, addr, _ := parseKey(privateKeyHex)
	return addr, nil
}
