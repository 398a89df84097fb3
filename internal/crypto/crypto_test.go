package crypto

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Well-known development key (anvil/hardhat account #0).
const devKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
const devAddr = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"

func TestNewSigner_Address(t *testing.T) {
	s, err := NewSigner("0x"+devKey, 5042002)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(devAddr), s.Address())
	assert.Equal(t, int64(5042002), s.ChainID().Int64())

	_, err = NewSigner("zz", 1)
	assert.Error(t, err)
}

func TestSigner_SignTxRecoversSender(t *testing.T) {
	s, err := NewSigner(devKey, 5042002)
	require.NoError(t, err)

	to := common.HexToAddress("0x4cef015F86a4df13676b12616B00126Bd7b6Fab8")
	tx := types.NewTransaction(0, to, big.NewInt(0), 21000, big.NewInt(1), nil)
	signed, err := s.SignTx(tx)
	require.NoError(t, err)

	from, err := types.Sender(types.LatestSignerForChainID(big.NewInt(5042002)), signed)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), from)

	other := s.ForChain(84532)
	assert.Equal(t, s.Address(), other.Address())
	assert.Equal(t, int64(84532), other.ChainID().Int64())
}

func TestSignMessage_Verify(t *testing.T) {
	s, err := NewSigner(devKey, 1)
	require.NoError(t, err)

	msg := []byte("neonvault login 1700000000")
	sig, err := s.SignMessage(msg)
	require.NoError(t, err)

	assert.True(t, VerifyMessage(devAddr, msg, sig))
	assert.False(t, VerifyMessage(devAddr, []byte("tampered"), sig))
	assert.False(t, VerifyMessage("0x0000000000000000000000000000000000000001", msg, sig))
	assert.False(t, VerifyMessage(devAddr, msg, "0x1234"))
}

func TestEncryptDecryptKey(t *testing.T) {
	blob, err := EncryptKey("0x"+devKey, "hunter2")
	require.NoError(t, err)

	got, err := DecryptKey(blob, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, devKey, got)

	_, err = DecryptKey(blob, "wrong")
	assert.Error(t, err)

	_, err = EncryptKey(devKey, "")
	assert.Error(t, err)
	_, err = EncryptKey("abcd", "pw")
	assert.Error(t, err)
}

func TestLoadSigner_Sources(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key.json")
	addr, err := WriteEncryptedKey(path, devKey, "pw")
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(devAddr), addr)

	info, err := InspectKeyFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, info.Version)
	assert.Equal(t, common.HexToAddress(devAddr), info.Address)

	s, err := LoadSigner(KeyConfig{EncryptedKeyPath: path, KeyPassword: "pw"}, 1)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(devAddr), s.Address())

	s, err = LoadSigner(KeyConfig{RawPrivateKey: devKey, EncryptedKeyPath: "/does/not/exist"}, 1)
	require.NoError(t, err, "raw key wins over the file")
	assert.Equal(t, common.HexToAddress(devAddr), s.Address())

	_, err = LoadKey(KeyConfig{})
	assert.ErrorIs(t, err, ErrNoKey)
}

func TestDecryptKey_AddressIsAuthenticated(t *testing.T) {
	blob, err := EncryptKey(devKey, "pw")
	require.NoError(t, err)

	var f map[string]any
	require.NoError(t, json.Unmarshal(blob, &f))
	f["address"] = "0x0000000000000000000000000000000000000001"
	tampered, err := json.Marshal(f)
	require.NoError(t, err)

	_, err = DecryptKey(tampered, "pw")
	assert.Error(t, err)
}

func TestDecryptKey_Version1(t *testing.T) {
	salt := []byte("0123456789abcdef")
	gcm, err := sealer("pw", salt, defaultIterations)
	require.NoError(t, err)
	nonce := make([]byte, gcm.NonceSize())
	raw, err := hex.DecodeString(devKey)
	require.NoError(t, err)

	legacy, err := json.Marshal(map[string]any{
		"version":    1,
		"salt":       base64.StdEncoding.EncodeToString(salt),
		"nonce":      base64.StdEncoding.EncodeToString(nonce),
		"ciphertext": base64.StdEncoding.EncodeToString(gcm.Seal(nil, nonce, raw, nil)),
	})
	require.NoError(t, err)

	got, err := DecryptKey(legacy, "pw")
	require.NoError(t, err)
	assert.Equal(t, devKey, got)

	_, err = DecryptKey([]byte(`{"version":7}`), "pw")
	assert.Error(t, err)
}
