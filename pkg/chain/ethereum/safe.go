package ethereum

import (
	"bytes"
	"encoding/json"
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

const safeABIJSON = `[
	{"type":"function","name":"execTransaction","stateMutability":"payable","inputs":[
		{"name":"to","type":"address"},{"name":"value","type":"uint256"},{"name":"data","type":"bytes"},
		{"name":"operation","type":"uint8"},{"name":"safeTxGas","type":"uint256"},{"name":"baseGas","type":"uint256"},
		{"name":"gasPrice","type":"uint256"},{"name":"gasToken","type":"address"},{"name":"refundReceiver","type":"address"},
		{"name":"signatures","type":"bytes"}],
	 "outputs":[{"name":"success","type":"bool"}]},
	{"type":"function","name":"approveHash","stateMutability":"nonpayable","inputs":[{"name":"hashToApprove","type":"bytes32"}],"outputs":[]},
	{"type":"function","name":"approvedHashes","stateMutability":"view","inputs":[{"name":"","type":"address"},{"name":"","type":"bytes32"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"nonce","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"getOwners","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address[]"}]},
	{"type":"function","name":"getThreshold","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"setup","stateMutability":"nonpayable","inputs":[
		{"name":"_owners","type":"address[]"},{"name":"_threshold","type":"uint256"},{"name":"to","type":"address"},
		{"name":"data","type":"bytes"},{"name":"fallbackHandler","type":"address"},{"name":"paymentToken","type":"address"},
		{"name":"payment","type":"uint256"},{"name":"paymentReceiver","type":"address"}],
	 "outputs":[]}
]`

const proxyFactoryABIJSON = `[
	{"type":"function","name":"createProxyWithNonce","stateMutability":"nonpayable","inputs":[
		{"name":"_singleton","type":"address"},{"name":"initializer","type":"bytes"},{"name":"saltNonce","type":"uint256"}],
	 "outputs":[{"name":"proxy","type":"address"}]},
	{"type":"function","name":"proxyCreationCode","stateMutability":"pure","inputs":[],"outputs":[{"name":"","type":"bytes"}]}
]`

var (
	safeABI         = mustParseABI(safeABIJSON)
	proxyFactoryABI = mustParseABI(proxyFactoryABIJSON)

	domainTypeHash = crypto.Keccak256Hash([]byte("EIP712Domain(uint256 chainId,address verifyingContract)"))
	safeTxTypeHash = crypto.Keccak256Hash([]byte("SafeTx(address to,uint256 value,bytes data,uint8 operation,uint256 safeTxGas,uint256 baseGas,uint256 gasPrice,address gasToken,address refundReceiver,uint256 nonce)"))
)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}

// SafeDeployment names the Gnosis Safe contracts used to create multisig accounts.
type SafeDeployment struct {
	Factory         common.Address `json:"factory"`
	Singleton       common.Address `json:"singleton"`
	FallbackHandler common.Address `json:"fallbackHandler"`
}

// DefaultSafeDeployment returns the canonical Safe v1.3.0 addresses, which are
// identical on every network they were deployed to.
func DefaultSafeDeployment() SafeDeployment {
	return SafeDeployment{
		Factory:         common.HexToAddress("0xa6B71E26C5e0845f74c812102Ca7114b6a896AB2"),
		Singleton:       common.HexToAddress("0xd9Db270c1B5E3Bd161E8c8503c55cEABeE709552"),
		FallbackHandler: common.HexToAddress("0xf48f2B2d2a534e402487b3ee7C18c33Aec0Fe5e4"),
	}
}

// L2SafeSingleton is the event emitting singleton meant for rollups.
var L2SafeSingleton = common.HexToAddress("0x3E5c63644E683549055b9Be8653de26E0B4CD36E")

// SafeTransaction is the call a Safe executes once its owners signed it.
type SafeTransaction struct {
	To             common.Address `json:"to"`
	Value          *big.Int       `json:"value"`
	Data           hexutil.Bytes  `json:"data"`
	Operation      uint8          `json:"operation"`
	SafeTxGas      *big.Int       `json:"safeTxGas"`
	BaseGas        *big.Int       `json:"baseGas"`
	GasPrice       *big.Int       `json:"gasPrice"`
	GasToken       common.Address `json:"gasToken"`
	RefundReceiver common.Address `json:"refundReceiver"`
	Nonce          *big.Int       `json:"nonce"`
}

func (s *SafeTransaction) normalize() {
	for _, n := range []**big.Int{&s.Value, &s.SafeTxGas, &s.BaseGas, &s.GasPrice, &s.Nonce} {
		if *n == nil {
			*n = new(big.Int)
		}
	}
	if s.Data == nil {
		s.Data = hexutil.Bytes{}
	}
}

func word(n *big.Int) []byte {
	if n == nil {
		return make([]byte, 32)
	}
	return common.LeftPadBytes(n.Bytes(), 32)
}

// DomainSeparator is the EIP-712 domain of one Safe on one chain.
func DomainSeparator(chainID *big.Int, safe common.Address) common.Hash {
	return crypto.Keccak256Hash(domainTypeHash.Bytes(), word(chainID), common.LeftPadBytes(safe.Bytes(), 32))
}

func (s *SafeTransaction) StructHash() common.Hash {
	return crypto.Keccak256Hash(
		safeTxTypeHash.Bytes(),
		common.LeftPadBytes(s.To.Bytes(), 32),
		word(s.Value),
		crypto.Keccak256(s.Data),
		word(big.NewInt(int64(s.Operation))),
		word(s.SafeTxGas),
		word(s.BaseGas),
		word(s.GasPrice),
		common.LeftPadBytes(s.GasToken.Bytes(), 32),
		common.LeftPadBytes(s.RefundReceiver.Bytes(), 32),
		word(s.Nonce),
	)
}

// Hash is the safeTxHash the owners sign.
func (s *SafeTransaction) Hash(chainID *big.Int, safe common.Address) common.Hash {
	domain := DomainSeparator(chainID, safe)
	structHash := s.StructHash()
	return crypto.Keccak256Hash([]byte{0x19, 0x01}, domain.Bytes(), structHash.Bytes())
}

// safeEnvelope is the serialized body of a multisig transaction.
type safeEnvelope struct {
	Safe    common.Address   `json:"safe"`
	ChainID *big.Int         `json:"chainId"`
	Tx      *SafeTransaction `json:"tx"`
}

func encodeSafeEnvelope(env safeEnvelope) ([]byte, error) {
	env.Tx.normalize()
	return json.Marshal(env)
}

func decodeSafeEnvelope(raw []byte) (*safeEnvelope, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var env safeEnvelope
	if err := dec.Decode(&env); err != nil {
		return nil, err
	}
	if env.Tx == nil || env.ChainID == nil {
		return nil, errMalformedEnvelope
	}
	env.Tx.normalize()
	return &env, nil
}

// execTransactionData encodes the Safe call that executes tx with the packed
// owner signatures.
func execTransactionData(tx *SafeTransaction, signatures []byte) ([]byte, error) {
	return safeABI.Pack("execTransaction",
		tx.To, tx.Value, []byte(tx.Data), tx.Operation, tx.SafeTxGas, tx.BaseGas, tx.GasPrice,
		tx.GasToken, tx.RefundReceiver, signatures)
}

func approveHashData(hash common.Hash) ([]byte, error) {
	return safeABI.Pack("approveHash", [32]byte(hash))
}

func sortAddresses(addrs []common.Address) []common.Address {
	out := append([]common.Address(nil), addrs...)
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i].Bytes(), out[j].Bytes()) < 0 })
	return out
}

// safeInitializer is the setup call the proxy runs right after creation.
func safeInitializer(owners []common.Address, threshold int, fallbackHandler common.Address) ([]byte, error) {
	return safeABI.Pack("setup",
		owners, big.NewInt(int64(threshold)), common.Address{}, []byte{}, fallbackHandler,
		common.Address{}, new(big.Int), common.Address{})
}

// PredictSafeAddress computes the CREATE2 address createProxyWithNonce
// deploys the proxy to.
func PredictSafeAddress(factory, singleton common.Address, proxyCreationCode, initializer []byte, saltNonce *big.Int) common.Address {
	salt := crypto.Keccak256Hash(crypto.Keccak256(initializer), word(saltNonce))
	initCode := make([]byte, 0, len(proxyCreationCode)+32)
	initCode = append(initCode, proxyCreationCode...)
	initCode = append(initCode, common.LeftPadBytes(singleton.Bytes(), 32)...)
	return crypto.CreateAddress2(factory, salt, crypto.Keccak256(initCode))
}

func createProxyData(singleton common.Address, initializer []byte, saltNonce *big.Int) ([]byte, error) {
	return proxyFactoryABI.Pack("createProxyWithNonce", singleton, initializer, saltNonce)
}
