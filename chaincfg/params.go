// Package chaincfg defines chain configuration parameters for the networks
// this node understands: the main Bitcoin Cash network, its public test
// network, and a local regression-test network used by the test suite.
//
// These networks are incompatible with each other (each shares a different
// genesis block); callers select one by holding a *Params and threading it
// through the packages that need it (difficulty, chainstore, blockchain).
package chaincfg

import (
	"math/big"
	"time"

	"github.com/bchsuite/bchd/chaincfg/chainhash"
)

// bigOne is 1 represented as a big.Int.  It is defined here to avoid the
// overhead of creating it multiple times.
var bigOne = big.NewInt(1)

// mainPowLimit is the highest proof of work value a block can have for the
// main network.  It is the value 2^224 - 1.
var mainPowLimit = new(big.Int).Sub(new(big.Int).Lsh(bigOne, 224), bigOne)

// testNetPowLimit is the highest proof of work value a block can have for
// the test network.  It is the value 2^224 - 1.
var testNetPowLimit = new(big.Int).Sub(new(big.Int).Lsh(bigOne, 224), bigOne)

// regressionPowLimit is the highest proof of work value a block can have
// for the regression test network.  It is the value 2^255 - 1.
var regressionPowLimit = new(big.Int).Sub(new(big.Int).Lsh(bigOne, 255), bigOne)

// genesisMerkleRoot is the merkle root shared by the genesis block on every
// network: the double-SHA256 hash of the single genesis coinbase tx.
var genesisMerkleRoot = mustHash("4a5e1e4baab89f3a32518a88c31bc87f618f76673e2cc77ab2127b7afdeda33b")

// mainGenesisHeader is the 80-byte header of the genesis block for the
// main network.
var mainGenesisHeader = BlockHeader{
	Version:    1,
	PrevBlock:  chainhash.Hash{},
	MerkleRoot: genesisMerkleRoot,
	Timestamp:  time.Unix(1231006505, 0),
	Bits:       0x1d00ffff,
	Nonce:      2083236893,
}

// testNetGenesisHeader is the 80-byte header of the genesis block for the
// test network (version 3).
var testNetGenesisHeader = BlockHeader{
	Version:    1,
	PrevBlock:  chainhash.Hash{},
	MerkleRoot: genesisMerkleRoot,
	Timestamp:  time.Unix(1296688602, 0),
	Bits:       0x1d00ffff,
	Nonce:      414098458,
}

// regTestGenesisHeader is the 80-byte header of the genesis block for the
// regression test network.  It uses the maximally permissive pow limit so
// that test fixtures can mine blocks instantly.
var regTestGenesisHeader = BlockHeader{
	Version:    1,
	PrevBlock:  chainhash.Hash{},
	MerkleRoot: genesisMerkleRoot,
	Timestamp:  time.Unix(1296688602, 0),
	Bits:       0x207fffff,
	Nonce:      2,
}

func mustHash(s string) chainhash.Hash {
	h, err := chainhash.NewHashFromStr(s)
	if err != nil {
		panic(err)
	}
	return *h
}

// BlockHeader is the subset of wire.BlockHeader chaincfg needs to describe
// a genesis block without importing the wire package (which itself will
// import chaincfg for network selection in higher layers); the two are
// structurally identical and blockchain's toWireHeader converts one to the
// other.
type BlockHeader struct {
	Version    int32
	PrevBlock  chainhash.Hash
	MerkleRoot chainhash.Hash
	Timestamp  time.Time
	Bits       uint32
	Nonce      uint32
}

// Checkpoint identifies a known-good point in the block chain.  This node
// does not use checkpoints for consensus (see DESIGN.md "Dropped teacher
// modules"); the type only names a (height, hash) pair, and nothing in this
// module references it.
type Checkpoint struct {
	Height int32
	Hash   *chainhash.Hash
}

// ConsensusDeployment was used upstream for miner-signaled soft forks
// (BIP9).  A Cash-fork node activates consensus changes by height, not by
// miner vote (see Forks ladder, package forks), so no deployment table is
// carried here.

// Params defines a Bitcoin Cash network by its genesis block, proof-of-work
// limit, subsidy schedule, and fork activation heights.
type Params struct {
	Name        string
	Net         uint32
	DefaultPort string

	GenesisHeader BlockHeader
	GenesisHash   chainhash.Hash

	PowLimit             *big.Int
	PowLimitBits         uint32
	ReduceMinDifficulty  bool
	NoDifficultyAdjustment bool
	MinDiffReductionTime  time.Duration

	TargetTimespan           time.Duration
	TargetTimePerBlock       time.Duration
	RetargetAdjustmentFactor int64

	SubsidyHalvingInterval int32
	CoinbaseMaturity       uint16

	// BIP34Height is the height at which BIP-34 (coinbase height push)
	// becomes mandatory.
	BIP34Height int32
	// BIP65Height is the height at which CHECKLOCKTIMEVERIFY becomes
	// mandatory.
	BIP65Height int32
	// BIP66Height is the height at which strict DER signatures become
	// mandatory.
	BIP66Height int32
	// CSVHeight is the height at which CHECKSEQUENCEVERIFY and relative
	// lock-times (BIP68/112/113) become mandatory.
	CSVHeight int32
	// UAHFHeight is the height of the August 2017 UAHF (Cash) fork: the
	// first height at which blocks may exceed the legacy 1 MB size
	// limit and signature hashes must use SIGHASH_FORKID.
	UAHFHeight int32
	// DAAHeight is the height at which the legacy EDA is replaced by the
	// cw-144 difficulty adjustment algorithm.
	DAAHeight int32
}

// MainNetParams defines the network parameters for the main Bitcoin Cash
// network.
var MainNetParams = Params{
	Name:        "mainnet",
	Net:         0xe8f3e1e3,
	DefaultPort: "8333",

	GenesisHeader: mainGenesisHeader,
	GenesisHash:   mainGenesisHeader.BlockHash(),

	PowLimit:     mainPowLimit,
	PowLimitBits: 0x1d00ffff,

	TargetTimespan:           time.Hour * 24 * 14, // 1209600 seconds, 2016 blocks.
	TargetTimePerBlock:       time.Minute * 10,
	RetargetAdjustmentFactor: 4,

	SubsidyHalvingInterval: 210000,
	CoinbaseMaturity:       100,

	BIP34Height: 227931,
	BIP65Height: 388381,
	BIP66Height: 363725,
	CSVHeight:   419328,
	UAHFHeight:  478559,
	DAAHeight:   504031,
}

// TestNet3Params defines the network parameters for the test network
// (version 3).
var TestNet3Params = Params{
	Name:        "testnet3",
	Net:         0xf4e5f3f4,
	DefaultPort: "18333",

	GenesisHeader: testNetGenesisHeader,
	GenesisHash:   testNetGenesisHeader.BlockHash(),

	PowLimit:             testNetPowLimit,
	PowLimitBits:         0x1d00ffff,
	ReduceMinDifficulty:  true,
	MinDiffReductionTime: time.Minute * 20,

	TargetTimespan:           time.Hour * 24 * 14,
	TargetTimePerBlock:       time.Minute * 10,
	RetargetAdjustmentFactor: 4,

	SubsidyHalvingInterval: 210000,
	CoinbaseMaturity:       100,

	BIP34Height: 21111,
	BIP65Height: 581885,
	BIP66Height: 330776,
	CSVHeight:   770112,
	UAHFHeight:  1155875,
	DAAHeight:   1188697,
}

// RegressionNetParams defines the network parameters for the regression
// test network.
var RegressionNetParams = Params{
	Name:        "regtest",
	Net:         0xdab5bffa,
	DefaultPort: "18444",

	GenesisHeader: regTestGenesisHeader,
	GenesisHash:   regTestGenesisHeader.BlockHash(),

	PowLimit:               regressionPowLimit,
	PowLimitBits:           0x207fffff,
	NoDifficultyAdjustment: true,

	TargetTimespan:           time.Hour * 24 * 14,
	TargetTimePerBlock:       time.Minute * 10,
	RetargetAdjustmentFactor: 4,

	SubsidyHalvingInterval: 150,
	CoinbaseMaturity:       100,

	BIP34Height: 100000000,
	BIP65Height: 1351,
	BIP66Height: 1251,
	CSVHeight:   576,
	UAHFHeight:  0,
	DAAHeight:   0,
}

// BlockHash computes the hash of a genesis header the same way
// wire.BlockHeader.BlockHash does: double-SHA256 of its 80-byte
// serialization.  Implemented locally (rather than importing wire, which
// imports chaincfg) to avoid an import cycle; wire.BlockHeader.BlockHash
// must and does produce the identical value for the same field values.
func (h BlockHeader) BlockHash() chainhash.Hash {
	buf := make([]byte, 0, 80)
	var scratch [4]byte

	putU32 := func(v uint32) {
		scratch[0] = byte(v)
		scratch[1] = byte(v >> 8)
		scratch[2] = byte(v >> 16)
		scratch[3] = byte(v >> 24)
		buf = append(buf, scratch[:]...)
	}

	putU32(uint32(h.Version))
	buf = append(buf, h.PrevBlock[:]...)
	buf = append(buf, h.MerkleRoot[:]...)
	putU32(uint32(h.Timestamp.Unix()))
	putU32(h.Bits)
	putU32(h.Nonce)

	return chainhash.DoubleHashH(buf)
}
