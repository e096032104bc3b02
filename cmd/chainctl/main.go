// chainctl is a small, read-only inspection tool over a node's on-disk
// chain store and UTXO store: it never mutates either.
package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/btcsuite/btcutil"

	"github.com/bchsuite/bchd/chaincfg/chainhash"
	"github.com/bchsuite/bchd/chainstore"
	"github.com/bchsuite/bchd/utxo"
	"github.com/bchsuite/bchd/wire"
)

func usage() {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  chainctl tip <datadir>")
	fmt.Fprintln(os.Stderr, "  chainctl block <datadir> <height|hash>")
	fmt.Fprintln(os.Stderr, "  chainctl utxo <datadir> <txid>:<index>")
}

func main() {
	if len(os.Args) < 3 {
		usage()
		os.Exit(1)
	}

	if err := initLogRotator(os.Args[2] + "/logs/chainctl.log"); err != nil {
		fmt.Fprintln(os.Stderr, "chainctl:", err)
		os.Exit(1)
	}
	setLogLevels("info")

	var err error
	switch os.Args[1] {
	case "tip":
		err = runTip(os.Args[2])
	case "block":
		if len(os.Args) < 4 {
			usage()
			os.Exit(1)
		}
		err = runBlock(os.Args[2], os.Args[3])
	case "utxo":
		if len(os.Args) < 4 {
			usage()
			os.Exit(1)
		}
		err = runUtxo(os.Args[2], os.Args[3])
	default:
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "chainctl:", err)
		os.Exit(1)
	}
}

func openChainStore(dataDir string) (*chainstore.Store, error) {
	return chainstore.Open(dataDir + "/chain")
}

func runTip(dataDir string) error {
	cs, err := openChainStore(dataDir)
	if err != nil {
		return err
	}
	defer cs.Close()

	height := cs.Height()
	if height < 0 {
		fmt.Println("empty chain store")
		return nil
	}
	hash, ok := cs.TipHash()
	if !ok {
		return fmt.Errorf("could not read tip block")
	}
	fmt.Printf("height %d\nhash   %s\n", height, hash)
	return nil
}

func runBlock(dataDir, arg string) error {
	cs, err := openChainStore(dataDir)
	if err != nil {
		return err
	}
	defer cs.Close()

	var block *wire.MsgBlock
	if height, convErr := strconv.ParseInt(arg, 10, 32); convErr == nil {
		block, err = cs.ReadByHeight(int32(height))
	} else {
		var hash *chainhash.Hash
		hash, err = chainhash.NewHashFromStr(arg)
		if err != nil {
			return fmt.Errorf("invalid height or hash %q: %w", arg, err)
		}
		block, err = cs.ReadByHash(*hash)
	}
	if err != nil {
		return err
	}

	h := block.BlockHash()
	fmt.Printf("hash         %s\n", h)
	fmt.Printf("version      %d\n", block.Header.Version)
	fmt.Printf("previousHash %s\n", block.Header.PrevBlock)
	fmt.Printf("merkleRoot   %s\n", block.Header.MerkleRoot)
	fmt.Printf("time         %s\n", block.Header.Timestamp)
	fmt.Printf("bits         %08x\n", block.Header.Bits)
	fmt.Printf("nonce        %d\n", block.Header.Nonce)
	fmt.Printf("numTx        %d\n", len(block.Transactions))
	return nil
}

func runUtxo(dataDir, arg string) error {
	parts := strings.SplitN(arg, ":", 2)
	if len(parts) != 2 {
		return fmt.Errorf("expected <txid>:<index>, got %q", arg)
	}
	txid, err := chainhash.NewHashFromStr(parts[0])
	if err != nil {
		return fmt.Errorf("invalid txid %q: %w", parts[0], err)
	}
	index, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return fmt.Errorf("invalid output index %q: %w", parts[1], err)
	}

	store, err := utxo.New(utxo.Config{Dir: dataDir + "/utxo"})
	if err != nil {
		return err
	}

	cs, err := openChainStore(dataDir)
	if err != nil {
		return err
	}
	defer cs.Close()
	if err := store.Load(cs.Height()); err != nil {
		return err
	}

	op := utxo.OutPoint{Hash: *txid, Index: uint32(index)}
	entry, ok := store.Lookup(op)
	if !ok {
		fmt.Println("spent or unknown output")
		return nil
	}

	fmt.Printf("amount       %s\n", btcutil.Amount(entry.Amount))
	fmt.Printf("blockHeight  %d\n", entry.BlockHeight)
	fmt.Printf("coinbase     %v\n", entry.IsCoinBase())
	fmt.Printf("pkScript     %s\n", hex.EncodeToString(entry.PkScript))
	return nil
}
