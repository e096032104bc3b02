package txscript

import (
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/bchsuite/bchd/chaincfg/chainhash"
)

// sigCacheEntry represents a previously validated (sig, pubkey, hash)
// triple along with its outcome, keyed by a digest of all three so an
// attacker cannot poison the cache by colliding only the message hash.
type sigCacheEntry struct {
	sigHash chainhash.Hash
	sig     []byte
	pubKey  []byte
	valid   bool
}

// SigCache implements an ECDSA signature verification cache with a fixed
// maximum number of entries.  Each block's input scripts are checked
// exactly once and the result memoised here, so a block that is reorganised
// out and later reinstated (or a transaction relayed multiple times) avoids
// repeating the elliptic-curve arithmetic.  Unlike the upstream design this
// is a plain capped map guarded by a mutex rather than a random-eviction
// scheme; eviction order does not affect consensus, only performance.
type SigCache struct {
	sync.RWMutex
	validSigs  map[chainhash.Hash]sigCacheEntry
	maxEntries uint
}

// NewSigCache creates and initializes a new instance of SigCache with the
// given maximum number of entries.
func NewSigCache(maxEntries uint) *SigCache {
	return &SigCache{
		validSigs:  make(map[chainhash.Hash]sigCacheEntry, maxEntries),
		maxEntries: maxEntries,
	}
}

func cacheKey(sigHash chainhash.Hash, sig *ecdsa.Signature, pubKey *btcec.PublicKey) chainhash.Hash {
	var buf []byte
	buf = append(buf, sigHash[:]...)
	buf = append(buf, sig.Serialize()...)
	buf = append(buf, pubKey.SerializeCompressed()...)
	return chainhash.HashH(buf)
}

// Lookup returns whether the passed (sigHash, sig, pubKey) triple has been
// previously validated and, if so, whether it was found valid.
func (s *SigCache) Lookup(sigHash chainhash.Hash, sig *ecdsa.Signature, pubKey *btcec.PublicKey) (bool, bool) {
	s.RLock()
	defer s.RUnlock()

	entry, ok := s.validSigs[cacheKey(sigHash, sig, pubKey)]
	if !ok {
		return false, false
	}
	return entry.valid, true
}

// Add adds the passed (sigHash, sig, pubKey, valid) tuple to the signature
// cache, evicting the entire cache if it has grown beyond its configured
// maximum size.
func (s *SigCache) Add(sigHash chainhash.Hash, sig *ecdsa.Signature, pubKey *btcec.PublicKey, valid bool) {
	if s.maxEntries == 0 {
		return
	}

	s.Lock()
	defer s.Unlock()

	if uint(len(s.validSigs)) >= s.maxEntries {
		s.validSigs = make(map[chainhash.Hash]sigCacheEntry, s.maxEntries)
	}

	key := cacheKey(sigHash, sig, pubKey)
	s.validSigs[key] = sigCacheEntry{
		sigHash: sigHash,
		sig:     sig.Serialize(),
		pubKey:  pubKey.SerializeCompressed(),
		valid:   valid,
	}
}
