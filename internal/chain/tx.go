// Package chain implements the VeChain collaborator for sponsored B3TR
// distributions: building and signing a VIP-191 fee-delegated transaction,
// obtaining the sponsor's co-signature, broadcasting the raw transaction,
// and polling for its receipt.
//
// This file covers the transaction model itself. VeChain transactions are
// RLP-encoded and hashed with Blake2b-256; signatures are 65-byte
// recoverable secp256k1. A delegated transaction carries two concatenated
// signatures: the origin's over the signing hash, and the sponsor's over
// blake2b(signingHash || originAddress).
package chain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"golang.org/x/crypto/blake2b"
)

// vip191Feature flags the reserved field of a transaction as fee-delegated.
const vip191Feature uint32 = 1

// Clause is one call carried by a transaction. To is nil for contract
// creation (never used here).
type Clause struct {
	To    *common.Address
	Value *big.Int
	Data  []byte
}

// reserved is the extensible tail of a transaction body; Features bit 0 is
// the VIP-191 delegation flag.
type reserved struct {
	Features uint32
}

// txBody is the unsigned transaction in VeChain wire order.
type txBody struct {
	ChainTag     byte
	BlockRef     uint64
	Expiration   uint32
	Clauses      []Clause
	GasPriceCoef byte
	Gas          uint64
	DependsOn    *common.Hash `rlp:"nil"`
	Nonce        uint64
	Reserved     reserved
}

// signedTx is txBody plus the combined origin+delegator signature.
type signedTx struct {
	ChainTag     byte
	BlockRef     uint64
	Expiration   uint32
	Clauses      []Clause
	GasPriceCoef byte
	Gas          uint64
	DependsOn    *common.Hash `rlp:"nil"`
	Nonce        uint64
	Reserved     reserved
	Signature    []byte
}

// blake2b256 hashes the concatenation of the given byte slices.
func blake2b256(data ...[]byte) common.Hash {
	h, _ := blake2b.New256(nil)
	for _, d := range data {
		h.Write(d)
	}
	var out common.Hash
	h.Sum(out[:0])
	return out
}

// signingHash returns the hash the origin signs: blake2b over the
// RLP-encoded unsigned body.
func (b *txBody) signingHash() (common.Hash, error) {
	enc, err := rlp.EncodeToBytes(b)
	if err != nil {
		return common.Hash{}, err
	}
	return blake2b256(enc), nil
}

// delegatorHash returns the hash the fee sponsor signs.
func delegatorHash(signingHash common.Hash, origin common.Address) common.Hash {
	return blake2b256(signingHash.Bytes(), origin.Bytes())
}

// txID derives the transaction identifier: blake2b over the signing hash
// and the origin address. It is stable before broadcast, which lets the
// claim row record its tx hash while the signed payload is still local.
func txID(signingHash common.Hash, origin common.Address) common.Hash {
	return blake2b256(signingHash.Bytes(), origin.Bytes())
}

// seal assembles the raw transaction from the unsigned body, the origin
// signature, and the sponsor signature, returning (txID, rawTxHex).
func (b *txBody) seal(originSig, sponsorSig []byte, origin common.Address) (string, string, error) {
	hash, err := b.signingHash()
	if err != nil {
		return "", "", err
	}
	full := signedTx{
		ChainTag:     b.ChainTag,
		BlockRef:     b.BlockRef,
		Expiration:   b.Expiration,
		Clauses:      b.Clauses,
		GasPriceCoef: b.GasPriceCoef,
		Gas:          b.Gas,
		DependsOn:    b.DependsOn,
		Nonce:        b.Nonce,
		Reserved:     b.Reserved,
		Signature:    append(append([]byte{}, originSig...), sponsorSig...),
	}
	raw, err := rlp.EncodeToBytes(&full)
	if err != nil {
		return "", "", err
	}
	return txID(hash, origin).Hex(), hexutil.Encode(raw), nil
}

// signOrigin produces the origin's recoverable signature over the signing
// hash.
func (b *txBody) signOrigin(signer *originSigner) ([]byte, common.Hash, error) {
	hash, err := b.signingHash()
	if err != nil {
		return nil, common.Hash{}, err
	}
	sig, err := crypto.Sign(hash.Bytes(), signer.key)
	if err != nil {
		return nil, common.Hash{}, err
	}
	return sig, hash, nil
}
