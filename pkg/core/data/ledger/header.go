// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

package ledger

import "github.com/vireo-chain/vireo/pkg/crypto/hash"

// Header is a block header (spec §3 Block). Hash is computed over every
// other field except Attestation (see Signable) and is never itself part
// of the hashed payload.
type Header struct {
	Version          uint8
	Height           uint64
	Timestamp        int64
	PrevBlockHash    [HashSize]byte
	Seed             Seed
	StateHash        [HashSize]byte
	EventHash        [HashSize]byte
	GeneratorBLSPub  [PubKeySize]byte
	Iteration        uint8
	PrevBlockCert    Certificate
	FailedIterations FailedIterations
	TxRoot           [HashSize]byte
	Attestation      Attestation
	Hash             [HashSize]byte
}

// ConsensusHeader projects the fields consensus messages reference out of
// the full block header.
func (h Header) ConsensusHeader() ConsensusHeader {
	return ConsensusHeader{
		Round:         h.Height,
		Iteration:     h.Iteration,
		PrevBlockHash: h.PrevBlockHash,
		BlockHash:     h.Hash,
	}
}

// Signable returns the byte sequence the block hash commits to: every
// header field except the hash itself and the attestation, mirroring the
// original's header.signable() used both for hashing and for the
// Ratification vote's payload.
func (h Header) Signable() []byte {
	buf := make([]byte, 0, 256)
	buf = append(buf, h.Version)
	buf = appendUint64(buf, h.Height)
	buf = appendUint64(buf, uint64(h.Timestamp))
	buf = append(buf, h.PrevBlockHash[:]...)
	buf = append(buf, h.Seed[:]...)
	buf = append(buf, h.StateHash[:]...)
	buf = append(buf, h.EventHash[:]...)
	buf = append(buf, h.GeneratorBLSPub[:]...)
	buf = append(buf, h.Iteration)
	buf = append(buf, encodeCertificate(h.PrevBlockCert)...)
	buf = append(buf, encodeFailedIterations(h.FailedIterations)...)
	buf = append(buf, h.TxRoot[:]...)
	return buf
}

// ComputeHash derives and returns the header's hash; it does not mutate h.
func (h Header) ComputeHash() [HashSize]byte {
	return hash.Sum(h.Signable())
}

// WithHash returns a copy of h with Hash set to its computed digest, the
// way candidate headers are finalized once fully assembled.
func (h Header) WithHash() Header {
	h.Hash = h.ComputeHash()
	return h
}

// Block pairs a header with its transaction set. Transactions are opaque
// at this layer; pkg/core/data/transactions defines their shape.
type Block struct {
	Header Header
	Txs    [][]byte
}

// BlockWithLabel is a block together with the finality label the Acceptor
// assigned it upon acceptance (spec §3, §4.9).
type BlockWithLabel struct {
	Block Block
	Label Label
}
