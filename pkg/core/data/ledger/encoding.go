// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

package ledger

import (
	"encoding/binary"
	"fmt"
	"io"
)

// This file implements the bit-exact little-endian wire format spec §6
// fixes for the consensus data model, in the style of the teacher's
// pkg/p2p/wire/message Marshal/Unmarshal pairs: every type encodes itself
// to an io.Writer and decodes itself from an io.Reader, with no reflection
// and no intermediate buffering beyond what a single field needs.

func writeUint64(w io.Writer, v uint64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func readUint64(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

func writeUint8(w io.Writer, v uint8) error {
	_, err := w.Write([]byte{v})
	return err
}

func readUint8(r io.Reader) (uint8, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func writeBytes(w io.Writer, b []byte) error {
	_, err := w.Write(b)
	return err
}

func readBytes(r io.Reader, n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

// MarshalConsensusHeader writes a ConsensusHeader in wire form.
func MarshalConsensusHeader(w io.Writer, h ConsensusHeader) error {
	if err := writeUint64(w, h.Round); err != nil {
		return err
	}
	if err := writeUint8(w, h.Iteration); err != nil {
		return err
	}
	if err := writeBytes(w, h.PrevBlockHash[:]); err != nil {
		return err
	}
	return writeBytes(w, h.BlockHash[:])
}

// UnmarshalConsensusHeader reads a ConsensusHeader in wire form.
func UnmarshalConsensusHeader(r io.Reader) (ConsensusHeader, error) {
	var h ConsensusHeader
	var err error

	if h.Round, err = readUint64(r); err != nil {
		return h, err
	}
	if h.Iteration, err = readUint8(r); err != nil {
		return h, err
	}
	prev, err := readBytes(r, HashSize)
	if err != nil {
		return h, err
	}
	copy(h.PrevBlockHash[:], prev)

	blk, err := readBytes(r, HashSize)
	if err != nil {
		return h, err
	}
	copy(h.BlockHash[:], blk)

	return h, nil
}

// MarshalVote writes a Vote: a one-byte kind tag followed by the hash for
// Valid/Invalid kinds. NoQuorum and NoCandidate carry no hash on the wire
// (open question in spec §9 resolved this way; see DESIGN.md).
func MarshalVote(w io.Writer, v Vote) error {
	if err := writeUint8(w, uint8(v.Kind)); err != nil {
		return err
	}
	if v.Kind == VoteValid || v.Kind == VoteInvalid {
		return writeBytes(w, v.Hash[:])
	}
	return nil
}

// UnmarshalVote reads a Vote in wire form.
func UnmarshalVote(r io.Reader) (Vote, error) {
	kind, err := readUint8(r)
	if err != nil {
		return Vote{}, err
	}

	v := Vote{Kind: VoteKind(kind)}
	if v.Kind > VoteInvalid {
		return Vote{}, fmt.Errorf("ledger: invalid vote kind %d", kind)
	}

	if v.Kind == VoteValid || v.Kind == VoteInvalid {
		h, err := readBytes(r, HashSize)
		if err != nil {
			return Vote{}, err
		}
		copy(v.Hash[:], h)
	}

	return v, nil
}

// MarshalStepVotes writes a StepVotes.
func MarshalStepVotes(w io.Writer, sv StepVotes) error {
	if err := writeUint64(w, sv.BitSet); err != nil {
		return err
	}
	return writeBytes(w, sv.AggregateSignature[:])
}

// UnmarshalStepVotes reads a StepVotes.
func UnmarshalStepVotes(r io.Reader) (StepVotes, error) {
	var sv StepVotes
	var err error

	if sv.BitSet, err = readUint64(r); err != nil {
		return sv, err
	}

	sig, err := readBytes(r, SigSize)
	if err != nil {
		return sv, err
	}
	copy(sv.AggregateSignature[:], sig)

	return sv, nil
}

// MarshalRatificationResult writes a RatificationResult.
func MarshalRatificationResult(w io.Writer, r RatificationResult) error {
	if err := writeUint8(w, uint8(r.Tag)); err != nil {
		return err
	}
	return MarshalVote(w, r.Vote)
}

// UnmarshalRatificationResult reads a RatificationResult.
func UnmarshalRatificationResult(r io.Reader) (RatificationResult, error) {
	tag, err := readUint8(r)
	if err != nil {
		return RatificationResult{}, err
	}
	if tag != uint8(TagFail) && tag != uint8(TagSuccess) {
		return RatificationResult{}, fmt.Errorf("ledger: invalid ratification tag %d", tag)
	}

	v, err := UnmarshalVote(r)
	if err != nil {
		return RatificationResult{}, err
	}

	return RatificationResult{Tag: RatificationTag(tag), Vote: v}, nil
}

// MarshalAttestation writes an Attestation.
func MarshalAttestation(w io.Writer, a Attestation) error {
	if err := MarshalRatificationResult(w, a.Result); err != nil {
		return err
	}
	if err := MarshalStepVotes(w, a.Validation); err != nil {
		return err
	}
	return MarshalStepVotes(w, a.Ratification)
}

// UnmarshalAttestation reads an Attestation.
func UnmarshalAttestation(r io.Reader) (Attestation, error) {
	var a Attestation
	var err error

	if a.Result, err = UnmarshalRatificationResult(r); err != nil {
		return a, err
	}
	if a.Validation, err = UnmarshalStepVotes(r); err != nil {
		return a, err
	}
	if a.Ratification, err = UnmarshalStepVotes(r); err != nil {
		return a, err
	}

	return a, nil
}

func encodeCertificate(c Certificate) []byte {
	buf := make([]byte, 0, 16+2*SigSize)
	buf = binary.LittleEndian.AppendUint64(buf, c.Validation.BitSet)
	buf = append(buf, c.Validation.AggregateSignature[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, c.Ratification.BitSet)
	buf = append(buf, c.Ratification.AggregateSignature[:]...)
	return buf
}

// MarshalCertificate writes a Certificate.
func MarshalCertificate(w io.Writer, c Certificate) error {
	if err := MarshalStepVotes(w, c.Validation); err != nil {
		return err
	}
	return MarshalStepVotes(w, c.Ratification)
}

// UnmarshalCertificate reads a Certificate.
func UnmarshalCertificate(r io.Reader) (Certificate, error) {
	var c Certificate
	var err error

	if c.Validation, err = UnmarshalStepVotes(r); err != nil {
		return c, err
	}
	if c.Ratification, err = UnmarshalStepVotes(r); err != nil {
		return c, err
	}

	return c, nil
}

// MarshalFailedIterations writes the FailedIterations list: a uint16
// count, followed by each entry's presence byte and, when present, its
// Certificate and public key.
func MarshalFailedIterations(w io.Writer, f FailedIterations) error {
	if len(f.Entries) > 0xffff {
		return fmt.Errorf("ledger: too many failed iteration entries: %d", len(f.Entries))
	}

	var count [2]byte
	binary.LittleEndian.PutUint16(count[:], uint16(len(f.Entries)))
	if err := writeBytes(w, count[:]); err != nil {
		return err
	}

	for _, e := range f.Entries {
		present := uint8(0)
		if e.Present {
			present = 1
		}
		if err := writeUint8(w, present); err != nil {
			return err
		}
		if !e.Present {
			continue
		}
		if err := MarshalCertificate(w, e.Cert); err != nil {
			return err
		}
		if err := writeBytes(w, e.PubKey[:]); err != nil {
			return err
		}
	}

	return nil
}

// UnmarshalFailedIterations reads a FailedIterations list.
func UnmarshalFailedIterations(r io.Reader) (FailedIterations, error) {
	var countBuf [2]byte
	if _, err := io.ReadFull(r, countBuf[:]); err != nil {
		return FailedIterations{}, err
	}
	count := binary.LittleEndian.Uint16(countBuf[:])

	entries := make([]FailedIterationEntry, count)
	for i := range entries {
		present, err := readUint8(r)
		if err != nil {
			return FailedIterations{}, err
		}
		if present == 0 {
			continue
		}

		cert, err := UnmarshalCertificate(r)
		if err != nil {
			return FailedIterations{}, err
		}

		pk, err := readBytes(r, PubKeySize)
		if err != nil {
			return FailedIterations{}, err
		}

		entries[i].Present = true
		entries[i].Cert = cert
		copy(entries[i].PubKey[:], pk)
	}

	return FailedIterations{Entries: entries}, nil
}

func encodeFailedIterations(f FailedIterations) []byte {
	var buf []byte
	for i := range f.Entries {
		e := &f.Entries[i]
		if !e.Present {
			buf = append(buf, 0)
			continue
		}
		buf = append(buf, 1)
		buf = append(buf, encodeCertificate(e.Cert)...)
		buf = append(buf, e.PubKey[:]...)
	}
	return buf
}

// MarshalLabel writes a Label as a single byte.
func MarshalLabel(w io.Writer, l Label) error {
	if !l.Valid() {
		return fmt.Errorf("ledger: invalid label %d", l)
	}
	return writeUint8(w, uint8(l))
}

// UnmarshalLabel reads a Label.
func UnmarshalLabel(r io.Reader) (Label, error) {
	v, err := readUint8(r)
	if err != nil {
		return 0, err
	}
	l := Label(v)
	if !l.Valid() {
		return 0, fmt.Errorf("ledger: invalid label %d", v)
	}
	return l, nil
}

// MarshalHeader writes a full block Header.
func MarshalHeader(w io.Writer, h Header) error {
	if err := writeUint8(w, h.Version); err != nil {
		return err
	}
	if err := writeUint64(w, h.Height); err != nil {
		return err
	}
	if err := writeUint64(w, uint64(h.Timestamp)); err != nil {
		return err
	}
	if err := writeBytes(w, h.PrevBlockHash[:]); err != nil {
		return err
	}
	if err := writeBytes(w, h.Seed[:]); err != nil {
		return err
	}
	if err := writeBytes(w, h.StateHash[:]); err != nil {
		return err
	}
	if err := writeBytes(w, h.EventHash[:]); err != nil {
		return err
	}
	if err := writeBytes(w, h.GeneratorBLSPub[:]); err != nil {
		return err
	}
	if err := writeUint8(w, h.Iteration); err != nil {
		return err
	}
	if err := MarshalCertificate(w, h.PrevBlockCert); err != nil {
		return err
	}
	if err := MarshalFailedIterations(w, h.FailedIterations); err != nil {
		return err
	}
	if err := writeBytes(w, h.TxRoot[:]); err != nil {
		return err
	}
	if err := MarshalAttestation(w, h.Attestation); err != nil {
		return err
	}
	return writeBytes(w, h.Hash[:])
}

// UnmarshalHeader reads a full block Header.
func UnmarshalHeader(r io.Reader) (Header, error) {
	var h Header
	var err error

	if h.Version, err = readUint8(r); err != nil {
		return h, err
	}
	if h.Height, err = readUint64(r); err != nil {
		return h, err
	}
	ts, err := readUint64(r)
	if err != nil {
		return h, err
	}
	h.Timestamp = int64(ts)

	for _, field := range []*[HashSize]byte{&h.PrevBlockHash, (*[HashSize]byte)(&h.Seed), &h.StateHash, &h.EventHash} {
		b, err := readBytes(r, HashSize)
		if err != nil {
			return h, err
		}
		copy(field[:], b)
	}

	gp, err := readBytes(r, PubKeySize)
	if err != nil {
		return h, err
	}
	copy(h.GeneratorBLSPub[:], gp)

	if h.Iteration, err = readUint8(r); err != nil {
		return h, err
	}
	if h.PrevBlockCert, err = UnmarshalCertificate(r); err != nil {
		return h, err
	}
	if h.FailedIterations, err = UnmarshalFailedIterations(r); err != nil {
		return h, err
	}

	txRoot, err := readBytes(r, HashSize)
	if err != nil {
		return h, err
	}
	copy(h.TxRoot[:], txRoot)

	if h.Attestation, err = UnmarshalAttestation(r); err != nil {
		return h, err
	}

	hashBytes, err := readBytes(r, HashSize)
	if err != nil {
		return h, err
	}
	copy(h.Hash[:], hashBytes)

	return h, nil
}

// MarshalBlock writes a Block: its header followed by a uint32 tx count
// and each transaction's length-prefixed raw bytes.
func MarshalBlock(w io.Writer, b Block) error {
	if err := MarshalHeader(w, b.Header); err != nil {
		return err
	}

	var count [4]byte
	binary.LittleEndian.PutUint32(count[:], uint32(len(b.Txs)))
	if err := writeBytes(w, count[:]); err != nil {
		return err
	}

	for _, tx := range b.Txs {
		var n [4]byte
		binary.LittleEndian.PutUint32(n[:], uint32(len(tx)))
		if err := writeBytes(w, n[:]); err != nil {
			return err
		}
		if err := writeBytes(w, tx); err != nil {
			return err
		}
	}

	return nil
}

// UnmarshalBlock reads a Block.
func UnmarshalBlock(r io.Reader) (Block, error) {
	var b Block
	var err error

	if b.Header, err = UnmarshalHeader(r); err != nil {
		return b, err
	}

	var countBuf [4]byte
	if _, err := io.ReadFull(r, countBuf[:]); err != nil {
		return b, err
	}
	count := binary.LittleEndian.Uint32(countBuf[:])

	b.Txs = make([][]byte, count)
	for i := range b.Txs {
		var n [4]byte
		if _, err := io.ReadFull(r, n[:]); err != nil {
			return b, err
		}
		length := binary.LittleEndian.Uint32(n[:])

		tx, err := readBytes(r, int(length))
		if err != nil {
			return b, err
		}
		b.Txs[i] = tx
	}

	return b, nil
}
