// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

package agreement

import (
	"bytes"

	"github.com/vireo-chain/vireo/pkg/core/data/ledger"
	"github.com/vireo-chain/vireo/pkg/p2p/wire/encoding"
)

// MarshalEvent writes an Event in the wire format a Network transport
// gossips it in, mirroring the teacher's pkg/p2p/wire/message encoders.
func MarshalEvent(buf *bytes.Buffer, ev Event) error {
	if err := encoding.WriteUint64LE(buf, ev.Header.Round); err != nil {
		return err
	}
	if err := encoding.WriteUint8(buf, ev.Header.Iteration); err != nil {
		return err
	}
	if err := encoding.Write256(buf, ev.Header.PrevBlockHash[:]); err != nil {
		return err
	}
	if err := encoding.Write256(buf, ev.Header.BlockHash[:]); err != nil {
		return err
	}
	if err := encoding.Write256(buf, ev.Seed[:]); err != nil {
		return err
	}
	if err := encoding.WriteUint8(buf, uint8(ev.Step)); err != nil {
		return err
	}
	if err := encoding.WriteVarBytes(buf, ev.Signer); err != nil {
		return err
	}
	if err := encoding.WriteUint8(buf, uint8(ev.Vote.Kind)); err != nil {
		return err
	}
	if err := encoding.Write256(buf, ev.Vote.Hash[:]); err != nil {
		return err
	}
	return encoding.WriteBLS(buf, ev.Signature[:])
}

// UnmarshalEvent reads an Event written by MarshalEvent.
func UnmarshalEvent(buf *bytes.Buffer) (Event, error) {
	var ev Event

	if err := encoding.ReadUint64LE(buf, &ev.Header.Round); err != nil {
		return Event{}, err
	}
	if err := encoding.ReadUint8(buf, &ev.Header.Iteration); err != nil {
		return Event{}, err
	}

	var prevHash, blockHash, seed, voteHash []byte
	if err := encoding.Read256(buf, &prevHash); err != nil {
		return Event{}, err
	}
	copy(ev.Header.PrevBlockHash[:], prevHash)

	if err := encoding.Read256(buf, &blockHash); err != nil {
		return Event{}, err
	}
	copy(ev.Header.BlockHash[:], blockHash)

	if err := encoding.Read256(buf, &seed); err != nil {
		return Event{}, err
	}
	copy(ev.Seed[:], seed)

	var step uint8
	if err := encoding.ReadUint8(buf, &step); err != nil {
		return Event{}, err
	}
	ev.Step = ledger.StepName(step)

	if err := encoding.ReadVarBytes(buf, &ev.Signer); err != nil {
		return Event{}, err
	}

	var voteKind uint8
	if err := encoding.ReadUint8(buf, &voteKind); err != nil {
		return Event{}, err
	}
	ev.Vote.Kind = ledger.VoteKind(voteKind)

	if err := encoding.Read256(buf, &voteHash); err != nil {
		return Event{}, err
	}
	copy(ev.Vote.Hash[:], voteHash)

	var sig []byte
	if err := encoding.ReadBLS(buf, &sig, 48); err != nil {
		return Event{}, err
	}
	copy(ev.Signature[:], sig)

	return ev, nil
}
