// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

// Package bls wraps the BLS12-381 signing/aggregation primitive the
// consensus core treats as an external collaborator (spec §1, §6).
// Dusk's wire format fixes a 48-byte aggregate signature and a 96-byte
// public key (StepVotes, IterationsInfo in spec §6), which is the
// minimal-signature-size ("min-sig") BLS12-381 parameterization: signatures live in
// G1 (48-byte compressed), public keys in G2 (96-byte compressed). This is
// grounded on github.com/supranational/blst, the only BLS12-381 dependency
// present anywhere in the example pack (luxfi-consensus/go.mod, indirect
// via its validator-signing stack), replacing the teacher's now-superseded
// Ristretto/BN256 scheme (see DESIGN.md).
package bls

import (
	"errors"

	blst "github.com/supranational/blst/bindings/go"
)

// DST is the domain separation tag mixed into every signed message, so
// Validation and Ratification votes (and any future signer) can never be
// confused for each other at the cryptographic layer.
var DST = []byte("VIREO-CONSENSUS-BLS-SIG-V1")

// PublicKeySize and SignatureSize are the compressed encoding lengths spec
// §6 fixes for the wire format.
const (
	PublicKeySize = 96
	SignatureSize = 48
)

// SecretKey is a BLS12-381 signing key.
type SecretKey struct {
	inner *blst.SecretKey
}

// PublicKey is a compressed G2 BLS12-381 public key.
type PublicKey struct {
	inner *blst.P2Affine
}

// Signature is a compressed G1 BLS12-381 signature.
type Signature struct {
	inner *blst.P1Affine
}

// KeyGen deterministically derives a keypair from ikm (at least 32 bytes of
// secret entropy), the way a provisioner loads its consensus keys at boot.
func KeyGen(ikm []byte) (*SecretKey, *PublicKey, error) {
	if len(ikm) < 32 {
		return nil, nil, errors.New("bls: ikm must be at least 32 bytes")
	}

	sk := blst.KeyGen(ikm)
	if sk == nil {
		return nil, nil, errors.New("bls: key generation failed")
	}

	pk := new(blst.P2Affine).From(sk)
	return &SecretKey{sk}, &PublicKey{pk}, nil
}

// Sign produces a signature over msg under sk.
func Sign(sk *SecretKey, msg []byte) *Signature {
	sig := new(blst.P1Affine).Sign(sk.inner, msg, DST)
	return &Signature{sig}
}

// Verify checks a single signature against a single public key.
func Verify(pk *PublicKey, msg []byte, sig *Signature) bool {
	if pk == nil || sig == nil {
		return false
	}
	return sig.inner.Verify(true, pk.inner, true, msg, DST)
}

// AggregateSignatures combines n signatures into one, as the Accumulator
// does once a step's StepVotes reaches quorum (spec §4.4, §4.5).
func AggregateSignatures(sigs []*Signature) (*Signature, error) {
	if len(sigs) == 0 {
		return nil, errors.New("bls: cannot aggregate zero signatures")
	}

	points := make([]*blst.P1Affine, len(sigs))
	for i, s := range sigs {
		points[i] = s.inner
	}

	var agg blst.P1Aggregate
	if !agg.Aggregate(points, true) {
		return nil, errors.New("bls: signature aggregation failed")
	}

	affine := agg.ToAffine()
	return &Signature{affine}, nil
}

// AggregatePublicKeys combines the public keys of a sub-committee into a
// single aggregated key, the apk that a StepVotes bitset's signature is
// checked against (spec §4.5 step 4).
func AggregatePublicKeys(pks []*PublicKey) (*PublicKey, error) {
	if len(pks) == 0 {
		return nil, errors.New("bls: cannot aggregate zero public keys")
	}

	points := make([]*blst.P2Affine, len(pks))
	for i, p := range pks {
		points[i] = p.inner
	}

	var agg blst.P2Aggregate
	if !agg.Aggregate(points, true) {
		return nil, errors.New("bls: public key aggregation failed")
	}

	affine := agg.ToAffine()
	return &PublicKey{affine}, nil
}

// Compress returns the canonical 48-byte encoding of a signature.
func (s *Signature) Compress() []byte {
	return s.inner.Compress()
}

// Compress returns the canonical 96-byte encoding of a public key.
func (p *PublicKey) Compress() []byte {
	return p.inner.Compress()
}

// Bytes returns the raw secret scalar. Used only for tests and local
// key storage, never transmitted.
func (sk *SecretKey) Bytes() []byte {
	return sk.inner.Serialize()
}

// PublicKeyFromBytes decompresses a 96-byte public key.
func PublicKeyFromBytes(b []byte) (*PublicKey, error) {
	if len(b) != PublicKeySize {
		return nil, errors.New("bls: invalid public key length")
	}

	p := new(blst.P2Affine).Uncompress(b)
	if p == nil || !p.KeyValidate() {
		return nil, errors.New("bls: invalid public key encoding")
	}

	return &PublicKey{p}, nil
}

// SignatureFromBytes decompresses a 48-byte signature.
func SignatureFromBytes(b []byte) (*Signature, error) {
	if len(b) != SignatureSize {
		return nil, errors.New("bls: invalid signature length")
	}

	s := new(blst.P1Affine).Uncompress(b)
	if s == nil {
		return nil, errors.New("bls: invalid signature encoding")
	}

	return &Signature{s}, nil
}
