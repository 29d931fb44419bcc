// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

// Package encoding provides the primitive read/write helpers the p2p wire
// messages and the provisioner set persistence build on: fixed-width
// little-endian integers, length-prefixed byte strings and a Bitcoin-style
// variable-length integer, all operating on bytes.Buffer the way the rest
// of the wire package does.
package encoding

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// WriteUint8 writes a single byte.
func WriteUint8(b *bytes.Buffer, v uint8) error {
	return b.WriteByte(v)
}

// ReadUint8 reads a single byte.
func ReadUint8(b *bytes.Buffer, v *uint8) error {
	c, err := b.ReadByte()
	if err != nil {
		return err
	}
	*v = c
	return nil
}

// WriteUint64LE writes v as 8 little-endian bytes.
func WriteUint64LE(b *bytes.Buffer, v uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, err := b.Write(buf[:])
	return err
}

// ReadUint64LE reads 8 little-endian bytes into v.
func ReadUint64LE(b *bytes.Buffer, v *uint64) error {
	var buf [8]byte
	if _, err := io.ReadFull(b, buf[:]); err != nil {
		return err
	}
	*v = binary.LittleEndian.Uint64(buf[:])
	return nil
}

// ReadUint64 reads 8 big-endian bytes into v, used for fields the original
// wire format encodes big-endian (round numbers and heights in headers).
func ReadUint64(b *bytes.Buffer, v *uint64) error {
	var buf [8]byte
	if _, err := io.ReadFull(b, buf[:]); err != nil {
		return err
	}
	*v = binary.BigEndian.Uint64(buf[:])
	return nil
}

// Write256 writes exactly 32 bytes, erroring if b is a different length.
func Write256(buf *bytes.Buffer, b []byte) error {
	if len(b) != 32 {
		return fmt.Errorf("encoding: expected 32 bytes, got %d", len(b))
	}
	_, err := buf.Write(b)
	return err
}

// Read256 reads exactly 32 bytes.
func Read256(buf *bytes.Buffer, b *[]byte) error {
	out := make([]byte, 32)
	if _, err := io.ReadFull(buf, out); err != nil {
		return err
	}
	*b = out
	return nil
}

// Write512 writes exactly 64 bytes.
func Write512(buf *bytes.Buffer, b []byte) error {
	if len(b) != 64 {
		return fmt.Errorf("encoding: expected 64 bytes, got %d", len(b))
	}
	_, err := buf.Write(b)
	return err
}

// Read512 reads exactly 64 bytes.
func Read512(buf *bytes.Buffer, b *[]byte) error {
	out := make([]byte, 64)
	if _, err := io.ReadFull(buf, out); err != nil {
		return err
	}
	*b = out
	return nil
}

// WriteBLS writes a compressed 96-byte BLS public key or a 48-byte BLS
// signature, whichever length is given - both shapes appear throughout the
// consensus wire format (spec §6).
func WriteBLS(buf *bytes.Buffer, b []byte) error {
	if len(b) != 96 && len(b) != 48 {
		return fmt.Errorf("encoding: unexpected BLS element length %d", len(b))
	}
	_, err := buf.Write(b)
	return err
}

// ReadBLS reads n bytes of a BLS element (96 for a public key, 48 for a
// signature).
func ReadBLS(buf *bytes.Buffer, b *[]byte, n int) error {
	out := make([]byte, n)
	if _, err := io.ReadFull(buf, out); err != nil {
		return err
	}
	*b = out
	return nil
}

// WriteVarBytes writes a length-prefixed byte string: a VarInt length
// followed by the raw bytes.
func WriteVarBytes(buf *bytes.Buffer, b []byte) error {
	if err := WriteVarInt(buf, uint64(len(b))); err != nil {
		return err
	}
	_, err := buf.Write(b)
	return err
}

// ReadVarBytes reads a length-prefixed byte string.
func ReadVarBytes(buf *bytes.Buffer, b *[]byte) error {
	n, err := ReadVarInt(buf)
	if err != nil {
		return err
	}

	out := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(buf, out); err != nil {
			return err
		}
	}
	*b = out
	return nil
}

// Bitcoin-style VarInt prefix markers: values below 0xfd encode as a
// single byte; larger values are prefixed with a marker identifying the
// width of the following little-endian integer.
const (
	varIntMarker16 = 0xfd
	varIntMarker32 = 0xfe
	varIntMarker64 = 0xff
)

// WriteVarInt writes v as a variable-length integer.
func WriteVarInt(buf *bytes.Buffer, v uint64) error {
	switch {
	case v < varIntMarker16:
		return buf.WriteByte(byte(v))
	case v <= 0xffff:
		if err := buf.WriteByte(varIntMarker16); err != nil {
			return err
		}
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], uint16(v))
		_, err := buf.Write(b[:])
		return err
	case v <= 0xffffffff:
		if err := buf.WriteByte(varIntMarker32); err != nil {
			return err
		}
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], uint32(v))
		_, err := buf.Write(b[:])
		return err
	default:
		if err := buf.WriteByte(varIntMarker64); err != nil {
			return err
		}
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], v)
		_, err := buf.Write(b[:])
		return err
	}
}

// ReadVarInt reads a variable-length integer.
func ReadVarInt(buf *bytes.Buffer) (uint64, error) {
	marker, err := buf.ReadByte()
	if err != nil {
		return 0, err
	}

	switch marker {
	case varIntMarker16:
		var b [2]byte
		if _, err := io.ReadFull(buf, b[:]); err != nil {
			return 0, err
		}
		return uint64(binary.LittleEndian.Uint16(b[:])), nil
	case varIntMarker32:
		var b [4]byte
		if _, err := io.ReadFull(buf, b[:]); err != nil {
			return 0, err
		}
		return uint64(binary.LittleEndian.Uint32(b[:])), nil
	case varIntMarker64:
		var b [8]byte
		if _, err := io.ReadFull(buf, b[:]); err != nil {
			return 0, err
		}
		return binary.LittleEndian.Uint64(b[:]), nil
	default:
		return uint64(marker), nil
	}
}
