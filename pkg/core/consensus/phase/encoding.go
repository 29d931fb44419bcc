// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

package phase

import (
	"bytes"
	"encoding/binary"
	"time"

	"github.com/pkg/errors"
)

// MarshalAverageElapsedTime encodes a's recorded samples as a
// little-endian-millisecond ring buffer: u32 cap, u32 count, then
// count millisecond samples in insertion order (spec §6 "MD_AVG_* ->
// AverageElapsedTime encoding", original_source's chain::metrics
// persisted form).
func MarshalAverageElapsedTime(a *AverageElapsedTime) []byte {
	n := a.next
	if a.filled {
		n = a.cap
	}

	buf := make([]byte, 8+n*4)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(a.cap))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(n))

	for i := 0; i < n; i++ {
		idx := i
		if a.filled {
			idx = (a.next + i) % a.cap
		}
		binary.LittleEndian.PutUint32(buf[8+i*4:12+i*4], uint32(a.samples[idx].Milliseconds()))
	}
	return buf
}

// UnmarshalAverageElapsedTime decodes the form MarshalAverageElapsedTime
// produces.
func UnmarshalAverageElapsedTime(raw []byte) (*AverageElapsedTime, error) {
	r := bytes.NewReader(raw)

	var capacity, count uint32
	if err := binary.Read(r, binary.LittleEndian, &capacity); err != nil {
		return nil, errors.Wrap(err, "phase: read average-elapsed-time capacity")
	}
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, errors.Wrap(err, "phase: read average-elapsed-time count")
	}

	a := NewAverageElapsedTime(int(capacity))
	for i := uint32(0); i < count; i++ {
		var ms uint32
		if err := binary.Read(r, binary.LittleEndian, &ms); err != nil {
			return nil, errors.Wrap(err, "phase: read average-elapsed-time sample")
		}
		a.Observe(time.Duration(ms) * time.Millisecond)
	}
	return a, nil
}
