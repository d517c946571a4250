// Copyright (C) 2025 Logan Ross
//
// This file is part of OpenGSLB – https://opengslb.org
//
// SPDX-License-Identifier: AGPL-3.0-or-later OR LicenseRef-OpenGSLB-Commercial

package selector

import (
	"encoding/binary"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// hash32 mixes data with a 32-bit perturbation seed and truncates the
// resulting 64-bit xxhash digest. The perturbation is appended rather than
// prepended so that two backends with a common id prefix still diverge
// early in the digest.
func hash32(data []byte, perturbation uint32) uint32 {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], perturbation)
	d := xxhash.New()
	_, _ = d.Write(data)
	_, _ = d.Write(buf[:])
	return uint32(d.Sum64())
}

// hashQName lower-cases name and hashes it with the perturbation seed,
// producing the value carried as QueryContext.QNameHash.
func hashQName(name string, perturbation uint32) uint32 {
	return hash32([]byte(strings.ToLower(name)), perturbation)
}

// ringPointHash computes the hash contributed to the ring by virtual node i
// (1-indexed) of a backend, salted by "id:i" so that distinct virtual nodes
// of the same backend land at unrelated ring positions.
func ringPointHash(id string, i int, perturbation uint32) uint32 {
	return hash32([]byte(id+":"+strconv.Itoa(i)), perturbation)
}
