/*
 * Copyright (C) 2024 osumem contributors
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License version 3 as
 * published by the Free Software Foundation.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 *
 */

// Package pointerwalk follows the fixed dereference chain from a signature
// anchor through the target's BeatmapRecord down to the two UTF-16LE
// strings that make up the current beatmap's path. Every address involved
// is a plain unsigned 32-bit value in the target's (32-bit) address space;
// none of them are ever dereferenced locally, only passed to Reader.
package pointerwalk

import (
	"encoding/binary"
	"errors"
	"strings"
	"unicode/utf16"

	"github.com/anonymouse64/osumem/internal/remoteread"
)

const (
	anchorToP1Offset = 0x0C
	folderPtrOffset  = 0x78
	filePtrOffset    = 0x90
	lengthOffset     = 0x04
	payloadOffset    = 0x08
	maxStringLen     = 256
)

// ErrPointerInvalid means a step of the chain read short/failed, or
// dereferenced a null pointer. The Control Loop's response is to discard
// the base anchor and re-scan.
var ErrPointerInvalid = errors.New("pointer invalid")

// ErrStringInvalid means a decoded string length was outside (0, 256].
var ErrStringInvalid = errors.New("string invalid")

// Reader is the subset of remoteread.Reader the walker needs.
type Reader interface {
	Read(remoteAddr uint64, buf []byte) error
}

// Walker holds the buffer pools used across repeated walks so a tick's
// remote reads reuse buffers instead of allocating new ones: one for 4-byte
// pointer/length reads, one for the up-to-512-byte UTF-16 string payloads.
// Decoding the payloads into strings still allocates.
type Walker struct {
	reader  Reader
	ptrPool *remoteread.BufferPool
	strPool *remoteread.BufferPool
}

// New returns a Walker reading through r.
func New(r Reader) *Walker {
	return &Walker{
		reader:  r,
		ptrPool: remoteread.NewBufferPool(4),
		strPool: remoteread.NewBufferPool(maxStringLen * 2),
	}
}

// Walk runs the chain described in the package doc starting from
// baseAnchor (the address of the matched signature) and returns
// "folder/file" with backslashes normalized to forward slashes.
func (w *Walker) Walk(baseAnchor uint64) (string, error) {
	p1, err := w.readPointer(baseAnchor - anchorToP1Offset)
	if err != nil || p1 == 0 {
		return "", ErrPointerInvalid
	}

	p2, err := w.readPointer(p1)
	if err != nil || p2 == 0 {
		return "", ErrPointerInvalid
	}

	folderPtr, err := w.readPointer(p2 + folderPtrOffset)
	if err != nil {
		return "", ErrPointerInvalid
	}
	filePtr, err := w.readPointer(p2 + filePtrOffset)
	if err != nil {
		return "", ErrPointerInvalid
	}

	folder, err := w.readString(folderPtr)
	if err != nil {
		return "", err
	}
	file, err := w.readString(filePtr)
	if err != nil {
		return "", err
	}

	joined := folder + "/" + file
	return strings.ReplaceAll(joined, `\`, "/"), nil
}

// readPointer reads a little-endian 32-bit value at addr, widened to
// uint64. It is never sign-extended: the target is a 32-bit process and
// remote addresses above 2GiB must not turn negative.
func (w *Walker) readPointer(addr uint64) (uint64, error) {
	buf := w.ptrPool.Get()
	defer w.ptrPool.Put(buf)

	if err := w.reader.Read(addr, buf); err != nil {
		return 0, err
	}
	return uint64(binary.LittleEndian.Uint32(buf)), nil
}

func (w *Walker) readString(ptr uint64) (string, error) {
	if ptr == 0 {
		return "", ErrPointerInvalid
	}

	rawLen, err := w.readPointer(ptr + lengthOffset)
	if err != nil {
		return "", ErrPointerInvalid
	}
	length := int32(uint32(rawLen))
	if length <= 0 || length > maxStringLen {
		return "", ErrStringInvalid
	}

	byteLen := int(length) * 2
	buf := w.strPool.Get()[:byteLen]
	defer w.strPool.Put(buf[:cap(buf)])

	if err := w.reader.Read(ptr+payloadOffset, buf); err != nil {
		return "", ErrPointerInvalid
	}
	return decodeUTF16LE(buf), nil
}

func decodeUTF16LE(b []byte) string {
	units := make([]uint16, len(b)/2)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(b[i*2:])
	}
	return string(utf16.Decode(units))
}
