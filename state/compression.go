/*
 * Copyright 2025 The RuleGo Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package state

import (
	"bytes"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects the codec a Blob's payload is encoded with.
type Compression int

const (
	None Compression = iota
	Snappy
	LZ4
	Zstd
)

func (c Compression) String() string {
	switch c {
	case Snappy:
		return "snappy"
	case LZ4:
		return "lz4"
	case Zstd:
		return "zstd"
	default:
		return "none"
	}
}

// smallBufferThreshold is the size below which compression is skipped
// outright — the framing/codec overhead would exceed any size win.
const smallBufferThreshold = 256

// Compressor implements one codec's Encode/Decode pair.
type Compressor interface {
	Encode(data []byte) ([]byte, error)
	Decode(data []byte) ([]byte, error)
}

type noneCompressor struct{}

func (noneCompressor) Encode(data []byte) ([]byte, error) { return data, nil }
func (noneCompressor) Decode(data []byte) ([]byte, error) { return data, nil }

type snappyCompressor struct{}

func (snappyCompressor) Encode(data []byte) ([]byte, error) {
	return snappy.Encode(nil, data), nil
}
func (snappyCompressor) Decode(data []byte) ([]byte, error) {
	return snappy.Decode(nil, data)
}

type lz4Compressor struct{}

func (lz4Compressor) Encode(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
func (lz4Compressor) Decode(data []byte) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(data))
	return io.ReadAll(r)
}

type zstdCompressor struct{}

func (zstdCompressor) Encode(data []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil), nil
}
func (zstdCompressor) Decode(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(data, nil)
}

// CompressorFor returns the Compressor implementing c.
func CompressorFor(c Compression) Compressor {
	switch c {
	case Snappy:
		return snappyCompressor{}
	case LZ4:
		return lz4Compressor{}
	case Zstd:
		return zstdCompressor{}
	default:
		return noneCompressor{}
	}
}

// ChooseCompression adaptively picks a codec by payload size and access
// pattern:
//   - buffers under smallBufferThreshold: None (overhead not worth it)
//   - HotWrite (frequently re-snapshotted): Snappy — cheapest CPU cost
//   - HotRead: LZ4 — balanced ratio/speed for data decoded often
//   - ColdBulk (rarely touched, snapshotted once and kept): Zstd — best
//     ratio, CPU cost amortized over its long resting lifetime
func ChooseCompression(size int, pattern AccessPattern) Compression {
	if size < smallBufferThreshold {
		return None
	}
	switch pattern {
	case HotWrite:
		return Snappy
	case HotRead:
		return LZ4
	default:
		return Zstd
	}
}

// EncodeBlob compresses payload with the chosen codec and wraps it with the
// holder's schema version.
func EncodeBlob(schemaVersion int, c Compression, payload []byte) (Blob, error) {
	encoded, err := CompressorFor(c).Encode(payload)
	if err != nil {
		return Blob{}, err
	}
	return Blob{SchemaVersion: schemaVersion, Compression: c, Data: encoded}, nil
}

// DecodeBlob decompresses a Blob's payload back to its raw bytes.
func DecodeBlob(b Blob) ([]byte, error) {
	return CompressorFor(b.Compression).Decode(b.Data)
}
