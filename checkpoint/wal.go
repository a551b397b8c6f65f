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

package checkpoint

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"

	"github.com/rulego/eventflux/ferrors"
	"github.com/rulego/eventflux/state"
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// record is one holder's blob as framed on disk: a length-prefixed JSON
// envelope followed by its CRC32C checksum, so every segment is
// verifiable before any of its records are applied on restore.
type record struct {
	HolderID string     `json:"holder_id"`
	Blob     state.Blob `json:"blob"`
}

// segmentWriter appends records to one WAL segment file: one
// currently-open *os.File, explicit Sync on flush, atomic rename on seal
// so a reader never observes a partially-written segment under its final
// name.
type segmentWriter struct {
	tmpPath  string
	finalPath string
	f        *os.File
	w        *bufio.Writer
}

// newSegmentWriter opens "<dir>/wal-NNNNN.log.tmp"; call seal to make it
// durable and visible under its final "wal-NNNNN.log" name.
func newSegmentWriter(dir string, seq int64) (*segmentWriter, error) {
	final := filepath.Join(dir, segmentName(seq))
	tmp := final + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.KindConfiguration, "checkpoint", "open WAL segment", err)
	}
	return &segmentWriter{tmpPath: tmp, finalPath: final, f: f, w: bufio.NewWriter(f)}, nil
}

func segmentName(seq int64) string {
	return fmt.Sprintf("wal-%09d.log", seq)
}

// Append writes one holder's blob as a new record.
func (sw *segmentWriter) Append(holderID string, b state.Blob) error {
	payload, err := json.Marshal(record{HolderID: holderID, Blob: b})
	if err != nil {
		return ferrors.Wrap(ferrors.KindSchema, "checkpoint", "marshal WAL record", err)
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := sw.w.Write(lenBuf[:]); err != nil {
		return ferrors.Wrap(ferrors.KindConfiguration, "checkpoint", "write WAL record length", err)
	}
	if _, err := sw.w.Write(payload); err != nil {
		return ferrors.Wrap(ferrors.KindConfiguration, "checkpoint", "write WAL record", err)
	}
	sum := crc32.Checksum(payload, castagnoli)
	var crcBuf [4]byte
	binary.BigEndian.PutUint32(crcBuf[:], sum)
	if _, err := sw.w.Write(crcBuf[:]); err != nil {
		return ferrors.Wrap(ferrors.KindConfiguration, "checkpoint", "write WAL record checksum", err)
	}
	return nil
}

// Seal flushes, syncs, and atomically renames the segment into its final
// visible name — the point after which readSegment may safely observe it.
func (sw *segmentWriter) Seal() (string, error) {
	if err := sw.w.Flush(); err != nil {
		return "", ferrors.Wrap(ferrors.KindConfiguration, "checkpoint", "flush WAL segment", err)
	}
	if err := sw.f.Sync(); err != nil {
		return "", ferrors.Wrap(ferrors.KindConfiguration, "checkpoint", "fsync WAL segment", err)
	}
	if err := sw.f.Close(); err != nil {
		return "", ferrors.Wrap(ferrors.KindConfiguration, "checkpoint", "close WAL segment", err)
	}
	if err := os.Rename(sw.tmpPath, sw.finalPath); err != nil {
		return "", ferrors.Wrap(ferrors.KindConfiguration, "checkpoint", "seal WAL segment", err)
	}
	return sw.finalPath, nil
}

// readSegment replays every verified record in a sealed segment, in
// append order. A checksum mismatch is a hard error: nothing from a
// corrupt segment is applied.
func readSegment(path string) ([]record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.KindConfiguration, "checkpoint", "open WAL segment for restore", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var out []record
	for {
		var lenBuf [4]byte
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			if err == io.EOF {
				break
			}
			return nil, ferrors.Wrap(ferrors.KindSchema, "checkpoint", "read WAL record length", err)
		}
		n := binary.BigEndian.Uint32(lenBuf[:])
		payload := make([]byte, n)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, ferrors.Wrap(ferrors.KindSchema, "checkpoint", "read WAL record payload", err)
		}
		var crcBuf [4]byte
		if _, err := io.ReadFull(r, crcBuf[:]); err != nil {
			return nil, ferrors.Wrap(ferrors.KindSchema, "checkpoint", "read WAL record checksum", err)
		}
		want := binary.BigEndian.Uint32(crcBuf[:])
		got := crc32.Checksum(payload, castagnoli)
		if want != got {
			return nil, ferrors.New(ferrors.KindSchema, "checkpoint", "WAL segment checksum mismatch: "+path)
		}
		var rec record
		if err := json.Unmarshal(payload, &rec); err != nil {
			return nil, ferrors.Wrap(ferrors.KindSchema, "checkpoint", "unmarshal WAL record", err)
		}
		out = append(out, rec)
	}
	return out, nil
}
