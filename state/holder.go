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

// Package state defines the StateHolder contract every stateful operator
// implements to participate in checkpointing, pluggable
// compression selected adaptively by size and access pattern, and the
// non-blocking try-lock snapshot discipline that lets a contended operator
// fall back to a size estimate instead of stalling the checkpoint
// coordinator.
package state

// AccessPattern hints the checkpoint system how a holder's data is used, so
// it can choose snapshot frequency/compression accordingly.
type AccessPattern int

const (
	HotWrite AccessPattern = iota
	HotRead
	ColdBulk
)

// ComponentMetadata identifies a holder for the checkpoint manifest.
type ComponentMetadata struct {
	ID              string
	SchemaVersion   int
	CompressionPref Compression
}

// Holder is the contract every stateful operator (window, table, pattern
// node, join buffer, ...) implements to participate in checkpointing.
type Holder interface {
	// Snapshot produces a serialized blob under the given compression
	// preference, with a schema-version header the Coordinator can inspect
	// without decompressing the whole payload.
	Snapshot(c Compression) (Blob, error)
	// Restore applies a previously produced Blob. It must reject an
	// incompatible schema version unless a migration is registered (see
	// Migrator).
	Restore(b Blob) error
	// EstimateSize is a cheap, non-blocking estimate of the holder's
	// current in-memory footprint, used when Snapshot cannot acquire its
	// lock (see TrySnapshot).
	EstimateSize() int64
	// AccessPattern hints the checkpoint system's scheduling.
	AccessPattern() AccessPattern
	// ComponentMetadata identifies this holder for the manifest.
	ComponentMetadata() ComponentMetadata
}

// Blob is a versioned, optionally compressed snapshot payload.
type Blob struct {
	SchemaVersion int
	Compression   Compression
	Data          []byte
}

// TryLocker is implemented by holders whose Snapshot would otherwise block
// on an internal mutex; Snapshot uses non-blocking lock acquisition
// so a contended operator never stalls a checkpoint. A holder
// not implementing TryLocker is assumed always available (e.g. a holder
// that snapshots from an atomic pointer rather than a locked structure).
type TryLocker interface {
	TryLock() bool
	Unlock()
}

// SnapshotOrEstimate attempts c.Snapshot, falling back to an
// (EstimateSize, false) pair if h implements TryLocker and its lock is
// currently held — the Coordinator then either retries after a backoff or
// marks the holder incremental-only for this checkpoint.
func SnapshotOrEstimate(h Holder, c Compression) (Blob, int64, bool) {
	if tl, ok := h.(TryLocker); ok {
		if !tl.TryLock() {
			return Blob{}, h.EstimateSize(), false
		}
		defer tl.Unlock()
	}
	blob, err := h.Snapshot(c)
	if err != nil {
		return Blob{}, h.EstimateSize(), false
	}
	return blob, int64(len(blob.Data)), true
}

// Migrator upgrades a Blob produced under an older schema version to the
// holder's current version. Registered per-holder-kind; Restore consults it
// when a Blob's SchemaVersion is older than the holder's own.
type Migrator func(old Blob) (Blob, error)
