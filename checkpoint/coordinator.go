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

// Package checkpoint implements the checkpoint coordinator: a segmented,
// checksummed write-ahead log of state.Holder snapshots and
// deltas, a bbolt-backed manifest of recovery points, and dependency-
// ordered parallel restore (tables, then windows, then patterns — a table
// may be referenced by a window's join condition, and a pattern may bind
// across a window's output, so later tiers must see earlier tiers already
// restored).
package checkpoint

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rulego/eventflux/ferrors"
	"github.com/rulego/eventflux/state"
)

// Tier orders holder kinds for restore: all Tier0 holders are restored
// (in parallel with each other) before any Tier1 holder starts, and so on.
type Tier int

const (
	TierTable Tier = iota
	TierWindow
	TierPattern
)

// registration binds one holder to its coordinator-assigned id and tier.
type registration struct {
	id    string
	tier  Tier
	owner state.Holder
}

// Coordinator owns the WAL directory and manifest for one query's
// persisted state, and drives full/incremental checkpoints and restores
// across every registered state.Holder.
type Coordinator struct {
	dir         string
	compression state.Compression
	retain      int           // keep at most this many sealed checkpoints; 0 = unlimited
	retainFor   time.Duration // additionally reclaim checkpoints older than this; 0 = unlimited

	mu     sync.Mutex
	mf     *manifest
	regs   map[string]*registration
	nextSeq int64

	// openDelta is the segment currently accumulating AppendDelta writes
	// between full checkpoints; nil until an AppendDelta call opens one,
	// and reset to nil whenever it is sealed.
	openDelta    *segmentWriter
	openDeltaSeq int64
	lastCkptID   string // manifest record that sealed delta segments attach to
}

// Options configures retention. A zero value keeps every checkpoint.
type Options struct {
	Compression state.Compression
	Retain      int
	RetainFor   time.Duration
}

// Open creates or reopens a Coordinator rooted at dir (its WAL segments
// and bbolt manifest live directly under dir).
func Open(dir string, opts Options) (*Coordinator, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, ferrors.Wrap(ferrors.KindConfiguration, "checkpoint", "create checkpoint dir", err)
	}
	mf, err := openManifest(filepath.Join(dir, "manifest.db"))
	if err != nil {
		return nil, err
	}
	c := &Coordinator{
		dir:         dir,
		compression: opts.Compression,
		retain:      opts.Retain,
		retainFor:   opts.RetainFor,
		mf:          mf,
		regs:        make(map[string]*registration),
	}
	if latest, ok, err := mf.Latest(); err == nil && ok {
		c.nextSeq = latest.Seq + 1
		c.lastCkptID = latest.ID
	}
	return c, nil
}

func (c *Coordinator) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.openDelta != nil {
		if err := c.sealOpenDeltaLocked(); err != nil {
			return err
		}
	}
	return c.mf.Close()
}

// Register adds a holder to the set the Coordinator checkpoints and
// restores. id must be unique and stable across process restarts (it is
// the manifest/WAL join key).
func (c *Coordinator) Register(id string, tier Tier, h state.Holder) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.regs[id] = &registration{id: id, tier: tier, owner: h}
}

func (c *Coordinator) Unregister(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.regs, id)
}

// Checkpoint takes a full snapshot of every registered holder, writes it
// to a new sealed segment, and records a manifest entry. Any open delta
// segment is sealed first; the next AppendDelta call opens a fresh one.
func (c *Coordinator) Checkpoint() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.sealOpenDeltaLocked(); err != nil {
		return "", err
	}

	seq := c.nextSeq
	c.nextSeq++
	sw, err := newSegmentWriter(c.dir, seq)
	if err != nil {
		return "", err
	}

	var holderIDs []string
	for id, reg := range c.regs {
		blob, _, ok := state.SnapshotOrEstimate(reg.owner, c.compression)
		if !ok {
			// Contended holder: skip it in this base snapshot. It remains
			// covered by whatever delta segments follow, and by the next
			// full checkpoint once it is no longer locked.
			continue
		}
		if err := sw.Append(id, blob); err != nil {
			return "", err
		}
		holderIDs = append(holderIDs, id)
	}
	sort.Strings(holderIDs)

	finalPath, err := sw.Seal()
	if err != nil {
		return "", err
	}
	base := filepath.Base(finalPath)

	id := fmt.Sprintf("ckpt-%09d", seq)
	rec := CheckpointRecord{
		ID:            id,
		Seq:           seq,
		CreatedAtUnix: time.Now().Unix(),
		BaseSegment:   base,
		HolderIDs:     holderIDs,
	}
	if err := c.mf.Put(rec); err != nil {
		return "", err
	}
	c.lastCkptID = id

	if c.retain > 0 || c.retainFor > 0 {
		if err := c.gcLocked(); err != nil {
			return id, err
		}
	}
	return id, nil
}

// AppendDelta records an incremental snapshot of a single holder between
// full checkpoints, merged last-write-wins on restore.
func (c *Coordinator) AppendDelta(holderID string, b state.Blob) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.openDelta == nil {
		c.openDeltaSeq = c.nextSeq
		c.nextSeq++
		sw, err := newSegmentWriter(c.dir, c.openDeltaSeq)
		if err != nil {
			return err
		}
		c.openDelta = sw
	}
	return c.openDelta.Append(holderID, b)
}

// sealOpenDeltaLocked seals the in-progress delta segment (if any), and
// persists its name onto the most recent checkpoint record's delta chain
// so a restart never loses track of a sealed-but-unlinked delta segment.
func (c *Coordinator) sealOpenDeltaLocked() error {
	if c.openDelta == nil {
		return nil
	}
	finalPath, err := c.openDelta.Seal()
	if err != nil {
		return err
	}
	c.openDelta = nil

	if c.lastCkptID == "" {
		// No base checkpoint exists yet; nothing to attach this delta to.
		// Restore with no base is not supported, so this segment is
		// orphaned on purpose until the first Checkpoint() runs.
		return nil
	}
	rec, ok, err := c.mf.Get(c.lastCkptID)
	if err != nil {
		return err
	}
	if !ok {
		return ferrors.New(ferrors.KindInvariant, "checkpoint", "lastCkptID not found in manifest: "+c.lastCkptID)
	}
	rec.DeltaSegments = append(rec.DeltaSegments, filepath.Base(finalPath))
	return c.mf.Put(rec)
}

// Restore reloads checkpoint id's base segment plus every delta segment
// sealed since, merges per-holder last-write-wins, and restores every
// registered holder in dependency order: all TierTable holders together,
// then all TierWindow holders, then all TierPattern holders. If id is
// empty, the latest checkpoint is used.
func (c *Coordinator) Restore(id string) error {
	c.mu.Lock()
	if err := c.sealOpenDeltaLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	var rec CheckpointRecord
	var err error
	var ok bool
	if id == "" {
		rec, ok, err = c.mf.Latest()
	} else {
		rec, ok, err = c.mf.Get(id)
	}
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if !ok {
		c.mu.Unlock()
		return ferrors.New(ferrors.KindConfiguration, "checkpoint", "no checkpoint found: "+id)
	}
	deltas := rec.DeltaSegments
	regsSnapshot := make(map[string]*registration, len(c.regs))
	for k, v := range c.regs {
		regsSnapshot[k] = v
	}
	c.mu.Unlock()

	merged := make(map[string]state.Blob)
	segs := append([]string{rec.BaseSegment}, deltas...)
	for _, seg := range segs {
		if seg == "" {
			continue
		}
		recs, err := readSegment(filepath.Join(c.dir, seg))
		if err != nil {
			return err
		}
		for _, r := range recs {
			merged[r.HolderID] = r.Blob // last write wins: segs is oldest-first
		}
	}

	tiers := [][]string{nil, nil, nil}
	for id, reg := range regsSnapshot {
		tiers[reg.tier] = append(tiers[reg.tier], id)
	}

	for _, ids := range tiers {
		if len(ids) == 0 {
			continue
		}
		var wg sync.WaitGroup
		errs := make([]error, len(ids))
		for i, id := range ids {
			blob, present := merged[id]
			if !present {
				continue
			}
			wg.Add(1)
			go func(i int, id string, b state.Blob) {
				defer wg.Done()
				errs[i] = regsSnapshot[id].owner.Restore(b)
			}(i, id, blob)
		}
		wg.Wait()
		for _, e := range errs {
			if e != nil {
				return e
			}
		}
	}
	return nil
}

// gcLocked reclaims sealed checkpoints beyond the retention policy. It
// never removes the checkpoint it was just asked to keep (the latest), and
// never removes a base segment still referenced by a newer record's delta
// chain (each Checkpoint call seals and restarts the delta chain, so this
// reduces to: only ever delete records older than the retained window).
func (c *Coordinator) gcLocked() error {
	all, err := c.mf.List()
	if err != nil {
		return err
	}
	var stale []CheckpointRecord
	now := time.Now()
	for i, rec := range all {
		keepByCount := c.retain <= 0 || i >= len(all)-c.retain
		keepByAge := c.retainFor <= 0 || now.Sub(time.Unix(rec.CreatedAtUnix, 0)) < c.retainFor
		if keepByCount && keepByAge {
			continue
		}
		stale = append(stale, rec)
	}
	for _, rec := range stale {
		_ = os.Remove(filepath.Join(c.dir, rec.BaseSegment))
		for _, d := range rec.DeltaSegments {
			_ = os.Remove(filepath.Join(c.dir, d))
		}
		if err := c.mf.Delete(rec.ID); err != nil {
			return err
		}
	}
	return nil
}
