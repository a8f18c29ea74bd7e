// Package delta implements the append-only edge-mutation journal that
// overlays the base graph between consolidations.
package delta

import (
	"fmt"
	"io"
	"os"

	"github.com/ragpdb/ragp/internal/codec"
)

// Entry is one live overlay edge: the winning weight and the timestamp it
// was written at, used to break ties on replay (later timestamp wins).
type Entry struct {
	Weight    float32
	Timestamp uint32
}

// Log owns the append-only delta.bin file for one storage directory.
type Log struct {
	path string
}

// New returns a Log rooted at path (typically "<dir>/delta.bin").
func New(path string) *Log {
	return &Log{path: path}
}

// Path returns the delta file path.
func (l *Log) Path() string { return l.path }

// EnsureHeader creates delta.bin with a fresh header if it doesn't already
// exist. It is a no-op otherwise — callers that want to truncate and
// restart the log (after a migration or consolidation) must call Reset.
func (l *Log) EnsureHeader(registryVersion uint32) error {
	if _, err := os.Stat(l.path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}
	return l.Reset(registryVersion)
}

// Reset truncates the log and writes a fresh header. Used after a
// migration or a successful consolidation merge, when every overlay entry
// has either been folded into the base or discarded.
func (l *Log) Reset(registryVersion uint32) error {
	f, err := os.Create(l.path)
	if err != nil {
		return fmt.Errorf("delta: reset: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(codec.EncodeDeltaHeader(registryVersion)); err != nil {
		return fmt.Errorf("delta: reset: %w", err)
	}
	return nil
}

// Append writes one entry to the end of the log. The append path is
// open-append-write-close per call; durability beyond the OS's default
// flush is not provided, and a single writer is assumed — both per spec.
func (l *Log) Append(entry codec.DeltaEntry) error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("delta: append: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(codec.EncodeDeltaEntry(entry)); err != nil {
		return fmt.Errorf("delta: append: %w", err)
	}
	return nil
}

// Size returns the current size of the delta file in bytes (0 if absent).
// Exposed for tests that assert on append growth (spec §8 scenario B).
func (l *Log) Size() int64 {
	info, err := os.Stat(l.path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// Load replays the entire log and returns the per-sender overlay plus one
// past the highest timestamp observed (0 if no entry was kept); the caller
// sets its tick to this value.
// Entries are dropped silently (per spec §4.2, §7) when: the CRC doesn't
// match the 24-byte payload, the delta's embedded registry version (lower
// 16 bits) doesn't match currentRegistryVersion, or either endpoint is not
// known to the registry (knownNode). Later timestamps win ties for the
// same (sender, receiver) pair.
func Load(path string, currentRegistryVersion uint32, knownNode func(id uint64) bool) (overlay map[uint64]map[uint64]Entry, maxTimestampSeen uint32, present bool) {
	overlay = make(map[uint64]map[uint64]Entry)

	f, err := os.Open(path)
	if err != nil {
		return overlay, 0, false
	}
	defer f.Close()

	header := make([]byte, codec.DeltaHeaderSize)
	if _, err := io.ReadFull(f, header); err != nil {
		return overlay, 0, false
	}
	regLo16, ok := codec.DecodeDeltaHeader(header)
	if !ok {
		return overlay, 0, false
	}
	if regLo16 != (currentRegistryVersion & 0xFFFF) {
		return overlay, 0, true
	}

	buf := make([]byte, codec.DeltaEntrySize)
	for {
		if _, err := io.ReadFull(f, buf); err != nil {
			break
		}
		entry, okCRC, err := codec.DecodeDeltaEntry(buf)
		if err != nil || !okCRC {
			continue
		}
		if !knownNode(entry.SenderID) || !knownNode(entry.ReceiverID) {
			continue
		}

		senderMap, exists := overlay[entry.SenderID]
		if !exists {
			senderMap = make(map[uint64]Entry)
			overlay[entry.SenderID] = senderMap
		}
		if prev, has := senderMap[entry.ReceiverID]; !has || prev.Timestamp <= entry.Timestamp {
			senderMap[entry.ReceiverID] = Entry{Weight: entry.Weight, Timestamp: entry.Timestamp}
		}

		if entry.Timestamp+1 > maxTimestampSeen {
			maxTimestampSeen = entry.Timestamp + 1
		}
	}
	return overlay, maxTimestampSeen, true
}
