// Package store implements the chunked on-disk layout: the base manifest
// (base.bin), per-100-sender chunk files (base_{start:06}_{end:06}.bin),
// and the atomic rewrite procedure that replaces them in one pass during
// init, migration, and consolidation.
//
// I/O failures here never propagate as hard errors to graph reads — a
// missing or truncated chunk yields an empty synapse list — but are
// surfaced as errors from the rewrite path, where a caller does need to
// know a write failed.
package store

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/google/renameio/v2"

	"github.com/ragpdb/ragp/internal/codec"
)

// Store owns the on-disk manifest and chunk files under a storage
// directory. It holds no state of its own beyond the directory path —
// the node index lives with the caller (the engine), which owns all
// on-disk state from its single primary thread.
type Store struct {
	dir      string
	basePath string
}

// New returns a Store rooted at dir. dir must already exist.
func New(dir string) *Store {
	return &Store{dir: dir, basePath: filepath.Join(dir, "base.bin")}
}

// Dir returns the storage directory.
func (s *Store) Dir() string { return s.dir }

// BasePath returns the manifest file path.
func (s *Store) BasePath() string { return s.basePath }

// LoadManifest reads base.bin and returns its node records in on-disk
// order (ascending node_id). A missing or malformed manifest
// (bad magic/version, truncated header) is not an error: it is reported as
// an empty, absent result so a fresh engine simply starts with no nodes.
func (s *Store) LoadManifest() (records []codec.NodeRecord, registryVersion uint32, present bool, err error) {
	f, err := os.Open(s.basePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, false, nil
		}
		return nil, 0, false, nil
	}
	defer f.Close()

	header := make([]byte, codec.BaseHeaderSize)
	if _, err := io.ReadFull(f, header); err != nil {
		return nil, 0, false, nil
	}
	nodeCount, regVersion, ok := codec.DecodeBaseHeader(header)
	if !ok {
		return nil, 0, false, nil
	}

	records = make([]codec.NodeRecord, 0, nodeCount)
	buf := make([]byte, codec.NodeRecordSize)
	for i := uint32(0); i < nodeCount; i++ {
		if _, err := io.ReadFull(f, buf); err != nil {
			break
		}
		rec, err := codec.DecodeNodeRecord(buf)
		if err != nil {
			break
		}
		records = append(records, rec)
	}
	return records, regVersion, true, nil
}

// ChunkFileStarts lists the chunk-start ids of every chunk file present in
// the storage directory, sorted ascending.
func (s *Store) ChunkFileStarts() []uint64 {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil
	}
	var starts []uint64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasPrefix(name, "base_") || !strings.HasSuffix(name, ".bin") {
			continue
		}
		raw := strings.TrimSuffix(name, ".bin")
		parts := strings.Split(raw, "_")
		if len(parts) != 3 {
			continue
		}
		start, err := strconv.ParseUint(parts[1], 10, 64)
		if err != nil {
			continue
		}
		starts = append(starts, start)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i] < starts[j] })
	return starts
}

// HasChunkFiles reports whether any chunk file exists.
func (s *Store) HasChunkFiles() bool {
	return len(s.ChunkFileStarts()) > 0
}

func (s *Store) chunkFilePath(start uint64) string {
	return filepath.Join(s.dir, codec.ChunkFileName(start))
}

// ReadSynapses loads count synapse records addressed by offset (either an
// encoded chunk pointer or a legacy absolute offset into base.bin). Any
// I/O failure, short read, or absent file yields a (possibly truncated)
// result rather than an error: readers tolerate short reads by
// truncating the returned list, and disk read failures yield empty
// synapse lists rather than propagating.
func (s *Store) ReadSynapses(offset uint64, count uint32) []codec.Synapse {
	if offset == codec.NoSynapses || count == 0 {
		return nil
	}

	var (
		f   *os.File
		err error
	)
	if codec.IsChunkOffset(offset) {
		chunkStart, localOffset := codec.DecodeChunkOffset(offset)
		f, err = os.Open(s.chunkFilePath(chunkStart))
		if err != nil {
			return nil
		}
		defer f.Close()
		if _, err := f.Seek(int64(localOffset), io.SeekStart); err != nil {
			return nil
		}
	} else {
		f, err = os.Open(s.basePath)
		if err != nil {
			return nil
		}
		defer f.Close()
		if _, err := f.Seek(int64(offset), io.SeekStart); err != nil {
			return nil
		}
	}

	out := make([]codec.Synapse, 0, count)
	buf := make([]byte, codec.SynapseSize)
	for i := uint32(0); i < count; i++ {
		if _, err := io.ReadFull(f, buf); err != nil {
			break
		}
		syn, err := codec.DecodeSynapse(buf)
		if err != nil {
			break
		}
		out = append(out, syn)
	}
	return out
}

// SenderData is one sender's merged, final edge set going into a rewrite.
type SenderData struct {
	NodeID    uint64
	Threshold float32
	Synapses  []codec.Synapse
}

// Rewrite clears and rebuilds the manifest and every chunk file in one
// pass from data. Synapse runs are laid out in each chunk in data's
// order, so callers pass data sorted ascending by NodeID (they already
// hold the registry in id order); the returned records are sorted by
// NodeID. It returns the new NodeRecord for every sender, with
// authoritative Count/Offset/Checksum values the caller should install
// into its node index.
//
// Old chunk files are not removed up front. Each new chunk file and then
// the new manifest is written to a temporary sibling and atomically
// renamed into place (google/renameio), so no single file is ever torn.
// The set of files is not replaced atomically as a whole: chunk files are
// renamed before the manifest, so a crash between the two leaves the old
// manifest addressing rewritten chunk files for the chunk ranges that
// were rewritten. Chunk files the new layout no longer uses are removed
// only after the manifest swap; a crash before that removal leaves an
// orphaned chunk file that the new manifest never addresses.
func (s *Store) Rewrite(registryVersion uint32, data []SenderData) ([]codec.NodeRecord, error) {
	chunkBuffers := make(map[uint64][]byte)
	records := make([]codec.NodeRecord, 0, len(data))

	for _, sd := range data {
		if len(sd.Synapses) == 0 {
			records = append(records, codec.NodeRecord{
				NodeID:    sd.NodeID,
				Count:     0,
				Offset:    codec.NoSynapses,
				Threshold: sd.Threshold,
				Checksum:  0,
			})
			continue
		}

		chunkStart := codec.ChunkStartForSender(sd.NodeID)
		buf := chunkBuffers[chunkStart]
		localOffset := len(buf)
		if localOffset > int(^uint32(0)) {
			return nil, fmt.Errorf("store: chunk offset overflow for sender %d", sd.NodeID)
		}

		synBytes := make([]byte, 0, len(sd.Synapses)*codec.SynapseSize)
		for _, syn := range sd.Synapses {
			synBytes = append(synBytes, codec.EncodeSynapse(syn)...)
		}
		checksum := codec.CRC32(synBytes)
		buf = append(buf, synBytes...)
		chunkBuffers[chunkStart] = buf

		records = append(records, codec.NodeRecord{
			NodeID:    sd.NodeID,
			Count:     uint32(len(sd.Synapses)),
			Offset:    codec.EncodeChunkOffset(chunkStart, uint32(localOffset)),
			Threshold: sd.Threshold,
			Checksum:  checksum,
		})
	}

	sort.Slice(records, func(i, j int) bool { return records[i].NodeID < records[j].NodeID })

	newStarts := make(map[uint64]bool, len(chunkBuffers))
	for start, buf := range chunkBuffers {
		newStarts[start] = true
		if err := renameio.WriteFile(s.chunkFilePath(start), buf, 0o644); err != nil {
			return nil, fmt.Errorf("store: write chunk %d: %w", start, err)
		}
	}

	manifest := make([]byte, 0, codec.BaseHeaderSize+len(records)*codec.NodeRecordSize)
	manifest = append(manifest, codec.EncodeBaseHeader(uint32(len(records)), registryVersion)...)
	for _, rec := range records {
		manifest = append(manifest, codec.EncodeNodeRecord(rec)...)
	}
	if err := renameio.WriteFile(s.basePath, manifest, 0o644); err != nil {
		return nil, fmt.Errorf("store: write manifest: %w", err)
	}

	for _, start := range s.ChunkFileStarts() {
		if !newStarts[start] {
			_ = os.Remove(s.chunkFilePath(start))
		}
	}

	return records, nil
}

// ClearChunkFiles removes every chunk file in the storage directory
// without touching the manifest. The engine does not call it: Rewrite
// removes chunk files that its new layout no longer uses.
func (s *Store) ClearChunkFiles() {
	for _, start := range s.ChunkFileStarts() {
		_ = os.Remove(s.chunkFilePath(start))
	}
}
