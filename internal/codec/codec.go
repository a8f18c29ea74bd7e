// Package codec implements the on-disk binary layout for the graph store:
// the base manifest header, node-index records, synapse records and the
// delta log's entry format. All integers and floats are little-endian.
package codec

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"math"
)

// Magic numbers and format version, per the storage layout.
const (
	MagicBase  uint32 = 0x50474152 // "RAGP" little-endian
	MagicDelta uint32 = 0x544C4544 // "DELT" little-endian
	Version    uint16 = 1
)

// Fixed record sizes.
const (
	BaseHeaderSize  = 14 // magic(4) | version(2) | node_count(4) | registry_version(4)
	NodeRecordSize  = 32 // node_id(8) | count(4) | offset(8) | threshold(4) | checksum(4) | reserved(4)
	SynapseSize     = 12 // receiver_id(8) | weight(4)
	DeltaHeaderSize = 8  // magic(4) | version(2) | registry_version_lo16(2)
	DeltaEntrySize  = 28 // payload(24) | crc32(4)
	deltaPayloadLen = 24
)

// NoSynapses marks a node with no synapse run on disk.
const NoSynapses uint64 = math.MaxUint64

// ChunkOffsetFlag is the high bit that distinguishes an encoded chunk
// pointer (chunk_start, local_offset) from a legacy absolute byte offset
// into the monolithic base file.
const ChunkOffsetFlag uint64 = 1 << 63

// ChunkSpan is the number of senders held by one chunk file.
const ChunkSpan uint64 = 100

// Graph-wide tunables fixed by the on-disk format.
const (
	MaxSynapsesPerNode  = 7000
	DefaultThreshold    = float32(0.2)
	PruneRatio          = float32(0.3)
	TemporalWindowSize  = 5
	MaxSpreadDepth      = 4
	InitialEdgeWeight   = float32(0.01)
	CacheRescoreAccesses = 500
)

// NodeRecord is the on-disk node-index entry (32 bytes).
type NodeRecord struct {
	NodeID    uint64
	Count     uint32
	Offset    uint64
	Threshold float32
	Checksum  uint32
}

// Synapse is a single outgoing edge (12 bytes on disk).
type Synapse struct {
	ReceiverID uint64
	Weight     float32
}

// DeltaEntry is one append-only delta-log record (28 bytes on disk).
type DeltaEntry struct {
	SenderID   uint64
	ReceiverID uint64
	Weight     float32
	Timestamp  uint32
}

// CRC32 is the IEEE polynomial checksum used throughout the store: node
// synapse runs and delta payloads. The standard library's implementation is
// used deliberately — the format is specified bit-for-bit against the
// well-known IEEE table and no example in the corpus reaches for a
// third-party CRC32 substitute.
func CRC32(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}

// EncodeBaseHeader writes the manifest header.
func EncodeBaseHeader(nodeCount uint32, registryVersion uint32) []byte {
	buf := make([]byte, BaseHeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], MagicBase)
	binary.LittleEndian.PutUint16(buf[4:6], Version)
	binary.LittleEndian.PutUint32(buf[6:10], nodeCount)
	binary.LittleEndian.PutUint32(buf[10:14], registryVersion)
	return buf
}

// DecodeBaseHeader parses the manifest header. ok is false if the magic or
// version don't match, in which case callers should treat the base as
// absent (a fresh store).
func DecodeBaseHeader(buf []byte) (nodeCount uint32, registryVersion uint32, ok bool) {
	if len(buf) < BaseHeaderSize {
		return 0, 0, false
	}
	magic := binary.LittleEndian.Uint32(buf[0:4])
	version := binary.LittleEndian.Uint16(buf[4:6])
	if magic != MagicBase || version != Version {
		return 0, 0, false
	}
	nodeCount = binary.LittleEndian.Uint32(buf[6:10])
	registryVersion = binary.LittleEndian.Uint32(buf[10:14])
	return nodeCount, registryVersion, true
}

// EncodeNodeRecord writes one 32-byte node-index record.
func EncodeNodeRecord(rec NodeRecord) []byte {
	buf := make([]byte, NodeRecordSize)
	binary.LittleEndian.PutUint64(buf[0:8], rec.NodeID)
	binary.LittleEndian.PutUint32(buf[8:12], rec.Count)
	binary.LittleEndian.PutUint64(buf[12:20], rec.Offset)
	binary.LittleEndian.PutUint32(buf[20:24], math.Float32bits(rec.Threshold))
	binary.LittleEndian.PutUint32(buf[24:28], rec.Checksum)
	// buf[28:32] is reserved and left zero.
	return buf
}

// DecodeNodeRecord parses one 32-byte node-index record.
func DecodeNodeRecord(buf []byte) (NodeRecord, error) {
	if len(buf) < NodeRecordSize {
		return NodeRecord{}, fmt.Errorf("codec: short node record (%d bytes)", len(buf))
	}
	return NodeRecord{
		NodeID:    binary.LittleEndian.Uint64(buf[0:8]),
		Count:     binary.LittleEndian.Uint32(buf[8:12]),
		Offset:    binary.LittleEndian.Uint64(buf[12:20]),
		Threshold: math.Float32frombits(binary.LittleEndian.Uint32(buf[20:24])),
		Checksum:  binary.LittleEndian.Uint32(buf[24:28]),
	}, nil
}

// EncodeSynapse writes one 12-byte synapse record.
func EncodeSynapse(s Synapse) []byte {
	buf := make([]byte, SynapseSize)
	binary.LittleEndian.PutUint64(buf[0:8], s.ReceiverID)
	binary.LittleEndian.PutUint32(buf[8:12], math.Float32bits(s.Weight))
	return buf
}

// DecodeSynapse parses one 12-byte synapse record.
func DecodeSynapse(buf []byte) (Synapse, error) {
	if len(buf) < SynapseSize {
		return Synapse{}, fmt.Errorf("codec: short synapse record (%d bytes)", len(buf))
	}
	return Synapse{
		ReceiverID: binary.LittleEndian.Uint64(buf[0:8]),
		Weight:     math.Float32frombits(binary.LittleEndian.Uint32(buf[8:12])),
	}, nil
}

// EncodeDeltaHeader writes the 8-byte delta-log header. The registry
// version is truncated to 16 bits — values above 65535 will silently
// mismatch on load; this is a known, documented format quirk, not a bug.
func EncodeDeltaHeader(registryVersion uint32) []byte {
	buf := make([]byte, DeltaHeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], MagicDelta)
	binary.LittleEndian.PutUint16(buf[4:6], Version)
	lo16 := uint16(registryVersion & 0xFFFF)
	binary.LittleEndian.PutUint16(buf[6:8], lo16)
	return buf
}

// DecodeDeltaHeader parses the delta-log header.
func DecodeDeltaHeader(buf []byte) (registryVersionLo16 uint32, ok bool) {
	if len(buf) < DeltaHeaderSize {
		return 0, false
	}
	magic := binary.LittleEndian.Uint32(buf[0:4])
	version := binary.LittleEndian.Uint16(buf[4:6])
	if magic != MagicDelta || version != Version {
		return 0, false
	}
	return uint32(binary.LittleEndian.Uint16(buf[6:8])), true
}

// EncodeDeltaEntry writes the 24-byte payload and its CRC32 checksum as a
// contiguous 28-byte record.
func EncodeDeltaEntry(e DeltaEntry) []byte {
	payload := make([]byte, deltaPayloadLen)
	binary.LittleEndian.PutUint64(payload[0:8], e.SenderID)
	binary.LittleEndian.PutUint64(payload[8:16], e.ReceiverID)
	binary.LittleEndian.PutUint32(payload[16:20], math.Float32bits(e.Weight))
	binary.LittleEndian.PutUint32(payload[20:24], e.Timestamp)

	buf := make([]byte, DeltaEntrySize)
	copy(buf, payload)
	binary.LittleEndian.PutUint32(buf[24:28], CRC32(payload))
	return buf
}

// DecodeDeltaEntry parses a 28-byte delta record and verifies its checksum.
// okCRC is false when the checksum doesn't match the 24-byte payload; the
// caller (the delta log replay) silently skips such entries.
func DecodeDeltaEntry(buf []byte) (entry DeltaEntry, okCRC bool, err error) {
	if len(buf) < DeltaEntrySize {
		return DeltaEntry{}, false, fmt.Errorf("codec: short delta entry (%d bytes)", len(buf))
	}
	payload := buf[0:deltaPayloadLen]
	checksum := binary.LittleEndian.Uint32(buf[24:28])
	if CRC32(payload) != checksum {
		return DeltaEntry{}, false, nil
	}
	entry = DeltaEntry{
		SenderID:   binary.LittleEndian.Uint64(payload[0:8]),
		ReceiverID: binary.LittleEndian.Uint64(payload[8:16]),
		Weight:     math.Float32frombits(binary.LittleEndian.Uint32(payload[16:20])),
		Timestamp:  binary.LittleEndian.Uint32(payload[20:24]),
	}
	return entry, true, nil
}

// ChunkStartForSender returns the first sender id of the 100-sender chunk
// range that owns sender. Sender id 0 is folded into the first chunk to
// avoid underflowing the (s-1) subtraction.
func ChunkStartForSender(sender uint64) uint64 {
	if sender == 0 {
		return 1
	}
	return ((sender-1)/ChunkSpan)*ChunkSpan + 1
}

// ChunkEndFromStart returns the last sender id held by the chunk starting
// at start.
func ChunkEndFromStart(start uint64) uint64 {
	return start + ChunkSpan - 1
}

// ChunkFileName returns the on-disk file name for the chunk starting at
// start, e.g. base_000001_000100.bin.
func ChunkFileName(start uint64) string {
	return fmt.Sprintf("base_%06d_%06d.bin", start, ChunkEndFromStart(start))
}

// EncodeChunkOffset packs a chunk pointer into the 64-bit offset field:
// flag(1) | chunk_start(31 effective bits, stored in bits 32..62) | local_offset(32).
func EncodeChunkOffset(chunkStart uint64, localOffset uint32) uint64 {
	return ChunkOffsetFlag | (chunkStart << 32) | uint64(localOffset)
}

// IsChunkOffset reports whether encoded addresses a chunk file (true) or a
// legacy absolute offset into the monolithic base file (false).
func IsChunkOffset(encoded uint64) bool {
	return encoded&ChunkOffsetFlag != 0
}

// DecodeChunkOffset unpacks a chunk pointer produced by EncodeChunkOffset.
func DecodeChunkOffset(encoded uint64) (chunkStart uint64, localOffset uint64) {
	chunkStart = (encoded &^ ChunkOffsetFlag) >> 32
	localOffset = encoded & 0xFFFFFFFF
	return chunkStart, localOffset
}
