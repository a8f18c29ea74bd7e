package codec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBaseHeaderRoundTrip(t *testing.T) {
	buf := EncodeBaseHeader(42, 7)
	nodeCount, regVersion, ok := DecodeBaseHeader(buf)
	require.True(t, ok)
	require.Equal(t, uint32(42), nodeCount)
	require.Equal(t, uint32(7), regVersion)
}

func TestDecodeBaseHeaderRejectsBadMagicAndShortBuffers(t *testing.T) {
	_, _, ok := DecodeBaseHeader([]byte{1, 2, 3})
	require.False(t, ok)

	buf := EncodeBaseHeader(1, 1)
	buf[0] ^= 0xFF
	_, _, ok = DecodeBaseHeader(buf)
	require.False(t, ok)
}

func TestNodeRecordRoundTrip(t *testing.T) {
	rec := NodeRecord{NodeID: 123, Count: 4, Offset: EncodeChunkOffset(1, 96), Threshold: 0.37, Checksum: 0xDEADBEEF}
	buf := EncodeNodeRecord(rec)
	require.Len(t, buf, NodeRecordSize)

	decoded, err := DecodeNodeRecord(buf)
	require.NoError(t, err)
	require.Equal(t, rec, decoded)
}

func TestDecodeNodeRecordShort(t *testing.T) {
	_, err := DecodeNodeRecord(make([]byte, NodeRecordSize-1))
	require.Error(t, err)
}

func TestSynapseRoundTrip(t *testing.T) {
	s := Synapse{ReceiverID: 99, Weight: 0.654321}
	buf := EncodeSynapse(s)
	require.Len(t, buf, SynapseSize)

	decoded, err := DecodeSynapse(buf)
	require.NoError(t, err)
	require.Equal(t, s, decoded)
}

func TestDeltaHeaderRoundTripAndTruncation(t *testing.T) {
	buf := EncodeDeltaHeader(5)
	lo16, ok := DecodeDeltaHeader(buf)
	require.True(t, ok)
	require.Equal(t, uint32(5), lo16)

	// Registry versions above 65535 silently truncate to their low 16
	// bits; this is a documented wire-format quirk, not a test bug.
	buf = EncodeDeltaHeader(0x10001)
	lo16, ok = DecodeDeltaHeader(buf)
	require.True(t, ok)
	require.Equal(t, uint32(1), lo16)
}

func TestDeltaEntryRoundTripAndChecksum(t *testing.T) {
	entry := DeltaEntry{SenderID: 1, ReceiverID: 2, Weight: 0.5, Timestamp: 99}
	buf := EncodeDeltaEntry(entry)
	require.Len(t, buf, DeltaEntrySize)

	decoded, okCRC, err := DecodeDeltaEntry(buf)
	require.NoError(t, err)
	require.True(t, okCRC)
	require.Equal(t, entry, decoded)

	buf[0] ^= 0xFF
	_, okCRC, err = DecodeDeltaEntry(buf)
	require.NoError(t, err)
	require.False(t, okCRC)
}

func TestChunkAddressing(t *testing.T) {
	require.Equal(t, uint64(1), ChunkStartForSender(0))
	require.Equal(t, uint64(1), ChunkStartForSender(1))
	require.Equal(t, uint64(1), ChunkStartForSender(100))
	require.Equal(t, uint64(101), ChunkStartForSender(101))
	require.Equal(t, uint64(101), ChunkStartForSender(200))

	require.Equal(t, uint64(100), ChunkEndFromStart(1))
	require.Equal(t, "base_000101_000200.bin", ChunkFileName(101))
}

func TestChunkOffsetRoundTrip(t *testing.T) {
	encoded := EncodeChunkOffset(401, 12345)
	require.True(t, IsChunkOffset(encoded))

	start, local := DecodeChunkOffset(encoded)
	require.Equal(t, uint64(401), start)
	require.Equal(t, uint64(12345), local)
}

func TestLegacyOffsetIsNotAChunkOffset(t *testing.T) {
	require.False(t, IsChunkOffset(1<<40))
	require.False(t, IsChunkOffset(0))
}
