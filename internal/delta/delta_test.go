package delta

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ragpdb/ragp/internal/codec"
)

func alwaysKnown(uint64) bool { return true }

func TestLoadAbsentLogIsNotPresent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "delta.bin")
	overlay, maxTS, present := Load(path, 1, alwaysKnown)
	require.False(t, present)
	require.Empty(t, overlay)
	require.Equal(t, uint32(0), maxTS)
}

func TestResetThenEnsureHeaderIsNoOp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "delta.bin")
	l := New(path)

	require.NoError(t, l.Reset(3))
	sizeAfterReset := l.Size()

	require.NoError(t, l.EnsureHeader(99))
	require.Equal(t, sizeAfterReset, l.Size())
}

func TestAppendThenLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "delta.bin")
	l := New(path)
	require.NoError(t, l.Reset(1))

	require.NoError(t, l.Append(codec.DeltaEntry{SenderID: 1, ReceiverID: 2, Weight: 0.3, Timestamp: 10}))
	require.NoError(t, l.Append(codec.DeltaEntry{SenderID: 1, ReceiverID: 3, Weight: 0.8, Timestamp: 11}))

	overlay, maxTS, present := Load(path, 1, alwaysKnown)
	require.True(t, present)
	require.Equal(t, uint32(12), maxTS)
	require.Equal(t, Entry{Weight: 0.3, Timestamp: 10}, overlay[1][2])
	require.Equal(t, Entry{Weight: 0.8, Timestamp: 11}, overlay[1][3])
}

func TestLoadLaterTimestampWinsTies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "delta.bin")
	l := New(path)
	require.NoError(t, l.Reset(1))

	require.NoError(t, l.Append(codec.DeltaEntry{SenderID: 1, ReceiverID: 2, Weight: 0.9, Timestamp: 5}))
	require.NoError(t, l.Append(codec.DeltaEntry{SenderID: 1, ReceiverID: 2, Weight: 0.1, Timestamp: 4}))

	overlay, _, present := Load(path, 1, alwaysKnown)
	require.True(t, present)
	require.Equal(t, Entry{Weight: 0.9, Timestamp: 5}, overlay[1][2])
}

func TestLoadDropsEntriesWithStaleRegistryVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "delta.bin")
	l := New(path)
	require.NoError(t, l.Reset(1))
	require.NoError(t, l.Append(codec.DeltaEntry{SenderID: 1, ReceiverID: 2, Weight: 0.5, Timestamp: 1}))

	overlay, _, present := Load(path, 2, alwaysKnown)
	require.True(t, present)
	require.Empty(t, overlay)
}

func TestLoadDropsEntriesWithUnknownEndpoints(t *testing.T) {
	path := filepath.Join(t.TempDir(), "delta.bin")
	l := New(path)
	require.NoError(t, l.Reset(1))
	require.NoError(t, l.Append(codec.DeltaEntry{SenderID: 1, ReceiverID: 2, Weight: 0.5, Timestamp: 1}))

	known := func(id uint64) bool { return id == 1 }
	overlay, _, present := Load(path, 1, known)
	require.True(t, present)
	require.Empty(t, overlay)
}

func TestLoadDropsEntriesWithBadChecksum(t *testing.T) {
	path := filepath.Join(t.TempDir(), "delta.bin")
	l := New(path)
	require.NoError(t, l.Reset(1))
	require.NoError(t, l.Append(codec.DeltaEntry{SenderID: 1, ReceiverID: 2, Weight: 0.5, Timestamp: 1}))

	// Corrupt the payload byte of the single entry, after the header.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[codec.DeltaHeaderSize] ^= 0xFF
	require.NoError(t, os.WriteFile(path, data, 0o644))

	overlay, _, present := Load(path, 1, alwaysKnown)
	require.True(t, present)
	require.Empty(t, overlay)
}
