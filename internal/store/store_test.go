package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ragpdb/ragp/internal/codec"
)

func TestLoadManifestAbsentIsNotAnError(t *testing.T) {
	s := New(t.TempDir())
	records, regVersion, present, err := s.LoadManifest()
	require.NoError(t, err)
	require.False(t, present)
	require.Nil(t, records)
	require.Equal(t, uint32(0), regVersion)
}

func TestRewriteThenLoadManifestRoundTrip(t *testing.T) {
	s := New(t.TempDir())

	data := []SenderData{
		{NodeID: 1, Threshold: 0.2, Synapses: []codec.Synapse{{ReceiverID: 2, Weight: 0.9}, {ReceiverID: 3, Weight: 0.1}}},
		{NodeID: 2, Threshold: 0.2},
		{NodeID: 3, Threshold: 0.5, Synapses: []codec.Synapse{{ReceiverID: 1, Weight: 0.4}}},
	}

	records, err := s.Rewrite(7, data)
	require.NoError(t, err)
	require.Len(t, records, 3)

	loaded, regVersion, present, err := s.LoadManifest()
	require.NoError(t, err)
	require.True(t, present)
	require.Equal(t, uint32(7), regVersion)
	require.Len(t, loaded, 3)

	for i, rec := range loaded {
		require.Equal(t, records[i], rec)
	}

	synapses := s.ReadSynapses(loaded[0].Offset, loaded[0].Count)
	require.Equal(t, data[0].Synapses, synapses)

	// Node 2 has no synapses: NoSynapses offset, zero count, empty read.
	require.Equal(t, codec.NoSynapses, loaded[1].Offset)
	require.Empty(t, s.ReadSynapses(loaded[1].Offset, loaded[1].Count))
}

func TestRewriteSharesChunkFilesAcrossSendersInTheSameSpan(t *testing.T) {
	s := New(t.TempDir())

	data := []SenderData{
		{NodeID: 1, Synapses: []codec.Synapse{{ReceiverID: 50, Weight: 1}}},
		{NodeID: 2, Synapses: []codec.Synapse{{ReceiverID: 51, Weight: 1}}},
	}
	_, err := s.Rewrite(1, data)
	require.NoError(t, err)

	starts := s.ChunkFileStarts()
	require.Equal(t, []uint64{1}, starts)
}

func TestReadSynapsesToleratesMissingChunk(t *testing.T) {
	s := New(t.TempDir())
	offset := codec.EncodeChunkOffset(1, 0)
	require.Empty(t, s.ReadSynapses(offset, 3))
}

func TestRewriteRemovesStaleChunkFiles(t *testing.T) {
	s := New(t.TempDir())

	_, err := s.Rewrite(1, []SenderData{
		{NodeID: 1, Synapses: []codec.Synapse{{ReceiverID: 2, Weight: 1}}},
		{NodeID: 500, Synapses: []codec.Synapse{{ReceiverID: 2, Weight: 1}}},
	})
	require.NoError(t, err)
	require.Len(t, s.ChunkFileStarts(), 2)

	_, err = s.Rewrite(2, []SenderData{
		{NodeID: 1, Synapses: []codec.Synapse{{ReceiverID: 2, Weight: 1}}},
	})
	require.NoError(t, err)
	require.Equal(t, []uint64{1}, s.ChunkFileStarts())
}

func TestClearChunkFiles(t *testing.T) {
	s := New(t.TempDir())
	_, err := s.Rewrite(1, []SenderData{
		{NodeID: 1, Synapses: []codec.Synapse{{ReceiverID: 2, Weight: 1}}},
	})
	require.NoError(t, err)
	require.NotEmpty(t, s.ChunkFileStarts())

	s.ClearChunkFiles()
	require.Empty(t, s.ChunkFileStarts())
}
