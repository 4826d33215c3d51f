package kv

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSnapshotRoundTrip(t *testing.T) {
	s := New()

	scalarKey := Compose(KeySpec{Namespace: NamespaceDevice, ID: "8_0", Core: "#RDY"})
	_, err := s.Set(scalarKey, &Record{
		Kind:       KindScalar,
		Flags:      FlagPersistent,
		Owner:      "blkid",
		Generation: 3,
		Sequence:   7,
		Scalar:     []byte("ready"),
	}, nil)
	require.NoError(t, err)

	vectorKey := Compose(KeySpec{Namespace: NamespaceDevice, ID: "8_0", Core: "#GMB"})
	_, err = s.Set(vectorKey, &Record{
		Kind:  KindVector,
		Flags: FlagPersistent | FlagSync,
		Owner: "core",
		Items: items("a", "b"),
	}, nil)
	require.NoError(t, err)

	// a non-persistent record must not survive the round trip
	transientKey := Compose(KeySpec{Namespace: NamespaceUdev, ID: "8_0", Core: "#TMP"})
	_, err = s.Set(transientKey, &Record{Kind: KindScalar, Scalar: []byte("ephemeral")}, nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, s.WriteSnapshot(&buf))

	restored := New()
	require.NoError(t, restored.ReadSnapshot(&buf))

	gotScalar, err := restored.Get(scalarKey, "blkid")
	require.NoError(t, err)
	require.Equal(t, "ready", string(gotScalar.Scalar))
	require.EqualValues(t, 3, gotScalar.Generation)
	require.EqualValues(t, 7, gotScalar.Sequence)

	gotVector, ok := restored.Peek(vectorKey)
	require.True(t, ok)
	require.Equal(t, items("a", "b"), gotVector.Items)
	require.Len(t, restored.IterateSynced(), 1)

	_, ok = restored.Peek(transientKey)
	require.False(t, ok)

	require.Equal(t, 2, restored.Stats().Records)
}

func TestSnapshotEmptyStore(t *testing.T) {
	s := New()
	var buf bytes.Buffer
	require.NoError(t, s.WriteSnapshot(&buf))

	restored := New()
	require.NoError(t, restored.ReadSnapshot(&buf))
	require.Equal(t, 0, restored.Stats().Records)
}
