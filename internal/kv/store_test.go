package kv

import (
	"testing"

	"github.com/sidproject/sid/internal/siderr"
	"github.com/stretchr/testify/require"
)

func scalarKey(id string) string {
	return Compose(KeySpec{Namespace: NamespaceDevice, ID: id, Core: "#RDY"})
}

func TestSetAndGetScalar(t *testing.T) {
	s := New()
	key := scalarKey("8_0")

	rec, err := s.Set(key, &Record{Kind: KindScalar, Owner: "blkid", Scalar: []byte("ready")}, nil)
	require.NoError(t, err)
	require.Equal(t, "ready", string(rec.Scalar))

	got, err := s.Get(key, "blkid")
	require.NoError(t, err)
	require.Equal(t, "ready", string(got.Scalar))
}

func TestGetMissingKeyIsNotFound(t *testing.T) {
	s := New()
	_, err := s.Get(scalarKey("8_0"), "blkid")
	require.True(t, siderr.IsKind(err, siderr.KindNotFound))
}

func TestOverwritePolicyDeniesPrivateRead(t *testing.T) {
	s := New()
	key := scalarKey("8_0")
	_, err := s.Set(key, &Record{Kind: KindScalar, Owner: "blkid", Flags: FlagModPrivate, Scalar: []byte("x")}, nil)
	require.NoError(t, err)

	_, err = s.Get(key, "linear")
	require.True(t, siderr.IsKind(err, siderr.KindAccessDenied))

	_, err = s.Get(key, "blkid")
	require.NoError(t, err)
}

func TestOverwritePolicyDeniesProtectedWrite(t *testing.T) {
	s := New()
	key := scalarKey("8_0")
	_, err := s.Set(key, &Record{Kind: KindScalar, Owner: "blkid", Flags: FlagModProtected, Scalar: []byte("x")}, nil)
	require.NoError(t, err)

	_, err = s.Set(key, &Record{Kind: KindScalar, Owner: "linear", Scalar: []byte("y")}, OverwritePolicy("kv.Set", "linear"))
	require.True(t, siderr.IsKind(err, siderr.KindPermission))

	_, err = s.Set(key, &Record{Kind: KindScalar, Owner: "blkid", Scalar: []byte("y")}, OverwritePolicy("kv.Set", "blkid"))
	require.NoError(t, err)
}

func TestReserveAndUnreservePolicy(t *testing.T) {
	s := New()
	key := scalarKey("8_0")

	_, err := s.Set(key, &Record{Kind: KindScalar, Scalar: []byte("r")}, ReservePolicy("kv.Reserve", "linear"))
	require.NoError(t, err)

	_, err = s.Set(key, &Record{Kind: KindScalar, Scalar: []byte("r2")}, ReservePolicy("kv.Reserve", "blkid"))
	require.True(t, siderr.IsKind(err, siderr.KindBusy))

	_, err = s.Set(key, &Record{Kind: KindScalar}, UnreservePolicy("kv.Unreserve", "blkid"))
	require.True(t, siderr.IsKind(err, siderr.KindPermission))

	_, err = s.Set(key, &Record{Kind: KindScalar}, UnreservePolicy("kv.Unreserve", "linear"))
	require.NoError(t, err)

	got, err := s.Get(key, "blkid")
	require.NoError(t, err)
	require.False(t, got.Flags.Has(FlagModReserved))
}

func TestWriteNewOnlyPolicy(t *testing.T) {
	s := New()
	key := scalarKey("8_0")

	_, err := s.Set(key, &Record{Kind: KindScalar, Scalar: []byte("a")}, WriteNewOnlyPolicy("kv.Set"))
	require.NoError(t, err)

	_, err = s.Set(key, &Record{Kind: KindScalar, Scalar: []byte("b")}, WriteNewOnlyPolicy("kv.Set"))
	require.True(t, siderr.IsKind(err, siderr.KindAccessDenied))
}

func TestIteratePrefix(t *testing.T) {
	s := New()
	for _, id := range []string{"8_0", "8_1", "8_2"} {
		_, err := s.Set(scalarKey(id), &Record{Kind: KindScalar, Scalar: []byte(id)}, nil)
		require.NoError(t, err)
	}
	_, err := s.Set(Compose(KeySpec{Namespace: NamespaceGlobal, ID: "x", Core: "#Y"}), &Record{Kind: KindScalar}, nil)
	require.NoError(t, err)

	// every device-namespace #RDY key starts with "::D::"
	all := s.Iterate("::D::")
	require.Len(t, all, 3)
}

func TestIterateSyncedOnlyReturnsSyncFlagged(t *testing.T) {
	s := New()
	key1 := scalarKey("8_0")
	key2 := scalarKey("8_1")
	_, err := s.Set(key1, &Record{Kind: KindScalar, Flags: FlagSync, Scalar: []byte("a")}, nil)
	require.NoError(t, err)
	_, err = s.Set(key2, &Record{Kind: KindScalar, Scalar: []byte("b")}, nil)
	require.NoError(t, err)

	synced := s.IterateSynced()
	require.Len(t, synced, 1)
	require.Equal(t, key1, synced[0].Key)

	// clearing FlagSync removes it from the index
	_, err = s.Set(key1, &Record{Kind: KindScalar, Scalar: []byte("a")}, nil)
	require.NoError(t, err)
	require.Empty(t, s.IterateSynced())
}

func TestUnsetAbsentKeyIsNoop(t *testing.T) {
	s := New()
	require.NoError(t, s.Unset(scalarKey("8_0"), nil))
}

func TestStats(t *testing.T) {
	s := New()
	_, err := s.Set(scalarKey("8_0"), &Record{Kind: KindScalar, Flags: FlagSync}, nil)
	require.NoError(t, err)
	stats := s.Stats()
	require.Equal(t, 1, stats.Records)
	require.Equal(t, 1, stats.Synced)
}
