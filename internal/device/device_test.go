package device

import (
	"testing"

	"github.com/sidproject/sid/internal/kv"
	"github.com/sidproject/sid/internal/siderr"
	"github.com/stretchr/testify/require"
)

func TestReadyLifecycleDefaultsUnprocessed(t *testing.T) {
	store := kv.New()
	state, err := GetReady(store, "8_0", "blkid")
	require.NoError(t, err)
	require.Equal(t, ReadyUnprocessed, state)
}

func TestSetAndGetReady(t *testing.T) {
	store := kv.New()
	require.NoError(t, SetReady(store, "8_0", "blkid", ReadyPublic))

	state, err := GetReady(store, "8_0", "blkid")
	require.NoError(t, err)
	require.Equal(t, ReadyPublic, state)
}

func TestReservedLifecycle(t *testing.T) {
	store := kv.New()
	require.NoError(t, SetReserved(store, "8_0", "linear", ReservedReserved))

	state, err := GetReserved(store, "8_0", "linear")
	require.NoError(t, err)
	require.Equal(t, ReservedReserved, state)
}

func TestModuleNameWriteOnce(t *testing.T) {
	store := kv.New()
	require.NoError(t, SetModuleName(store, "8_0", "core", "disk"))

	name, err := ModuleName(store, "8_0", "core")
	require.NoError(t, err)
	require.Equal(t, "disk", name)

	err = SetModuleName(store, "8_0", "core", "partition")
	require.True(t, siderr.IsKind(err, siderr.KindAccessDenied))
}
