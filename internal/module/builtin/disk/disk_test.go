package disk

import (
	"testing"

	"github.com/sidproject/sid/internal/cmdctx"
	"github.com/sidproject/sid/internal/device"
	"github.com/sidproject/sid/internal/kv"
	"github.com/sidproject/sid/internal/module"
	"github.com/stretchr/testify/require"
)

func TestScanLifecycleDrivesReadyAndReserved(t *testing.T) {
	store := kv.New()
	ctx := cmdctx.New(cmdctx.DeviceInfo{MajorMinor: "8_0"}, store)
	mod := New()

	require.NoError(t, mod.Run(module.PhaseScanPre, ctx))
	ready, err := device.GetReady(store, "8_0", Name)
	require.NoError(t, err)
	require.Equal(t, device.ReadyNotReadyAccessible, ready)

	require.NoError(t, mod.Run(module.PhaseScanCurrent, ctx))
	ready, err = device.GetReady(store, "8_0", Name)
	require.NoError(t, err)
	require.Equal(t, device.ReadyPublic, ready)

	require.NoError(t, mod.Run(module.PhaseScanNext, ctx))
	reserved, err := device.GetReserved(store, "8_0", Name)
	require.NoError(t, err)
	require.Equal(t, device.ReservedFree, reserved)
}

func TestScanCurrentAddsDeviceToDiskGroup(t *testing.T) {
	store := kv.New()
	mod := New()

	ctxA := cmdctx.New(cmdctx.DeviceInfo{MajorMinor: "8_0"}, store)
	require.NoError(t, mod.Run(module.PhaseScanCurrent, ctxA))

	ctxB := cmdctx.New(cmdctx.DeviceInfo{MajorMinor: "8_16"}, store)
	require.NoError(t, mod.Run(module.PhaseScanCurrent, ctxB))

	members, err := device.GroupMembers(store, groupNamespace, groupID)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"8_0", "8_16"}, members)

	in, err := device.GroupIsIn(store, "8_0", groupNamespace, groupID)
	require.NoError(t, err)
	require.True(t, in)
}
