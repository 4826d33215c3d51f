package blkid

import (
	"testing"

	"github.com/sidproject/sid/internal/cmdctx"
	"github.com/sidproject/sid/internal/device"
	"github.com/sidproject/sid/internal/kv"
	"github.com/sidproject/sid/internal/module"
	"github.com/sidproject/sid/internal/siderr"
	"github.com/stretchr/testify/require"
)

func TestIdentRecordsModuleName(t *testing.T) {
	store := kv.New()
	ctx := cmdctx.New(cmdctx.DeviceInfo{MajorMinor: "8_0", DevPath: "/dev/sda", DevType: "disk"}, store)

	require.NoError(t, New().Run(module.PhaseIdent, ctx))

	name, err := device.ModuleName(store, "8_0", "blkid")
	require.NoError(t, err)
	require.Equal(t, "disk", name)
}

func TestIdentUnknownDeviceFails(t *testing.T) {
	store := kv.New()
	ctx := cmdctx.New(cmdctx.DeviceInfo{MajorMinor: "253_0", DevPath: "/dev/zzz", DevType: ""}, store)

	err := New().Run(module.PhaseIdent, ctx)
	require.Error(t, err)
	require.True(t, siderr.IsKind(err, siderr.KindNotFound))
}

func TestOtherPhasesAreNoop(t *testing.T) {
	store := kv.New()
	ctx := cmdctx.New(cmdctx.DeviceInfo{MajorMinor: "8_0", DevPath: "/dev/sda", DevType: "disk"}, store)

	require.NoError(t, New().Run(module.PhaseScanCurrent, ctx))
	name, err := device.ModuleName(store, "8_0", "blkid")
	require.NoError(t, err)
	require.Empty(t, name)
}
