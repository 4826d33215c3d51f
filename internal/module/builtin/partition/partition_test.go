package partition

import (
	"testing"

	"github.com/sidproject/sid/internal/cmdctx"
	"github.com/sidproject/sid/internal/device"
	"github.com/sidproject/sid/internal/kv"
	"github.com/sidproject/sid/internal/module"
	"github.com/sidproject/sid/internal/siderr"
	"github.com/stretchr/testify/require"
)

func TestScanCurrentLinksParentDisk(t *testing.T) {
	store := kv.New()
	mod := New()

	ctx1 := cmdctx.New(cmdctx.DeviceInfo{MajorMinor: "8_1", ParentMajorMinor: "8_0"}, store)
	require.NoError(t, mod.Run(module.PhaseScanCurrent, ctx1))

	ctx2 := cmdctx.New(cmdctx.DeviceInfo{MajorMinor: "8_2", ParentMajorMinor: "8_0"}, store)
	require.NoError(t, mod.Run(module.PhaseScanCurrent, ctx2))

	in1, err := device.IsLayerMember(store, layerPart, "8_1", "8_0")
	require.NoError(t, err)
	require.True(t, in1)

	in2, err := device.IsLayerMember(store, layerPart, "8_2", "8_0")
	require.NoError(t, err)
	require.True(t, in2)

	ginKey := kv.Compose(kv.KeySpec{Namespace: kv.NamespaceDevice, NamespacePart: layerPart, ID: "8_0", Core: "#GIN"})
	rec, ok := store.Peek(ginKey)
	require.True(t, ok)
	wantPrefix1 := kv.ComposePrefix(kv.KeySpec{Namespace: kv.NamespaceDevice, NamespacePart: layerPart, ID: "8_1"})
	wantPrefix2 := kv.ComposePrefix(kv.KeySpec{Namespace: kv.NamespaceDevice, NamespacePart: layerPart, ID: "8_2"})
	require.ElementsMatch(t, [][]byte{[]byte(wantPrefix1), []byte(wantPrefix2)}, rec.Items)
}

func TestScanCurrentWithoutParentFails(t *testing.T) {
	store := kv.New()
	ctx := cmdctx.New(cmdctx.DeviceInfo{MajorMinor: "8_1"}, store)

	err := New().Run(module.PhaseScanCurrent, ctx)
	require.Error(t, err)
	require.True(t, siderr.IsKind(err, siderr.KindInvalidInput))
}

func TestOtherPhasesAreNoop(t *testing.T) {
	store := kv.New()
	ctx := cmdctx.New(cmdctx.DeviceInfo{MajorMinor: "8_1", ParentMajorMinor: "8_0"}, store)

	require.NoError(t, New().Run(module.PhaseScanNext, ctx))
	members, err := device.LayerMembers(store, layerPart, "8_1")
	require.NoError(t, err)
	require.Empty(t, members)
}
