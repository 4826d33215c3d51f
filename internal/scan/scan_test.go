package scan

import (
	"testing"

	"github.com/sidproject/sid/internal/cmdctx"
	"github.com/sidproject/sid/internal/device"
	"github.com/sidproject/sid/internal/kv"
	"github.com/sidproject/sid/internal/module"
	"github.com/sidproject/sid/internal/siderr"
	"github.com/stretchr/testify/require"
)

type recordingBlock struct {
	name string
	runs []module.Phase
	fail module.Phase
}

func (b *recordingBlock) Name() string { return b.name }

func (b *recordingBlock) Run(phase module.Phase, ctx *cmdctx.Context) error {
	b.runs = append(b.runs, phase)
	if phase == b.fail {
		return siderr.New("test", siderr.KindInternal, "boom")
	}
	return nil
}

type recordingType struct {
	name string
	runs []module.Phase
}

func (t *recordingType) Name() string { return t.name }

func (t *recordingType) Run(phase module.Phase, ctx *cmdctx.Context) error {
	t.runs = append(t.runs, phase)
	return nil
}

func TestCapabilityGating(t *testing.T) {
	require.NoError(t, CheckCapability(module.PhaseScanPre, CapRdy))
	require.Error(t, CheckCapability(module.PhaseScanNext, CapRdy))
	require.NoError(t, CheckCapability(module.PhaseInit, CapRes))
}

func TestDispatcherRunsBlockThenTypeModules(t *testing.T) {
	store := kv.New()
	blocks := module.NewBlockRegistry()
	blk := &recordingBlock{name: "blkid", fail: -1}
	require.NoError(t, blocks.Register(blk))

	types := module.NewTypeRegistry()
	typ := &recordingType{name: "disk"}
	require.NoError(t, types.Register(typ))

	ctx := cmdctx.New(cmdctx.DeviceInfo{MajorMinor: "8_0"}, store)
	require.NoError(t, device.SetModuleName(store, "8_0", "blkid", "disk"))

	d := NewDispatcher(blocks, types)
	require.NoError(t, d.Run(ctx))

	require.NotEmpty(t, blk.runs)
	require.NotEmpty(t, typ.runs)
}

func TestInitFailureAborts(t *testing.T) {
	store := kv.New()
	blocks := module.NewBlockRegistry()
	blk := &recordingBlock{name: "blkid", fail: module.PhaseInit}
	require.NoError(t, blocks.Register(blk))
	types := module.NewTypeRegistry()

	ctx := cmdctx.New(cmdctx.DeviceInfo{MajorMinor: "8_0"}, store)
	d := NewDispatcher(blocks, types)

	err := d.Run(ctx)
	require.Error(t, err)
	require.Len(t, blk.runs, 1)
}

func TestOtherPhaseFailureRunsErrorAndContinues(t *testing.T) {
	store := kv.New()
	blocks := module.NewBlockRegistry()
	blk := &recordingBlock{name: "blkid", fail: module.PhaseScanCurrent}
	require.NoError(t, blocks.Register(blk))
	types := module.NewTypeRegistry()

	ctx := cmdctx.New(cmdctx.DeviceInfo{MajorMinor: "8_0"}, store)
	d := NewDispatcher(blocks, types)

	require.NoError(t, d.Run(ctx))
	require.Contains(t, blk.runs, module.PhaseError)
	require.Contains(t, blk.runs, module.PhaseScanNext)
}
