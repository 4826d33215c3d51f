// Package partition implements SID's partition type module: it writes
// the disk↔partition relation directly between the two devices' own
// DEVICE-namespace keys, maintaining the symmetric #GMB/#GIN pair so a
// partition records its parent disk and the disk's reciprocal vector
// gains the partition (spec.md §8 scenario 4).
package partition

import (
	"github.com/sidproject/sid/internal/cmdctx"
	"github.com/sidproject/sid/internal/device"
	"github.com/sidproject/sid/internal/module"
	"github.com/sidproject/sid/internal/siderr"
)

const (
	Name = "partition"

	// layerPart is the namespace-part a disk/partition hierarchy edge
	// is recorded under (spec.md §8 scenario 4's "LYR").
	layerPart = "LYR"
)

// Module is the partition type module.
type Module struct{}

// New returns the partition type module.
func New() *Module { return &Module{} }

func (m *Module) Name() string { return Name }

func (m *Module) Run(phase module.Phase, ctx *cmdctx.Context) error {
	if phase != module.PhaseScanCurrent {
		return nil
	}

	if ctx.Device.ParentMajorMinor == "" {
		return siderr.NewKey("partition.ScanCurrent", ctx.Device.MajorMinor, siderr.KindInvalidInput, "partition device has no parent disk")
	}

	return device.LinkLayerMember(ctx.Store, layerPart, ctx.Device.MajorMinor, ctx.Device.ParentMajorMinor, Name)
}
