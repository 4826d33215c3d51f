// Package linear implements SID's linear block module: for a layered
// device (a dm-linear mapping, or any device reporting a parent disk)
// it pre-seeds DEVICE_NEXT_MOD so the SCAN_NEXT phase hands off to the
// partition type module instead of re-resolving via internal/moddb
// (spec.md §4.4's DEVICE_NEXT_MOD wiring).
package linear

import (
	"github.com/sidproject/sid/internal/cmdctx"
	"github.com/sidproject/sid/internal/module"
)

const Name = "linear"

// Module is the linear block module.
type Module struct{}

// New returns the linear block module.
func New() *Module { return &Module{} }

func (m *Module) Name() string { return Name }

func (m *Module) Run(phase module.Phase, ctx *cmdctx.Context) error {
	if phase != module.PhaseScanCurrent {
		return nil
	}

	if ctx.Device.ParentMajorMinor == "" {
		return nil
	}

	// A device with a recorded parent is layered: this device is not
	// itself the authority for the next type module resolution, the
	// partition module is.
	ctx.NextTypeModule = "partition"
	return nil
}
