// Package disk implements SID's disk type module: it drives a whole
// disk's readiness/reservation lifecycle across the scan phases and
// maintains the "disk" group's membership so every disk device ever
// seen stays enumerable via internal/device's group API (spec.md §3.1,
// §4.4; grounded on original_source/include/resource/ucmd-module.h's
// builtin disk module notion).
package disk

import (
	"github.com/sidproject/sid/internal/cmdctx"
	"github.com/sidproject/sid/internal/device"
	"github.com/sidproject/sid/internal/module"
	"github.com/sidproject/sid/internal/siderr"
)

const (
	Name = "disk"

	// groupNamespace/groupID name the well-known group every disk
	// device is added to, so a listing command can enumerate disks
	// without scanning every device key.
	groupNamespace = "TYPE"
	groupID        = "disk"
)

// Module is the disk type module.
type Module struct{}

// New returns the disk type module.
func New() *Module { return &Module{} }

func (m *Module) Name() string { return Name }

func (m *Module) Run(phase module.Phase, ctx *cmdctx.Context) error {
	switch phase {
	case module.PhaseScanPre:
		return device.SetReady(ctx.Store, ctx.Device.MajorMinor, Name, device.ReadyNotReadyAccessible)

	case module.PhaseScanCurrent:
		if err := ensureGroup(ctx); err != nil {
			return err
		}
		if err := device.GroupAddMember(ctx.Store, groupNamespace, groupID, ctx.Device.MajorMinor, Name); err != nil {
			return err
		}
		return device.SetReady(ctx.Store, ctx.Device.MajorMinor, Name, device.ReadyPublic)

	case module.PhaseScanNext:
		return device.SetReserved(ctx.Store, ctx.Device.MajorMinor, Name, device.ReservedFree)

	default:
		return nil
	}
}

// ensureGroup creates the shared disk group the first time any disk is
// scanned; a pre-existing group is not an error.
func ensureGroup(ctx *cmdctx.Context) error {
	err := device.GroupCreate(ctx.Store, groupNamespace, groupID, Name)
	if err == nil || siderr.IsKind(err, siderr.KindAccessDenied) {
		return nil
	}
	return err
}
