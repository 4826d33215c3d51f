// Package scan implements the per-device scan pipeline: the phase
// dispatcher that drives block and type modules through the ordered
// phases of internal/module.Phase under the INIT/EXIT-is-fatal failure
// policy (spec.md §4.4). CheckCapability reports whether a phase permits
// a restricted call; the dispatcher does not call it, and
// device.SetReady and device.SetReserved do not check the phase.
package scan

import (
	"github.com/sidproject/sid/internal/cmdctx"
	"github.com/sidproject/sid/internal/device"
	"github.com/sidproject/sid/internal/logging"
	"github.com/sidproject/sid/internal/module"
	"github.com/sidproject/sid/internal/siderr"
)

// Capability is a phase's permitted set of restricted module calls.
type Capability int

const (
	CapNone Capability = iota
	CapRdy             // may call device.SetReady
	CapRes             // may call device.SetReserved
	CapAll             // INIT, EXIT: unrestricted
)

// capabilities maps every phase to its capability mask (spec.md §4.4).
var capabilities = map[module.Phase]Capability{
	module.PhaseInit:                 CapAll,
	module.PhaseIdent:                CapNone,
	module.PhaseScanPre:              CapRdy,
	module.PhaseScanCurrent:          CapRdy,
	module.PhaseScanNext:             CapRes,
	module.PhaseScanPostCurrent:      CapNone,
	module.PhaseScanPostNext:         CapNone,
	module.PhaseWaiting:              CapNone,
	module.PhaseExit:                 CapAll,
	module.PhaseTriggerActionCurrent: CapNone,
	module.PhaseTriggerActionNext:    CapNone,
	module.PhaseError:                CapNone,
}

// CapabilityFor reports the capability mask in effect for phase.
func CapabilityFor(phase module.Phase) Capability {
	return capabilities[phase]
}

// CheckCapability enforces the phase's restricted-call mask, returning
// a permission refusal without consulting the store (spec.md §4.4:
// "Violation by a module call fails with EPERM without consulting the
// store").
func CheckCapability(phase module.Phase, want Capability) error {
	got := CapabilityFor(phase)
	if got == CapAll || got == want {
		return nil
	}
	return siderr.New("scan.CheckCapability", siderr.KindPermission, "capability not permitted in phase "+phase.String())
}

// ordered is the sequence Run iterates per scan.
var ordered = []module.Phase{
	module.PhaseInit,
	module.PhaseIdent,
	module.PhaseScanPre,
	module.PhaseScanCurrent,
	module.PhaseScanNext,
	module.PhaseScanPostCurrent,
	module.PhaseScanPostNext,
	module.PhaseExit,
}

// Dispatcher runs the scan pipeline for one device's command context
// against the block and type module registries.
type Dispatcher struct {
	Blocks *module.BlockRegistry
	Types  *module.TypeRegistry
	log    *logging.Logger
}

// NewDispatcher returns a scan dispatcher bound to the given registries.
func NewDispatcher(blocks *module.BlockRegistry, types *module.TypeRegistry) *Dispatcher {
	return &Dispatcher{Blocks: blocks, Types: types, log: logging.Default()}
}

// Run drives ctx through every ordered phase. INIT and EXIT failures
// abort the whole scan and are returned directly; any other phase's
// failure is logged, runs the ERROR phase once, and the walk continues
// to the next ordered phase (spec.md §4.4's failure policy).
func (d *Dispatcher) Run(ctx *cmdctx.Context) error {
	for _, phase := range ordered {
		if err := d.runPhase(phase, ctx); err != nil {
			if phase == module.PhaseInit || phase == module.PhaseExit {
				return err
			}
			d.log.Warn("scan phase failed, entering ERROR phase", "phase", phase.String(), "error", err)
			if errErr := d.runPhase(module.PhaseError, ctx); errErr != nil {
				d.log.Warn("ERROR phase itself failed, continuing", "error", errErr)
			}
		}
	}
	return nil
}

// runPhase dispatches one phase: every block module in registration
// order (stopping at the first error), then at most one type module
// (the "current" module resolved at IDENT, or DEVICE_NEXT_MOD when set
// for SCAN_NEXT and SCAN_POST_NEXT).
func (d *Dispatcher) runPhase(phase module.Phase, ctx *cmdctx.Context) error {
	for _, blk := range d.Blocks.All() {
		ctx.CurrentOwner = blk.Name()
		if err := blk.Run(phase, ctx); err != nil {
			return err
		}
	}

	typeName, err := d.resolveTypeModule(phase, ctx)
	if err != nil {
		return err
	}
	if typeName == "" {
		return nil
	}

	typ, ok := d.Types.Lookup(typeName)
	if !ok {
		return siderr.NewKey("scan.runPhase", ctx.Device.MajorMinor, siderr.KindNotFound, "unregistered type module "+typeName)
	}
	ctx.CurrentOwner = typ.Name()
	return typ.Run(phase, ctx)
}

// resolveTypeModule picks DEVICE_NEXT_MOD (ctx.NextTypeModule) as the
// "next" module for SCAN_NEXT and SCAN_POST_NEXT when it is set; every
// other phase, and those two when it is unset, gets the "current" type
// module (the name recorded against the device's #MOD key at IDENT).
func (d *Dispatcher) resolveTypeModule(phase module.Phase, ctx *cmdctx.Context) (string, error) {
	if phase == module.PhaseScanNext || phase == module.PhaseScanPostNext {
		if ctx.NextTypeModule != "" {
			return ctx.NextTypeModule, nil
		}
	}
	name, err := device.ModuleName(ctx.Store, ctx.Device.MajorMinor, "scan")
	if err != nil {
		return "", err
	}
	return name, nil
}
