// Package blkid implements SID's blkid block module: it ensures every
// device it sees gets a type-module name recorded during IDENT, derived
// from its DEVTYPE or else its DEVPATH basename via moddb.Resolve, the
// step original_source/include/resource/ucmd-module.h
// calls matching a device's (major, minor) to a registered type module.
package blkid

import (
	"path"

	"github.com/sidproject/sid/internal/cmdctx"
	"github.com/sidproject/sid/internal/device"
	"github.com/sidproject/sid/internal/moddb"
	"github.com/sidproject/sid/internal/module"
	"github.com/sidproject/sid/internal/siderr"
)

const Name = "blkid"

// Module is the blkid block module.
type Module struct{}

// New returns the blkid block module.
func New() *Module { return &Module{} }

func (m *Module) Name() string { return Name }

func (m *Module) Run(phase module.Phase, ctx *cmdctx.Context) error {
	if phase != module.PhaseIdent {
		return nil
	}

	devname := path.Base(ctx.Device.DevPath)
	name, ok := moddb.Resolve(devname, ctx.Device.DevType)
	if !ok {
		return siderr.NewKey("blkid.Ident", ctx.Device.MajorMinor, siderr.KindNotFound, "no type module for device")
	}
	return device.SetModuleName(ctx.Store, ctx.Device.MajorMinor, Name, name)
}
