// Package moddb supplements the Device entity's derived "module name"
// field (spec.md §3.1), which spec.md names but does not say how to
// compute. Grounded on original_source/include/resource/ucmd-module.h's
// notion of matching a device's (major, minor) to a registered type
// module: a small static table maps a driver-name prefix, parsed from
// the udev environment's DEVTYPE/DEVNAME, to a type-module name.
package moddb

import "strings"

// Entry pairs a driver-name prefix with the type module that claims it.
type Entry struct {
	Prefix string
	Module string
}

// table is ordered longest-prefix-first so "nvme" is tried before a
// hypothetical shorter alias would be.
var table = []Entry{
	{Prefix: "nvme", Module: "disk"},
	{Prefix: "loop", Module: "disk"},
	{Prefix: "dm-", Module: "disk"},
	{Prefix: "md", Module: "disk"},
	{Prefix: "sd", Module: "disk"},
	{Prefix: "vd", Module: "disk"},
}

// LookupByDevName returns the type-module name registered for a
// DEVNAME such as "sda", "nvme0n1", "dm-0", reporting false if no
// prefix in the table matches.
func LookupByDevName(devname string) (string, bool) {
	devname = strings.TrimPrefix(devname, "/dev/")
	for _, e := range table {
		if strings.HasPrefix(devname, e.Prefix) {
			return e.Module, true
		}
	}
	return "", false
}

// LookupByDevType maps the udev DEVTYPE property directly: "disk" and
// "partition" pass through unchanged, matching spec.md §8 scenario 4's
// disk/partition distinction.
func LookupByDevType(devtype string) (string, bool) {
	switch devtype {
	case "disk":
		return "disk", true
	case "partition":
		return "partition", true
	default:
		return "", false
	}
}

// Resolve picks the type module for a device, preferring the explicit
// DEVTYPE udev property (when recognized) over a DEVNAME prefix match,
// since DEVTYPE is authoritative when the kernel supplies it.
func Resolve(devname, devtype string) (string, bool) {
	if m, ok := LookupByDevType(devtype); ok {
		return m, ok
	}
	return LookupByDevName(devname)
}
