package bridge

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sidproject/sid/internal/device"
	"github.com/sidproject/sid/internal/kv"
	"github.com/sidproject/sid/internal/restree"
	"github.com/sidproject/sid/internal/wire"
)

// version is sidctl's and the daemon's reported VERSION response
// (spec.md §6.1 VERSION command).
const version = "sid 0.1.0"

// FormatVersion renders the daemon's version string in the requested
// output format.
func FormatVersion(f wire.Format) []byte {
	switch f {
	case wire.FormatJSON:
		b, _ := json.Marshal(map[string]string{"version": version})
		return b
	case wire.FormatEnv:
		return []byte("VERSION=" + version + "\x00")
	default:
		return []byte(version + "\n")
	}
}

// FormatDBDump renders every live record as table/json/env.
func FormatDBDump(f wire.Format, records []*kv.Record) []byte {
	switch f {
	case wire.FormatJSON:
		type entry struct {
			Key        string `json:"key"`
			Kind       string `json:"kind"`
			Flags      uint8  `json:"flags"`
			Generation uint64 `json:"generation"`
			Sequence   uint64 `json:"sequence"`
			Owner      string `json:"owner"`
		}
		entries := make([]entry, 0, len(records))
		for _, r := range records {
			kind := "scalar"
			if r.Kind == kv.KindVector {
				kind = "vector"
			}
			entries = append(entries, entry{r.Key, kind, uint8(r.Flags), r.Generation, r.Sequence, r.Owner})
		}
		b, _ := json.Marshal(entries)
		return b
	case wire.FormatEnv:
		var sb strings.Builder
		for _, r := range records {
			sb.WriteString(fmt.Sprintf("%s=%s\x00", r.Key, recordValue(r)))
		}
		return []byte(sb.String())
	default:
		var sb strings.Builder
		for _, r := range records {
			sb.WriteString(fmt.Sprintf("%-48s owner=%-12s gen=%-4d seq=%-6d %s\n", r.Key, r.Owner, r.Generation, r.Sequence, recordValue(r)))
		}
		return []byte(sb.String())
	}
}

func recordValue(r *kv.Record) string {
	if r.Kind == kv.KindVector {
		items := make([]string, len(r.Items))
		for i, it := range r.Items {
			items[i] = string(it)
		}
		return "[" + strings.Join(items, ",") + "]"
	}
	return string(r.Scalar)
}

// FormatDBStats renders the store's record/sync counts.
func FormatDBStats(f wire.Format, stats kv.Stats) []byte {
	switch f {
	case wire.FormatJSON:
		b, _ := json.Marshal(stats)
		return b
	case wire.FormatEnv:
		return []byte(fmt.Sprintf("RECORDS=%d\x00SYNCED=%d\x00", stats.Records, stats.Synced))
	default:
		return []byte(fmt.Sprintf("records: %d\nsynced:  %d\n", stats.Records, stats.Synced))
	}
}

// DeviceSummary is one row of the DEVICES listing.
type DeviceSummary struct {
	ID       string `json:"id"`
	Ready    string `json:"ready"`
	Reserved string `json:"reserved"`
	Module   string `json:"module"`
}

func summarizeDevice(store *kv.Store, id string) DeviceSummary {
	ready, _ := device.GetReady(store, id, "core")
	reserved, _ := device.GetReserved(store, id, "core")
	mod, _ := device.ModuleName(store, id, "core")
	return DeviceSummary{ID: id, Ready: readyString(ready), Reserved: reservedString(reserved), Module: mod}
}

func readyString(r device.ReadyState) string {
	names := [...]string{"UNPROCESSED", "NOT_ACCESSIBLE", "NOT_READY_ACCESSIBLE", "READY_PRIVATE", "READY_PUBLIC", "UNAVAILABLE"}
	if int(r) < len(names) {
		return names[r]
	}
	return "UNKNOWN"
}

func reservedString(r device.ReservedState) string {
	names := [...]string{"UNPROCESSED", "FREE", "RESERVED"}
	if int(r) < len(names) {
		return names[r]
	}
	return "UNKNOWN"
}

// FormatDevices renders the DEVICES listing.
func FormatDevices(f wire.Format, devices []DeviceSummary) []byte {
	switch f {
	case wire.FormatJSON:
		b, _ := json.Marshal(devices)
		return b
	case wire.FormatEnv:
		var sb strings.Builder
		for _, d := range devices {
			sb.WriteString(fmt.Sprintf("DEVICE_%s_READY=%s\x00DEVICE_%s_RESERVED=%s\x00DEVICE_%s_MODULE=%s\x00", d.ID, d.Ready, d.ID, d.Reserved, d.ID, d.Module))
		}
		return []byte(sb.String())
	default:
		var sb strings.Builder
		for _, d := range devices {
			sb.WriteString(fmt.Sprintf("%-12s ready=%-22s reserved=%-12s module=%s\n", d.ID, d.Ready, d.Reserved, d.Module))
		}
		return []byte(sb.String())
	}
}

// FormatResources renders the resource tree dump (SYSTEM_CMD_RESOURCES,
// spec.md §4.6, SPEC_FULL.md §C.2).
func FormatResources(f wire.Format, dump restree.Dump) []byte {
	switch f {
	case wire.FormatJSON:
		b, _ := json.Marshal(dump)
		return b
	case wire.FormatEnv:
		var sb strings.Builder
		writeResourceEnv(&sb, dump, "")
		return []byte(sb.String())
	default:
		var sb strings.Builder
		writeResourceTable(&sb, dump, 0)
		return []byte(sb.String())
	}
}

func writeResourceTable(sb *strings.Builder, d restree.Dump, depth int) {
	sb.WriteString(strings.Repeat("  ", depth))
	sb.WriteString(d.Type)
	if d.ID != "" {
		sb.WriteString(":" + d.ID)
	}
	sb.WriteString("\n")
	for _, c := range d.Children {
		writeResourceTable(sb, c, depth+1)
	}
}

func writeResourceEnv(sb *strings.Builder, d restree.Dump, prefix string) {
	name := prefix + d.Type
	if d.ID != "" {
		name += "_" + d.ID
	}
	fmt.Fprintf(sb, "%s_CHILDREN=%d\x00", strings.ToUpper(name), len(d.Children))
	for _, c := range d.Children {
		writeResourceEnv(sb, c, name+"_")
	}
}
