package bridge

import (
	"strings"

	"github.com/sidproject/sid/internal/cmdctx"
	"github.com/sidproject/sid/internal/kv"
	"github.com/sidproject/sid/internal/module"
	"github.com/sidproject/sid/internal/scan"
	"github.com/sidproject/sid/internal/udev"
	"github.com/sidproject/sid/internal/wire"
)

// ScanResult is the outcome of one SCAN command run against a worker's
// private store snapshot (spec.md §2, §3.4): the response bytes to
// write back to the client, the export buffer to hand the parent, and
// the command context left in EXPECTING_EXPBUF_ACK so the caller can
// complete the ack round-trip described in spec.md §9 open question (c)
// before advancing to OK and releasing the response.
type ScanResult struct {
	Ctx      *cmdctx.Context
	Response []byte
	Export   []byte
}

// ExecuteScan runs the full scan pipeline for one SCAN request against
// store (a worker's private snapshot, never the authoritative store
// directly — spec.md §3.3 invariant 7). It does not itself deliver the
// response or export buffer anywhere; that's the caller's job, once the
// ack round-trip with the parent completes.
func ExecuteScan(blocks *module.BlockRegistry, types *module.TypeRegistry, store *kv.Store, body []byte) (*ScanResult, error) {
	devt, props, err := wire.DecodeScanBody(body)
	if err != nil {
		return nil, err
	}

	deviceID := deviceIDFromProps(props, devt)
	info := cmdctx.DeviceInfo{
		MajorMinor:       deviceID,
		ParentMajorMinor: props["SID_PARENT_MAJOR_MINOR"],
	}

	ctx := cmdctx.New(info, store)
	if err := ctx.Advance(cmdctx.ExecScheduled); err != nil {
		return nil, err
	}
	if err := ctx.Advance(cmdctx.Executing); err != nil {
		return nil, err
	}

	if err := udev.Import(store, deviceID, "core", envLines(props), &ctx.Device); err != nil {
		ctx.Fail(err)
		return nil, err
	}

	dispatcher := scan.NewDispatcher(blocks, types)
	if err := dispatcher.Run(ctx); err != nil {
		ctx.Fail(err)
		return nil, err
	}

	if _, err := udev.TagDevice(store, deviceID, "core"); err != nil {
		ctx.Fail(err)
		return nil, err
	}

	ctx.Response.Write(udev.Export(store, deviceID))

	if err := ctx.Advance(cmdctx.ExecFinished); err != nil {
		return nil, err
	}
	if err := ctx.Advance(cmdctx.ExpectingExpbufAck); err != nil {
		return nil, err
	}

	export, err := EncodeExport(store)
	if err != nil {
		return nil, err
	}

	respHeader := wire.EncodeHeader(wire.Header{Status: wire.StatusSuccess, Prot: wire.ProtocolVersion, Cmd: wire.CmdScan})
	var response []byte
	response = append(response, respHeader...)
	response = append(response, ctx.Response.Bytes()...)

	return &ScanResult{Ctx: ctx, Response: response, Export: export}, nil
}

// deviceIDFromProps derives the Device entity's <major>_<minor> id from
// the udev MAJOR/MINOR properties (spec.md §8 scenario 1 supplies them
// explicitly); devt is used only as a fallback when they're absent.
func deviceIDFromProps(props map[string]string, devt uint32) string {
	if maj, ok := props["MAJOR"]; ok {
		if min, ok := props["MINOR"]; ok {
			return maj + "_" + min
		}
	}
	return deviceIDFromDevt(devt)
}

func deviceIDFromDevt(devt uint32) string {
	major := devt >> 8
	minor := devt & 0xff
	return itoa(major) + "_" + itoa(minor)
}

func itoa(v uint32) string {
	if v == 0 {
		return "0"
	}
	var digits []byte
	for v > 0 {
		digits = append([]byte{byte('0' + v%10)}, digits...)
		v /= 10
	}
	return string(digits)
}

// envLines renders the decoded udev property map back into "KEY=VALUE"
// lines for udev.Import, which expects the raw KEY=VALUE\0 environment
// shape.
func envLines(props map[string]string) []string {
	out := make([]string, 0, len(props))
	for k, v := range props {
		out = append(out, strings.Join([]string{k, v}, "="))
	}
	return out
}
