package bridge

import (
	"bytes"
	"os"

	"github.com/sidproject/sid/internal/cmdctx"
	"github.com/sidproject/sid/internal/kv"
	"github.com/sidproject/sid/internal/logging"
	"github.com/sidproject/sid/internal/module"
	"github.com/sidproject/sid/internal/siderr"
	"github.com/sidproject/sid/internal/wire"
	"github.com/sidproject/sid/internal/worker"
)

// dataChannelFD/ctrlChannelFD are the well-known file descriptor numbers
// a worker-loop process inherits: worker.Manager.Spawn always passes
// exactly channelCount (2) extra files, landing at fd 3 and 4 in the
// child (os/exec.Cmd.ExtraFiles starts numbering after stdin/stdout/stderr).
const (
	dataChannelFD = 3
	ctrlChannelFD = 4
)

// encodeRequestFrame/decodeRequestFrame wrap a client request (header +
// body) as a single internal-channel DATA payload, the convention this
// package uses to hand a SCAN request to a worker over its data channel
// (spec.md §4.5: "the parent forwards a framed request... over a
// channel").
func encodeRequestFrame(header wire.Header, body []byte) []byte {
	return append(wire.EncodeHeader(header), body...)
}

func decodeRequestFrame(payload []byte) (wire.Header, []byte, error) {
	header, err := wire.DecodeHeader(payload)
	if err != nil {
		return wire.Header{}, nil, err
	}
	return header, payload[12:], nil
}

// RunWorkerLoop is an internal worker's single-threaded event loop
// (spec.md §5): it owns a private KV store snapshot, receives the
// authoritative snapshot and per-request work over its data channel,
// and drives each SCAN request through ExecuteScan before handing back
// an export buffer and, once the parent acks, its response.
func RunWorkerLoop() error {
	log := logging.Default()
	blocks, types := NewRegistries()

	dataFile := os.NewFile(dataChannelFD, "sid-worker-data")
	if dataFile == nil {
		return siderr.New("bridge.RunWorkerLoop", siderr.KindInternal, "missing data channel fd")
	}
	defer dataFile.Close()
	ch := &worker.Channel{Conn: dataFile}

	store := kv.New()

	for {
		frame, fd, err := ch.RecvDataExt()
		if err != nil {
			return err
		}

		switch frame.Cmd {
		case wire.InternalDataExt:
			if fd == nil {
				continue
			}
			raw, err := worker.ReadMemfd(fd)
			if err != nil {
				return err
			}
			fresh := kv.New()
			if err := fresh.DecodeAll(bytes.NewReader(raw)); err != nil {
				return err
			}
			store = fresh

		case wire.InternalData:
			if err := handleRequest(ch, blocks, types, store, frame.Payload, log); err != nil {
				log.Warn("worker request failed", "error", err)
			}

		case wire.InternalYield:
			return nil

		default:
			log.Warn("worker received unexpected internal frame", "cmd", frame.Cmd)
		}
	}
}

// handleRequest runs one SCAN request to completion, including the
// EXPECTING_EXPBUF_ACK round-trip spec.md §9 open question (c) calls
// for: the export buffer is handed to the parent and acked before the
// response is released, so a client can never observe a response whose
// backing writes aren't yet durable at the parent.
func handleRequest(ch *worker.Channel, blocks *module.BlockRegistry, types *module.TypeRegistry, store *kv.Store, payload []byte, log *logging.Logger) error {
	header, body, err := decodeRequestFrame(payload)
	if err != nil {
		return err
	}
	if header.Cmd != wire.CmdScan {
		return siderr.New("bridge.handleRequest", siderr.KindProtocolMismatch, "worker loop only handles SCAN")
	}

	result, err := ExecuteScan(blocks, types, store, body)
	if err != nil {
		log.Warn("scan failed", "error", err)
		return sendYield(ch)
	}

	memfd, err := worker.CreateMemfd("sid-export", result.Export)
	if err != nil {
		return err
	}
	if err := ch.SendDataExt(nil, int(memfd.Fd())); err != nil {
		memfd.Close()
		return err
	}
	memfd.Close()

	ack, err := wire.ReadInternalFrame(ch.Conn)
	if err != nil {
		return err
	}
	if ack.Cmd != wire.InternalNoop {
		return siderr.New("bridge.handleRequest", siderr.KindProtocolMismatch, "expected ack, got different internal command")
	}

	if err := result.Ctx.Advance(cmdctx.ExpbufAcked); err != nil {
		return err
	}
	if err := result.Ctx.Advance(cmdctx.OK); err != nil {
		return err
	}

	if err := wire.WriteInternalFrame(ch.Conn, wire.InternalData, result.Response); err != nil {
		return err
	}
	return sendYield(ch)
}

func sendYield(ch *worker.Channel) error {
	return wire.WriteInternalFrame(ch.Conn, wire.InternalYield, nil)
}
