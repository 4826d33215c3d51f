package bridge

import (
	"bytes"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/sidproject/sid/internal/kv"
	"github.com/sidproject/sid/internal/siderr"
	"github.com/sidproject/sid/internal/wire"
	"github.com/sidproject/sid/internal/worker"
)

// Listen removes any stale socket file at socketPath and opens a unix
// listener on it. It does not accept connections itself; Serve does,
// handling each on the single-threaded event loop in turn.
func (b *Bridge) Listen(socketPath string) (net.Listener, error) {
	os.Remove(socketPath)
	l, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, siderr.Wrap("bridge.Listen", err)
	}
	b.log.Info("listening", "socket", socketPath)
	return l, nil
}

// Serve accepts and handles connections from l until it is closed.
func (b *Bridge) Serve(l net.Listener) error {
	for {
		conn, err := l.Accept()
		if err != nil {
			return siderr.Wrap("bridge.Serve", err)
		}
		b.HandleConn(conn)
	}
}

// HandleConn reads exactly one framed request from conn, dispatches it,
// writes the response, and closes the connection (spec.md §6.1: one
// request per accepted connection).
func (b *Bridge) HandleConn(conn net.Conn) {
	defer conn.Close()

	payload, err := wire.ReadFrame(conn)
	if err != nil {
		b.log.Warn("read frame failed", "error", err)
		return
	}

	header, err := wire.DecodeHeader(payload)
	if err != nil {
		b.log.Warn("protocol mismatch", "error", err)
		writeFailure(conn)
		return
	}
	body := payload[12:]

	if header.Cmd.RequiresRoot() {
		if !isRootPeer(conn) {
			b.log.Warn("rejecting privileged command from non-root peer", "cmd", header.Cmd)
			writeFailure(conn)
			return
		}
	}

	response, err := b.dispatch(header, body)
	if err != nil {
		b.log.Warn("command failed", "cmd", header.Cmd, "error", err)
		writeFailure(conn)
		return
	}

	b.lastResponses[byte(header.Cmd)] = response
	if err := wire.WriteFrame(conn, response); err != nil {
		b.log.Warn("write response failed", "error", err)
	}
}

// dispatch routes a decoded request to its handler. Only SCAN runs
// through the forked-worker pipeline (spec.md §4.5/§4.6); every other
// command is cheap, read-mostly, and served directly against the
// authoritative store without the isolation a mutating scan needs — a
// deliberate simplification from the literal spec wording that has
// RESOURCES splice a worker's own subtree dump with the parent's,
// recorded in DESIGN.md.
func (b *Bridge) dispatch(header wire.Header, body []byte) ([]byte, error) {
	switch header.Cmd {
	case wire.CmdScan:
		return b.dispatchScan(header, body)
	case wire.CmdActive:
		return wire.EncodeHeader(wire.Header{Status: wire.StatusSuccess, Prot: wire.ProtocolVersion, Cmd: wire.CmdActive}), nil
	case wire.CmdCheckpoint:
		if err := b.Checkpoint(); err != nil {
			return nil, err
		}
		return wire.EncodeHeader(wire.Header{Status: wire.StatusSuccess, Prot: wire.ProtocolVersion, Cmd: wire.CmdCheckpoint}), nil
	case wire.CmdReply:
		return b.dispatchReply(body)
	case wire.CmdVersion:
		return b.respond(header, FormatVersion(header.Format()))
	case wire.CmdDBDump:
		return b.respond(header, FormatDBDump(header.Format(), b.Store.Iterate("")))
	case wire.CmdDBStats:
		return b.respond(header, FormatDBStats(header.Format(), b.Store.Stats()))
	case wire.CmdDevices:
		return b.respond(header, FormatDevices(header.Format(), b.collectDevices()))
	case wire.CmdResources:
		return b.respond(header, FormatResources(header.Format(), b.Tree.DumpTree()))
	default:
		return nil, siderr.New("bridge.dispatch", siderr.KindInvalidInput, "unknown command")
	}
}

func (b *Bridge) respond(header wire.Header, body []byte) ([]byte, error) {
	resp := wire.EncodeHeader(wire.Header{Status: wire.StatusSuccess, Prot: wire.ProtocolVersion, Cmd: header.Cmd, Flags: header.Flags})
	return append(resp, body...), nil
}

// dispatchReply replays the cached response for the wire.Cmd named by
// body's first byte (original_source/tools/sidctl/sidctl.c's REPLY
// recovery path, supplemented per SPEC_FULL.md §C.4).
func (b *Bridge) dispatchReply(body []byte) ([]byte, error) {
	if len(body) < 1 {
		return nil, siderr.New("bridge.dispatchReply", siderr.KindInvalidInput, "empty REPLY body")
	}
	cached, ok := b.lastResponses[body[0]]
	if !ok {
		return nil, siderr.New("bridge.dispatchReply", siderr.KindNotFound, "no cached response for that command")
	}
	return cached, nil
}

// dispatchScan hands a SCAN request to an idle (or freshly spawned)
// worker over its data channel: the authoritative snapshot travels as a
// memfd-backed DATA_EXT, the request as DATA; the worker's export buffer
// comes back the same way and is merged before the worker's response is
// released (spec.md §2, §4.5, §4.6, §9 open question (c)).
func (b *Bridge) dispatchScan(header wire.Header, body []byte) ([]byte, error) {
	proxy, ok := b.Workers.GetIdleWorker()
	if !ok {
		var err error
		proxy, err = b.Workers.Spawn(worker.KindInternal, "", nil)
		if err != nil {
			return nil, err
		}
		// give the freshly exec'd worker loop a moment to set up its
		// channel fds before the first write lands on them.
		time.Sleep(5 * time.Millisecond)
	}
	b.Workers.Assign(proxy)

	channels := proxy.Channels()
	if len(channels) == 0 {
		return nil, siderr.New("bridge.dispatchScan", siderr.KindInternal, "worker has no channels")
	}
	ch := channels[0]

	var snapBuf bytes.Buffer
	if err := b.Store.EncodeAll(&snapBuf); err != nil {
		return nil, err
	}
	snapFd, err := worker.CreateMemfd("sid-snapshot", snapBuf.Bytes())
	if err != nil {
		return nil, err
	}
	if err := ch.SendDataExt(nil, int(snapFd.Fd())); err != nil {
		snapFd.Close()
		return nil, err
	}
	snapFd.Close()

	if err := wire.WriteInternalFrame(ch.Conn, wire.InternalData, encodeRequestFrame(header, body)); err != nil {
		return nil, err
	}

	exportFrame, exportFd, err := ch.RecvDataExt()
	if err != nil {
		return nil, err
	}
	if exportFrame.Cmd != wire.InternalDataExt || exportFd == nil {
		return nil, siderr.New("bridge.dispatchScan", siderr.KindProtocolMismatch, "expected export DATA_EXT")
	}
	exportBytes, err := worker.ReadMemfd(exportFd)
	if err != nil {
		return nil, err
	}

	merged, err := b.Merge(exportBytes)
	if err != nil {
		return nil, err
	}
	b.log.Info("scan export merged", "records", merged)

	if err := wire.WriteInternalFrame(ch.Conn, wire.InternalNoop, nil); err != nil {
		return nil, err
	}

	respFrame, err := wire.ReadInternalFrame(ch.Conn)
	if err != nil {
		return nil, err
	}

	yieldFrame, err := wire.ReadInternalFrame(ch.Conn)
	if err != nil {
		return nil, err
	}
	if yieldFrame.Cmd == wire.InternalYield {
		if err := b.Workers.Yield(proxy); err != nil {
			b.log.Warn("yield failed", "error", err)
		}
	}

	return respFrame.Payload, nil
}

// isRootPeer checks the accepting socket's peer credentials (spec.md
// §6.1: "requires root credentials on the accepting socket, checked via
// peer credentials").
func isRootPeer(conn net.Conn) bool {
	uc, ok := conn.(*net.UnixConn)
	if !ok {
		return false
	}
	raw, err := uc.SyscallConn()
	if err != nil {
		return false
	}
	var cred *unix.Ucred
	var credErr error
	err = raw.Control(func(fd uintptr) {
		cred, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if err != nil || credErr != nil || cred == nil {
		return false
	}
	return cred.Uid == 0
}

func writeFailure(conn net.Conn) {
	header := wire.EncodeHeader(wire.Header{Status: wire.StatusFailure, Prot: wire.ProtocolVersion, Cmd: wire.CmdUnknown})
	_ = wire.WriteFrame(conn, header)
}

// collectDevices walks the authoritative store once for every distinct
// DEVICE-namespace id (the SYSTEM_CMD_RESOURCES-adjacent DEVICES
// command, spec.md §6.1).
func (b *Bridge) collectDevices() []DeviceSummary {
	seen := make(map[string]bool)
	var out []DeviceSummary
	for _, rec := range b.Store.Iterate("") {
		spec, err := kv.Parse(rec.Key)
		if err != nil || spec.Namespace != kv.NamespaceDevice {
			continue
		}
		if seen[spec.ID] {
			continue
		}
		seen[spec.ID] = true
		out = append(out, summarizeDevice(b.Store, spec.ID))
	}
	return out
}
