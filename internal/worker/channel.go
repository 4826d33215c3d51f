package worker

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/sidproject/sid/internal/siderr"
	"github.com/sidproject/sid/internal/wire"
)

// maxAncillaryFrame bounds a single DATA_EXT recvmsg(2) read; export
// buffers themselves live in the paired memfd, not in this frame.
const maxAncillaryFrame = 64 * 1024

// SendDataExt writes a DATA_EXT frame on ch with fd riding as ancillary
// data in the same sendmsg(2) call, the pairing spec.md §4.5 requires
// ("the receiver must pair the ancillary read to the same logical
// message"). Used for memfd-backed export buffers and for handing an
// accepted client socket to a worker.
func (ch *Channel) SendDataExt(payload []byte, fd int) error {
	frame := wire.EncodeInternalFrame(wire.InternalDataExt, payload)
	rights := unix.UnixRights(fd)
	return unix.Sendmsg(int(ch.Conn.Fd()), frame, rights, nil, 0)
}

// RecvDataExt reads one frame plus its paired ancillary file
// descriptor, if any. fd is nil for an ordinary frame received over
// the same channel (NOOP/YIELD/DATA carry no ancillary data).
func (ch *Channel) RecvDataExt() (wire.InternalFrame, *os.File, error) {
	buf := make([]byte, maxAncillaryFrame)
	oob := make([]byte, unix.CmsgSpace(4))

	n, oobn, _, _, err := unix.Recvmsg(int(ch.Conn.Fd()), buf, oob, 0)
	if err != nil {
		return wire.InternalFrame{}, nil, siderr.Wrap("worker.RecvDataExt", err)
	}
	if n == 0 {
		return wire.InternalFrame{}, nil, siderr.New("worker.RecvDataExt", siderr.KindIO, "peer closed channel")
	}

	frame, err := wire.DecodeInternalFrame(buf[:n])
	if err != nil {
		return wire.InternalFrame{}, nil, err
	}

	var recvFD *os.File
	if oobn > 0 {
		cmsgs, err := unix.ParseSocketControlMessage(oob[:oobn])
		if err != nil {
			return frame, nil, siderr.Wrap("worker.RecvDataExt", err)
		}
		for _, cmsg := range cmsgs {
			fds, err := unix.ParseUnixRights(&cmsg)
			if err != nil {
				continue
			}
			for i, fd := range fds {
				if i == 0 {
					recvFD = os.NewFile(uintptr(fd), "sid-ancillary-fd")
				} else {
					unix.Close(fd)
				}
			}
		}
	}
	return frame, recvFD, nil
}

// CreateMemfd allocates an anonymous, sealed-free memfd (spec.md §4.5,
// §4.6: export buffers and resource dumps cross the worker/parent
// boundary as memfd-backed FDs, never as plain pipes), writes buf to
// it, and rewinds it so the receiving end can read from offset 0.
func CreateMemfd(name string, buf []byte) (*os.File, error) {
	fd, err := unix.MemfdCreate(name, 0)
	if err != nil {
		return nil, siderr.Wrap("worker.CreateMemfd", err)
	}
	f := os.NewFile(uintptr(fd), name)
	if _, err := f.Write(buf); err != nil {
		f.Close()
		return nil, siderr.Wrap("worker.CreateMemfd", err)
	}
	if _, err := f.Seek(0, 0); err != nil {
		f.Close()
		return nil, siderr.Wrap("worker.CreateMemfd", err)
	}
	return f, nil
}

// ReadMemfd reads the full contents of a memfd received over a
// channel. The parent closes fd unconditionally after reading,
// including on error, per spec.md §9 open question (b).
func ReadMemfd(fd *os.File) ([]byte, error) {
	defer fd.Close()
	if _, err := fd.Seek(0, 0); err != nil {
		return nil, siderr.Wrap("worker.ReadMemfd", err)
	}
	var out []byte
	buf := make([]byte, 32*1024)
	for {
		n, err := fd.Read(buf)
		if n > 0 {
			out = append(out, buf[:n]...)
		}
		if err != nil {
			break
		}
	}
	return out, nil
}
