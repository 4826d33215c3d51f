// Package wire implements SID's two wire formats: the client↔worker
// framed protocol (spec.md §6.1) and the worker↔proxy internal channel
// framing (spec.md §6.2). Both are length-prefixed binary formats, in
// the same manual binary.LittleEndian idiom the teacher used for its
// uAPI struct marshaling.
package wire

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"github.com/sidproject/sid/internal/siderr"
)

// ProtocolVersion is the exact-match protocol byte every client/worker
// header must carry (spec.md §6.1).
const ProtocolVersion = 1

// Status is the response status bitfield.
type Status uint64

const (
	StatusSuccess Status = 0
	StatusFailure Status = 1
)

// Cmd is one of the client↔worker command codes.
type Cmd byte

const (
	CmdUndefined Cmd = iota
	CmdUnknown
	CmdActive
	CmdCheckpoint
	CmdReply
	CmdScan
	CmdVersion
	CmdDBDump
	CmdDBStats
	CmdResources
	CmdDevices
)

var cmdNames = map[Cmd]string{
	CmdUndefined:  "UNDEFINED",
	CmdUnknown:    "UNKNOWN",
	CmdActive:     "ACTIVE",
	CmdCheckpoint: "CHECKPOINT",
	CmdReply:      "REPLY",
	CmdScan:       "SCAN",
	CmdVersion:    "VERSION",
	CmdDBDump:     "DBDUMP",
	CmdDBStats:    "DBSTATS",
	CmdResources:  "RESOURCES",
	CmdDevices:    "DEVICES",
}

func (c Cmd) String() string {
	if name, ok := cmdNames[c]; ok {
		return name
	}
	return "UNKNOWN"
}

// RequiresRoot reports whether cmd is one of the privileged operations
// that must be rejected over a non-root-credentialed socket (spec.md
// §6.1).
func (c Cmd) RequiresRoot() bool {
	switch c {
	case CmdCheckpoint, CmdScan, CmdDBDump, CmdDBStats, CmdResources:
		return true
	default:
		return false
	}
}

// Format is the low-2-bits output format carried in Header.Flags.
type Format uint16

const (
	FormatTable Format = iota
	FormatJSON
	FormatEnv
)

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatEnv:
		return "env"
	default:
		return "table"
	}
}

// ParseFormat maps a CLI -f value to a Format, defaulting to table.
func ParseFormat(s string) Format {
	switch strings.ToLower(s) {
	case "json":
		return FormatJSON
	case "env":
		return FormatEnv
	default:
		return FormatTable
	}
}

// Header is the client↔worker message header (spec.md §6.1).
type Header struct {
	Status Status
	Prot   byte
	Cmd    Cmd
	Flags  uint16
}

// Format extracts the low 2 bits of Flags as an output format.
func (h Header) Format() Format { return Format(h.Flags & 0x3) }

const headerSize = 8 + 1 + 1 + 2

// EncodeHeader writes a Header in its 12-byte wire layout.
func EncodeHeader(h Header) []byte {
	buf := make([]byte, headerSize)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(h.Status))
	buf[8] = h.Prot
	buf[9] = byte(h.Cmd)
	binary.LittleEndian.PutUint16(buf[10:12], h.Flags)
	return buf
}

// DecodeHeader parses a 12-byte Header, rejecting a protocol mismatch.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < headerSize {
		return Header{}, siderr.New("wire.DecodeHeader", siderr.KindProtocolMismatch, "short header")
	}
	h := Header{
		Status: Status(binary.LittleEndian.Uint64(buf[0:8])),
		Prot:   buf[8],
		Cmd:    Cmd(buf[9]),
		Flags:  binary.LittleEndian.Uint16(buf[10:12]),
	}
	if h.Prot != ProtocolVersion {
		return h, siderr.New("wire.DecodeHeader", siderr.KindProtocolMismatch, fmt.Sprintf("protocol version %d != %d", h.Prot, ProtocolVersion))
	}
	return h, nil
}

// WriteFrame writes a 4-byte-length-prefixed payload (spec.md §6.1:
// "Framed message, length-prefixed"; §6.3 reuses the same convention
// for responses).
func WriteFrame(w io.Writer, payload []byte) error {
	lenBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(lenBuf, uint32(len(payload)))
	if _, err := w.Write(lenBuf); err != nil {
		return siderr.Wrap("wire.WriteFrame", err)
	}
	if _, err := w.Write(payload); err != nil {
		return siderr.Wrap("wire.WriteFrame", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed payload.
func ReadFrame(r io.Reader) ([]byte, error) {
	lenBuf := make([]byte, 4)
	if _, err := io.ReadFull(r, lenBuf); err != nil {
		return nil, siderr.Wrap("wire.ReadFrame", err)
	}
	n := binary.LittleEndian.Uint32(lenBuf)
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, siderr.Wrap("wire.ReadFrame", err)
	}
	return payload, nil
}

// EncodeScanBody renders a SCAN request body: a 4-byte dev_t followed
// by NUL-separated KEY=VALUE udev properties (spec.md §6.1).
func EncodeScanBody(devt uint32, props map[string]string) []byte {
	var b strings.Builder
	for k, v := range props {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(v)
		b.WriteByte(0)
	}
	head := make([]byte, 4)
	binary.LittleEndian.PutUint32(head, devt)
	return append(head, []byte(b.String())...)
}

// DecodeScanBody parses a SCAN request body.
func DecodeScanBody(body []byte) (uint32, map[string]string, error) {
	if len(body) < 4 {
		return 0, nil, siderr.New("wire.DecodeScanBody", siderr.KindProtocolMismatch, "short scan body")
	}
	devt := binary.LittleEndian.Uint32(body[0:4])
	props := make(map[string]string)
	for _, kv := range strings.Split(string(body[4:]), "\x00") {
		if kv == "" {
			continue
		}
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			continue
		}
		props[parts[0]] = parts[1]
	}
	return devt, props, nil
}

// InternalCmd is a worker↔proxy channel frame command (spec.md §6.2).
type InternalCmd byte

const (
	InternalNoop InternalCmd = iota
	InternalYield
	InternalData
	InternalDataExt
)

// EncodeInternalFrame renders a complete [4B length][1B cmd][payload]
// message as one contiguous buffer, for callers (ancillary-data sends)
// that need the whole frame in hand before handing it to sendmsg(2).
func EncodeInternalFrame(cmd InternalCmd, payload []byte) []byte {
	buf := make([]byte, 4, 5+len(payload))
	binary.LittleEndian.PutUint32(buf, uint32(len(payload)+1))
	buf = append(buf, byte(cmd))
	buf = append(buf, payload...)
	return buf
}

// DecodeInternalFrame parses a complete frame buffer as produced by
// EncodeInternalFrame (e.g. one read off recvmsg(2)).
func DecodeInternalFrame(buf []byte) (InternalFrame, error) {
	if len(buf) < 5 {
		return InternalFrame{}, siderr.New("wire.DecodeInternalFrame", siderr.KindProtocolMismatch, "frame too short")
	}
	n := binary.LittleEndian.Uint32(buf[0:4])
	body := buf[4:]
	if uint32(len(body)) != n {
		return InternalFrame{}, siderr.New("wire.DecodeInternalFrame", siderr.KindProtocolMismatch, "length prefix does not match buffer")
	}
	return InternalFrame{Cmd: InternalCmd(body[0]), Payload: body[1:]}, nil
}

// WriteInternalFrame writes [4B length][1B cmd][payload] to w.
func WriteInternalFrame(w io.Writer, cmd InternalCmd, payload []byte) error {
	buf := bufio.NewWriter(w)
	if _, err := buf.Write(EncodeInternalFrame(cmd, payload)); err != nil {
		return siderr.Wrap("wire.WriteInternalFrame", err)
	}
	return buf.Flush()
}

// InternalFrame is one decoded worker↔proxy channel message.
type InternalFrame struct {
	Cmd     InternalCmd
	Payload []byte
}

// ReadInternalFrame reads one [4B length][1B cmd][payload] message.
func ReadInternalFrame(r io.Reader) (InternalFrame, error) {
	lenBuf := make([]byte, 4)
	if _, err := io.ReadFull(r, lenBuf); err != nil {
		return InternalFrame{}, siderr.Wrap("wire.ReadInternalFrame", err)
	}
	n := binary.LittleEndian.Uint32(lenBuf)
	if n < 1 {
		return InternalFrame{}, siderr.New("wire.ReadInternalFrame", siderr.KindProtocolMismatch, "frame too short for a command byte")
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return InternalFrame{}, siderr.Wrap("wire.ReadInternalFrame", err)
	}
	return InternalFrame{Cmd: InternalCmd(body[0]), Payload: body[1:]}, nil
}
