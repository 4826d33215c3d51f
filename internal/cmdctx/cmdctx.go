// Package cmdctx implements the per-request command context: the state
// machine a single SCAN (or other) command progresses through inside a
// worker, plus the device metadata and buffers that accumulate as
// modules run (spec.md §3.4, §4.4).
package cmdctx

import (
	"bytes"

	"github.com/sidproject/sid/internal/kv"
)

// State is a command context's lifecycle state (spec.md §3.4).
type State int

const (
	Initializing State = iota
	ExecScheduled
	Executing
	ExecFinished
	ExpectingData
	ExpectingExpbufAck
	ExpbufAcked
	OK
	Error
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "INITIALIZING"
	case ExecScheduled:
		return "EXEC_SCHEDULED"
	case Executing:
		return "EXECUTING"
	case ExecFinished:
		return "EXEC_FINISHED"
	case ExpectingData:
		return "EXPECTING_DATA"
	case ExpectingExpbufAck:
		return "EXPECTING_EXPBUF_ACK"
	case ExpbufAcked:
		return "EXPBUF_ACKED"
	case OK:
		return "OK"
	case Error:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// transitions is the lifecycle's adjacency list, used to reject an
// out-of-order Advance call rather than silently letting the state
// machine drift.
var transitions = map[State][]State{
	Initializing:        {ExecScheduled, Error},
	ExecScheduled:       {Executing, Error},
	Executing:           {ExecFinished, ExpectingData, Error},
	ExecFinished:        {ExpectingExpbufAck, OK, Error},
	ExpectingData:       {ExpectingExpbufAck, OK, Error},
	ExpectingExpbufAck:  {ExpbufAcked, Error},
	ExpbufAcked:         {OK, Error},
}

// DeviceInfo mirrors the recognized udev keys into typed fields
// (spec.md §6.4): ACTION, DEVPATH, DEVTYPE, SEQNUM, DISKSEQ, SYNTH_UUID.
type DeviceInfo struct {
	MajorMinor string // "<major>_<minor>", the Device entity's id
	Action     string
	DevPath    string
	DevType    string
	SeqNum     uint64
	DiskSeq    uint64
	SynthUUID  string

	// ParentMajorMinor is the owning disk's device id for a layered or
	// partitioned device (e.g. a dm-linear target's slave, or a
	// partition's parent disk). Empty for a top-level device.
	ParentMajorMinor string
}

// Context is one command's working state: its lifecycle state, the
// device the command concerns, and the response/export buffers modules
// and the dispatcher write into.
type Context struct {
	State  State
	Device DeviceInfo

	// Store is the worker's private KV store snapshot modules read and
	// write through during the scan (spec.md §3.3 invariant 7).
	Store *kv.Store

	// CurrentOwner is the name of the module presently being dispatched,
	// stamped as Owner on every record it writes.
	CurrentOwner string

	// NextTypeModule is DEVICE_NEXT_MOD: the type module name the
	// current type module declares for the SCAN_NEXT phase.
	NextTypeModule string

	Response bytes.Buffer
	Export   bytes.Buffer

	err error
}

// New returns a freshly initialized command context over store.
func New(device DeviceInfo, store *kv.Store) *Context {
	return &Context{State: Initializing, Device: device, Store: store}
}

// Advance moves the context to next, rejecting a transition not named
// in the lifecycle graph.
func (c *Context) Advance(next State) error {
	for _, allowed := range transitions[c.State] {
		if allowed == next {
			c.State = next
			return nil
		}
	}
	return &transitionError{from: c.State, to: next}
}

// Fail records err and unconditionally transitions to Error: every
// state may fail.
func (c *Context) Fail(err error) {
	c.err = err
	c.State = Error
}

// Err returns the error recorded by Fail, if any.
func (c *Context) Err() error { return c.err }

type transitionError struct {
	from, to State
}

func (e *transitionError) Error() string {
	return "cmdctx: illegal transition " + e.from.String() + " -> " + e.to.String()
}
