// Package udev implements the udev environment import/export/tagging
// behavior described in spec.md §6.4: importing the incoming KEY=VALUE
// environment into the UDEV namespace, mirroring the recognized keys
// into the command context's device struct, and re-exporting on
// completion.
package udev

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/sidproject/sid/internal/cmdctx"
	"github.com/sidproject/sid/internal/kv"
)

const (
	// Tag is stamped on every processed device (spec.md §6.4).
	Tag = "SID"

	keySessionID = "SID_SESSION_ID"
)

func udevKey(id, core string) kv.KeySpec {
	return kv.KeySpec{Namespace: kv.NamespaceUdev, ID: id, Core: core}
}

// Import parses a NUL- or newline-agnostic "KEY=VALUE" slice (the
// incoming environment), writes each pair into the UDEV namespace under
// deviceID with SYNC|PERSISTENT, and mirrors the keys spec.md §6.4 names
// into device.
func Import(store *kv.Store, deviceID, owner string, env []string, device *cmdctx.DeviceInfo) error {
	for _, kvPair := range env {
		parts := strings.SplitN(kvPair, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key, value := parts[0], parts[1]

		rec := &kv.Record{
			Kind:   kv.KindScalar,
			Owner:  owner,
			Flags:  kv.FlagSync | kv.FlagPersistent,
			Scalar: []byte(value),
		}
		if _, err := store.Set(kv.Compose(udevKey(deviceID, key)), rec, kv.OverwritePolicy("udev.Import", owner)); err != nil {
			return err
		}

		mirrorRecognized(device, key, value)
	}
	return nil
}

// mirrorRecognized copies a recognized udev property into its typed
// DeviceInfo field (spec.md §6.4).
func mirrorRecognized(device *cmdctx.DeviceInfo, key, value string) {
	switch key {
	case "ACTION":
		device.Action = value
	case "DEVPATH":
		device.DevPath = value
	case "DEVTYPE":
		device.DevType = value
	case "SEQNUM":
		if n, err := strconv.ParseUint(value, 10, 64); err == nil {
			device.SeqNum = n
		}
	case "DISKSEQ":
		if n, err := strconv.ParseUint(value, 10, 64); err == nil {
			device.DiskSeq = n
		}
	case "SYNTH_UUID":
		device.SynthUUID = value
	}
}

// Export concatenates every UDEV-namespace record for deviceID as
// "KEY=VALUE\0", for the invoker to re-export (spec.md §6.4).
func Export(store *kv.Store, deviceID string) []byte {
	prefix := kv.ComposePrefix(udevKey(deviceID, ""))
	var out []byte
	for _, rec := range store.Iterate(prefix) {
		spec, err := kv.Parse(rec.Key)
		if err != nil {
			continue
		}
		out = append(out, []byte(spec.Core)...)
		out = append(out, '=')
		out = append(out, rec.Scalar...)
		out = append(out, 0)
	}
	return out
}

// TagDevice stamps a processed device with Tag and a SID_SESSION_ID,
// and returns that session id. The id is a uuid generated afresh on
// each call; it is not the worker's own id (spec.md §6.4).
func TagDevice(store *kv.Store, deviceID, owner string) (sessionID string, err error) {
	sessionID = uuid.NewString()

	tagRec := &kv.Record{Kind: kv.KindScalar, Owner: owner, Flags: kv.FlagSync | kv.FlagPersistent, Scalar: []byte(Tag)}
	if _, err = store.Set(kv.Compose(udevKey(deviceID, "TAG")), tagRec, kv.OverwritePolicy("udev.TagDevice", owner)); err != nil {
		return "", err
	}

	sessionRec := &kv.Record{Kind: kv.KindScalar, Owner: owner, Flags: kv.FlagSync | kv.FlagPersistent, Scalar: []byte(sessionID)}
	if _, err = store.Set(kv.Compose(udevKey(deviceID, keySessionID)), sessionRec, kv.OverwritePolicy("udev.TagDevice", owner)); err != nil {
		return "", err
	}

	return sessionID, nil
}
