// Package device implements the Device entity (spec.md §3.1): the
// ready/reserved lifecycle scalars and the derived module-name field
// that live under a device's DEVICE-namespace key.
package device

import (
	"github.com/sidproject/sid/internal/kv"
	"github.com/sidproject/sid/internal/siderr"
)

// ReadyState is a device's readiness lifecycle (spec.md §3.1).
type ReadyState byte

const (
	ReadyUnprocessed ReadyState = iota
	ReadyNotAccessibleInaccessible
	ReadyNotReadyAccessible
	ReadyPrivate
	ReadyPublic
	ReadyUnavailable
)

// ReservedState is a device's reservation lifecycle (spec.md §3.1).
type ReservedState byte

const (
	ReservedUnprocessed ReservedState = iota
	ReservedFree
	ReservedReserved
)

const (
	coreReady  = "#RDY"
	coreReserv = "#RES"
	coreModule = "#MOD"
)

func deviceKey(id, core string) kv.KeySpec {
	return kv.KeySpec{Namespace: kv.NamespaceDevice, ID: id, Core: core}
}

// SetReady stamps a device's readiness state under the overwrite
// policy. The record carries no MOD_* flag, so a later SetReady by any
// owner replaces it.
func SetReady(store *kv.Store, deviceID, owner string, state ReadyState) error {
	key := kv.Compose(deviceKey(deviceID, coreReady))
	_, err := store.Set(key, &kv.Record{
		Kind:   kv.KindScalar,
		Owner:  owner,
		Flags:  kv.FlagSync | kv.FlagPersistent,
		Scalar: []byte{byte(state)},
	}, kv.OverwritePolicy("device.SetReady", owner))
	return err
}

// GetReady returns a device's readiness state, UNPROCESSED if never set.
func GetReady(store *kv.Store, deviceID, caller string) (ReadyState, error) {
	key := kv.Compose(deviceKey(deviceID, coreReady))
	rec, err := store.Get(key, caller)
	if err != nil {
		if siderr.IsKind(err, siderr.KindNotFound) {
			return ReadyUnprocessed, nil
		}
		return ReadyUnprocessed, err
	}
	if len(rec.Scalar) != 1 {
		return ReadyUnprocessed, siderr.NewKey("device.GetReady", key, siderr.KindInternal, "malformed ready record")
	}
	return ReadyState(rec.Scalar[0]), nil
}

// SetReserved stamps a device's reservation state.
func SetReserved(store *kv.Store, deviceID, owner string, state ReservedState) error {
	key := kv.Compose(deviceKey(deviceID, coreReserv))
	_, err := store.Set(key, &kv.Record{
		Kind:   kv.KindScalar,
		Owner:  owner,
		Flags:  kv.FlagSync | kv.FlagPersistent,
		Scalar: []byte{byte(state)},
	}, kv.OverwritePolicy("device.SetReserved", owner))
	return err
}

// GetReserved returns a device's reservation state, UNPROCESSED if never set.
func GetReserved(store *kv.Store, deviceID, caller string) (ReservedState, error) {
	key := kv.Compose(deviceKey(deviceID, coreReserv))
	rec, err := store.Get(key, caller)
	if err != nil {
		if siderr.IsKind(err, siderr.KindNotFound) {
			return ReservedUnprocessed, nil
		}
		return ReservedUnprocessed, err
	}
	if len(rec.Scalar) != 1 {
		return ReservedUnprocessed, siderr.NewKey("device.GetReserved", key, siderr.KindInternal, "malformed reserved record")
	}
	return ReservedState(rec.Scalar[0]), nil
}

// SetModuleName records a device's derived type-module name (moddb.Resolve's
// result), written once by the IDENT phase.
func SetModuleName(store *kv.Store, deviceID, owner, moduleName string) error {
	key := kv.Compose(deviceKey(deviceID, coreModule))
	_, err := store.Set(key, &kv.Record{
		Kind:   kv.KindScalar,
		Owner:  owner,
		Flags:  kv.FlagSync | kv.FlagPersistent,
		Scalar: []byte(moduleName),
	}, kv.WriteNewOnlyPolicy("device.SetModuleName"))
	return err
}

// ModuleName returns a device's derived type-module name, "" if unset.
func ModuleName(store *kv.Store, deviceID, caller string) (string, error) {
	key := kv.Compose(deviceKey(deviceID, coreModule))
	rec, err := store.Get(key, caller)
	if err != nil {
		if siderr.IsKind(err, siderr.KindNotFound) {
			return "", nil
		}
		return "", err
	}
	return string(rec.Scalar), nil
}
