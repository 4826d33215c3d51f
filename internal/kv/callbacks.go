package kv

import "github.com/sidproject/sid/internal/siderr"

// OverwritePolicy returns the general-purpose update callback: any
// caller may create a new key, but overwriting an existing one is
// gated by the owning module's flags (spec.md §3.3, §7).
func OverwritePolicy(op, caller string) UpdateFunc {
	return func(old, proposed *Record, arg *UpdateArg) {
		if old == nil || old.Owner == caller {
			arg.Decision = Commit
			return
		}
		if refusal := ownershipRefusal(op, old, caller); refusal != nil {
			arg.Decision = Abort
			arg.Refusal = refusal
			return
		}
		arg.Decision = Commit
	}
}

// ReservePolicy applies the same ownership gating as OverwritePolicy,
// refusing with KindBusy when the key is reserved, private or protected
// by another owner; otherwise it sets FlagModReserved and stamps the
// owner.
func ReservePolicy(op, caller string) UpdateFunc {
	return func(old, proposed *Record, arg *UpdateArg) {
		if old != nil && old.Owner != caller && old.Flags&(FlagModReserved|FlagModPrivate|FlagModProtected) != 0 {
			arg.Decision = Abort
			arg.Refusal = siderr.NewKey(op, proposed.Key, siderr.KindBusy, "key already held by another owner")
			return
		}
		proposed.Flags = proposed.Flags.Set(FlagModReserved)
		proposed.Owner = caller
		arg.Decision = Commit
	}
}

// UnreservePolicy commits only if caller currently holds the
// reservation, clearing FlagModReserved. It is meant to be used with
// Set on a proposed record that is a throwaway placeholder: the
// committed record is rebuilt from old so the key's payload survives
// the metadata-only change.
func UnreservePolicy(op, caller string) UpdateFunc {
	return func(old, proposed *Record, arg *UpdateArg) {
		if old == nil {
			arg.Decision = Abort
			arg.Refusal = siderr.NewKey(op, proposed.Key, siderr.KindNotFound, "key not reserved")
			return
		}
		if !old.Flags.Has(FlagModReserved) || old.Owner != caller {
			arg.Decision = Abort
			arg.Refusal = siderr.NewKey(op, old.Key, siderr.KindPermission, "caller does not hold the reservation")
			return
		}
		*proposed = *old.Clone()
		proposed.Flags = proposed.Flags.Clear(FlagModReserved)
		arg.Decision = Commit
	}
}

// WriteNewOnlyPolicy commits only when no record currently exists.
func WriteNewOnlyPolicy(op string) UpdateFunc {
	return func(old, proposed *Record, arg *UpdateArg) {
		if old != nil {
			arg.Decision = Abort
			arg.Refusal = siderr.NewKey(op, proposed.Key, siderr.KindAccessDenied, "key already exists")
			return
		}
		arg.Decision = Commit
	}
}

// MainSetPolicy is used by the bridge when merging a worker's exported
// record into the authoritative store: it applies the same ownership
// gating as OverwritePolicy, but additionally rejects stale merges whose
// sequence number is lower than the stored record's; an equal sequence
// number is accepted (spec.md §4.5, §6.3).
func MainSetPolicy(op, caller string) UpdateFunc {
	overwrite := OverwritePolicy(op, caller)
	return func(old, proposed *Record, arg *UpdateArg) {
		if old != nil && proposed.Sequence < old.Sequence {
			arg.Decision = Abort
			arg.Refusal = siderr.NewKey(op, proposed.Key, siderr.KindBusy, "stale sequence number")
			return
		}
		overwrite(old, proposed, arg)
	}
}

// MainUnsetPolicy mirrors MainSetPolicy for deletions merged from a worker.
func MainUnsetPolicy(op, caller string) UpdateFunc {
	return func(old, _ *Record, arg *UpdateArg) {
		if old == nil {
			arg.Decision = Abort
			return
		}
		if refusal := ownershipRefusal(op, old, caller); refusal != nil {
			arg.Decision = Abort
			arg.Refusal = refusal
			return
		}
		arg.Decision = Commit
	}
}

// ownershipRefusal checks old's MOD_* flags against caller, returning
// the structured refusal to report (nil if caller may proceed).
func ownershipRefusal(op string, old *Record, caller string) *siderr.Error {
	if old.Owner == caller {
		return nil
	}
	switch {
	case old.Flags.Has(FlagModPrivate):
		return siderr.NewKey(op, old.Key, siderr.KindAccessDenied, "key is private to another owner")
	case old.Flags.Has(FlagModReserved):
		return siderr.NewKey(op, old.Key, siderr.KindBusy, "key reserved by another owner")
	case old.Flags.Has(FlagModProtected):
		return siderr.NewKey(op, old.Key, siderr.KindPermission, "key is protected by another owner")
	default:
		return nil
	}
}
