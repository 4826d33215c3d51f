package device

import (
	"github.com/sidproject/sid/internal/kv"
	"github.com/sidproject/sid/internal/siderr"
)

const (
	coreGroupMembers = "#GMB" // GEN_GROUP_MEMBERS: group's vector of member-device prefixes
	coreGroupIn       = "#GIN" // GEN_GROUP_IN: a device's reciprocal vector of group prefixes
	coreGroupMarker   = "#GRP" // existence marker, so an empty group still exists
)

var groupMembersRel = &kv.RelationSpec{PrimaryCore: coreGroupMembers, ReciprocalCore: coreGroupIn}

// groupKey builds the key a group of the given (namespace, id) pair
// lives under. The group's own namespace scope is modeled as the key
// grammar's namespace-part field, nested under the GLOBAL namespace
// (spec.md §3.1: groups are identified by "(group-namespace, group-id)").
func groupKey(groupNamespace, groupID, core string) kv.KeySpec {
	return kv.KeySpec{Namespace: kv.NamespaceGlobal, NamespacePart: groupNamespace, ID: groupID, Core: core}
}

// GroupCreate registers a new, initially empty group. Creating a group
// that already exists fails.
func GroupCreate(store *kv.Store, groupNamespace, groupID, owner string) error {
	key := kv.Compose(groupKey(groupNamespace, groupID, coreGroupMarker))
	_, err := store.Set(key, &kv.Record{Kind: kv.KindScalar, Owner: owner, Scalar: []byte{1}}, kv.WriteNewOnlyPolicy("device.GroupCreate"))
	return err
}

// GroupAddMember adds deviceID to the group, maintaining the #GIN
// reciprocal on the device (spec.md §8 scenario 3).
func GroupAddMember(store *kv.Store, groupNamespace, groupID, deviceID, owner string) error {
	spec := groupKey(groupNamespace, groupID, coreGroupMembers)
	memberPrefix := []byte(kv.ComposePrefix(deviceKey(deviceID, "")))
	_, err := store.SetVector("device.GroupAddMember", spec, kv.VerbPlus, [][]byte{memberPrefix}, owner, kv.FlagSync|kv.FlagPersistent, groupMembersRel, true)
	return err
}

// GroupRemoveMember removes deviceID from the group without destroying
// the group itself (original_source/include/resource/ucmd-module.h
// group_remove_dev, supplemented per SPEC_FULL.md §C.5).
func GroupRemoveMember(store *kv.Store, groupNamespace, groupID, deviceID, owner string) error {
	spec := groupKey(groupNamespace, groupID, coreGroupMembers)
	memberPrefix := []byte(kv.ComposePrefix(deviceKey(deviceID, "")))
	_, err := store.SetVector("device.GroupRemoveMember", spec, kv.VerbMinus, [][]byte{memberPrefix}, owner, kv.FlagSync|kv.FlagPersistent, groupMembersRel, true)
	return err
}

// GroupMembers lists every device-key prefix currently in the group's
// membership vector.
func GroupMembers(store *kv.Store, groupNamespace, groupID string) ([]string, error) {
	key := kv.Compose(groupKey(groupNamespace, groupID, coreGroupMembers))
	rec, ok := store.Peek(key)
	if !ok {
		return nil, nil
	}
	out := make([]string, 0, len(rec.Items))
	for _, item := range rec.Items {
		spec, err := kv.ParsePrefix(string(item))
		if err != nil {
			continue
		}
		out = append(out, spec.ID)
	}
	return out, nil
}

// GroupIsIn reports whether deviceID currently belongs to the group, by
// checking the device's own #GIN reciprocal vector.
func GroupIsIn(store *kv.Store, deviceID, groupNamespace, groupID string) (bool, error) {
	key := kv.Compose(deviceKey(deviceID, coreGroupIn))
	rec, ok := store.Peek(key)
	if !ok {
		return false, nil
	}
	want := kv.ComposePrefix(groupKey(groupNamespace, groupID, ""))
	for _, item := range rec.Items {
		if string(item) == want {
			return true, nil
		}
	}
	return false, nil
}

// layerKey builds the DEVICE-namespace key for deviceID scoped under a
// hierarchy namespace-part such as "LYR" (spec.md §8 scenario 4: "writes
// DEVICE:8_1:LYR:#GMB with a vector containing the prefix for 8_0 and
// symmetrically DEVICE:8_0:LYR:#GIN gains the partition's prefix").
// Unlike groupKey, this is not an abstract GLOBAL-namespace group
// entity: the relation is recorded directly between the two devices'
// own DEVICE keys, matching original_source/src/resource/ubridge.c's
// _refresh_device_partition_hierarchy_from_sysfs, which writes the
// current device's own GEN_GROUP_MEMBERS key rather than an
// intermediate group.
func layerKey(namespacePart, deviceID, core string) kv.KeySpec {
	return kv.KeySpec{Namespace: kv.NamespaceDevice, NamespacePart: namespacePart, ID: deviceID, Core: core}
}

var layerMembersRel = &kv.RelationSpec{PrimaryCore: coreGroupMembers, ReciprocalCore: coreGroupIn}

// LinkLayerMember records memberID as a layer member of parentID (e.g.
// a partition and its whole disk, spec.md §8 scenario 4), writing the
// member's own #GMB directly and letting WITH_REL chain the reciprocal
// #GIN onto the parent.
func LinkLayerMember(store *kv.Store, namespacePart, memberID, parentID, owner string) error {
	spec := layerKey(namespacePart, memberID, coreGroupMembers)
	parentPrefix := []byte(kv.ComposePrefix(layerKey(namespacePart, parentID, "")))
	_, err := store.SetVector("device.LinkLayerMember", spec, kv.VerbPlus, [][]byte{parentPrefix}, owner, kv.FlagSync|kv.FlagPersistent, layerMembersRel, true)
	return err
}

// UnlinkLayerMember removes the relation LinkLayerMember established.
func UnlinkLayerMember(store *kv.Store, namespacePart, memberID, parentID, owner string) error {
	spec := layerKey(namespacePart, memberID, coreGroupMembers)
	parentPrefix := []byte(kv.ComposePrefix(layerKey(namespacePart, parentID, "")))
	_, err := store.SetVector("device.UnlinkLayerMember", spec, kv.VerbMinus, [][]byte{parentPrefix}, owner, kv.FlagSync|kv.FlagPersistent, layerMembersRel, true)
	return err
}

// LayerMembers lists the layer-parent prefixes currently recorded under
// memberID's #GMB vector for the given namespace part, resolved down to
// bare device ids.
func LayerMembers(store *kv.Store, namespacePart, memberID string) ([]string, error) {
	key := kv.Compose(layerKey(namespacePart, memberID, coreGroupMembers))
	rec, ok := store.Peek(key)
	if !ok {
		return nil, nil
	}
	out := make([]string, 0, len(rec.Items))
	for _, item := range rec.Items {
		spec, err := kv.ParsePrefix(string(item))
		if err != nil {
			continue
		}
		out = append(out, spec.ID)
	}
	return out, nil
}

// IsLayerMember reports whether parentID currently appears in memberID's
// #GMB vector for the given namespace part (the reciprocal of
// LayerMembers on the parent's #GIN side).
func IsLayerMember(store *kv.Store, namespacePart, memberID, parentID string) (bool, error) {
	members, err := LayerMembers(store, namespacePart, memberID)
	if err != nil {
		return false, err
	}
	for _, id := range members {
		if id == parentID {
			return true, nil
		}
	}
	return false, nil
}

// GroupDestroy removes a group. If it still has members, destruction
// fails with KindBusy unless force is set, in which case every member
// is removed (reciprocals cleaned up) before the group marker itself
// is deleted (spec.md §8 scenario 3).
func GroupDestroy(store *kv.Store, groupNamespace, groupID, owner string, force bool) error {
	members, err := GroupMembers(store, groupNamespace, groupID)
	if err != nil {
		return err
	}
	if len(members) > 0 && !force {
		return siderr.NewKey("device.GroupDestroy", kv.Compose(groupKey(groupNamespace, groupID, coreGroupMembers)), siderr.KindBusy, "group is not empty")
	}
	for _, deviceID := range members {
		if err := GroupRemoveMember(store, groupNamespace, groupID, deviceID, owner); err != nil {
			return err
		}
	}
	markerKey := kv.Compose(groupKey(groupNamespace, groupID, coreGroupMarker))
	return store.Unset(markerKey, nil)
}
