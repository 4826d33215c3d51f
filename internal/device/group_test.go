package device

import (
	"testing"

	"github.com/sidproject/sid/internal/kv"
	"github.com/sidproject/sid/internal/siderr"
	"github.com/stretchr/testify/require"
)

func TestGroupSymmetryScenario(t *testing.T) {
	// spec.md §8 scenario 3
	store := kv.New()
	require.NoError(t, GroupCreate(store, "GLOBAL", "g", "core"))
	require.NoError(t, GroupAddMember(store, "GLOBAL", "g", "8_0", "core"))
	require.NoError(t, GroupAddMember(store, "GLOBAL", "g", "8_16", "core"))

	in, err := GroupIsIn(store, "8_0", "GLOBAL", "g")
	require.NoError(t, err)
	require.True(t, in)

	in, err = GroupIsIn(store, "8_16", "GLOBAL", "g")
	require.NoError(t, err)
	require.True(t, in)

	members, err := GroupMembers(store, "GLOBAL", "g")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"8_0", "8_16"}, members)
}

func TestGroupDestroyNonEmptyWithoutForceFails(t *testing.T) {
	store := kv.New()
	require.NoError(t, GroupCreate(store, "GLOBAL", "g", "core"))
	require.NoError(t, GroupAddMember(store, "GLOBAL", "g", "8_0", "core"))

	err := GroupDestroy(store, "GLOBAL", "g", "core", false)
	require.True(t, siderr.IsKind(err, siderr.KindBusy))
}

func TestGroupDestroyForceRemovesReciprocals(t *testing.T) {
	store := kv.New()
	require.NoError(t, GroupCreate(store, "GLOBAL", "g", "core"))
	require.NoError(t, GroupAddMember(store, "GLOBAL", "g", "8_0", "core"))
	require.NoError(t, GroupAddMember(store, "GLOBAL", "g", "8_16", "core"))

	require.NoError(t, GroupDestroy(store, "GLOBAL", "g", "core", true))

	in, err := GroupIsIn(store, "8_0", "GLOBAL", "g")
	require.NoError(t, err)
	require.False(t, in)

	members, err := GroupMembers(store, "GLOBAL", "g")
	require.NoError(t, err)
	require.Empty(t, members)
}

func TestGroupRemoveMemberKeepsGroup(t *testing.T) {
	store := kv.New()
	require.NoError(t, GroupCreate(store, "GLOBAL", "g", "core"))
	require.NoError(t, GroupAddMember(store, "GLOBAL", "g", "8_0", "core"))
	require.NoError(t, GroupAddMember(store, "GLOBAL", "g", "8_16", "core"))

	require.NoError(t, GroupRemoveMember(store, "GLOBAL", "g", "8_0", "core"))

	members, err := GroupMembers(store, "GLOBAL", "g")
	require.NoError(t, err)
	require.Equal(t, []string{"8_16"}, members)

	// destroying the now-empty group without force still succeeds
	require.NoError(t, GroupRemoveMember(store, "GLOBAL", "g", "8_16", "core"))
	require.NoError(t, GroupDestroy(store, "GLOBAL", "g", "core", false))
}

func TestPartitionHierarchyScenario(t *testing.T) {
	// spec.md §8 scenario 4, modeled with the LYR namespace-part and
	// the GMB/GIN core pair shared between a disk and its partition.
	store := kv.New()
	diskKey := kv.KeySpec{Namespace: kv.NamespaceDevice, NamespacePart: "LYR", ID: "8_0"}
	partKey := kv.KeySpec{Namespace: kv.NamespaceDevice, NamespacePart: "LYR", ID: "8_1"}
	rel := &kv.RelationSpec{PrimaryCore: "#GMB", ReciprocalCore: "#GIN"}

	diskPrefix := []byte(kv.ComposePrefix(diskKey))
	_, err := store.SetVector("partition.Link", partKey.WithCore("#GMB"), kv.VerbPlus, [][]byte{diskPrefix}, "partition", kv.FlagSync|kv.FlagPersistent, rel, true)
	require.NoError(t, err)

	ginRec, ok := store.Peek(kv.Compose(diskKey.WithCore("#GIN")))
	require.True(t, ok)
	require.Equal(t, [][]byte{[]byte(kv.ComposePrefix(partKey))}, ginRec.Items)
}
