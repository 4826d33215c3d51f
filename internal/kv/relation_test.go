package kv

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// groupRel models group-membership symmetry: a group's #GMB vector of
// member-device prefixes, reciprocated by each member's #GIN vector
// containing the group's own prefix (spec.md §3.1, §8 scenario 3).
var groupRel = &RelationSpec{PrimaryCore: "#GMB", ReciprocalCore: "#GIN"}

func deviceSpec(id string) KeySpec {
	return KeySpec{Namespace: NamespaceDevice, ID: id}
}

func TestSetVectorWithRelMaintainsSymmetry(t *testing.T) {
	s := New()
	group := deviceSpec("grp0").WithCore("#GMB")
	member := deviceSpec("dev1")
	memberPrefix := []byte(ComposePrefix(member))

	_, err := s.SetVector("device.GroupAddMember", group, VerbPlus, [][]byte{memberPrefix}, "core", 0, groupRel, true)
	require.NoError(t, err)

	groupRec, ok := s.Peek(Compose(group))
	require.True(t, ok)
	require.Equal(t, [][]byte{memberPrefix}, groupRec.Items)

	ginKey := Compose(member.WithCore("#GIN"))
	memberRec, ok := s.Peek(ginKey)
	require.True(t, ok)
	require.Equal(t, [][]byte{[]byte(ComposePrefix(group))}, memberRec.Items)
}

func TestSetVectorWithRelRemovesSymmetrically(t *testing.T) {
	s := New()
	group := deviceSpec("grp0").WithCore("#GMB")
	member := deviceSpec("dev1")
	memberPrefix := []byte(ComposePrefix(member))

	_, err := s.SetVector("device.GroupAddMember", group, VerbPlus, [][]byte{memberPrefix}, "core", 0, groupRel, true)
	require.NoError(t, err)

	_, err = s.SetVector("device.GroupRemoveMember", group, VerbMinus, [][]byte{memberPrefix}, "core", 0, groupRel, true)
	require.NoError(t, err)

	// the group's member vector emptied out, so the key itself is gone
	_, ok := s.Peek(Compose(group))
	require.False(t, ok)

	ginKey := Compose(member.WithCore("#GIN"))
	_, ok = s.Peek(ginKey)
	require.False(t, ok)
}

func TestSetVectorWithoutRelDoesNotChain(t *testing.T) {
	s := New()
	group := deviceSpec("grp0").WithCore("#GMB")
	member := deviceSpec("dev1")
	memberPrefix := []byte(ComposePrefix(member))

	_, err := s.SetVector("device.GroupAddMember", group, VerbPlus, [][]byte{memberPrefix}, "core", 0, groupRel, false)
	require.NoError(t, err)

	ginKey := Compose(member.WithCore("#GIN"))
	_, ok := s.Peek(ginKey)
	require.False(t, ok)
}

func TestAbsDeltaForTracksCumulativeChange(t *testing.T) {
	s := New()
	key := deviceSpec("dev0").WithCore("#GMB")

	_, err := s.SetVector("device.Set", key, VerbPlus, items("a"), "core", 0, nil, false)
	require.NoError(t, err)

	ad := s.AbsDeltaFor(key)
	require.Equal(t, items("a"), ad.Plus)
	require.Empty(t, ad.Minus)

	_, err = s.SetVector("device.Set", key, VerbMinus, items("a"), "core", 0, nil, false)
	require.NoError(t, err)

	ad = s.AbsDeltaFor(key)
	require.Empty(t, ad.Plus)
	require.Empty(t, ad.Minus)
}
