package restree

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeResource struct {
	name      string
	destroyed *[]string
	failErr   error
}

func (f *fakeResource) Destroy() error {
	*f.destroyed = append(*f.destroyed, f.name)
	return f.failErr
}

func TestAddAndLookup(t *testing.T) {
	tree := New()
	var order []string

	store, err := tree.Add(nil, "store", "kv", &fakeResource{name: "kv", destroyed: &order})
	require.NoError(t, err)

	_, err = tree.Add(store, "worker", "w-1", &fakeResource{name: "w-1", destroyed: &order})
	require.NoError(t, err)

	got, ok := tree.Lookup("worker", "w-1")
	require.True(t, ok)
	require.Equal(t, "w-1", got.ID)
}

func TestAddDuplicateRejected(t *testing.T) {
	tree := New()
	_, err := tree.Add(nil, "store", "kv", &fakeResource{name: "kv", destroyed: &[]string{}})
	require.NoError(t, err)
	_, err = tree.Add(nil, "store", "kv", &fakeResource{name: "kv2", destroyed: &[]string{}})
	require.Error(t, err)
}

func TestDestroyChildrenFirst(t *testing.T) {
	tree := New()
	var order []string

	parent, err := tree.Add(nil, "registry", "block", &fakeResource{name: "registry", destroyed: &order})
	require.NoError(t, err)
	_, err = tree.Add(parent, "module", "blkid", &fakeResource{name: "blkid", destroyed: &order})
	require.NoError(t, err)
	_, err = tree.Add(parent, "module", "linear", &fakeResource{name: "linear", destroyed: &order})
	require.NoError(t, err)

	require.NoError(t, tree.Destroy(parent))
	require.Equal(t, []string{"linear", "blkid", "registry"}, order)

	_, ok := tree.Lookup("registry", "block")
	require.False(t, ok)
	_, ok = tree.Lookup("module", "blkid")
	require.False(t, ok)
}

func TestShutdownToleratesResourceErrors(t *testing.T) {
	tree := New()
	var order []string

	parent, err := tree.Add(nil, "store", "kv", &fakeResource{name: "kv", destroyed: &order})
	require.NoError(t, err)
	failing := &fakeResource{name: "broken", destroyed: &order, failErr: require.AnError}
	_, err = tree.Add(parent, "worker", "w-1", failing)
	require.NoError(t, err)

	err = tree.Shutdown()
	require.Error(t, err)
	require.Contains(t, order, "broken")
	require.Contains(t, order, "kv")
}

func TestDumpTreeOrdersChildrenDeterministically(t *testing.T) {
	tree := New()
	var order []string
	parent, err := tree.Add(nil, "registry", "block", &fakeResource{name: "registry", destroyed: &order})
	require.NoError(t, err)
	_, err = tree.Add(parent, "module", "linear", &fakeResource{name: "linear", destroyed: &order})
	require.NoError(t, err)
	_, err = tree.Add(parent, "module", "blkid", &fakeResource{name: "blkid", destroyed: &order})
	require.NoError(t, err)

	dump := tree.DumpTree()
	require.Len(t, dump.Children, 1)
	require.Equal(t, "block", dump.Children[0].ID)
	require.Len(t, dump.Children[0].Children, 2)
	require.Equal(t, "blkid", dump.Children[0].Children[0].ID)
	require.Equal(t, "linear", dump.Children[0].Children[1].ID)
}

func TestChildCount(t *testing.T) {
	tree := New()
	var order []string
	parent, err := tree.Add(nil, "registry", "block", &fakeResource{name: "registry", destroyed: &order})
	require.NoError(t, err)
	_, err = tree.Add(parent, "module", "blkid", &fakeResource{name: "blkid", destroyed: &order})
	require.NoError(t, err)
	require.Equal(t, 1, parent.ChildCount())
}
