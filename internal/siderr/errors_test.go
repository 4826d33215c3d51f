package siderr

import (
	"errors"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewAndError(t *testing.T) {
	err := NewKey("kv.Set", "U:UDEV::::8_0:#RDY", KindBusy, "key reserved by other module")
	require.Equal(t, "kv.Set", err.Op)
	require.Equal(t, KindBusy, err.Kind)
	require.Contains(t, err.Error(), "key reserved by other module")
	require.Contains(t, err.Error(), "op=kv.Set")
}

func TestErrnoMapping(t *testing.T) {
	err := NewErrno("worker.spawn", syscall.EBUSY)
	require.Equal(t, KindBusy, err.Kind)
	require.True(t, IsErrno(err, syscall.EBUSY))
	require.False(t, IsErrno(err, syscall.EPERM))
}

func TestWrapPreservesKind(t *testing.T) {
	inner := NewKey("kv.Set", "k", KindPermission, "owner mismatch")
	wrapped := Wrap("bridge.merge", inner)
	require.Equal(t, "bridge.merge", wrapped.Op)
	require.Equal(t, KindPermission, wrapped.Kind)
	require.True(t, IsKind(wrapped, KindPermission))
	require.ErrorIs(t, wrapped, inner)
}

func TestWrapPlainError(t *testing.T) {
	wrapped := Wrap("scan.run", errors.New("boom"))
	require.Equal(t, KindInternal, wrapped.Kind)
	require.Contains(t, wrapped.Error(), "boom")
}

func TestWrapNilIsNil(t *testing.T) {
	require.Nil(t, Wrap("op", nil))
}
