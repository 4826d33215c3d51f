package bridge

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sidproject/sid/internal/config"
	"github.com/sidproject/sid/internal/kv"
	"github.com/sidproject/sid/internal/wire"
)

func testConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.SnapshotPath = filepath.Join(t.TempDir(), "sid.db")
	cfg.SocketPath = filepath.Join(t.TempDir(), "sid.sock")
	return cfg
}

func TestNewInitializesGenerationsAndRegistries(t *testing.T) {
	b, err := New(testConfig(t))
	require.NoError(t, err)

	require.Equal(t, uint64(1), b.DBGen())
	require.NotEmpty(t, b.BootID())
	require.Equal(t, 2, b.Blocks.Len())
	require.ElementsMatch(t, []string{"disk", "partition"}, b.Types.Names())
}

func TestNewIncrementsGenerationAcrossRestarts(t *testing.T) {
	cfg := testConfig(t)

	b1, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, b1.Checkpoint())

	b2, err := New(cfg)
	require.NoError(t, err)
	require.Equal(t, uint64(2), b2.DBGen())
	require.NotEqual(t, b1.BootID(), b2.BootID())
}

func TestCheckpointRoundTripsPersistentRecords(t *testing.T) {
	cfg := testConfig(t)

	b1, err := New(cfg)
	require.NoError(t, err)

	key := kv.Compose(kv.KeySpec{Namespace: kv.NamespaceDevice, ID: "8_0", Core: "#TEST"})
	_, err = b1.Store.Set(key, &kv.Record{
		Kind:   kv.KindScalar,
		Owner:  "core",
		Flags:  kv.FlagPersistent,
		Scalar: []byte("value"),
	}, nil)
	require.NoError(t, err)
	require.NoError(t, b1.Checkpoint())

	b2, err := New(cfg)
	require.NoError(t, err)
	rec, err := b2.Store.Get(key, "core")
	require.NoError(t, err)
	require.Equal(t, "value", string(rec.Scalar))
}

func TestMergeAppliesExportedRecords(t *testing.T) {
	b, err := New(testConfig(t))
	require.NoError(t, err)

	worker := kv.New()
	key := kv.Compose(kv.KeySpec{Namespace: kv.NamespaceDevice, ID: "8_1", Core: "#RDY"})
	_, err = worker.Set(key, &kv.Record{
		Kind:   kv.KindScalar,
		Owner:  "core",
		Flags:  kv.FlagSync | kv.FlagPersistent,
		Scalar: []byte{1},
	}, nil)
	require.NoError(t, err)

	export, err := EncodeExport(worker)
	require.NoError(t, err)

	merged, err := b.Merge(export)
	require.NoError(t, err)
	require.Equal(t, 1, merged)

	rec, err := b.Store.Get(key, "core")
	require.NoError(t, err)
	require.Equal(t, []byte{1}, rec.Scalar)
}

func TestExecuteScanRunsBuiltinModulesAndProducesExport(t *testing.T) {
	blocks, types := NewRegistries()
	store := kv.New()

	body := wire.EncodeScanBody(0x0800, map[string]string{
		"ACTION": "add",
		"DEVTYPE": "disk",
		"MAJOR":  "8",
		"MINOR":  "0",
	})

	result, err := ExecuteScan(blocks, types, store, body)
	require.NoError(t, err)
	require.NotEmpty(t, result.Response)
	require.NotEmpty(t, result.Export)
	require.Equal(t, "EXPECTING_EXPBUF_ACK", result.Ctx.State.String())

	records, err := kv.DecodeRecords(bytes.NewReader(result.Export))
	require.NoError(t, err)
	require.NotEmpty(t, records)
}

func TestFormatDevicesRendersTableAndJSON(t *testing.T) {
	devices := []DeviceSummary{{ID: "8_0", Ready: "READY_PUBLIC", Reserved: "FREE", Module: "disk"}}

	table := string(FormatDevices(wire.FormatTable, devices))
	require.Contains(t, table, "8_0")
	require.Contains(t, table, "READY_PUBLIC")

	js := string(FormatDevices(wire.FormatJSON, devices))
	require.Contains(t, js, `"id":"8_0"`)
}

func TestDispatchReplyReturnsCachedResponse(t *testing.T) {
	b, err := New(testConfig(t))
	require.NoError(t, err)

	cached := []byte("cached-response")
	b.lastResponses[byte(wire.CmdVersion)] = cached

	resp, err := b.dispatchReply([]byte{byte(wire.CmdVersion)})
	require.NoError(t, err)
	require.Equal(t, cached, resp)

	_, err = b.dispatchReply([]byte{byte(wire.CmdDBDump)})
	require.Error(t, err)
}

func TestDispatchServesNonScanCommandsDirectly(t *testing.T) {
	b, err := New(testConfig(t))
	require.NoError(t, err)

	header := wire.Header{Prot: wire.ProtocolVersion, Cmd: wire.CmdVersion}
	resp, err := b.dispatch(header, nil)
	require.NoError(t, err)

	decoded, err := wire.DecodeHeader(resp)
	require.NoError(t, err)
	require.Equal(t, wire.StatusSuccess, decoded.Status)
	require.Contains(t, string(resp[12:]), "sid")
}
