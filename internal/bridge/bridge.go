// Package bridge implements SID's ubridge orchestration core (spec.md
// §4.6): it owns the authoritative KV store, the resource tree, the two
// module registries, and the worker pool, and ties them together into
// the request/response cycle described in spec.md §2's data flow.
package bridge

import (
	"fmt"
	"os"
	"time"

	"github.com/sidproject/sid/internal/config"
	"github.com/sidproject/sid/internal/kv"
	"github.com/sidproject/sid/internal/logging"
	"github.com/sidproject/sid/internal/module"
	"github.com/sidproject/sid/internal/module/builtin/blkid"
	"github.com/sidproject/sid/internal/module/builtin/disk"
	"github.com/sidproject/sid/internal/module/builtin/linear"
	"github.com/sidproject/sid/internal/module/builtin/partition"
	"github.com/sidproject/sid/internal/restree"
	"github.com/sidproject/sid/internal/siderr"
	"github.com/sidproject/sid/internal/worker"
)

var (
	coreGenKey  = kv.Compose(kv.KeySpec{Namespace: kv.NamespaceGlobal, Core: "#DBGEN"})
	coreBootKey = kv.Compose(kv.KeySpec{Namespace: kv.NamespaceGlobal, Core: "#BOOTID"})
)

// Bridge is SID's ubridge core. Its lastResponses field caches the most
// recent response per command, keyed by wire.Cmd, so a REPLY request (original_source/tools/sidctl/sidctl.c's
// notion of recovering a dropped reply) can re-send it. The event loop
// is single-threaded, so a plain map needs no locking.
type Bridge struct {
	Config *config.Config

	Store *kv.Store
	Tree  *restree.Tree

	Blocks *module.BlockRegistry
	Types  *module.TypeRegistry

	Workers *worker.Manager

	log           *logging.Logger
	lastResponses map[byte][]byte

	bootID string
	dbGen  uint64
}

// NewRegistries builds the block and type registries SID ships in-tree,
// standing in for the dynamic-library modules spec.md §1 places out of
// scope ("the core only consumes a symbol table per module"). Exported
// so cmd/sid's worker-loop process, which never constructs a full
// Bridge, can build the identical registries a scan runs against.
func NewRegistries() (*module.BlockRegistry, *module.TypeRegistry) {
	blocks := module.NewBlockRegistry()
	_ = blocks.Register(blkid.New())
	_ = blocks.Register(linear.New())

	types := module.NewTypeRegistry()
	_ = types.Register(disk.New())
	_ = types.Register(partition.New())

	return blocks, types
}

// New builds a Bridge from cfg: loads or initializes the authoritative
// store (from cfg.SnapshotPath if present), registers the built-in
// modules, and adds the store and the worker pool to the resource tree
// as top-level nodes so shutdown tears them down deterministically
// (spec.md §5 "resource discipline", supplemented per SPEC_FULL.md
// §C.1). The module registries are not tree nodes.
func New(cfg *config.Config) (*Bridge, error) {
	log := logging.Default()

	store := kv.New()
	if f, err := os.Open(cfg.SnapshotPath); err == nil {
		err = store.ReadSnapshot(f)
		f.Close()
		if err != nil {
			return nil, siderr.Wrap("bridge.New", err)
		}
	}

	blocks, types := NewRegistries()

	b := &Bridge{
		Config:        cfg,
		Store:         store,
		Tree:          restree.New(),
		Blocks:        blocks,
		Types:         types,
		Workers:       worker.NewManager(cfg.WorkerIdle, cfg.WorkerExec),
		log:           log,
		lastResponses: make(map[byte][]byte),
	}

	if err := b.loadOrInitGenerations(); err != nil {
		return nil, err
	}

	if _, err := b.Tree.Add(nil, "store", "kv", storeDestroyer{}); err != nil {
		return nil, siderr.Wrap("bridge.New", err)
	}
	if _, err := b.Tree.Add(nil, "workers", "pool", b.Workers); err != nil {
		return nil, siderr.Wrap("bridge.New", err)
	}

	log.Info("bridge initialized", "dbgen", b.dbGen, "bootid", b.bootID, "blocks", blocks.Len(), "types", len(types.Names()))
	return b, nil
}

// storeDestroyer is a no-op Destroyer: the KV store has no external
// resources of its own (the snapshot file is written explicitly via
// Checkpoint, not on teardown), but it is still registered as a node so
// SYSTEM_CMD_RESOURCES can report it.
type storeDestroyer struct{}

func (storeDestroyer) Destroy() error { return nil }

// loadOrInitGenerations implements spec.md §4.6: "On startup loads or
// initializes DBGEN (incremented per boot) and BOOTID (current system
// boot id; previous value recorded if present)."
func (b *Bridge) loadOrInitGenerations() error {
	var gen uint64
	if rec, ok := b.Store.Peek(coreGenKey); ok && len(rec.Scalar) == 8 {
		gen, _ = decodeU64(rec.Scalar)
	}
	gen++
	b.dbGen = gen
	if _, err := b.Store.Set(coreGenKey, &kv.Record{
		Kind:   kv.KindScalar,
		Owner:  "core",
		Flags:  kv.FlagPersistent,
		Scalar: encodeU64(gen),
	}, nil); err != nil {
		return siderr.Wrap("bridge.loadOrInitGenerations", err)
	}

	prevBoot := ""
	if rec, ok := b.Store.Peek(coreBootKey); ok {
		prevBoot = string(rec.Scalar)
	}
	b.bootID = fmt.Sprintf("boot-%d-%d", os.Getpid(), time.Now().UnixNano())
	if _, err := b.Store.Set(coreBootKey, &kv.Record{
		Kind:   kv.KindScalar,
		Owner:  "core",
		Flags:  kv.FlagPersistent,
		Scalar: []byte(b.bootID),
	}, nil); err != nil {
		return siderr.Wrap("bridge.loadOrInitGenerations", err)
	}
	if prevBoot != "" {
		b.log.Info("previous boot id recorded", "previous", prevBoot, "current", b.bootID)
	}
	return nil
}

// DBGen returns the current boot's generation counter.
func (b *Bridge) DBGen() uint64 { return b.dbGen }

// BootID returns the current boot's sentinel string.
func (b *Bridge) BootID() string { return b.bootID }

// Checkpoint writes the authoritative store's PERSISTENT subset to the
// configured snapshot path (spec.md §6.3, the CHECKPOINT command of
// SPEC_FULL.md §C.4).
func (b *Bridge) Checkpoint() error {
	f, err := os.Create(b.Config.SnapshotPath)
	if err != nil {
		return siderr.Wrap("bridge.Checkpoint", err)
	}
	defer f.Close()
	if err := b.Store.WriteSnapshot(f); err != nil {
		return siderr.Wrap("bridge.Checkpoint", err)
	}
	b.log.Info("checkpoint written", "path", b.Config.SnapshotPath)
	return nil
}

// Close tears down every resource registered in the tree, children
// first (spec.md §5).
func (b *Bridge) Close() error {
	return b.Tree.Shutdown()
}

func encodeU64(v uint64) []byte {
	buf := make([]byte, 8)
	for i := 0; i < 8; i++ {
		buf[i] = byte(v >> (8 * i))
	}
	return buf
}

func decodeU64(buf []byte) (uint64, error) {
	if len(buf) != 8 {
		return 0, siderr.New("bridge.decodeU64", siderr.KindInternal, "malformed uint64")
	}
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(buf[i]) << (8 * i)
	}
	return v, nil
}
