// Package cache stores mapped expression blocks and their metrics on disk so
// that cooperating processes synthesize every distinct block once.
//
// A cache directory holds an append-only index file and two netlists per
// slot. Every mutation happens under an exclusive flock on the index; the
// in-memory maps are snapshots of the index and never authoritative across
// processes.
package cache

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/benbjohnson/immutable"
	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"exprsynth/internal/config"
	"exprsynth/internal/ir"
	"exprsynth/internal/metrics"
	"exprsynth/internal/pipeline"
)

// ErrIntegrity marks an index that contradicts itself or the artifacts on
// disk.
var ErrIntegrity = errors.New("cache: integrity violation")

// TechEnv names the environment variable holding the technology name.
const TechEnv = "ACT_TECH"

// Expr is one expression block to look up: the expression below Root, its
// signal bindings and the width of its single output.
type Expr struct {
	Arena  *ir.Arena
	Root   ir.NodeID
	Leaves ir.LeafMap
	Width  int
}

// UniqueID derives the cache key of x from its canonical text, the width of
// every distinct signal in first-occurrence order and the output width.
func UniqueID(x *Expr) (string, error) {
	widths, err := ir.SignalWidths(x.Arena, x.Root, x.Leaves)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	sb.WriteString(ir.CanonicalText(x.Arena, x.Root))
	for _, w := range widths {
		sb.WriteString("_" + strconv.Itoa(w))
	}
	sb.WriteString("_" + strconv.Itoa(x.Width))
	return sb.String(), nil
}

// ModuleName is the name of the module cached under id. Its ports are
// in_<k> for the k-th distinct signal and out.
func ModuleName(id string) string {
	return fmt.Sprintf("blk_%016x", xxhash.Sum64String(id))
}

// Dir returns <root>/<technology>/<backend>, the root taken from the local
// cache setting or else the global one.
func Dir(cfg *config.Store, backendName string) (string, error) {
	root, ok := cfg.Path(config.CacheLocal)
	if !ok {
		if root, ok = cfg.Path(config.CacheGlobal); !ok {
			return "", errors.Wrapf(config.ErrMissing, "cache: neither %s nor %s is set", config.CacheLocal, config.CacheGlobal)
		}
	}
	tech := os.Getenv(TechEnv)
	if tech == "" {
		return "", errors.Wrapf(config.ErrMissing, "cache: %s is not set", TechEnv)
	}
	return filepath.Join(root, tech, backendName), nil
}

// Options configures Open.
type Options struct {
	// Invalidate removes the index and every artifact before use.
	Invalidate bool
	// Emit translates every block into the synthesizer's output stream the
	// first time it is requested in this process.
	Emit bool
}

// Cache is an open cache directory.
type Cache struct {
	dir   string
	index string
	synth *pipeline.Synthesizer
	emit  bool

	mu sync.Mutex
	// ids maps unique IDs to slots, slots maps slots to entries.
	ids     *immutable.Map
	slots   *immutable.SortedMap
	counter int
	// authored holds the entries this process added to the index.
	authored map[string]Entry
	emitted  map[string]bool
	closed   bool
}

// Open opens or creates the cache in dir and loads its index. synth may be
// nil for read-only use.
func Open(dir string, synth *pipeline.Synthesizer, opts Options) (*Cache, error) {
	c := &Cache{
		dir:      dir,
		index:    filepath.Join(dir, IndexFile),
		synth:    synth,
		emit:     opts.Emit,
		ids:      immutable.NewMap(stringHasher{}),
		slots:    immutable.NewSortedMap(intComparer{}),
		authored: make(map[string]Entry),
		emitted:  make(map[string]bool),
	}
	if opts.Invalidate {
		if err := c.invalidate(); err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(dir, 0o775); err != nil {
		return nil, errors.Wrap(err, "cache: create directory")
	}
	if err := c.createIndex(); err != nil {
		return nil, err
	}
	lock, err := lockFile(c.index)
	if err != nil {
		return nil, err
	}
	defer lock.Unlock()
	return c, c.reload(lock.File())
}

// Path returns the cache directory.
func (c *Cache) Path() string {
	return c.dir
}

func (c *Cache) invalidate() error {
	artifacts, err := filepath.Glob(filepath.Join(c.dir, "*.v"))
	if err != nil {
		return errors.Wrap(err, "cache: invalidate")
	}
	for _, path := range append(artifacts, c.index) {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return errors.Wrap(err, "cache: invalidate")
		}
	}
	log.Infof("cache: invalidated %s", c.dir)
	return nil
}

// createIndex writes the header of a missing index. The existence check is
// repeated under the lock since the lock itself creates the file.
func (c *Cache) createIndex() error {
	if _, err := os.Stat(c.index); err == nil {
		return nil
	}
	lock, err := lockFile(c.index)
	if err != nil {
		return err
	}
	defer lock.Unlock()
	st, err := lock.File().Stat()
	if err != nil {
		return errors.Wrap(err, "cache: stat index")
	}
	if st.Size() == 0 {
		if _, err := io.WriteString(lock.File(), indexHeader); err != nil {
			return errors.Wrap(err, "cache: write index header")
		}
	}
	return addGroupRW(c.index)
}

// reload replaces the in-memory snapshot with the index read from f. Every
// slot must have both artifacts.
func (c *Cache) reload(f *os.File) error {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return errors.Wrap(err, "cache: rewind index")
	}
	entries, err := ReadIndex(f)
	if err != nil {
		return errors.Wrapf(err, "cache: %s", c.index)
	}
	ids := immutable.NewMap(stringHasher{})
	slots := immutable.NewSortedMap(intComparer{})
	for _, e := range entries {
		if _, dup := ids.Get(e.ID); dup {
			return errors.Wrapf(ErrIntegrity, "duplicate expression %s in %s", e.ID, c.index)
		}
		if _, dup := slots.Get(e.Slot); dup {
			return errors.Wrapf(ErrIntegrity, "duplicate slot %d in %s", e.Slot, c.index)
		}
		c.resolve(&e)
		if err := checkArtifacts(e); err != nil {
			return err
		}
		ids = ids.Set(e.ID, e.Slot)
		slots = slots.Set(e.Slot, e)
	}
	c.ids, c.slots = ids, slots
	c.counter = len(entries)
	return nil
}

func (c *Cache) resolve(e *Entry) {
	e.Result.MappedFile = filepath.Join(c.dir, MappedName(e.Slot))
	e.Result.PreMapFile = filepath.Join(c.dir, PreMapName(e.Slot))
	e.Result.ID = e.ID
}

func checkArtifacts(e Entry) error {
	for _, path := range []string{e.Result.MappedFile, e.Result.PreMapFile} {
		if _, err := os.Stat(path); err != nil {
			return errors.Wrapf(ErrIntegrity, "slot %d of %s: %v", e.Slot, e.ID, err)
		}
	}
	return nil
}

func (c *Cache) lookup(id string) (Entry, bool) {
	slot, ok := c.ids.Get(id)
	if !ok {
		return Entry{}, false
	}
	e, ok := c.slots.Get(slot)
	if !ok {
		return Entry{}, false
	}
	return e.(Entry), true
}

// Lookup returns the entry cached under id, if any.
func (c *Cache) Lookup(id string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lookup(id)
}

// Entries returns every known entry ordered by slot.
func (c *Cache) Entries() []Entry {
	c.mu.Lock()
	slots := c.slots
	c.mu.Unlock()
	out := make([]Entry, 0, slots.Len())
	itr := slots.Iterator()
	for !itr.Done() {
		_, v := itr.Next()
		out = append(out, v.(Entry))
	}
	return out
}

// Verify re-reads the index under its lock and checks every artifact.
func (c *Cache) Verify() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, err := lockFile(c.index)
	if err != nil {
		return err
	}
	defer lock.Unlock()
	return c.reload(lock.File())
}

// GetOrSynthesize returns the cached entry of x, synthesizing and recording
// it on a miss.
func (c *Cache) GetOrSynthesize(ctx context.Context, x *Expr) (Entry, error) {
	id, err := UniqueID(x)
	if err != nil {
		return Entry{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return Entry{}, errors.New("cache: closed")
	}

	e, ok := c.lookup(id)
	if ok {
		if err := checkArtifacts(e); err != nil {
			return Entry{}, err
		}
		log.Debugf("cache: hit %s in slot %d", id, e.Slot)
	} else if e, err = c.synthesize(ctx, id, x); err != nil {
		return Entry{}, err
	}

	if c.emit && !c.emitted[id] {
		if err := c.emitEntry(ctx, e); err != nil {
			return Entry{}, err
		}
		c.emitted[id] = true
	}
	return e, nil
}

// synthesize handles a miss. The index lock is held from the re-read until
// the new line is on disk, so at most one process synthesizes a given ID.
func (c *Cache) synthesize(ctx context.Context, id string, x *Expr) (Entry, error) {
	if c.synth == nil {
		return Entry{}, errors.Errorf("cache: %s is not cached and no synthesizer is configured", id)
	}
	lock, err := lockFile(c.index)
	if err != nil {
		return Entry{}, err
	}
	defer lock.Unlock()

	if err := c.reload(lock.File()); err != nil {
		return Entry{}, err
	}
	if e, ok := c.lookup(id); ok {
		log.Debugf("cache: %s was added by another process", id)
		return e, nil
	}

	req, err := canonicalRequest(ModuleName(id), x)
	if err != nil {
		return Entry{}, err
	}
	log.Infof("cache: synthesizing %s", id)
	out, err := c.synth.Synthesize(ctx, req)
	if err != nil {
		return Entry{}, err
	}
	defer out.Cleanup()

	e := Entry{ID: id, Slot: c.nextSlot(), Result: out.Result}
	c.resolve(&e)
	if err := storeArtifacts(out.Result, e.Result); err != nil {
		return Entry{}, err
	}
	if err := appendLine(lock.File(), e); err != nil {
		return Entry{}, err
	}
	c.ids = c.ids.Set(id, e.Slot)
	c.slots = c.slots.Set(e.Slot, e)
	c.authored[id] = e
	return e, nil
}

// nextSlot probes upward from the counter until both artifact names are
// free.
func (c *Cache) nextSlot() int {
	for {
		slot := c.counter
		c.counter++
		_, errMapped := os.Stat(filepath.Join(c.dir, MappedName(slot)))
		_, errPre := os.Stat(filepath.Join(c.dir, PreMapName(slot)))
		if os.IsNotExist(errMapped) && os.IsNotExist(errPre) {
			return slot
		}
	}
}

// storeArtifacts copies the work netlists of src into the slot files of
// dst, holding a lock on both destinations across both copies.
func storeArtifacts(src, dst metrics.Result) error {
	mapped, err := lockFile(dst.MappedFile)
	if err != nil {
		return err
	}
	defer mapped.Unlock()
	pre, err := lockFile(dst.PreMapFile)
	if err != nil {
		return err
	}
	defer pre.Unlock()
	if err := copyInto(mapped.File(), src.MappedFile); err != nil {
		return err
	}
	if err := copyInto(pre.File(), src.PreMapFile); err != nil {
		return err
	}
	if err := addGroupRW(dst.MappedFile); err != nil {
		return err
	}
	return addGroupRW(dst.PreMapFile)
}

func copyInto(dst *os.File, src string) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.Wrap(err, "cache: open netlist")
	}
	defer in.Close()
	if err := dst.Truncate(0); err != nil {
		return errors.Wrapf(err, "cache: truncate %s", dst.Name())
	}
	if _, err := io.Copy(dst, in); err != nil {
		return errors.Wrapf(err, "cache: copy %s", src)
	}
	return errors.Wrapf(dst.Sync(), "cache: sync %s", dst.Name())
}

func appendLine(index *os.File, e Entry) error {
	if _, err := index.Seek(0, io.SeekEnd); err != nil {
		return errors.Wrap(err, "cache: seek index")
	}
	if _, err := io.WriteString(index, FormatEntry(e)+"\n"); err != nil {
		return errors.Wrap(err, "cache: append index")
	}
	return errors.Wrap(index.Sync(), "cache: sync index")
}

func addGroupRW(path string) error {
	st, err := os.Stat(path)
	if err != nil {
		return errors.Wrap(err, "cache: stat")
	}
	return errors.Wrap(os.Chmod(path, st.Mode().Perm()|0o660), "cache: chmod")
}

func (c *Cache) emitEntry(ctx context.Context, e Entry) error {
	if c.synth == nil {
		return errors.New("cache: no synthesizer to emit with")
	}
	lock, err := lockFile(e.Result.MappedFile)
	if err != nil {
		return err
	}
	defer lock.Unlock()
	return c.synth.Emit(ctx, e.Result.MappedFile)
}

// canonicalRequest renames the signals of x to in_<k> so that every block
// with the same unique ID yields the same module. Constant mappings are
// dropped since the unique ID records literal values.
func canonicalRequest(name string, x *Expr) (*pipeline.Request, error) {
	index := make(map[string]int)
	for i, n := range x.Arena.SignalNames(x.Root) {
		index[n] = i
	}
	// Only signals are carried over. A constant mapped to a wire is compiled
	// as its literal value, matching the key, which has no constant mappings.
	leaves := make(ir.LeafMap)
	for _, id := range x.Arena.Signals(x.Root) {
		leaf, ok := x.Leaves[id]
		if !ok {
			return nil, errors.Wrapf(ir.ErrSemantic, "node n%d has no leaf mapping", id)
		}
		k := index[x.Arena.Node(id).Name]
		leaves[id] = ir.Leaf{Name: "in_" + strconv.Itoa(k), Width: leaf.Width}
	}
	return pipeline.Single(name, x.Arena, x.Root, leaves, x.Width)
}

// Close appends the entries this process authored that are missing from
// the current index, which happens when another process rewrote it in the
// meantime.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if len(c.authored) == 0 {
		return nil
	}
	lock, err := lockFile(c.index)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	if err := c.reload(lock.File()); err != nil {
		return err
	}
	ids := make([]string, 0, len(c.authored))
	for id := range c.authored {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if _, ok := c.ids.Get(id); ok {
			continue
		}
		e := c.authored[id]
		if _, taken := c.slots.Get(e.Slot); taken {
			log.Warnf("cache: slot %d of %s was reused, dropping the entry", e.Slot, id)
			continue
		}
		if err := checkArtifacts(e); err != nil {
			log.Warnf("cache: not restoring %s: %v", id, err)
			continue
		}
		if err := appendLine(lock.File(), e); err != nil {
			return err
		}
		c.ids = c.ids.Set(id, e.Slot)
		c.slots = c.slots.Set(e.Slot, e)
		log.Debugf("cache: restored %s in slot %d", id, e.Slot)
	}
	return nil
}

// stringHasher hashes unique IDs. Implements immutable.Hasher.
type stringHasher struct{}

func (stringHasher) Hash(key interface{}) uint32 {
	h := xxhash.Sum64String(key.(string))
	return uint32(h ^ h>>32)
}

func (stringHasher) Equal(a, b interface{}) bool {
	return a.(string) == b.(string)
}

// intComparer orders slots. Implements immutable.Comparer.
type intComparer struct{}

func (intComparer) Compare(a, b interface{}) int {
	if i, j := a.(int), b.(int); i < j {
		return -1
	} else if i > j {
		return 1
	}
	return 0
}
