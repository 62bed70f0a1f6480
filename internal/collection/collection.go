package collection

import (
	"sort"
	"strconv"
	"strings"

	"github.com/RoaringBitmap/roaring"
)

// IdCollection is a generic Hash or List container: an ordered mapping from
// index to cargo (spec.md §4.2). Cardinality tracking follows the teacher's
// roaring-bitmap indexing idiom (a fileToNodes/nodeIntID/intToNodeID triple in
// internal/graph/graph.go): every present index is interned to a dense uint32
// so check_idx's cardinality check is O(1) amortized instead of a map-len
// rescan plus a min/max walk.
type IdCollection struct {
	spec *Spec

	order   []string // display order; list order is authoritative for List
	entries map[string]Cargo
	modes   map[string]DataMode

	present  *roaring.Bitmap
	internID map[string]uint32
	nextID   uint32

	defaultsSeeded  bool
	migratedKeys    bool
}

// New builds an empty collection from a validated schema.
func New(spec *Spec) (*IdCollection, error) {
	if spec.Kind == KindList {
		spec.IndexType = IndexInteger
	}
	if spec.NewCargo == nil {
		return nil, modelErrf("collection spec requires NewCargo")
	}
	return &IdCollection{
		spec:     spec,
		entries:  make(map[string]Cargo),
		modes:    make(map[string]DataMode),
		present:  roaring.New(),
		internID: make(map[string]uint32),
	}, nil
}

func (c *IdCollection) notify(suffix string) {
	if c.spec.Notify != nil {
		c.spec.Notify(suffix)
	}
}

func (c *IdCollection) normalizeKey(k string) string {
	switch c.spec.Convert {
	case "lc":
		return strings.ToLower(k)
	case "uc":
		return strings.ToUpper(k)
	default:
		return k
	}
}

func (c *IdCollection) internID_(k string) uint32 {
	if id, ok := c.internID[k]; ok {
		return id
	}
	id := c.nextID
	c.nextID++
	c.internID[k] = id
	return id
}

// checkIdx implements spec.md §4.2's check_idx: type/bounds/whitelist/follow
// checks plus a cardinality check for an index about to be created. It never
// mutates the collection.
func (c *IdCollection) checkIdx(path, k string) (warnings []string, err error) {
	s := c.spec

	if s.Kind == KindList || s.IndexType == IndexInteger {
		n, convErr := strconv.ParseInt(k, 10, 64)
		if convErr != nil {
			return nil, wrongValuef(path, "index %q is not an integer", k)
		}
		if s.MinIndex != nil && n < *s.MinIndex {
			return nil, wrongValuef(path, "index %d is below min_index %d", n, *s.MinIndex)
		}
		if s.MaxIndex != nil && n > *s.MaxIndex {
			return nil, wrongValuef(path, "index %d is above max_index %d", n, *s.MaxIndex)
		}
	}

	if s.AllowKeysMatching != nil && !s.AllowKeysMatching.MatchString(k) {
		return nil, wrongValuef(path, "index %q does not match allow_keys_matching", k)
	}

	if len(s.AllowKeys) > 0 && !contains(s.AllowKeys, k) {
		return nil, wrongValuef(path, "index %q is not in allow_keys", k)
	}

	if s.AllowKeysFrom != "" && s.Resolver != nil {
		live, rerr := s.Resolver.LiveKeys(s.AllowKeysFrom)
		if rerr == nil && !contains(live, k) {
			return nil, wrongValuef(path, "index %q is not a live member of %s", k, s.AllowKeysFrom)
		}
	}

	if s.FollowKeysFrom != "" && s.Resolver != nil {
		live, rerr := s.Resolver.LiveKeys(s.FollowKeysFrom)
		if rerr == nil && !contains(live, k) {
			return nil, wrongValuef(path, "index %q is not a live member of %s", k, s.FollowKeysFrom)
		}
	}

	size := c.present.GetCardinality()
	if _, exists := c.entries[k]; !exists {
		size++
	}
	if s.MaxNb != nil && int(size) > *s.MaxNb {
		return nil, wrongValuef(path, "collection would exceed max_nb %d", *s.MaxNb)
	}

	for _, rule := range s.WarnIfKeyMatch {
		matched := rule.Pattern.MatchString(k)
		if matched != rule.Unless {
			warnings = append(warnings, rule.Message)
		}
	}
	for _, rule := range s.WarnUnlessKeyMatch {
		matched := rule.Pattern.MatchString(k)
		if matched == rule.Unless {
			warnings = append(warnings, rule.Message)
		}
	}

	return warnings, nil
}

// autovivify creates a new cargo entry at k, tagged with mode, and registers
// it in the order/index/bitmap bookkeeping. Callers must have already run
// checkIdx.
func (c *IdCollection) autovivify(k string, mode DataMode) (Cargo, error) {
	cargo, err := c.spec.NewCargo(k, mode)
	if err != nil {
		return nil, err
	}
	c.entries[k] = cargo
	c.modes[k] = mode
	c.order = append(c.order, k)
	c.present.Add(c.internID_(k))
	return cargo, nil
}

// Get fetches the cargo at k, autocreating it if the schema allows and it
// does not yet exist (spec.md §4.2's autovivify + auto_create_keys/ids).
func (c *IdCollection) Get(path, k string, mode DataMode) (Cargo, error) {
	k = c.normalizeKey(k)
	if cargo, ok := c.entries[k]; ok {
		return cargo, nil
	}

	autoCreate := c.spec.AutoCreateIds
	if c.spec.Kind == KindHash {
		autoCreate = c.spec.AutoCreateKeys
	}
	if c.spec.Kind == KindList {
		autoCreate = true // list indices are always writable through push/insert
	}
	if !autoCreate {
		return nil, unknownIDf(path, "index %q does not exist", k)
	}

	if _, err := c.checkIdx(path, k); err != nil {
		return nil, err
	}
	cargo, err := c.autovivify(k, mode)
	if err != nil {
		return nil, err
	}
	c.notify("{" + k + "}")
	return cargo, nil
}

// Peek returns the cargo at k without autocreating it.
func (c *IdCollection) Peek(k string) (Cargo, bool) {
	cargo, ok := c.entries[c.normalizeKey(k)]
	return cargo, ok
}

// Delete removes the entry at k. A no-op if it does not exist.
func (c *IdCollection) Delete(k string) {
	k = c.normalizeKey(k)
	if _, ok := c.entries[k]; !ok {
		return
	}
	delete(c.entries, k)
	delete(c.modes, k)
	if id, ok := c.internID[k]; ok {
		c.present.Remove(id)
	}
	newOrder := c.order[:0]
	for _, idx := range c.order {
		if idx != k {
			newOrder = append(newOrder, idx)
		}
	}
	c.order = newOrder
	c.notify("{" + k + "}")
}

// Clear removes every entry.
func (c *IdCollection) Clear() {
	c.entries = make(map[string]Cargo)
	c.modes = make(map[string]DataMode)
	c.order = nil
	c.present.Clear()
	c.notify("")
}

// Size returns the number of live entries.
func (c *IdCollection) Size() int {
	return len(c.entries)
}

// Kind reports whether this is a Hash or List collection.
func (c *IdCollection) Kind() Kind {
	return c.spec.Kind
}

// FindByValue returns the key of a live entry whose ExtractValue equals
// want, for callers implementing ensure() semantics (spec.md §4.2) without
// reaching into Cargo internals. ok is false if the schema has no
// ExtractValue (e.g. node cargo) or no entry matches.
func (c *IdCollection) FindByValue(want string) (key string, ok bool) {
	if c.spec.ExtractValue == nil {
		return "", false
	}
	for _, k := range c.order {
		if v, extracted := c.spec.ExtractValue(c.entries[k]); extracted && v == want {
			return k, true
		}
	}
	return "", false
}

// FetchAllIndexes returns the display order, seeding default_keys and running
// migrate_keys_from on first enumeration (spec.md §4.2's lazy default keys).
func (c *IdCollection) FetchAllIndexes(mode DataMode) ([]string, error) {
	if err := c.ensureDefaults(mode); err != nil {
		return nil, err
	}
	out := make([]string, len(c.order))
	copy(out, c.order)
	switch {
	case c.spec.Kind == KindList:
		sort.Slice(out, func(i, j int) bool {
			a, _ := strconv.Atoi(out[i])
			b, _ := strconv.Atoi(out[j])
			return a < b
		})
	case !c.spec.Ordered:
		sort.Strings(out)
	}
	return out, nil
}

func (c *IdCollection) ensureDefaults(mode DataMode) error {
	if c.defaultsSeeded {
		return nil
	}
	c.defaultsSeeded = true
	if len(c.entries) > 0 {
		return nil
	}
	for _, k := range c.spec.DefaultKeys {
		if _, err := c.Get("", k, mode); err != nil {
			return err
		}
		if c.spec.DefaultWithInit != nil {
			if err := c.spec.DefaultWithInit(k); err != nil {
				return err
			}
		}
	}
	return nil
}

// MigrateKeys runs migrate_keys_from once: every live key of the referenced
// collection is autovivified here, matching spec.md §4.2's "after initial
// load, evaluate migrate_keys_from once".
func (c *IdCollection) MigrateKeys(mode DataMode) error {
	if c.migratedKeys || c.spec.MigrateKeysFrom == "" || c.spec.Resolver == nil {
		return nil
	}
	c.migratedKeys = true
	keys, err := c.spec.Resolver.LiveKeys(c.spec.MigrateKeysFrom)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if _, err := c.Get("", k, mode); err != nil {
			return err
		}
	}
	return nil
}

// HasData reports whether the collection would produce any entries once
// lazy defaults are accounted for, without mutating it.
func (c *IdCollection) HasData() bool {
	if len(c.entries) > 0 {
		return true
	}
	return len(c.spec.DefaultKeys) > 0
}

// Move relocates the cargo at from to to, removing any existing entry at to.
func (c *IdCollection) Move(from, to string) error {
	from, to = c.normalizeKey(from), c.normalizeKey(to)
	cargo, ok := c.entries[from]
	if !ok {
		return unknownIDf("", "index %q does not exist", from)
	}
	mode := c.modes[from]
	c.Delete(to)
	c.Delete(from)
	c.entries[to] = cargo
	c.modes[to] = mode
	c.order = append(c.order, to)
	c.present.Add(c.internID_(to))
	c.notify("{" + to + "}")
	return nil
}

// Copy duplicates the cargo reference at from into to (a shallow alias; the
// caller is responsible for deep-copying cargo content when that matters).
func (c *IdCollection) Copy(from, to string) error {
	from, to = c.normalizeKey(from), c.normalizeKey(to)
	cargo, ok := c.entries[from]
	if !ok {
		return unknownIDf("", "index %q does not exist", from)
	}
	c.Delete(to)
	c.entries[to] = cargo
	c.modes[to] = c.modes[from]
	c.order = append(c.order, to)
	c.present.Add(c.internID_(to))
	c.notify("{" + to + "}")
	return nil
}

// listIndices returns the integer indices in current List order.
func (c *IdCollection) listIndices() []int {
	out := make([]int, 0, len(c.order))
	for _, k := range c.order {
		n, _ := strconv.Atoi(k)
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

// Push appends a new element at the end of a List, returning its index.
func (c *IdCollection) Push(mode DataMode) (string, Cargo, error) {
	if c.spec.Kind != KindList {
		return "", nil, modelErrf("push is a list-only operation")
	}
	next := 0
	if ids := c.listIndices(); len(ids) > 0 {
		next = ids[len(ids)-1] + 1
	}
	k := strconv.Itoa(next)
	if _, err := c.checkIdx("", k); err != nil {
		return "", nil, err
	}
	cargo, err := c.autovivify(k, mode)
	if err != nil {
		return "", nil, err
	}
	c.notify("{" + k + "}")
	return k, cargo, nil
}

// Unshift inserts a new element at the front of a List, shifting every
// existing element's index up by one.
func (c *IdCollection) Unshift(mode DataMode) (string, Cargo, error) {
	return c.InsertAt(0, mode)
}

// InsertAt inserts a new element at position idx in a List, shifting later
// elements up by one.
func (c *IdCollection) InsertAt(idx int, mode DataMode) (string, Cargo, error) {
	if c.spec.Kind != KindList {
		return "", nil, modelErrf("insert_at is a list-only operation")
	}
	ids := c.listIndices()
	for i := len(ids) - 1; i >= 0; i-- {
		if ids[i] < idx {
			break
		}
		oldKey, newKey := strconv.Itoa(ids[i]), strconv.Itoa(ids[i]+1)
		if err := c.renumber(oldKey, newKey); err != nil {
			return "", nil, err
		}
	}
	k := strconv.Itoa(idx)
	if _, err := c.checkIdx("", k); err != nil {
		return "", nil, err
	}
	cargo, err := c.autovivify(k, mode)
	if err != nil {
		return "", nil, err
	}
	c.notify("{" + k + "}")
	return k, cargo, nil
}

// InsertBefore inserts a new element immediately before the entry at anchor.
func (c *IdCollection) InsertBefore(anchor string, mode DataMode) (string, Cargo, error) {
	n, err := strconv.Atoi(anchor)
	if err != nil {
		return "", nil, wrongValuef("", "insert_before target %q is not a list index", anchor)
	}
	return c.InsertAt(n, mode)
}

func (c *IdCollection) renumber(oldKey, newKey string) error {
	cargo, ok := c.entries[oldKey]
	if !ok {
		return nil
	}
	mode := c.modes[oldKey]
	delete(c.entries, oldKey)
	delete(c.modes, oldKey)
	if id, ok := c.internID[oldKey]; ok {
		c.present.Remove(id)
	}
	c.entries[newKey] = cargo
	c.modes[newKey] = mode
	c.present.Add(c.internID_(newKey))
	for i, k := range c.order {
		if k == oldKey {
			c.order[i] = newKey
		}
	}
	return nil
}

// MoveUp swaps the element at idx with its predecessor in a List.
func (c *IdCollection) MoveUp(idx int) error {
	return c.Swap(idx, idx-1)
}

// MoveDown swaps the element at idx with its successor in a List.
func (c *IdCollection) MoveDown(idx int) error {
	return c.Swap(idx, idx+1)
}

// Swap exchanges the elements at indices a and b in a List.
func (c *IdCollection) Swap(a, b int) error {
	if c.spec.Kind != KindList {
		return modelErrf("swap is a list-only operation")
	}
	ak, bk := strconv.Itoa(a), strconv.Itoa(b)
	ca, aok := c.entries[ak]
	cb, bok := c.entries[bk]
	if !aok || !bok {
		return unknownIDf("", "swap requires both indices %d and %d to exist", a, b)
	}
	c.entries[ak], c.entries[bk] = cb, ca
	c.modes[ak], c.modes[bk] = c.modes[bk], c.modes[ak]
	c.notify("{" + ak + "}")
	c.notify("{" + bk + "}")
	return nil
}

// Sort reorders a List's underlying indices so iteration follows less, then
// renumbers entries to 0..n-1 in that order.
func (c *IdCollection) Sort(less func(a, b Cargo) bool) error {
	if c.spec.Kind != KindList {
		return modelErrf("sort is a list-only operation")
	}
	ids := c.listIndices()
	keys := make([]string, len(ids))
	for i, n := range ids {
		keys[i] = strconv.Itoa(n)
	}
	sort.SliceStable(keys, func(i, j int) bool {
		return less(c.entries[keys[i]], c.entries[keys[j]])
	})

	newEntries := make(map[string]Cargo, len(keys))
	newModes := make(map[string]DataMode, len(keys))
	newOrder := make([]string, len(keys))
	newBitmap := roaring.New()
	for i, oldKey := range keys {
		newKey := strconv.Itoa(i)
		newEntries[newKey] = c.entries[oldKey]
		newModes[newKey] = c.modes[oldKey]
		newOrder[i] = newKey
		newBitmap.Add(c.internID_(newKey))
	}
	c.entries, c.modes, c.order, c.present = newEntries, newModes, newOrder, newBitmap
	c.notify("")
	return nil
}

// Ensure returns the existing entry for which match reports true, or creates
// one via create if none matches (spec.md §4.2's ensure(v)).
func (c *IdCollection) Ensure(match func(Cargo) bool, create func() (string, DataMode)) (string, Cargo, error) {
	for _, k := range c.order {
		if match(c.entries[k]) {
			return k, c.entries[k], nil
		}
	}
	k, mode := create()
	if _, err := c.checkIdx("", k); err != nil {
		return "", nil, err
	}
	cargo, err := c.autovivify(k, mode)
	if err != nil {
		return "", nil, err
	}
	c.notify("{" + k + "}")
	return k, cargo, nil
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
