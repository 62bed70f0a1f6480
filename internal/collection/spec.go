package collection

import "regexp"

// Cargo is the entry an IdCollection carries at each index: a leaf value or a
// nested node. Kept minimal so this package never imports internal/value or
// internal/node — the owning Node wires concrete cargo through Spec.NewCargo.
type Cargo interface {
	// HasData reports whether the entry carries user-visible content.
	HasData() bool
}

// KeyRegexRule is one entry of warn_if_key_match / warn_unless_key_match.
type KeyRegexRule struct {
	Label   string
	Pattern *regexp.Regexp
	Unless  bool
	Message string
}

// Resolver lets a collection reach the live key set of another collection,
// for follow_keys_from / allow_keys_from, without holding a tree reference.
type Resolver interface {
	LiveKeys(path string) ([]string, error)
}

// Spec is the full set of schema parameters recognized for a Hash or List
// element, matching spec.md §4.2's parameter table.
type Spec struct {
	Kind Kind

	IndexType IndexType // hash only
	MinIndex  *int64
	MaxIndex  *int64
	MaxNb     *int

	DefaultKeys     []string
	DefaultWithInit func(index string) error // mini-loader step per default key

	FollowKeysFrom      string
	AllowKeys           []string
	AllowKeysFrom       string
	AllowKeysMatching   *regexp.Regexp
	AutoCreateKeys      bool // hash
	AutoCreateIds       bool // list
	WarnIfKeyMatch      []KeyRegexRule
	WarnUnlessKeyMatch  []KeyRegexRule
	Duplicates          DuplicatePolicy
	MigrateKeysFrom     string
	MigrateValuesFrom   string
	Ordered             bool // hash
	Convert             string // "lc" | "uc" | ""
	WriteEmptyValue     bool // hash

	Resolver Resolver

	// NewCargo builds a fresh entry (autovivify), tagged with the DataMode the
	// owning Instance was in at creation time.
	NewCargo func(index string, mode DataMode) (Cargo, error)

	// ExtractValue extracts a comparable string from a cargo entry for the
	// duplicate checker. ok=false means "skip this entry" (e.g. a nested
	// Node has no single scalar to compare).
	ExtractValue func(Cargo) (value string, ok bool)

	// Notify is invoked after every successful mutation with a path suffix
	// identifying the affected index, per spec.md §4.2's change-event note.
	Notify func(pathSuffix string)
}
