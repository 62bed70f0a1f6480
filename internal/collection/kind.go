package collection

// Kind distinguishes the two container shapes a catalog element can declare.
type Kind int

const (
	KindHash Kind = iota
	KindList
)

// IndexType controls key parsing for Hash collections. List indices are
// always integers.
type IndexType int

const (
	IndexString IndexType = iota
	IndexInteger
)

// DataMode records which load phase created or last touched an entry,
// mirroring the Instance-wide mode stack (spec.md §4.2, §5). Kept as its own
// type rather than reusing value.Mode: a collection entry's mode is a fact
// about the entry, not a directive for the next store the way value.Mode is.
type DataMode int

const (
	DataModeNormal DataMode = iota
	DataModePreset
	DataModeLayered
)

// DuplicatePolicy governs check_content's built-in duplicate checker.
type DuplicatePolicy int

const (
	DuplicatesAllow DuplicatePolicy = iota
	DuplicatesForbid
	DuplicatesSuppress
	DuplicatesWarn
)
