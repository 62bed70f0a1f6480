package value

// Mode mirrors the Instance-wide load mode that governs which slot a store
// writes to and whether a change is logged (spec.md §3, §5).
type Mode int

const (
	ModeNormal Mode = iota
	ModePreset
	ModeLayered
	ModeInitialLoad
)

// CheckMode controls how a failed validation is handled on store, per
// spec.md §4.1's store protocol step 3.
type CheckMode int

const (
	CheckYes CheckMode = iota
	CheckSkip
	CheckNo
)

// FetchMode selects which precedence chain Fetch reads through.
type FetchMode int

const (
	FetchBackend FetchMode = iota
	FetchUser
	FetchCustom
	FetchStandard
	FetchPreset
	FetchDefault
	FetchUpstreamDefault
	FetchLayered
	FetchNonUpstreamDefault
	FetchAllowUndef
)
