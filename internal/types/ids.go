package types

// FileID identifies a row in the Files table. Assigned by storage on first
// observation of a path; stable for the lifetime of that path.
type FileID int64

// ContextID identifies a row in the Contexts table.
type ContextID int64

// EpochID is the monotonic counter published by the Epoch Manager. Readers
// that observe EpochID E see a fully committed write set for E.
type EpochID uint64

// LanguageFamily tags a coherent parsing/resolution domain (python, go,
// javascript, ...). Values come from the language registry's static table.
type LanguageFamily string

// RefTier is the confidence ladder a RefFact climbs as resolvers run.
// Passes never move a ref backward down this ladder.
type RefTier string

const (
	RefTierUnknown RefTier = "unknown"
	RefTierLexical RefTier = "lexical"
	RefTierStrong  RefTier = "strong"
	RefTierProven  RefTier = "proven"
)

// rank gives RefTier a total order for non-regression checks.
func (t RefTier) rank() int {
	switch t {
	case RefTierLexical:
		return 1
	case RefTierStrong:
		return 2
	case RefTierProven:
		return 3
	default:
		return 0
	}
}

// AtLeast reports whether t is at or above other on the confidence ladder.
func (t RefTier) AtLeast(other RefTier) bool {
	return t.rank() >= other.rank()
}

// Certainty marks whether a fact's resolution should be trusted without
// corroboration.
type Certainty string

const (
	CertaintyUncertain Certainty = "uncertain"
	CertaintyCertain   Certainty = "certain"
)

// RefRole is the grammatical role a token plays at a reference site.
type RefRole string

const (
	RefRoleCall       RefRole = "call"
	RefRoleRead       RefRole = "read"
	RefRoleWrite      RefRole = "write"
	RefRoleInherit    RefRole = "inherit"
	RefRoleTypeUsage  RefRole = "type_usage"
	RefRoleDecorator  RefRole = "decorator"
	RefRoleImportName RefRole = "import_name"
)

// BindTargetKind is what a LocalBindFact's name resolves to within its scope.
type BindTargetKind string

const (
	BindTargetDef   BindTargetKind = "DEF"
	BindTargetImport BindTargetKind = "IMPORT"
	BindTargetParam BindTargetKind = "PARAM"
	BindTargetLocal BindTargetKind = "LOCAL"
)

// ImportKind distinguishes ordinary language imports from the config-file
// cross-reference edges the Pass 4 resolver emits.
type ImportKind string

const (
	ImportKindModule     ImportKind = "module"
	ImportKindNamed      ImportKind = "named"
	ImportKindWildcard   ImportKind = "wildcard"
	ImportKindRelative   ImportKind = "relative"
	ImportKindConfigFile ImportKind = "config_file_ref"
)

// ScopeKind enumerates the nesting levels scope-aware read can target.
type ScopeKind string

const (
	ScopeKindFile          ScopeKind = "file"
	ScopeKindClass         ScopeKind = "class"
	ScopeKindFunction      ScopeKind = "function"
	ScopeKindLambda        ScopeKind = "lambda"
	ScopeKindBlock         ScopeKind = "block"
	ScopeKindComprehension ScopeKind = "comprehension"
)

// TypeMemberKind classifies a member captured in the type-member index used
// by the type-traced resolver.
type TypeMemberKind string

const (
	MemberKindField       TypeMemberKind = "field"
	MemberKindMethod      TypeMemberKind = "method"
	MemberKindStaticMethod TypeMemberKind = "static_method"
	MemberKindClassMethod TypeMemberKind = "class_method"
)

// ResolutionMethod records how a MemberAccessFact reached its current
// final_target_def_uid, for confidence reporting.
type ResolutionMethod string

const (
	ResolutionNone        ResolutionMethod = "none"
	ResolutionTypeTraced  ResolutionMethod = "type_traced"
	ResolutionImportedRef ResolutionMethod = "imported_ref"
	ResolutionLexical     ResolutionMethod = "lexical"
)

// DefKind is the definition category a structural extractor can emit.
// Kept deliberately coarse; per-language nuance (struct vs class vs record)
// collapses into the nearest of these at extraction time.
type DefKind string

const (
	DefKindFunction  DefKind = "function"
	DefKindMethod    DefKind = "method"
	DefKindClass     DefKind = "class"
	DefKindInterface DefKind = "interface"
	DefKindStruct    DefKind = "struct"
	DefKindVariable  DefKind = "variable"
	DefKindConstant  DefKind = "constant"
	DefKindType      DefKind = "type"
	DefKindEnum      DefKind = "enum"
	DefKindModule    DefKind = "module"
)
