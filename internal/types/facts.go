package types

// DefFact is one visible definition extracted from a file: a function,
// method, class, type, or top-level variable/constant. DefUID is a stable
// content-addressed hash (see internal/idcodec.DefUID) so the same
// definition keeps its identity across re-extractions that don't change
// its path, kind, or qualified name.
type DefFact struct {
	DefUID        string  `json:"def_uid"`
	FileID        FileID  `json:"file_id"`
	UnitID        ContextID `json:"unit_id"` // owning context at extraction time
	Kind          DefKind `json:"kind"`
	Name          string  `json:"name"`
	LexicalPath   string  `json:"lexical_path"` // dotted path within the file, e.g. "Outer.Inner.method"
	Span          Span    `json:"span"`
	Docstring     *string `json:"docstring,omitempty"`
}

// RefFact is one token occurrence the extractor believed referenced a
// definition. RefTier and TargetDefUID are upgraded in place by later
// resolver passes; they never regress to a lower tier.
type RefFact struct {
	FileID       FileID   `json:"file_id"`
	TokenText    string   `json:"token_text"`
	Span         Span     `json:"span"`
	Role         RefRole  `json:"role"`
	RefTier      RefTier  `json:"ref_tier"`
	Certainty    Certainty `json:"certainty"`
	TargetDefUID *string  `json:"target_def_uid,omitempty"`
}

// Promote upgrades the fact to tier if tier ranks above the current one,
// per the resolution-ordering non-regression invariant. Returns whether a
// change was made.
func (r *RefFact) Promote(tier RefTier, targetDefUID string, certainty Certainty) bool {
	if tier.rank() <= r.RefTier.rank() {
		return false
	}
	r.RefTier = tier
	r.Certainty = certainty
	if targetDefUID != "" {
		r.TargetDefUID = &targetDefUID
	}
	return true
}

// LocalBindFact is a scope-local name binding seen by the extractor: what a
// bare identifier would resolve to if referenced at this point in the file.
type LocalBindFact struct {
	FileID     FileID         `json:"file_id"`
	Name       string         `json:"name"`
	TargetKind BindTargetKind `json:"target_kind"`
	TargetUID  string         `json:"target_uid"` // a DefUID or ImportUID depending on TargetKind
}

// ImportFact is an edge from a file to another module. ResolvedPath is
// populated once the source literal deterministically maps to an indexed
// file; until then the import is a dangling lexical hint.
type ImportFact struct {
	ImportUID     string     `json:"import_uid"`
	FileID        FileID     `json:"file_id"`
	UnitID        ContextID  `json:"unit_id"`
	ImportedName  string     `json:"imported_name"`
	Alias         *string    `json:"alias,omitempty"`
	SourceLiteral string     `json:"source_literal"`
	ResolvedPath  *string    `json:"resolved_path,omitempty"`
	Kind          ImportKind `json:"import_kind"`
	Certainty     Certainty  `json:"certainty"`
	Span          Span       `json:"span"`
}

// ScopeFact is one lexical scope used by scope-aware read and by the
// extractor's own binding resolution.
type ScopeFact struct {
	FileID   FileID     `json:"file_id"`
	Kind     ScopeKind  `json:"kind"`
	Span     Span       `json:"span"`
	ParentID *int64     `json:"parent,omitempty"` // row id of the enclosing ScopeFact, nil at file scope
}

// TypeAnnotationFact records the declared type of a local, parameter, or
// field, as written (or inferred) at the declaration site.
type TypeAnnotationFact struct {
	FileID     FileID  `json:"file_id"`
	ScopeID    *int64  `json:"scope_id,omitempty"`
	TargetName string  `json:"target_name"`
	BaseType   string  `json:"base_type"`
}

// TypeMemberFact is one entry in the global {(parent_type, member_name) →
// member} index the type-traced resolver walks.
type TypeMemberFact struct {
	ParentTypeName string         `json:"parent_type_name"`
	MemberName     string         `json:"member_name"`
	MemberKind     TypeMemberKind `json:"member_kind"`
	MemberDefUID   string         `json:"member_def_uid"`
	BaseType       *string        `json:"base_type,omitempty"` // for field members, the field's own declared type
}

// MemberAccessFact is one `receiver.a.b.c`-shaped access site. The
// type-traced resolver walks MemberChain segment by segment through the
// TypeMemberFact index, advancing ResolvedTypePath as it goes.
type MemberAccessFact struct {
	FileID                FileID           `json:"file_id"`
	ScopeID               *int64           `json:"scope_id,omitempty"`
	ReceiverName          string           `json:"receiver_name"`
	ReceiverDeclaredType  *string          `json:"receiver_declared_type,omitempty"`
	MemberChain           string           `json:"member_chain"` // dot-joined, e.g. "a.b.c"
	Span                  Span             `json:"span"`
	ResolvedTypePath       *string          `json:"resolved_type_path,omitempty"`
	FinalTargetDefUID     *string          `json:"final_target_def_uid,omitempty"`
	ResolutionMethod      ResolutionMethod `json:"resolution_method"`
	ResolutionConfidence  float64          `json:"resolution_confidence"` // 0..1
}
