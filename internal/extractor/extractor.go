// Package extractor is the Structural Extractor (spec §4.5): it turns one
// file's tree-sitter captures into the fact rows the rest of the pipeline
// resolves and serves. It knows the tsparser capture vocabulary but nothing
// about SQL or the Epoch Manager — those are internal/storage's and
// internal/epoch's jobs.
package extractor

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/codeplane-dev/codeplane/internal/idcodec"
	"github.com/codeplane-dev/codeplane/internal/tsparser"
	"github.com/codeplane-dev/codeplane/internal/types"
)

// defKindByCapture maps a def.<kind> capture suffix to a DefKind. Keys match
// the vocabulary fixed in tsparser/grammars.go.
var defKindByCapture = map[string]types.DefKind{
	"function":  types.DefKindFunction,
	"method":    types.DefKindMethod,
	"class":     types.DefKindClass,
	"interface": types.DefKindInterface,
	"struct":    types.DefKindStruct,
	"enum":      types.DefKindEnum,
	"type":      types.DefKindType,
	"module":    types.DefKindModule,
	"field":     types.DefKindVariable,
}

var scopeKindByCapture = map[string]types.ScopeKind{
	"function": types.ScopeKindFunction,
	"class":    types.ScopeKindClass,
	"block":    types.ScopeKindBlock,
}

// FileResult is everything one ExtractFile call produces. Scope-valued
// fields (ScopeFact.ParentID, TypeAnnotationFact.ScopeID,
// MemberAccessFact.ScopeID) hold a 1-based ordinal into Scopes, not a real
// storage row id: the orchestrator resolves ordinals to row ids once
// BulkWriter.InsertManyReturningIDs reports the ids this file's scopes were
// actually assigned.
type FileResult struct {
	FileID          types.FileID
	ContentHash     string
	InterfaceHash   string
	Parsed          bool // false for files with no tree-sitter grammar (lexical-only)
	Defs            []types.DefFact
	Scopes          []types.ScopeFact
	Binds           []types.LocalBindFact
	Imports         []types.ImportFact
	Refs            []types.RefFact
	TypeAnnotations []types.TypeAnnotationFact
	TypeMembers     []types.TypeMemberFact
	MemberAccesses  []types.MemberAccessFact
}

// Extractor runs the per-file extraction pass, sharing a Parser and
// ParseCache across every worker in the orchestrator's pool.
type Extractor struct {
	parser *tsparser.Parser
	cache  *tsparser.ParseCache
}

// New builds an Extractor over a shared Parser and ParseCache.
func New(parser *tsparser.Parser, cache *tsparser.ParseCache) *Extractor {
	return &Extractor{parser: parser, cache: cache}
}

// ExtractFile reads nothing itself: the caller (the background indexer)
// reads the bytes. ExtractFile hashes content first, so the result carries
// a content_hash even for a family with no grammar, which comes back
// unparsed with a nil error. Otherwise it parses, runs family's combined
// query, and emits every fact kind spec §4.5 names.
func (e *Extractor) ExtractFile(fileID types.FileID, unitID types.ContextID, relPath string, family types.LanguageFamily, content []byte) (*FileResult, error) {
	sum := sha256.Sum256(content)
	result := &FileResult{
		FileID:      fileID,
		ContentHash: hex.EncodeToString(sum[:]),
	}

	if !tsparser.HasGrammar(family) {
		return result, nil
	}

	tree, err := e.parser.ParseCached(e.cache, family, content)
	if err != nil {
		return nil, fmt.Errorf("extractor: parse %s: %w", relPath, err)
	}

	matches, err := e.parser.Matches(family, tree, content)
	if err != nil {
		return nil, fmt.Errorf("extractor: query %s: %w", relPath, err)
	}

	result.Parsed = true
	b := newFileBuilder(fileID, unitID, relPath, content)
	for _, m := range matches {
		b.handleMatch(m)
	}

	result.Defs = b.defs
	result.Scopes = b.scopes
	result.Binds = b.binds
	result.Imports = b.imports
	result.Refs = b.refs
	result.TypeAnnotations = b.typeAnnotations
	result.TypeMembers = b.typeMembers
	result.MemberAccesses = b.memberAccesses
	result.InterfaceHash = interfaceHash(b.defs)
	return result, nil
}

// defCandidate is one def.* match before lexical-path resolution: the whole
// definition's span (for nesting/containment) and its name.
type defCandidate struct {
	kind types.DefKind
	name string
	span types.Span
}

type fileBuilder struct {
	fileID  types.FileID
	unitID  types.ContextID
	relPath string
	content []byte

	defCandidates []defCandidate
	scopeSpans    []types.Span // parallel to scopes, for containment lookup

	defs            []types.DefFact
	scopes          []types.ScopeFact
	binds           []types.LocalBindFact
	imports         []types.ImportFact
	refs            []types.RefFact
	typeAnnotations []types.TypeAnnotationFact
	typeMembers     []types.TypeMemberFact
	memberAccesses  []types.MemberAccessFact

	localDefs    map[string]string // name -> def_uid, same-file only
	localImports map[string]bool   // imported name or alias bound in this file
}

func newFileBuilder(fileID types.FileID, unitID types.ContextID, relPath string, content []byte) *fileBuilder {
	return &fileBuilder{
		fileID:       fileID,
		unitID:       unitID,
		relPath:      relPath,
		content:      content,
		localDefs:    make(map[string]string),
		localImports: make(map[string]bool),
	}
}

func (b *fileBuilder) text(n tree_sitter.Node) string {
	return string(b.content[n.StartByte():n.EndByte()])
}

func (b *fileBuilder) span(n tree_sitter.Node) types.Span {
	start := n.StartPosition()
	end := n.EndPosition()
	return types.Span{
		StartLine: int(start.Row) + 1,
		StartCol:  int(start.Column) + 1,
		EndLine:   int(end.Row) + 1,
		EndCol:    int(end.Column) + 1,
	}
}

// handleMatch dispatches on the top-level capture of one query match: the
// vocabulary guarantees exactly one of def.<kind>/scope.<kind>/import/
// member/ref.call.name/typeannotation.type owns each match (see
// tsparser/grammars.go).
func (b *fileBuilder) handleMatch(m tsparser.Match) {
	for _, c := range m.Captures {
		switch {
		case c.Name == "import" || strings.HasPrefix(c.Name, "import."):
			b.handleImport(m)
			return
		case strings.HasPrefix(c.Name, "scope."):
			b.handleScope(c)
			return
		case c.Name == "member.local.name":
			b.handleLocalBind(c)
			return
		case strings.HasPrefix(c.Name, "member."):
			b.handleMember(m)
			return
		case c.Name == "ref.call.name":
			b.handleCallRef(c)
			return
		case c.Name == "typeannotation.type":
			b.handleTypeAnnotation(c)
			return
		case strings.HasPrefix(c.Name, "def."):
			b.handleDef(m)
			return
		}
	}
}

func (b *fileBuilder) handleDef(m tsparser.Match) {
	var whole *tree_sitter.Node
	var name string
	var kindCapture string
	var receiverText string
	for _, c := range m.Captures {
		if !strings.HasPrefix(c.Name, "def.") {
			continue
		}
		parts := strings.Split(c.Name, ".")
		if len(parts) == 2 {
			n := c.Node
			whole = &n
			kindCapture = parts[1]
		} else if len(parts) == 3 && parts[2] == "name" {
			name = b.text(c.Node)
		} else if len(parts) == 3 && parts[2] == "receiver" {
			receiverText = b.text(c.Node)
		}
	}
	if whole == nil || name == "" {
		return
	}
	kind, ok := defKindByCapture[kindCapture]
	if !ok {
		return
	}

	sp := b.span(*whole)
	b.defCandidates = append(b.defCandidates, defCandidate{kind: kind, name: name, span: sp})

	lexicalPath := b.lexicalPathFor(sp, name)
	if receiverText != "" {
		// Languages like Go attach a method to its type via an explicit
		// receiver clause rather than lexical nesting, so lexicalPathFor's
		// span-containment search finds no enclosing def. Fall back to the
		// receiver's type name so def_uid and the type-member index still
		// key on "Type.Method" instead of the bare method name.
		if recvType := receiverTypeName(receiverText); recvType != "" {
			lexicalPath = recvType + "." + name
		}
	}
	defUID := idcodec.DefUID(b.relPath, lexicalPath, string(kind))
	b.defs = append(b.defs, types.DefFact{
		DefUID:      defUID,
		FileID:      b.fileID,
		UnitID:      b.unitID,
		Kind:        kind,
		Name:        name,
		LexicalPath: lexicalPath,
		Span:        sp,
	})
	b.localDefs[name] = defUID
	b.binds = append(b.binds, types.LocalBindFact{
		FileID:     b.fileID,
		Name:       name,
		TargetKind: types.BindTargetDef,
		TargetUID:  defUID,
	})

	if kind == types.DefKindMethod {
		if i := strings.LastIndex(lexicalPath, "."); i >= 0 {
			b.typeMembers = append(b.typeMembers, types.TypeMemberFact{
				ParentTypeName: lexicalPath[:i],
				MemberName:     lexicalPath[i+1:],
				MemberKind:     types.MemberKindMethod,
				MemberDefUID:   defUID,
			})
		}
	}
}

// lexicalPathFor computes the dotted path of enclosing definitions whose
// span strictly contains sp, outermost first, joined with name.
func (b *fileBuilder) lexicalPathFor(sp types.Span, name string) string {
	var enclosing []defCandidate
	for _, d := range b.defCandidates {
		if d.span.StartLine <= sp.StartLine && d.span.EndLine >= sp.EndLine && d.span != sp {
			enclosing = append(enclosing, d)
		}
	}
	sort.Slice(enclosing, func(i, j int) bool {
		return enclosing[i].span.LineCount() > enclosing[j].span.LineCount()
	})
	parts := make([]string, 0, len(enclosing)+1)
	for _, d := range enclosing {
		parts = append(parts, d.name)
	}
	parts = append(parts, name)
	return strings.Join(parts, ".")
}

func (b *fileBuilder) handleScope(c tsparser.Capture) {
	kindCapture := strings.TrimPrefix(c.Name, "scope.")
	kind, ok := scopeKindByCapture[kindCapture]
	if !ok {
		return
	}
	sp := b.span(c.Node)

	// Parent is the tightest already-seen scope whose span contains sp.
	// Recorded as a 1-based ordinal; the orchestrator rewrites this to a
	// real scope_facts.id once the row is inserted.
	var parentOrdinal *int64
	bestLines := -1
	for i, existing := range b.scopeSpans {
		if existing.StartLine <= sp.StartLine && existing.EndLine >= sp.EndLine && existing != sp {
			lines := existing.LineCount()
			if bestLines == -1 || lines < bestLines {
				bestLines = lines
				ordinal := int64(i + 1)
				parentOrdinal = &ordinal
			}
		}
	}

	b.scopeSpans = append(b.scopeSpans, sp)
	b.scopes = append(b.scopes, types.ScopeFact{
		FileID:   b.fileID,
		Kind:     kind,
		Span:     sp,
		ParentID: parentOrdinal,
	})
}

func (b *fileBuilder) handleImport(m tsparser.Match) {
	var sourceLiteral string
	var whole tree_sitter.Node
	haveWhole := false
	for _, c := range m.Captures {
		if c.Name == "import" {
			whole = c.Node
			haveWhole = true
		}
		if c.Name == "import.source" {
			sourceLiteral = strings.Trim(b.text(c.Node), "\"'`")
			if !haveWhole {
				whole = c.Node
			}
		}
	}
	if sourceLiteral == "" {
		if haveWhole {
			sourceLiteral = b.text(whole)
		} else {
			return
		}
	}

	importedName := importedNameFromSource(sourceLiteral)
	importUID := idcodec.ImportUID(b.relPath, sourceLiteral)
	b.imports = append(b.imports, types.ImportFact{
		ImportUID:     importUID,
		FileID:        b.fileID,
		UnitID:        b.unitID,
		ImportedName:  importedName,
		SourceLiteral: sourceLiteral,
		Kind:          types.ImportKindModule,
		Certainty:     types.CertaintyUncertain,
		Span:          b.span(whole),
	})
	b.localImports[importedName] = true
	b.binds = append(b.binds, types.LocalBindFact{
		FileID:     b.fileID,
		Name:       importedName,
		TargetKind: types.BindTargetImport,
		TargetUID:  importUID,
	})
}

// receiverTypeName pulls the type name out of a Go-style receiver clause
// text, e.g. "(g Greeter)" or "(g *Greeter)" -> "Greeter".
func receiverTypeName(receiverText string) string {
	trimmed := strings.Trim(receiverText, "()")
	fields := strings.Fields(trimmed)
	if len(fields) == 0 {
		return ""
	}
	return strings.TrimPrefix(fields[len(fields)-1], "*")
}

func importedNameFromSource(source string) string {
	source = strings.TrimSuffix(source, "/")
	if i := strings.LastIndexAny(source, "./\\:"); i >= 0 && i < len(source)-1 {
		return source[i+1:]
	}
	return source
}

func (b *fileBuilder) handleMember(m tsparser.Match) {
	var receiver, member string
	var whole tree_sitter.Node
	for _, c := range m.Captures {
		switch {
		case c.Name == "member":
			whole = c.Node
		case c.Name == "member.receiver":
			receiver = b.text(c.Node)
		case c.Name == "member.name":
			member = b.text(c.Node)
		}
	}
	if receiver == "" || member == "" {
		return
	}

	b.refs = append(b.refs, b.buildRef(receiver, whole, types.RefRoleRead))
	b.memberAccesses = append(b.memberAccesses, types.MemberAccessFact{
		FileID:               b.fileID,
		ReceiverName:         receiver,
		MemberChain:          member,
		Span:                 b.span(whole),
		ResolutionMethod:     types.ResolutionNone,
		ResolutionConfidence: 0,
	})
}

// handleLocalBind records a plain local variable declaration (Go's
// short_var_declaration, `x := ...`) as a LocalBindFact so a later read of
// x in the same scope resolves locally instead of falling through to
// lexical guesswork.
func (b *fileBuilder) handleLocalBind(c tsparser.Capture) {
	name := b.text(c.Node)
	b.binds = append(b.binds, types.LocalBindFact{
		FileID:     b.fileID,
		Name:       name,
		TargetKind: types.BindTargetLocal,
		TargetUID:  "",
	})
}

func (b *fileBuilder) handleCallRef(c tsparser.Capture) {
	b.refs = append(b.refs, b.buildRef(b.text(c.Node), c.Node, types.RefRoleCall))
}

func (b *fileBuilder) handleTypeAnnotation(c tsparser.Capture) {
	b.typeAnnotations = append(b.typeAnnotations, types.TypeAnnotationFact{
		FileID:   b.fileID,
		BaseType: b.text(c.Node),
	})
}

// buildRef classifies a token occurrence against this file's own binds: a
// name bound to a same-file DEF is provably resolved already (proven); a
// name bound to an IMPORT needs the cross-file resolver to confirm the
// target but is at least known to come from somewhere named (strong);
// anything else is an unqualified guess (lexical).
func (b *fileBuilder) buildRef(name string, node tree_sitter.Node, role types.RefRole) types.RefFact {
	ref := types.RefFact{
		FileID:    b.fileID,
		TokenText: name,
		Span:      b.span(node),
		Role:      role,
		RefTier:   types.RefTierLexical,
		Certainty: types.CertaintyUncertain,
	}
	if defUID, ok := b.localDefs[name]; ok {
		ref.RefTier = types.RefTierProven
		ref.Certainty = types.CertaintyCertain
		ref.TargetDefUID = &defUID
	} else if b.localImports[name] {
		ref.RefTier = types.RefTierStrong
	}
	return ref
}

