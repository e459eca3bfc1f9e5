package models

import "time"

type SymbolKind string

const (
	SymbolFunction    SymbolKind = "function"
	SymbolMethod      SymbolKind = "method"
	SymbolClass       SymbolKind = "class"
	SymbolStruct      SymbolKind = "struct"
	SymbolEnum        SymbolKind = "enum"
	SymbolInterface   SymbolKind = "interface"
	SymbolTrait       SymbolKind = "trait"
	SymbolModule      SymbolKind = "module"
	SymbolConstant    SymbolKind = "constant"
	SymbolVariable    SymbolKind = "variable"
	SymbolType        SymbolKind = "type"
	SymbolProperty    SymbolKind = "property"
	SymbolField       SymbolKind = "field"
	SymbolConstructor SymbolKind = "constructor"
	SymbolDestructor  SymbolKind = "destructor"
	SymbolOperator    SymbolKind = "operator"
	SymbolMacro       SymbolKind = "macro"
	SymbolNamespace   SymbolKind = "namespace"
	SymbolPackage     SymbolKind = "package"
	SymbolUnknown     SymbolKind = "unknown"
)

var symbolKinds = map[string]SymbolKind{
	string(SymbolFunction):    SymbolFunction,
	string(SymbolMethod):      SymbolMethod,
	string(SymbolClass):       SymbolClass,
	string(SymbolStruct):      SymbolStruct,
	string(SymbolEnum):        SymbolEnum,
	string(SymbolInterface):   SymbolInterface,
	string(SymbolTrait):       SymbolTrait,
	string(SymbolModule):      SymbolModule,
	string(SymbolConstant):    SymbolConstant,
	string(SymbolVariable):    SymbolVariable,
	string(SymbolType):        SymbolType,
	string(SymbolProperty):    SymbolProperty,
	string(SymbolField):       SymbolField,
	string(SymbolConstructor): SymbolConstructor,
	string(SymbolDestructor):  SymbolDestructor,
	string(SymbolOperator):    SymbolOperator,
	string(SymbolMacro):       SymbolMacro,
	string(SymbolNamespace):   SymbolNamespace,
	string(SymbolPackage):     SymbolPackage,
}

// StringToSymbolKind parses a stored kind, falling back to SymbolUnknown.
func StringToSymbolKind(s string) SymbolKind {
	if k, ok := symbolKinds[s]; ok {
		return k
	}
	return SymbolUnknown
}

type Visibility string

const (
	VisibilityPublic      Visibility = "public"
	VisibilityPublicCrate Visibility = "public-crate"
	VisibilityPublicSuper Visibility = "public-super"
	VisibilityProtected   Visibility = "protected"
	VisibilityPrivate     Visibility = "private"
	VisibilityInternal    Visibility = "internal"
	VisibilityUnknown     Visibility = "unknown"
)

func StringToVisibility(s string) Visibility {
	switch Visibility(s) {
	case VisibilityPublic, VisibilityPublicCrate, VisibilityPublicSuper,
		VisibilityProtected, VisibilityPrivate, VisibilityInternal:
		return Visibility(s)
	}
	return VisibilityUnknown
}

type RefKind string

const (
	RefCall              RefKind = "call"
	RefTypeReference     RefKind = "type-reference"
	RefFieldAccess       RefKind = "field-access"
	RefImport            RefKind = "import"
	RefInheritance       RefKind = "inheritance"
	RefMacroInvocation   RefKind = "macro-invocation"
	RefVariableReference RefKind = "variable-reference"
	// RefUnknown is the fallback for reference kinds reported by external
	// analyzers that have no internal counterpart.
	RefUnknown RefKind = "unknown"
)

func StringToRefKind(s string) RefKind {
	switch RefKind(s) {
	case RefCall, RefTypeReference, RefFieldAccess, RefImport,
		RefInheritance, RefMacroInvocation, RefVariableReference:
		return RefKind(s)
	}
	return RefUnknown
}

// Location addresses one span twice: by line/column and by byte offset.
// Lines are 1-based, columns are 0-based byte offsets within the line.
type Location struct {
	StartLine   int
	EndLine     int
	StartColumn int
	EndColumn   int
	StartByte   int
	EndByte     int
}

type File struct {
	ID          int64
	Path        string
	Language    string
	ContentHash string
	Size        int64
	Description string
	IndexedAt   time.Time
}

type Symbol struct {
	ID             int64
	FileID         int64
	ParentID       *int64
	Name           string
	Kind           SymbolKind
	Location       Location
	Signature      string
	DocComment     string
	Description    string
	Visibility     Visibility
	IsEntryPoint   bool
	EmbeddingIndex *int64
}

// SymbolNode is one node of a file's symbol tree rebuilt from parent ids.
type SymbolNode struct {
	Symbol   Symbol
	Children []*SymbolNode
}

type SymbolRef struct {
	ID           int64
	FromSymbolID int64
	ToSymbolID   int64
	Kind         RefKind
	Location     Location
}

type ReachabilityEntry struct {
	SymbolID     int64
	IsReachable  bool
	LastAnalyzed time.Time
}

// ParsedSymbol is the analyzer-side shape of a symbol. Children mirror
// lexical nesting.
type ParsedSymbol struct {
	Name         string
	Kind         SymbolKind
	Location     Location
	Signature    string
	DocComment   string
	Visibility   Visibility
	IsEntryPoint bool
	Children     []ParsedSymbol
}

// ParsedReference is a usage site found by an analyzer. ContainingSymbol,
// when set, indexes the pre-order flattening of the ParsedSymbol forest
// returned for the same file (see FlattenSymbols).
type ParsedReference struct {
	Name             string
	Kind             RefKind
	Location         Location
	ContainingSymbol *int
}

// FlatSymbol is a ParsedSymbol positioned in a pre-order walk.
type FlatSymbol struct {
	Symbol ParsedSymbol
	// Parent is the pre-order index of the enclosing symbol, or -1.
	Parent int
}

// FlattenSymbols walks a symbol forest in pre-order. Parents always precede
// their children, so rows can be inserted in the returned order.
func FlattenSymbols(roots []ParsedSymbol) []FlatSymbol {
	var out []FlatSymbol
	var walk func(s ParsedSymbol, parent int)
	walk = func(s ParsedSymbol, parent int) {
		idx := len(out)
		out = append(out, FlatSymbol{Symbol: s, Parent: parent})
		for _, c := range s.Children {
			walk(c, idx)
		}
	}
	for _, r := range roots {
		walk(r, -1)
	}
	return out
}

type SemanticHit struct {
	Symbol Symbol
	File   string
	Score  float32
}

type SymbolHit struct {
	Symbol Symbol
	File   string
	Rank   float64
}

type FileHit struct {
	File File
	Rank float64
}

// Index progress and stages
type IndexStage string

const (
	IndexStageScan    IndexStage = "scan"
	IndexStageRead    IndexStage = "read"
	IndexStageParse   IndexStage = "parse"
	IndexStageEmbed   IndexStage = "embed"
	IndexStageSymbols IndexStage = "symbols"
	IndexStageStore   IndexStage = "store"
	IndexStageVectors IndexStage = "vectors"
	IndexStageDone    IndexStage = "done"
)

// IndexReport summarizes a multi-file run. Errors carries one message per
// failed file; a failure never aborts the run.
type IndexReport struct {
	FilesProcessed int
	FilesSkipped   int
	FilesDeleted   int
	Symbols        int
	Errors         []string
	Duration       time.Duration
}
