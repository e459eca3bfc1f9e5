package plugin

import (
	"strings"

	"github.com/0x5457/code-index/internal/models"
)

const (
	MethodExtractSymbols = "extract_symbols"
	MethodAnalyze        = "analyze"
)

// Request is the message sent to a plugin.
type Request struct {
	Method   string `json:"method"`
	Language string `json:"language"`
	Path     string `json:"path"`
	Source   string `json:"source"`
}

// Response carries whichever lists the method asked for.
type Response struct {
	Symbols    []Symbol    `json:"symbols,omitempty"`
	References []Reference `json:"references,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// Position is zero-based; Character counts UTF-16 code units.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

type Symbol struct {
	Name          string     `json:"name"`
	Kind          SymbolKind `json:"kind"`
	Range         Range      `json:"range"`
	Detail        string     `json:"detail,omitempty"`
	Documentation string     `json:"documentation,omitempty"`
	Visibility    Visibility `json:"visibility,omitempty"`
	IsEntryPoint  bool       `json:"is_entry_point,omitempty"`
	Children      []Symbol   `json:"children,omitempty"`
}

type Reference struct {
	Name             string  `json:"name"`
	Kind             RefKind `json:"kind"`
	Range            Range   `json:"range"`
	ContainingSymbol *int    `json:"containing_symbol,omitempty"`
}

// SymbolKind uses the Language Server Protocol numbering.
type SymbolKind int

const (
	SymbolKindFile          SymbolKind = 1
	SymbolKindModule        SymbolKind = 2
	SymbolKindNamespace     SymbolKind = 3
	SymbolKindPackage       SymbolKind = 4
	SymbolKindClass         SymbolKind = 5
	SymbolKindMethod        SymbolKind = 6
	SymbolKindProperty      SymbolKind = 7
	SymbolKindField         SymbolKind = 8
	SymbolKindConstructor   SymbolKind = 9
	SymbolKindEnum          SymbolKind = 10
	SymbolKindInterface     SymbolKind = 11
	SymbolKindFunction      SymbolKind = 12
	SymbolKindVariable      SymbolKind = 13
	SymbolKindConstant      SymbolKind = 14
	SymbolKindString        SymbolKind = 15
	SymbolKindNumber        SymbolKind = 16
	SymbolKindBoolean       SymbolKind = 17
	SymbolKindArray         SymbolKind = 18
	SymbolKindObject        SymbolKind = 19
	SymbolKindKey           SymbolKind = 20
	SymbolKindNull          SymbolKind = 21
	SymbolKindEnumMember    SymbolKind = 22
	SymbolKindStruct        SymbolKind = 23
	SymbolKindEvent         SymbolKind = 24
	SymbolKindOperator      SymbolKind = 25
	SymbolKindTypeParameter SymbolKind = 26
)

// Kinds past the LSP range for constructs LSP has no number for.
const (
	SymbolKindTrait      SymbolKind = 100
	SymbolKindMacro      SymbolKind = 101
	SymbolKindDestructor SymbolKind = 102
	SymbolKindTypeAlias  SymbolKind = 103
)

// ToModel maps an LSP kind onto the index's symbol kinds. Kinds without a
// counterpart become models.SymbolUnknown.
func (k SymbolKind) ToModel() models.SymbolKind {
	switch k {
	case SymbolKindModule:
		return models.SymbolModule
	case SymbolKindNamespace:
		return models.SymbolNamespace
	case SymbolKindPackage:
		return models.SymbolPackage
	case SymbolKindClass:
		return models.SymbolClass
	case SymbolKindMethod:
		return models.SymbolMethod
	case SymbolKindProperty:
		return models.SymbolProperty
	case SymbolKindField, SymbolKindEnumMember:
		return models.SymbolField
	case SymbolKindConstructor:
		return models.SymbolConstructor
	case SymbolKindEnum:
		return models.SymbolEnum
	case SymbolKindInterface:
		return models.SymbolInterface
	case SymbolKindFunction:
		return models.SymbolFunction
	case SymbolKindVariable, SymbolKindKey:
		return models.SymbolVariable
	case SymbolKindConstant, SymbolKindString, SymbolKindNumber, SymbolKindBoolean, SymbolKindNull:
		return models.SymbolConstant
	case SymbolKindStruct, SymbolKindObject:
		return models.SymbolStruct
	case SymbolKindOperator:
		return models.SymbolOperator
	case SymbolKindTypeParameter, SymbolKindTypeAlias:
		return models.SymbolType
	case SymbolKindTrait:
		return models.SymbolTrait
	case SymbolKindMacro:
		return models.SymbolMacro
	case SymbolKindDestructor:
		return models.SymbolDestructor
	case SymbolKindFile, SymbolKindArray, SymbolKindEvent:
		return models.SymbolUnknown
	default:
		return models.SymbolUnknown
	}
}

// Visibility is the plugin's spelling of an access level. Language-native
// keywords are accepted alongside the index's own names.
type Visibility string

func (v Visibility) ToModel() models.Visibility {
	switch strings.ToLower(strings.TrimSpace(string(v))) {
	case "public", "pub", "export", "exported":
		return models.VisibilityPublic
	case "public-crate", "pub(crate)", "crate":
		return models.VisibilityPublicCrate
	case "public-super", "pub(super)", "super":
		return models.VisibilityPublicSuper
	case "protected":
		return models.VisibilityProtected
	case "private", "priv":
		return models.VisibilityPrivate
	case "internal", "package", "package-private":
		return models.VisibilityInternal
	default:
		return models.VisibilityUnknown
	}
}

// RefKind is the plugin's name for how a reference uses its target.
type RefKind string

func (k RefKind) ToModel() models.RefKind {
	switch strings.ToLower(strings.TrimSpace(string(k))) {
	case "call", "invoke":
		return models.RefCall
	case "type-reference", "type_reference", "type":
		return models.RefTypeReference
	case "field-access", "field_access", "field", "member":
		return models.RefFieldAccess
	case "import", "use", "include", "require":
		return models.RefImport
	case "inheritance", "extends", "implements":
		return models.RefInheritance
	case "macro-invocation", "macro_invocation", "macro":
		return models.RefMacroInvocation
	case "variable-reference", "variable_reference", "variable", "read", "write":
		return models.RefVariableReference
	default:
		return models.RefUnknown
	}
}
