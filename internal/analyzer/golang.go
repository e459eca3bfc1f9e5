package analyzer

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/0x5457/code-index/internal/models"
	"github.com/0x5457/code-index/internal/parser"
	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

func GoSpec() Spec {
	return Spec{
		Language: parser.LanguageGo,
		Symbols: map[string]SymbolRule{
			"function_declaration": named(models.SymbolFunction),
			"method_declaration":   named(models.SymbolMethod),
			"type_spec":            goTypeSpec,
			"type_alias":           named(models.SymbolType),
			"method_elem":          named(models.SymbolMethod),
			"method_spec":          named(models.SymbolMethod),
			"const_spec":           goTopLevel(models.SymbolConstant, "const_declaration"),
			"var_spec":             goTopLevel(models.SymbolVariable, "var_declaration"),
			"field_declaration":    named(models.SymbolField),
		},
		Refs: map[string]RefRule{
			"call_expression":     goCall,
			"selector_expression": goSelector,
			"type_identifier":     goTypeRef,
			"import_spec":         goImport,
		},
		Comments: []string{"comment"},
		Visibility: func(_ *tree_sitter.Node, _ []byte, name string) models.Visibility {
			r, _ := utf8.DecodeRuneInString(name)
			if unicode.IsUpper(r) {
				return models.VisibilityPublic
			}
			return models.VisibilityPrivate
		},
		EntryPoint: func(n *tree_sitter.Node, name string, _ models.SymbolKind) bool {
			return n.Kind() == "function_declaration" && (name == "main" || name == "init")
		},
		DocAnchor: goDocAnchor,
	}
}

func goTypeSpec(n *tree_sitter.Node, src []byte) (string, models.SymbolKind, bool) {
	name := childIdentifier(n, src)
	kind := models.SymbolType
	if t := n.ChildByFieldName("type"); t != nil {
		switch t.Kind() {
		case "struct_type":
			kind = models.SymbolStruct
		case "interface_type":
			kind = models.SymbolInterface
		}
	}
	return name, kind, name != ""
}

// goTopLevel only accepts package-level specs; locals are not symbols.
func goTopLevel(kind models.SymbolKind, decl string) SymbolRule {
	return func(n *tree_sitter.Node, src []byte) (string, models.SymbolKind, bool) {
		p := n.Parent()
		for depth := 0; p != nil && depth < 2 && p.Kind() != decl; depth++ {
			p = p.Parent()
		}
		if p == nil || p.Kind() != decl || p.Parent() == nil || p.Parent().Kind() != "source_file" {
			return "", kind, false
		}
		name := childIdentifier(n, src)
		return name, kind, name != ""
	}
}

// goDocAnchor moves to the enclosing declaration for ungrouped specs, whose
// doc comment sits above the `type`, `const` or `var` keyword.
func goDocAnchor(n *tree_sitter.Node) *tree_sitter.Node {
	p := n.Parent()
	if p == nil {
		return nil
	}
	switch p.Kind() {
	case "type_declaration", "const_declaration", "var_declaration":
	default:
		return nil
	}
	if prev := n.PrevSibling(); prev != nil && prev.Kind() == "comment" {
		return nil
	}
	return p
}

func goCall(n *tree_sitter.Node, src []byte) []Ref {
	fn := n.ChildByFieldName("function")
	if fn == nil {
		return nil
	}
	switch fn.Kind() {
	case "identifier":
		return []Ref{{Name: text(fn, src), Kind: models.RefCall, Node: fn}}
	case "selector_expression":
		if f := fn.ChildByFieldName("field"); f != nil {
			return []Ref{{Name: text(f, src), Kind: models.RefCall, Node: f}}
		}
	}
	return nil
}

func goSelector(n *tree_sitter.Node, src []byte) []Ref {
	if p := n.Parent(); p != nil && p.Kind() == "call_expression" && sameNode(p.ChildByFieldName("function"), n) {
		return nil
	}
	f := n.ChildByFieldName("field")
	if f == nil {
		return nil
	}
	return []Ref{{Name: text(f, src), Kind: models.RefFieldAccess, Node: f}}
}

func goTypeRef(n *tree_sitter.Node, src []byte) []Ref {
	if isDeclName(n) {
		return nil
	}
	return []Ref{{Name: text(n, src), Kind: models.RefTypeReference, Node: n}}
}

func goImport(n *tree_sitter.Node, src []byte) []Ref {
	path := n.ChildByFieldName("path")
	if path == nil {
		return nil
	}
	name := lastSegment(strings.Trim(text(path, src), "\"`"))
	return []Ref{{Name: name, Kind: models.RefImport, Node: path}}
}
