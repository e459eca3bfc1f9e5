package analyzer

import (
	"strings"

	"github.com/0x5457/code-index/internal/models"
	"github.com/0x5457/code-index/internal/parser"
	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

func RustSpec() Spec {
	return Spec{
		Language: parser.LanguageRust,
		Symbols: map[string]SymbolRule{
			"function_item":           rustFunction,
			"function_signature_item": rustFunction,
			"struct_item":             named(models.SymbolStruct),
			"union_item":              named(models.SymbolStruct),
			"enum_item":               named(models.SymbolEnum),
			"trait_item":              named(models.SymbolTrait),
			"mod_item":                named(models.SymbolModule),
			"const_item":              named(models.SymbolConstant),
			"static_item":             named(models.SymbolVariable),
			"type_item":               named(models.SymbolType),
			"macro_definition":        named(models.SymbolMacro),
			"field_declaration":       named(models.SymbolField),
		},
		Refs: map[string]RefRule{
			"call_expression":  rustCall,
			"macro_invocation": rustMacro,
			"use_declaration":  rustUse,
			"type_identifier":  rustTypeRef,
			"field_expression": rustFieldAccess,
		},
		Comments:   []string{"line_comment", "block_comment"},
		Visibility: rustVisibility,
		EntryPoint: func(n *tree_sitter.Node, name string, kind models.SymbolKind) bool {
			p := n.Parent()
			return kind == models.SymbolFunction && name == "main" && p != nil && p.Kind() == "source_file"
		},
	}
}

func rustFunction(n *tree_sitter.Node, src []byte) (string, models.SymbolKind, bool) {
	name := childIdentifier(n, src)
	if within(n, "impl_item", "trait_item") {
		return name, models.SymbolMethod, name != ""
	}
	return name, models.SymbolFunction, name != ""
}

func rustVisibility(n *tree_sitter.Node, src []byte, _ string) models.Visibility {
	mod := childOfKind(n, "visibility_modifier")
	if mod == nil {
		if within(n, "trait_item") {
			return models.VisibilityPublic
		}
		return models.VisibilityPrivate
	}
	v := strings.ReplaceAll(text(mod, src), " ", "")
	switch {
	case v == "pub":
		return models.VisibilityPublic
	case v == "pub(crate)", strings.HasPrefix(v, "pub(in"):
		return models.VisibilityPublicCrate
	case v == "pub(super)":
		return models.VisibilityPublicSuper
	case v == "pub(self)":
		return models.VisibilityPrivate
	case v == "crate":
		return models.VisibilityPublicCrate
	}
	return models.VisibilityPublic
}

func rustCallee(fn *tree_sitter.Node, src []byte) *tree_sitter.Node {
	if fn == nil {
		return nil
	}
	switch fn.Kind() {
	case "identifier":
		return fn
	case "scoped_identifier":
		return fn.ChildByFieldName("name")
	case "field_expression":
		return fn.ChildByFieldName("field")
	case "generic_function":
		return rustCallee(fn.ChildByFieldName("function"), src)
	}
	return nil
}

func rustCall(n *tree_sitter.Node, src []byte) []Ref {
	callee := rustCallee(n.ChildByFieldName("function"), src)
	if callee == nil {
		return nil
	}
	return []Ref{{Name: text(callee, src), Kind: models.RefCall, Node: callee}}
}

func rustMacro(n *tree_sitter.Node, src []byte) []Ref {
	m := n.ChildByFieldName("macro")
	if m == nil {
		return nil
	}
	return []Ref{{Name: lastSegment(text(m, src)), Kind: models.RefMacroInvocation, Node: m}}
}

func rustUse(n *tree_sitter.Node, src []byte) []Ref {
	var refs []Ref
	var collect func(c *tree_sitter.Node)
	collect = func(c *tree_sitter.Node) {
		if c == nil {
			return
		}
		switch c.Kind() {
		case "identifier", "type_identifier":
			refs = append(refs, Ref{Name: text(c, src), Kind: models.RefImport, Node: c})
		case "scoped_identifier":
			collect(c.ChildByFieldName("name"))
		case "use_as_clause":
			collect(c.ChildByFieldName("path"))
		case "scoped_use_list":
			collect(c.ChildByFieldName("list"))
		case "use_list":
			for i := uint(0); i < c.NamedChildCount(); i++ {
				collect(c.NamedChild(i))
			}
		}
	}
	collect(n.ChildByFieldName("argument"))
	return refs
}

func rustTypeRef(n *tree_sitter.Node, src []byte) []Ref {
	if isDeclName(n) {
		return nil
	}
	kind := models.RefTypeReference
	if p := n.Parent(); p != nil {
		switch {
		case p.Kind() == "impl_item" && sameNode(p.ChildByFieldName("trait"), n):
			kind = models.RefInheritance
		case p.Kind() == "trait_bounds" && p.Parent() != nil && p.Parent().Kind() == "trait_item":
			kind = models.RefInheritance
		}
	}
	return []Ref{{Name: text(n, src), Kind: kind, Node: n}}
}

func rustFieldAccess(n *tree_sitter.Node, src []byte) []Ref {
	if p := n.Parent(); p != nil && p.Kind() == "call_expression" && sameNode(p.ChildByFieldName("function"), n) {
		return nil
	}
	f := n.ChildByFieldName("field")
	if f == nil || f.Kind() != "field_identifier" {
		return nil
	}
	return []Ref{{Name: text(f, src), Kind: models.RefFieldAccess, Node: f}}
}

func sameNode(a, b *tree_sitter.Node) bool {
	return a != nil && b != nil && a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte() && a.Kind() == b.Kind()
}
