package analyzer

import (
	"strings"

	"github.com/0x5457/code-index/internal/models"
	"github.com/0x5457/code-index/internal/parser"
	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

func TypeScriptSpec() Spec {
	return typescriptSpec(parser.LanguageTypeScript)
}

// TSXSpec shares the TypeScript tables; the grammars differ only in JSX.
func TSXSpec() Spec {
	return typescriptSpec(parser.LanguageTSX)
}

func typescriptSpec(language string) Spec {
	return Spec{
		Language: language,
		Symbols: map[string]SymbolRule{
			"function_declaration":           named(models.SymbolFunction),
			"generator_function_declaration": named(models.SymbolFunction),
			"class_declaration":              named(models.SymbolClass),
			"abstract_class_declaration":     named(models.SymbolClass),
			"method_definition":              tsMethod,
			"method_signature":               named(models.SymbolMethod),
			"abstract_method_signature":      named(models.SymbolMethod),
			"interface_declaration":          named(models.SymbolInterface),
			"type_alias_declaration":         named(models.SymbolType),
			"enum_declaration":               named(models.SymbolEnum),
			"public_field_definition":        named(models.SymbolProperty),
			"property_signature":             named(models.SymbolProperty),
			"variable_declarator":            tsVariable,
			"internal_module":                named(models.SymbolNamespace),
			"module":                         named(models.SymbolModule),
		},
		Refs: map[string]RefRule{
			"call_expression":   tsCall,
			"new_expression":    tsNew,
			"import_statement":  tsImport,
			"type_identifier":   tsTypeRef,
			"extends_clause":    tsExtends,
			"member_expression": tsMember,
		},
		Comments:   []string{"comment"},
		Visibility: tsVisibility,
		EntryPoint: func(_ *tree_sitter.Node, name string, kind models.SymbolKind) bool {
			return kind == models.SymbolFunction && name == "main"
		},
		DocAnchor: func(n *tree_sitter.Node) *tree_sitter.Node {
			if e := exportOf(n); e != nil {
				return e
			}
			if n.Kind() == "variable_declarator" {
				return n.Parent()
			}
			return nil
		},
	}
}

func tsMethod(n *tree_sitter.Node, src []byte) (string, models.SymbolKind, bool) {
	name := childIdentifier(n, src)
	if name == "constructor" {
		return name, models.SymbolConstructor, true
	}
	return name, models.SymbolMethod, name != ""
}

// tsVariable accepts module-level declarators only.
func tsVariable(n *tree_sitter.Node, src []byte) (string, models.SymbolKind, bool) {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil || nameNode.Kind() != "identifier" {
		return "", models.SymbolVariable, false
	}
	decl := n.Parent()
	if decl == nil {
		return "", models.SymbolVariable, false
	}
	if top := decl.Parent(); top == nil || (top.Kind() != "program" && top.Kind() != "export_statement") {
		return "", models.SymbolVariable, false
	}
	if v := n.ChildByFieldName("value"); v != nil {
		switch v.Kind() {
		case "arrow_function", "function_expression", "function", "generator_function":
			return text(nameNode, src), models.SymbolFunction, true
		}
	}
	if decl.Kind() == "lexical_declaration" && decl.Child(0) != nil && decl.Child(0).Kind() == "const" {
		return text(nameNode, src), models.SymbolConstant, true
	}
	return text(nameNode, src), models.SymbolVariable, true
}

// exportOf returns the export statement wrapping a declaration, if any.
func exportOf(n *tree_sitter.Node) *tree_sitter.Node {
	p := n.Parent()
	if p != nil && p.Kind() == "export_statement" {
		return p
	}
	if n.Kind() == "variable_declarator" && p != nil {
		if gp := p.Parent(); gp != nil && gp.Kind() == "export_statement" {
			return gp
		}
	}
	return nil
}

func tsVisibility(n *tree_sitter.Node, src []byte, name string) models.Visibility {
	if exportOf(n) != nil {
		return models.VisibilityPublic
	}
	if mod := childOfKind(n, "accessibility_modifier"); mod != nil {
		switch strings.TrimSpace(text(mod, src)) {
		case "private":
			return models.VisibilityPrivate
		case "protected":
			return models.VisibilityProtected
		case "public":
			return models.VisibilityPublic
		}
	}
	if strings.HasPrefix(name, "#") {
		return models.VisibilityPrivate
	}
	if within(n, "class_body", "interface_body", "object_type") {
		return models.VisibilityPublic
	}
	return models.VisibilityPrivate
}

// tsCallee resolves the node naming what a call or new expression targets.
func tsCallee(fn *tree_sitter.Node) *tree_sitter.Node {
	if fn == nil {
		return nil
	}
	switch fn.Kind() {
	case "identifier":
		return fn
	case "member_expression":
		return fn.ChildByFieldName("property")
	}
	return nil
}

func tsCall(n *tree_sitter.Node, src []byte) []Ref {
	callee := tsCallee(n.ChildByFieldName("function"))
	if callee == nil {
		return nil
	}
	return []Ref{{Name: text(callee, src), Kind: models.RefCall, Node: callee}}
}

func tsNew(n *tree_sitter.Node, src []byte) []Ref {
	callee := tsCallee(n.ChildByFieldName("constructor"))
	if callee == nil {
		return nil
	}
	return []Ref{{Name: text(callee, src), Kind: models.RefCall, Node: callee}}
}

func tsImport(n *tree_sitter.Node, src []byte) []Ref {
	clause := childOfKind(n, "import_clause")
	if clause == nil {
		return nil
	}
	var refs []Ref
	add := func(c *tree_sitter.Node) {
		if c != nil {
			refs = append(refs, Ref{Name: text(c, src), Kind: models.RefImport, Node: c})
		}
	}
	for i := uint(0); i < clause.NamedChildCount(); i++ {
		c := clause.NamedChild(i)
		switch c.Kind() {
		case "identifier":
			add(c)
		case "namespace_import":
			add(childOfKind(c, "identifier"))
		case "named_imports":
			for j := uint(0); j < c.NamedChildCount(); j++ {
				if spec := c.NamedChild(j); spec.Kind() == "import_specifier" {
					add(spec.ChildByFieldName("name"))
				}
			}
		}
	}
	return refs
}

func tsTypeRef(n *tree_sitter.Node, src []byte) []Ref {
	if isDeclName(n) {
		return nil
	}
	kind := models.RefTypeReference
	if within(n, "implements_clause", "extends_type_clause") {
		kind = models.RefInheritance
	}
	return []Ref{{Name: text(n, src), Kind: kind, Node: n}}
}

func tsExtends(n *tree_sitter.Node, src []byte) []Ref {
	var refs []Ref
	for i := uint(0); i < n.NamedChildCount(); i++ {
		if c := tsCallee(n.NamedChild(i)); c != nil {
			refs = append(refs, Ref{Name: text(c, src), Kind: models.RefInheritance, Node: c})
		}
	}
	return refs
}

func tsMember(n *tree_sitter.Node, src []byte) []Ref {
	if p := n.Parent(); p != nil {
		switch p.Kind() {
		case "call_expression":
			if sameNode(p.ChildByFieldName("function"), n) {
				return nil
			}
		case "new_expression":
			if sameNode(p.ChildByFieldName("constructor"), n) {
				return nil
			}
		case "extends_clause":
			return nil
		}
	}
	prop := n.ChildByFieldName("property")
	if prop == nil {
		return nil
	}
	return []Ref{{Name: text(prop, src), Kind: models.RefFieldAccess, Node: prop}}
}
