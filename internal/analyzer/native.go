package analyzer

import (
	"context"
	"strings"

	"github.com/0x5457/code-index/internal/models"
	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

// SymbolRule turns a matched node into a symbol. Returning ok=false leaves
// the node to be walked as ordinary syntax.
type SymbolRule func(n *tree_sitter.Node, src []byte) (name string, kind models.SymbolKind, ok bool)

// RefRule reports the references a node contributes.
type RefRule func(n *tree_sitter.Node, src []byte) []Ref

type Ref struct {
	Name string
	Kind models.RefKind
	Node *tree_sitter.Node
}

// Spec is the per-language table a Native analyzer walks with.
type Spec struct {
	Language string
	Symbols  map[string]SymbolRule
	Refs     map[string]RefRule
	// Comments lists node kinds treated as comments when collecting docs.
	Comments   []string
	Visibility func(n *tree_sitter.Node, src []byte, name string) models.Visibility
	EntryPoint func(n *tree_sitter.Node, name string, kind models.SymbolKind) bool
	// DocAnchor returns the node whose preceding siblings hold the doc
	// comment, when it differs from the declaration node.
	DocAnchor func(n *tree_sitter.Node) *tree_sitter.Node
}

// Native is a table-driven LanguageAnalyzer over tree-sitter trees.
type Native struct {
	spec     Spec
	comments map[string]bool
}

func NewNative(spec Spec) *Native {
	comments := make(map[string]bool, len(spec.Comments))
	for _, c := range spec.Comments {
		comments[c] = true
	}
	return &Native{spec: spec, comments: comments}
}

func (a *Native) Language() string { return a.spec.Language }

func (a *Native) ExtractSymbols(ctx context.Context, source []byte, tree *tree_sitter.Tree) []models.ParsedSymbol {
	syms, _ := a.analyze(ctx, source, tree)
	return syms
}

func (a *Native) ExtractReferences(ctx context.Context, source []byte, tree *tree_sitter.Tree) []models.ParsedReference {
	_, refs := a.analyze(ctx, source, tree)
	return refs
}

// Analyze runs both extractions in one walk.
func (a *Native) Analyze(ctx context.Context, source []byte, tree *tree_sitter.Tree) ([]models.ParsedSymbol, []models.ParsedReference) {
	return a.analyze(ctx, source, tree)
}

type walker struct {
	a    *Native
	ctx  context.Context
	src  []byte
	next int
	refs []models.ParsedReference
}

func (a *Native) analyze(ctx context.Context, source []byte, tree *tree_sitter.Tree) ([]models.ParsedSymbol, []models.ParsedReference) {
	if tree == nil {
		return nil, nil
	}
	w := &walker{a: a, ctx: ctx, src: source}
	var roots []models.ParsedSymbol
	root := tree.RootNode()
	for i := uint(0); i < root.ChildCount(); i++ {
		w.visit(root.Child(i), &roots, -1)
	}
	return roots, w.refs
}

// visit walks n in document order. Symbols receive their pre-order index
// before their children are visited, matching models.FlattenSymbols.
func (w *walker) visit(n *tree_sitter.Node, out *[]models.ParsedSymbol, current int) {
	if n == nil || w.ctx.Err() != nil {
		return
	}
	kind := n.Kind()

	if rule, ok := w.a.spec.Symbols[kind]; ok {
		if name, symKind, ok := rule(n, w.src); ok && name != "" {
			sym := w.a.buildSymbol(n, w.src, name, symKind)
			idx := w.next
			w.next++
			for i := uint(0); i < n.ChildCount(); i++ {
				w.visit(n.Child(i), &sym.Children, idx)
			}
			*out = append(*out, sym)
			return
		}
	}

	if rule, ok := w.a.spec.Refs[kind]; ok {
		for _, r := range rule(n, w.src) {
			if r.Name == "" || r.Node == nil {
				continue
			}
			ref := models.ParsedReference{Name: r.Name, Kind: r.Kind, Location: location(r.Node)}
			if current >= 0 {
				c := current
				ref.ContainingSymbol = &c
			}
			w.refs = append(w.refs, ref)
		}
	}

	for i := uint(0); i < n.ChildCount(); i++ {
		w.visit(n.Child(i), out, current)
	}
}

func (a *Native) buildSymbol(n *tree_sitter.Node, src []byte, name string, kind models.SymbolKind) models.ParsedSymbol {
	sym := models.ParsedSymbol{
		Name:       name,
		Kind:       kind,
		Location:   location(n),
		Signature:  signature(n, src),
		Visibility: models.VisibilityUnknown,
	}
	anchor := n
	if a.spec.DocAnchor != nil {
		if an := a.spec.DocAnchor(n); an != nil {
			anchor = an
		}
	}
	sym.DocComment = a.docComment(anchor, src)
	if a.spec.Visibility != nil {
		sym.Visibility = a.spec.Visibility(n, src, name)
	}
	if a.spec.EntryPoint != nil {
		sym.IsEntryPoint = a.spec.EntryPoint(n, name, kind)
	}
	return sym
}

// docComment joins the comment block directly above n. Attribute-like
// siblings between the comments and n are skipped.
func (a *Native) docComment(n *tree_sitter.Node, src []byte) string {
	var lines []string
	nextRow := n.StartPosition().Row
	for prev := n.PrevSibling(); prev != nil; prev = prev.PrevSibling() {
		k := prev.Kind()
		if k == "attribute_item" || k == "decorator" {
			nextRow = prev.StartPosition().Row
			continue
		}
		if !a.comments[k] {
			break
		}
		// Stop at a blank line between comment and declaration.
		if prev.EndPosition().Row+1 < nextRow {
			break
		}
		lines = append(lines, cleanComment(text(prev, src)))
		nextRow = prev.StartPosition().Row
	}
	for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
		lines[i], lines[j] = lines[j], lines[i]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func cleanComment(c string) string {
	c = strings.TrimSpace(c)
	if strings.HasPrefix(c, "/*") {
		c = strings.TrimSuffix(strings.TrimPrefix(strings.TrimPrefix(c, "/**"), "/*"), "*/")
		var out []string
		for _, l := range strings.Split(c, "\n") {
			l = strings.TrimSpace(l)
			l = strings.TrimSpace(strings.TrimPrefix(l, "*"))
			if l != "" {
				out = append(out, l)
			}
		}
		return strings.Join(out, "\n")
	}
	for _, p := range []string{"///", "//!", "//"} {
		if strings.HasPrefix(c, p) {
			return strings.TrimSpace(strings.TrimPrefix(c, p))
		}
	}
	return c
}

func location(n *tree_sitter.Node) models.Location {
	start, end := n.StartPosition(), n.EndPosition()
	return models.Location{
		StartLine:   int(start.Row) + 1,
		EndLine:     int(end.Row) + 1,
		StartColumn: int(start.Column),
		EndColumn:   int(end.Column),
		StartByte:   int(n.StartByte()),
		EndByte:     int(n.EndByte()),
	}
}

func text(n *tree_sitter.Node, src []byte) string {
	if n == nil {
		return ""
	}
	return string(src[n.StartByte():n.EndByte()])
}

// signature is the declaration text before its body, or its first line.
func signature(n *tree_sitter.Node, src []byte) string {
	if body := n.ChildByFieldName("body"); body != nil && body.StartByte() > n.StartByte() {
		return collapseSpace(string(src[n.StartByte():body.StartByte()]))
	}
	return firstLine(text(n, src))
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return strings.TrimSpace(s[:idx])
	}
	return strings.TrimSpace(s)
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// fieldText returns the text of n's named field.
func fieldText(n *tree_sitter.Node, field string, src []byte) string {
	return text(n.ChildByFieldName(field), src)
}

// childIdentifier prefers the `name` field and falls back to the first
// identifier-like child.
func childIdentifier(n *tree_sitter.Node, src []byte) string {
	if c := n.ChildByFieldName("name"); c != nil {
		return text(c, src)
	}
	for i := uint(0); i < n.NamedChildCount(); i++ {
		c := n.NamedChild(i)
		switch c.Kind() {
		case "identifier", "property_identifier", "type_identifier", "field_identifier":
			return text(c, src)
		}
	}
	return ""
}

func childOfKind(n *tree_sitter.Node, kind string) *tree_sitter.Node {
	for i := uint(0); i < n.ChildCount(); i++ {
		if c := n.Child(i); c.Kind() == kind {
			return c
		}
	}
	return nil
}

// within reports whether n's parent, or grandparent through a body list,
// has one of kinds.
func within(n *tree_sitter.Node, kinds ...string) bool {
	p := n.Parent()
	for depth := 0; p != nil && depth < 2; depth++ {
		for _, k := range kinds {
			if p.Kind() == k {
				return true
			}
		}
		p = p.Parent()
	}
	return false
}

// isDeclName reports whether n is the name field of its parent.
func isDeclName(n *tree_sitter.Node) bool {
	p := n.Parent()
	if p == nil {
		return false
	}
	name := p.ChildByFieldName("name")
	return name != nil && name.StartByte() == n.StartByte() && name.EndByte() == n.EndByte()
}

// named returns a SymbolRule with a fixed kind and the usual name lookup.
func named(kind models.SymbolKind) SymbolRule {
	return func(n *tree_sitter.Node, src []byte) (string, models.SymbolKind, bool) {
		name := childIdentifier(n, src)
		return name, kind, name != ""
	}
}

// lastSegment strips a path prefix such as "a::b::c" or "a.b.c".
func lastSegment(s string) string {
	if i := strings.LastIndex(s, "::"); i >= 0 {
		s = s[i+2:]
	}
	if i := strings.LastIndexAny(s, "./"); i >= 0 {
		s = s[i+1:]
	}
	return s
}

var _ LanguageAnalyzer = (*Native)(nil)
