package plugin_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/0x5457/code-index/internal/analyzer"
	"github.com/0x5457/code-index/internal/analyzer/plugin"
	"github.com/0x5457/code-index/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const sample = "def greet():\n    say('héllo')\n"

func staticTransport(t *testing.T, seen *plugin.Request, body string) plugin.Transport {
	return plugin.TransportFunc(func(_ context.Context, req []byte) ([]byte, error) {
		require.NoError(t, json.Unmarshal(req, seen))
		return []byte(body), nil
	})
}

func TestAdapterMapsSymbols(t *testing.T) {
	var seen plugin.Request
	body := `{"symbols":[{"name":"greet","kind":12,"visibility":"public","detail":"def greet()",
		"range":{"start":{"line":0,"character":0},"end":{"line":1,"character":16}},
		"children":[{"name":"inner","kind":26,"range":{"start":{"line":1,"character":4},"end":{"line":1,"character":7}}}]},
		{"name":"weird","kind":99,"range":{"start":{"line":0,"character":0},"end":{"line":0,"character":1}}}]}`
	a := plugin.New("python", staticTransport(t, &seen, body), zaptest.NewLogger(t))

	ctx := analyzer.WithPath(context.Background(), "src/app.py")
	syms := a.ExtractSymbols(ctx, []byte(sample), nil)

	assert.Equal(t, plugin.MethodExtractSymbols, seen.Method)
	assert.Equal(t, "python", seen.Language)
	assert.Equal(t, "src/app.py", seen.Path)
	assert.Equal(t, sample, seen.Source)

	require.Len(t, syms, 2)
	greet := syms[0]
	assert.Equal(t, models.SymbolFunction, greet.Kind)
	assert.Equal(t, models.VisibilityPublic, greet.Visibility)
	assert.Equal(t, "def greet()", greet.Signature)
	assert.Equal(t, 1, greet.Location.StartLine)
	assert.Equal(t, 2, greet.Location.EndLine)
	assert.Equal(t, 0, greet.Location.StartByte)
	// Sixteen UTF-16 units into line two span seventeen bytes because of é.
	assert.Equal(t, 13+17, greet.Location.EndByte)

	require.Len(t, greet.Children, 1)
	assert.Equal(t, models.SymbolType, greet.Children[0].Kind)
	assert.Equal(t, models.VisibilityUnknown, greet.Children[0].Visibility)
	assert.Equal(t, 17, greet.Children[0].Location.StartByte)

	assert.Equal(t, models.SymbolUnknown, syms[1].Kind)
}

func TestAdapterMapsReferences(t *testing.T) {
	var seen plugin.Request
	body := `{"symbols":[{"name":"greet","kind":12,"range":{"start":{"line":0,"character":0},"end":{"line":1,"character":16}}}],
		"references":[{"name":"say","kind":"call","containing_symbol":0,
		"range":{"start":{"line":1,"character":4},"end":{"line":1,"character":7}}},
		{"name":"x","kind":"telepathy","range":{"start":{"line":0,"character":0},"end":{"line":0,"character":1}}}]}`
	a := plugin.New("python", staticTransport(t, &seen, body), zaptest.NewLogger(t))

	refs := a.ExtractReferences(context.Background(), []byte(sample), nil)
	assert.Equal(t, plugin.MethodAnalyze, seen.Method)
	require.Len(t, refs, 2)
	assert.Equal(t, models.RefCall, refs[0].Kind)
	require.NotNil(t, refs[0].ContainingSymbol)
	assert.Equal(t, 0, *refs[0].ContainingSymbol)
	assert.Equal(t, 2, refs[0].Location.StartLine)
	assert.Equal(t, models.RefUnknown, refs[1].Kind)
}

func TestAnalyzeDropsDanglingContainers(t *testing.T) {
	var seen plugin.Request
	body := `{"symbols":[{"name":"greet","kind":12,"range":{"start":{"line":0,"character":0},"end":{"line":1,"character":0}}}],
		"references":[{"name":"say","kind":"call","containing_symbol":3,"range":{"start":{"line":1,"character":4},"end":{"line":1,"character":7}}}]}`
	a := plugin.New("python", staticTransport(t, &seen, body), zaptest.NewLogger(t))

	syms, refs := analyzer.Run(context.Background(), a, []byte(sample), nil)
	assert.Equal(t, plugin.MethodAnalyze, seen.Method)
	require.Len(t, syms, 1)
	require.Len(t, refs, 1)
	assert.Nil(t, refs[0].ContainingSymbol)
}

func TestUnnamedSymbolsKeepReferenceIndices(t *testing.T) {
	var seen plugin.Request
	body := `{"symbols":[
		{"name":"","kind":2,"range":{"start":{"line":0,"character":0},"end":{"line":0,"character":1}},
			"children":[{"name":"nested","kind":12,"range":{"start":{"line":0,"character":0},"end":{"line":0,"character":1}}}]},
		{"name":"helper","kind":12,"range":{"start":{"line":0,"character":0},"end":{"line":0,"character":1}}},
		{"name":"main","kind":12,"range":{"start":{"line":1,"character":0},"end":{"line":1,"character":1}}}],
		"references":[
		{"name":"helper","kind":"call","containing_symbol":3,"range":{"start":{"line":1,"character":4},"end":{"line":1,"character":7}}},
		{"name":"inner","kind":"call","containing_symbol":1,"range":{"start":{"line":0,"character":0},"end":{"line":0,"character":1}}},
		{"name":"lost","kind":"call","containing_symbol":0,"range":{"start":{"line":0,"character":0},"end":{"line":0,"character":1}}}]}`
	a := plugin.New("python", staticTransport(t, &seen, body), zaptest.NewLogger(t))

	syms, refs := analyzer.Run(context.Background(), a, []byte(sample), nil)
	flat := models.FlattenSymbols(syms)
	require.Len(t, flat, 3)
	assert.Equal(t, "nested", flat[0].Symbol.Name)
	assert.Equal(t, "helper", flat[1].Symbol.Name)
	assert.Equal(t, "main", flat[2].Symbol.Name)

	require.Len(t, refs, 3)
	require.NotNil(t, refs[0].ContainingSymbol)
	assert.Equal(t, "main", flat[*refs[0].ContainingSymbol].Symbol.Name)
	require.NotNil(t, refs[1].ContainingSymbol)
	assert.Equal(t, "nested", flat[*refs[1].ContainingSymbol].Symbol.Name)
	assert.Nil(t, refs[2].ContainingSymbol)
}

func TestVisibilityAndRefKindSpellings(t *testing.T) {
	visibilities := map[plugin.Visibility]models.Visibility{
		"public":     models.VisibilityPublic,
		"pub":        models.VisibilityPublic,
		"export":     models.VisibilityPublic,
		"pub(crate)": models.VisibilityPublicCrate,
		"pub(super)": models.VisibilityPublicSuper,
		"Protected":  models.VisibilityProtected,
		"private":    models.VisibilityPrivate,
		"package":    models.VisibilityInternal,
		"friends":    models.VisibilityUnknown,
		"":           models.VisibilityUnknown,
	}
	for in, want := range visibilities {
		assert.Equal(t, want, in.ToModel(), "visibility %q", in)
	}

	kinds := map[plugin.RefKind]models.RefKind{
		"call":               models.RefCall,
		"type":               models.RefTypeReference,
		"field_access":       models.RefFieldAccess,
		"use":                models.RefImport,
		"implements":         models.RefInheritance,
		"macro":              models.RefMacroInvocation,
		"write":              models.RefVariableReference,
		"variable-reference": models.RefVariableReference,
		"telepathy":          models.RefUnknown,
	}
	for in, want := range kinds {
		assert.Equal(t, want, in.ToModel(), "ref kind %q", in)
	}
}

func TestAdapterFailuresYieldEmpty(t *testing.T) {
	cases := map[string]plugin.Transport{
		"invoke": plugin.TransportFunc(func(context.Context, []byte) ([]byte, error) {
			return nil, errors.New("boom")
		}),
		"decode": plugin.TransportFunc(func(context.Context, []byte) ([]byte, error) {
			return []byte("not json"), nil
		}),
		"reported": plugin.TransportFunc(func(context.Context, []byte) ([]byte, error) {
			return []byte(`{"error":"cannot parse","symbols":[{"name":"x","kind":12}]}`), nil
		}),
	}
	for name, tr := range cases {
		t.Run(name, func(t *testing.T) {
			a := plugin.New("python", tr, zaptest.NewLogger(t))
			assert.Empty(t, a.ExtractSymbols(context.Background(), []byte(sample), nil))
			assert.Empty(t, a.ExtractReferences(context.Background(), []byte(sample), nil))
		})
	}
}

func TestKindMapping(t *testing.T) {
	for k := plugin.SymbolKind(1); k <= 26; k++ {
		assert.NotEmpty(t, k.ToModel())
	}
	assert.Equal(t, models.SymbolStruct, plugin.SymbolKindStruct.ToModel())
	assert.Equal(t, models.SymbolTrait, plugin.SymbolKindTrait.ToModel())
	assert.Equal(t, models.SymbolMacro, plugin.SymbolKindMacro.ToModel())
	assert.Equal(t, models.SymbolDestructor, plugin.SymbolKindDestructor.ToModel())
	assert.Equal(t, models.SymbolType, plugin.SymbolKindTypeAlias.ToModel())
	assert.Equal(t, models.SymbolUnknown, plugin.SymbolKindFile.ToModel())
	assert.Equal(t, models.SymbolUnknown, plugin.SymbolKind(0).ToModel())
}

func TestExecTransport(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses a shell script")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	script := filepath.Join(t.TempDir(), "plugin.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\ncat >/dev/null\necho '{\"symbols\":[{\"name\":\"main\",\"kind\":12}]}'\n"), 0o755))

	a := plugin.New("shell", &plugin.ExecTransport{Command: script}, zaptest.NewLogger(t))
	syms := a.ExtractSymbols(context.Background(), []byte("echo hi\n"), nil)
	require.Len(t, syms, 1)
	assert.Equal(t, "main", syms[0].Name)

	failing := plugin.New("shell", &plugin.ExecTransport{Command: filepath.Join(t.TempDir(), "missing")}, zaptest.NewLogger(t))
	assert.Empty(t, failing.ExtractSymbols(context.Background(), []byte("x"), nil))
}
