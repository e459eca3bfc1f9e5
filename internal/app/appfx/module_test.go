package appfx

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/0x5457/code-index/cmd/cmdsfx"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
)

func TestAppModule(t *testing.T) {
	t.Setenv("CODEINDEX_LOG_LEVEL", "error")
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.go"),
		[]byte("package main\n\n// Greet says hello.\nfunc Greet() string { return \"hi\" }\n\nfunc main() { Greet() }\n"), 0o644))

	var (
		runner *cmdsfx.CommandRunner
		out    bytes.Buffer
	)
	app := NewApp(root, nil,
		fx.Supply(fx.Annotate(&out, fx.As(new(io.Writer)), fx.ResultTags(`name:"stdout"`))),
		fx.Populate(&runner),
	)

	ctx := context.Background()
	require.NoError(t, app.Start(ctx))
	defer func() {
		require.NoError(t, app.Stop(ctx))
	}()

	require.NoError(t, runner.RunIndex(ctx))
	assert.Contains(t, out.String(), "indexed 1 files")

	out.Reset()
	require.NoError(t, runner.RunSearch(ctx, "Greet", cmdsfx.ModeText, 5))
	assert.Contains(t, out.String(), "function Greet main.go:4-4")

	out.Reset()
	require.NoError(t, runner.RunSearch(ctx, "main", cmdsfx.ModeFiles, 5))
	assert.Contains(t, out.String(), "main.go (go)")

	out.Reset()
	require.NoError(t, runner.RunSearch(ctx, "func Greet says hello", cmdsfx.ModeSemantic, 1))
	assert.Contains(t, out.String(), "Greet")

	out.Reset()
	require.NoError(t, runner.RunRefs(ctx, "Greet"))
	assert.Contains(t, out.String(), "main.go:6 call in main")

	out.Reset()
	require.NoError(t, runner.RunOutline(ctx, "main.go"))
	assert.Contains(t, out.String(), "function Greet (public) 4-4")

	out.Reset()
	require.NoError(t, runner.RunStatus(ctx))
	assert.Contains(t, out.String(), "files: 1")
	assert.Contains(t, out.String(), "embedding_model: local-fixed")

	assert.Error(t, runner.RunSearch(ctx, "x", "fuzzy", 5))
}

func TestNewAppBindsFlags(t *testing.T) {
	root := t.TempDir()
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("embed-provider", "", "")
	require.NoError(t, flags.Parse([]string{"--embed-provider=nope"}))

	app := NewApp(root, flags)
	assert.Error(t, app.Err())
}
