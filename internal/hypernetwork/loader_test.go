package hypernetwork

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/born-ml/hypernet/internal/backend/cpu"
	"github.com/born-ml/hypernet/internal/bundle"
	"github.com/born-ml/hypernet/internal/logutil"
	"github.com/born-ml/hypernet/internal/model"
	"github.com/born-ml/hypernet/internal/paths"
	"github.com/born-ml/hypernet/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCheckpoint(t *testing.T, home, name string, b *bundle.Bundle) {
	t.Helper()
	path := filepath.Join(home, paths.Hypernetworks, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	_, err := bundle.WriteSafeTensors(path, b, bundle.SafeTensorsF32)
	require.NoError(t, err)
}

func newLoader(t *testing.T, home string) (*Loader, *bytes.Buffer) {
	t.Helper()
	var logs bytes.Buffer
	return &Loader{
		Folders: paths.New(home),
		Backend: cpu.New(),
		Device:  tensor.CPU,
		Logger:  logutil.NewLogger(&logs, slog.LevelDebug),
	}, &logs
}

func TestLoader_Load(t *testing.T) {
	home := t.TempDir()
	writeCheckpoint(t, home, "anime.safetensors", singleDim(t, "4",
		branch(t, identityLayer("linear.0", 4)),
		branch(t, identityLayer("linear.0", 4))))

	loader, logs := newLoader(t, home)
	base := model.New("sd15")

	patched, err := loader.Load(context.Background(), base, "anime.safetensors", 1.0)
	require.NoError(t, err)
	assert.NotSame(t, base, patched)
	assert.Empty(t, base.Attn1Patches())
	assert.Empty(t, base.Attn2Patches())

	attn1 := patched.Attn1Patches()
	attn2 := patched.Attn2Patches()
	require.Len(t, attn1, 1)
	require.Len(t, attn2, 1)
	assert.Same(t, attn1[0], attn2[0])

	patch, ok := attn1[0].(*Patch)
	require.True(t, ok)
	assert.Equal(t, []int{4}, patch.Dims())
	assert.Contains(t, logs.String(), "loaded hypernetwork")

	b := cpu.New()
	k := tensor.Ones(tensor.Shape{2, 4}, b)
	_, gotK, _ := patched.RunAttn2(0, k, k, k)
	assert.Equal(t, []float32{2, 2, 2, 2, 2, 2, 2, 2}, gotK.Data())
}

func TestLoader_UnsupportedFormatReturnsUnpatchedClone(t *testing.T) {
	home := t.TempDir()
	hb := singleDim(t, "4",
		branch(t, identityLayer("linear.0", 4)),
		branch(t, identityLayer("linear.0", 4)))
	hb.Set("is_layer_norm", true)
	writeCheckpoint(t, home, "ln.safetensors", hb)

	loader, logs := newLoader(t, home)
	base := model.New("sd15")

	patched, err := loader.Load(context.Background(), base, "ln.safetensors", 1.0)
	require.NoError(t, err)
	require.NotNil(t, patched)
	assert.NotSame(t, base, patched)
	assert.Empty(t, patched.Attn1Patches())
	assert.Empty(t, patched.Attn2Patches())

	out := logs.String()
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "unsupported hypernetwork format")
	assert.Contains(t, out, "flags.is_layer_norm=true")

	b := cpu.New()
	k := tensor.Ones(tensor.Shape{1, 4}, b)
	_, gotK, _ := patched.RunAttn1(0, k, k, k)
	assert.Same(t, k, gotK)
}

func TestLoader_UnparseableFlagIsSkipped(t *testing.T) {
	home := t.TempDir()
	hb := singleDim(t, "4",
		branch(t, identityLayer("linear.0", 4)),
		branch(t, identityLayer("linear.0", 4)))
	hb.Set("use_dropout", "yes")
	writeCheckpoint(t, home, "yes.safetensors", hb)

	loader, logs := newLoader(t, home)
	patched, err := loader.Load(context.Background(), model.New("sd15"), "yes.safetensors", 1.0)
	require.NoError(t, err)
	assert.Empty(t, patched.Attn1Patches())
	assert.Empty(t, patched.Attn2Patches())
	assert.Contains(t, logs.String(), "flags.use_dropout=true")
}

func TestLoader_Errors(t *testing.T) {
	home := t.TempDir()
	writeCheckpoint(t, home, "empty.safetensors", bundle.New(""))
	writeCheckpoint(t, home, "wide.safetensors", singleDim(t, "4",
		branch(t, layer{name: "l", out: 2, in: 4, weight: make([]float32, 8), bias: make([]float32, 2)}),
		branch(t)))

	loader, _ := newLoader(t, home)
	base := model.New("sd15")
	ctx := context.Background()

	_, err := loader.Load(ctx, base, "missing.pt", 1.0)
	assert.ErrorIs(t, err, paths.ErrNotFound)

	_, err = loader.Load(ctx, base, "wide.safetensors", 1.0)
	assert.ErrorIs(t, err, ErrMalformedBundle)

	_, err = loader.Load(ctx, base, "empty.safetensors", 10.5)
	assert.Error(t, err)

	_, err = loader.Load(ctx, base, "../outside.pt", 1.0)
	assert.Error(t, err)

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = loader.Load(canceled, base, "empty.safetensors", 1.0)
	assert.ErrorIs(t, err, context.Canceled)

	// Empty bundle: nothing to patch, but the patch is still installed.
	patched, err := loader.Load(ctx, base, "empty.safetensors", -10)
	require.NoError(t, err)
	assert.Len(t, patched.Attn1Patches(), 1)
}

func TestInputs(t *testing.T) {
	home := t.TempDir()
	writeCheckpoint(t, home, "b.safetensors", bundle.New(""))
	writeCheckpoint(t, home, "a/c.safetensors", bundle.New(""))

	inputs, err := Inputs(paths.New(home))
	require.NoError(t, err)
	assert.Equal(t, "MODEL", inputs.Model)
	assert.Equal(t, []string{"a/c.safetensors", "b.safetensors"}, inputs.HypernetworkName)
	assert.InDelta(t, 1.0, inputs.Strength.Default, 1e-9)
	assert.InDelta(t, -10.0, inputs.Strength.Min, 1e-9)
	assert.InDelta(t, 10.0, inputs.Strength.Max, 1e-9)
	assert.InDelta(t, 0.01, inputs.Strength.Step, 1e-9)

	assert.NoError(t, StrengthInput.Validate(10))
	assert.NoError(t, StrengthInput.Validate(-10))
	assert.Error(t, StrengthInput.Validate(10.01))
	assert.Error(t, StrengthInput.Validate(-11))
}
