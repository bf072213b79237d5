package model

import (
	"testing"

	"github.com/born-ml/hypernet/internal/backend/cpu"
	"github.com/born-ml/hypernet/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scaleK(factor float32) PatchFunc {
	return func(_ int, q, k, v *tensor.Tensor) (*tensor.Tensor, *tensor.Tensor, *tensor.Tensor) {
		return q, k.MulScalar(factor), v
	}
}

func addK(delta float32) PatchFunc {
	return func(_ int, q, k, v *tensor.Tensor) (*tensor.Tensor, *tensor.Tensor, *tensor.Tensor) {
		return q, k.Add(tensor.Full(tensor.Shape{1}, delta, k.Backend())), v
	}
}

func TestPatcher_CloneIsIndependent(t *testing.T) {
	base := New("sd15")
	base.SetAttn1Patch(scaleK(2))

	clone := base.Clone()
	clone.SetAttn1Patch(scaleK(3))
	clone.SetAttn2Patch(scaleK(4))

	assert.Len(t, base.Attn1Patches(), 1)
	assert.Empty(t, base.Attn2Patches())
	assert.Len(t, clone.Attn1Patches(), 2)
	assert.Len(t, clone.Attn2Patches(), 1)
	assert.Equal(t, "sd15", clone.Name())
}

func TestPatcher_RunOrder(t *testing.T) {
	backend := cpu.New()
	q := tensor.Ones(tensor.Shape{1, 2}, backend)
	k := tensor.Ones(tensor.Shape{1, 2}, backend)
	v := tensor.Ones(tensor.Shape{1, 2}, backend)

	p := New("m")
	p.SetAttn2Patch(scaleK(2))
	p.SetAttn2Patch(addK(1))

	gotQ, gotK, gotV := p.RunAttn2(0, q, k, v)
	assert.Same(t, q, gotQ)
	assert.Same(t, v, gotV)
	// (1*2)+1, not (1+1)*2
	assert.Equal(t, []float32{3, 3}, gotK.Data())

	// attn1 has nothing registered.
	_, k1, _ := p.RunAttn1(0, q, k, v)
	assert.Same(t, k, k1)
}

func TestPatcher_AccessorsReturnCopies(t *testing.T) {
	p := New("m")
	p.SetAttn1Patch(scaleK(2))

	patches := p.Attn1Patches()
	require.Len(t, patches, 1)
	patches[0] = nil

	assert.NotNil(t, p.Attn1Patches()[0])
}
