package ctproject

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultArtifactName(t *testing.T) {
	params := eidParams([]float64{0, 90})
	params.Derived.BinningFactor = 4
	s := NewSinogram2D(2, 2)
	p, err := New2D(params, map[EnergyBin]*Sinogram2D{BinTotal: s})
	require.NoError(t, err)

	assert.Equal(t, "walnutct_project_2d_binning_4", DefaultArtifactName(p))
}

func TestSaveUsesExplicitNameVerbatim(t *testing.T) {
	dir := t.TempDir()
	params := eidParams([]float64{0, 90})
	s := NewSinogram2D(2, 8)
	p, err := New2D(params, map[EnergyBin]*Sinogram2D{BinTotal: s})
	require.NoError(t, err)

	name, err := Save(p, dir, "my_custom_artifact")
	require.NoError(t, err)
	assert.Equal(t, "my_custom_artifact", name)

	_, err = os.Stat(filepath.Join(dir, "my_custom_artifact.yaml"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "my_custom_artifact.total.f64"))
	assert.NoError(t, err)
}

func TestSaveLoadRoundTrip3D(t *testing.T) {
	dir := t.TempDir()
	rng := rand.New(rand.NewSource(21))
	params := eidParams([]float64{0, 90, 180, 270})
	s := random3D(rng, 8, 4, 8)
	p, err := New3D(params, map[EnergyBin]*Sinogram3D{BinTotal: s})
	require.NoError(t, err)

	name, err := Save(p, dir, "")
	require.NoError(t, err)
	assert.Equal(t, DefaultArtifactName(p), name)

	loaded, err := Load(dir, name)
	require.NoError(t, err)

	assert.Equal(t, Mode3D, loaded.Mode)
	assert.Equal(t, p.Params.ProjectName, loaded.Params.ProjectName)
	assert.Equal(t, p.Params.Angles, loaded.Params.Angles)
	assert.Equal(t, p.Params.DetectorType, loaded.Params.DetectorType)
	require.NotNil(t, loaded.Params.Derived)
	assert.Equal(t, p.Params.Derived.EffectivePixelSize, loaded.Params.Derived.EffectivePixelSize)

	got, err := loaded.Sinogram3D(BinTotal)
	require.NoError(t, err)
	want, err := p.Sinogram3D(BinTotal)
	require.NoError(t, err)
	assert.Equal(t, want.NumCols, got.NumCols)
	assert.Equal(t, want.NumAngles, got.NumAngles)
	assert.Equal(t, want.NumRows, got.NumRows)
	assert.Equal(t, want.Raw(), got.Raw())
}

func TestSaveLoadRoundTripPCD2D(t *testing.T) {
	dir := t.TempDir()
	rng := rand.New(rand.NewSource(23))
	params := pcdParams([]float64{0, 90})

	bufs := map[EnergyBin]*Sinogram2D{
		BinTotal: random2D(rng, 2, 8),
		BinLow:   random2D(rng, 2, 8),
		BinHigh:  random2D(rng, 2, 8),
	}
	p, err := New2D(params, bufs)
	require.NoError(t, err)

	name, err := Save(p, dir, "")
	require.NoError(t, err)

	loaded, err := Load(dir, name)
	require.NoError(t, err)
	assert.ElementsMatch(t, []EnergyBin{BinTotal, BinLow, BinHigh}, loaded.Bins())

	for _, bin := range loaded.Bins() {
		got, err := loaded.Sinogram2D(bin)
		require.NoError(t, err)
		assert.Equal(t, bufs[bin].Raw(), got.Raw(), "bin %s", bin)
	}
}

func TestLoadRejectsTruncatedPCDArtifact(t *testing.T) {
	dir := t.TempDir()
	rng := rand.New(rand.NewSource(29))
	params := pcdParams([]float64{0, 90})
	p, err := New2D(params, map[EnergyBin]*Sinogram2D{
		BinTotal: random2D(rng, 2, 8),
		BinLow:   random2D(rng, 2, 8),
		BinHigh:  random2D(rng, 2, 8),
	})
	require.NoError(t, err)

	name, err := Save(p, dir, "")
	require.NoError(t, err)

	// Removing one bin's buffer makes the artifact unloadable; a
	// partially populated project must never come back.
	require.NoError(t, os.Remove(filepath.Join(dir, name+".high.f64")))
	_, err = Load(dir, name)
	assert.Error(t, err)
}

func TestLoadMissingArtifact(t *testing.T) {
	_, err := Load(t.TempDir(), "nope")
	assert.Error(t, err)
}
