package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardlens/benefit-cli/internal/model"
)

func resetSeedFlags() {
	runBank, runURL, runTextFile, runDocFile = "", "", "", ""
}

func TestBuildSeed_RequiresExactlyOne(t *testing.T) {
	resetSeedFlags()
	t.Cleanup(resetSeedFlags)

	_, err := buildSeed()
	require.Error(t, err)

	runBank = "emirates_nbd"
	runURL = "https://example.com"
	_, err = buildSeed()
	require.Error(t, err)
}

func TestBuildSeed_Bank(t *testing.T) {
	resetSeedFlags()
	t.Cleanup(resetSeedFlags)

	runBank = "emirates_nbd"
	seed, err := buildSeed()
	require.NoError(t, err)
	assert.Equal(t, model.SeedBank, seed.Kind)
	assert.Equal(t, "emirates_nbd", seed.BankKey)
}

func TestBuildSeed_TextFile(t *testing.T) {
	resetSeedFlags()
	t.Cleanup(resetSeedFlags)

	path := filepath.Join(t.TempDir(), "terms.txt")
	require.NoError(t, os.WriteFile(path, []byte("5% cashback on groceries"), 0o644))

	runTextFile = path
	seed, err := buildSeed()
	require.NoError(t, err)
	assert.Equal(t, model.SeedText, seed.Kind)
	assert.Equal(t, "5% cashback on groceries", seed.Text)
}

func TestBuildSeed_Document(t *testing.T) {
	resetSeedFlags()
	t.Cleanup(resetSeedFlags)

	path := filepath.Join(t.TempDir(), "guide.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.7"), 0o644))

	runDocFile = path
	seed, err := buildSeed()
	require.NoError(t, err)
	assert.Equal(t, model.SeedDocument, seed.Kind)
	assert.Equal(t, "guide.pdf", seed.DocumentName)
	assert.NotEmpty(t, seed.Document)
}

func TestBuildSeed_MissingFile(t *testing.T) {
	resetSeedFlags()
	t.Cleanup(resetSeedFlags)

	runTextFile = filepath.Join(t.TempDir(), "missing.txt")
	_, err := buildSeed()
	require.Error(t, err)
}
