package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCaseDir(t *testing.T, base, name string, iterations int) string {
	t.Helper()
	dir := filepath.Join(base, name)
	require.NoError(t, os.Mkdir(dir, 0o755))
	for i := 1; i <= iterations; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(dir, fmt.Sprintf("t%d", i)), []byte{0}, 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, fmt.Sprintf("output.t%d", i)), []byte{0}, 0o644))
	}
	return dir
}

func TestTestCaseFromDir_CountsContiguousInputs(t *testing.T) {
	dir := writeCaseDir(t, t.TempDir(), "n1", 3)

	tc, err := TestCaseFromDir(dir)
	require.NoError(t, err)

	assert.Equal(t, "n1", tc.Name)
	assert.Equal(t, 3, tc.Iterations)
	assert.False(t, tc.ExpectedPass)
}

func TestTestCaseFromDir_GapEndsSequence(t *testing.T) {
	// GIVEN a directory with t1 and t3 but no t2
	dir := writeCaseDir(t, t.TempDir(), "p1", 1)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "t3"), []byte{0}, 0o644))

	// WHEN the case is built
	tc, err := TestCaseFromDir(dir)
	require.NoError(t, err)

	// THEN only the contiguous prefix counts
	assert.Equal(t, 1, tc.Iterations)
	assert.True(t, tc.ExpectedPass)
}

func TestTestCaseFromDir_NotADirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "n1")
	require.NoError(t, os.WriteFile(file, []byte{0}, 0o644))

	_, err := TestCaseFromDir(file)
	assert.Error(t, err)
}

func TestTestCase_IterationFilePaths(t *testing.T) {
	tc := &TestCase{Name: "n2", Path: "/suite/n2"}

	assert.Equal(t, "/suite/n2/t4", tc.InputFile(4))
	assert.Equal(t, "/suite/n2/output.t4", tc.OracleFile(4))
}

func TestDiscoverTestCases_FiltersAndSorts(t *testing.T) {
	base := t.TempDir()
	writeCaseDir(t, base, "p2", 1)
	writeCaseDir(t, base, "n1", 2)
	writeCaseDir(t, base, "p1", 1)
	writeCaseDir(t, base, "misc", 1) // prefix mismatch, ignored
	// Empty case directory and a stray file are both skipped.
	require.NoError(t, os.Mkdir(filepath.Join(base, "n9"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(base, "notes.txt"), []byte("x"), 0o644))

	cases, err := DiscoverTestCases(base)
	require.NoError(t, err)

	require.Len(t, cases, 3)
	assert.Equal(t, "n1", cases[0].Name)
	assert.Equal(t, "p1", cases[1].Name)
	assert.Equal(t, "p2", cases[2].Name)
	assert.False(t, cases[0].ExpectedPass)
	assert.True(t, cases[1].ExpectedPass)
}

func TestDiscoverTestCases_MissingBaseDir(t *testing.T) {
	_, err := DiscoverTestCases(filepath.Join(t.TempDir(), "absent"))
	assert.Error(t, err)
}
