package hdf5

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// linkedFiles writes data.h5 with /grp/vals and main.h5 linking into it.
func linkedFiles(t *testing.T) (dir string) {
	t.Helper()
	dir = t.TempDir()

	data, err := Create(filepath.Join(dir, "data.h5"))
	require.NoError(t, err)
	_, err = data.CreateTable("/grp/vals", pairType(), pairRows(seq(0, 3), []string{"a", "b", "c"}))
	require.NoError(t, err)
	require.NoError(t, data.SetAttr("/grp/vals", "unit", "m"))
	require.NoError(t, data.CreateSoftLink("/grp/alias", "vals"))
	require.NoError(t, data.Close())

	top, err := Create(filepath.Join(dir, "main.h5"))
	require.NoError(t, err)
	require.NoError(t, top.CreateExternalLink("/ext", "data.h5", "/grp"))
	require.NoError(t, top.CreateExternalLink("/vals", "data.h5", "grp/vals"))
	require.NoError(t, top.Close())
	return dir
}

func TestExternalLinks(t *testing.T) {
	dir := linkedFiles(t)
	f, err := Open(filepath.Join(dir, "main.h5"))
	require.NoError(t, err)
	defer f.Close()

	kind, err := f.Stat("/ext")
	require.NoError(t, err)
	assert.Equal(t, KindGroup, kind)
	kind, err = f.Stat("/ext/vals")
	require.NoError(t, err)
	assert.Equal(t, KindDataset, kind)

	for _, p := range []string{"/vals", "/ext/vals", "/ext/alias"} {
		ds, err := f.OpenDataset(p)
		require.NoError(t, err, p)
		rows, err := ds.ReadRows(0, 3)
		require.NoError(t, err, p)
		assert.Equal(t, []string{"a", "b", "c"}, rows.Strings["name"], p)
	}

	a, err := f.Attr("/vals", "unit")
	require.NoError(t, err)
	s, err := a.String()
	require.NoError(t, err)
	assert.Equal(t, "m", s)

	children, err := f.Children("/ext")
	require.NoError(t, err)
	assert.Equal(t, []Child{{"vals", KindDataset}, {"alias", KindDataset}}, children)
}

func TestExternalLinkWalk(t *testing.T) {
	dir := linkedFiles(t)
	f, err := Open(filepath.Join(dir, "main.h5"))
	require.NoError(t, err)
	defer f.Close()

	var seen []string
	require.NoError(t, f.Walk("/", func(p string, kind Kind, err error) error {
		require.NoError(t, err)
		seen = append(seen, p+":"+kind.String())
		return nil
	}))
	assert.Equal(t, []string{"/:group", "/ext:group", "/vals:dataset"}, seen)
}

func TestExternalLinkWrites(t *testing.T) {
	dir := linkedFiles(t)
	f, err := OpenReadWrite(filepath.Join(dir, "main.h5"))
	require.NoError(t, err)
	defer f.Close()

	assert.ErrorIs(t, f.SetAttr("/vals", "x", "y"), ErrUnsupported)
	ds, err := f.OpenDataset("/vals")
	require.NoError(t, err)
	assert.ErrorIs(t, ds.Resize(1), ErrUnsupported)
	_, err = f.CreateGroup("/ext/new")
	assert.ErrorIs(t, err, ErrUnsupported)
	assert.ErrorIs(t, f.CreateExternalLink("/ext", "data.h5", "/"), ErrExists)
	assert.ErrorIs(t, f.CreateExternalLink("/other", "", "/"), ErrInvalidPath)

	require.NoError(t, f.Delete("/ext"))
	assert.False(t, f.Exists("/ext"))
	assert.True(t, f.Exists("/vals"))
}

func TestBrokenExternalLink(t *testing.T) {
	f, p := createFile(t)
	require.NoError(t, f.CreateExternalLink("/gone", "missing.h5", "/x"))
	require.NoError(t, f.CreateSoftLink("/loop", "/loop"))
	f = reopen(t, f, p)

	_, err := f.Stat("/gone")
	assert.ErrorContains(t, err, "missing.h5")
	_, err = f.Stat("/loop")
	assert.ErrorIs(t, err, ErrLinkDepth)
}
