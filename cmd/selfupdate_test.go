package cmd

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRelease compares versions as plain strings, which is enough for
// single-digit fixtures.
type fakeRelease string

func (r fakeRelease) LessOrEqual(other string) bool { return string(r) <= other }
func (r fakeRelease) Version() string               { return string(r) }

type fakeReleases struct {
	latest   release
	found    bool
	err      error
	applyErr error

	slugs   []string
	applied []release
}

func (f *fakeReleases) DetectLatest(_ context.Context, slug string) (release, bool, error) {
	f.slugs = append(f.slugs, slug)
	return f.latest, f.found, f.err
}

func (f *fakeReleases) Apply(_ context.Context, rel release) error {
	f.applied = append(f.applied, rel)
	return f.applyErr
}

func TestNewSelfUpdateCmd(t *testing.T) {
	c := newSelfUpdateCmd()

	assert.Equal(t, "self-update", c.Use)
	assert.NotEmpty(t, c.Short)
	assert.NotEmpty(t, c.Long)
	assert.NotNil(t, c.RunE)
	assert.Equal(t, "gitpod-io/wsagent", githubRepoSlug)
}

func TestSelfUpdate_RefusesDevelopmentVersions(t *testing.T) {
	for _, v := range []string{"", "dev"} {
		src := &fakeReleases{}
		err := selfUpdate(context.Background(), src, v, &bytes.Buffer{})

		require.Error(t, err, "version %q", v)
		assert.Contains(t, err.Error(), "cannot self-update a development version")
		assert.Empty(t, src.slugs, "no lookup for version %q", v)
	}
}

func TestRunSelfUpdate_UsesRootVersion(t *testing.T) {
	original := rootCmd.Version
	defer func() { rootCmd.Version = original }()
	rootCmd.Version = "dev"

	err := runSelfUpdate(nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "development version")
}

func TestSelfUpdate_DetectError(t *testing.T) {
	cause := errors.New("rate limited")
	src := &fakeReleases{err: cause}

	err := selfUpdate(context.Background(), src, "1.0.0", &bytes.Buffer{})

	require.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "detecting version")
	assert.Equal(t, []string{githubRepoSlug}, src.slugs)
	assert.Empty(t, src.applied)
}

func TestSelfUpdate_NoRelease(t *testing.T) {
	src := &fakeReleases{found: false}

	err := selfUpdate(context.Background(), src, "1.0.0", &bytes.Buffer{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "could not be found")
	assert.Empty(t, src.applied)
}

func TestSelfUpdate_AlreadyLatest(t *testing.T) {
	for _, latest := range []string{"1.0.0", "0.9.0"} {
		src := &fakeReleases{latest: fakeRelease(latest), found: true}
		var out bytes.Buffer

		err := selfUpdate(context.Background(), src, "1.0.0", &out)

		require.NoError(t, err)
		assert.Empty(t, src.applied, "latest %s", latest)
		assert.Equal(t, "Current version (1.0.0) is the latest\n", out.String())
	}
}

func TestSelfUpdate_AppliesNewerRelease(t *testing.T) {
	src := &fakeReleases{latest: fakeRelease("1.1.0"), found: true}
	var out bytes.Buffer

	err := selfUpdate(context.Background(), src, "1.0.0", &out)

	require.NoError(t, err)
	assert.Equal(t, []release{fakeRelease("1.1.0")}, src.applied)
	assert.Equal(t, "Successfully updated to version 1.1.0\n", out.String())
}

func TestSelfUpdate_ApplyError(t *testing.T) {
	cause := errors.New("permission denied")
	src := &fakeReleases{latest: fakeRelease("1.1.0"), found: true, applyErr: cause}
	var out bytes.Buffer

	err := selfUpdate(context.Background(), src, "1.0.0", &out)

	require.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "updating binary")
	assert.Empty(t, out.String())
}

func TestSelfUpdateCommandHelp(t *testing.T) {
	c := newSelfUpdateCmd()
	var buf bytes.Buffer
	c.SetOut(&buf)
	c.SetErr(&buf)
	c.SetArgs([]string{"--help"})

	require.NoError(t, c.Execute())
	assert.Contains(t, buf.String(), "Checks for the latest release")
	assert.Contains(t, buf.String(), "self-update")
}
