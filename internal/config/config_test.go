package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func useTempFolder(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(FolderEnvVar, dir)
	return dir
}

func TestLoadUserProfileCreatesOnFirstRun(t *testing.T) {
	dir := useTempFolder(t)

	p, err := LoadUserProfile()
	require.NoError(t, err)
	assert.NotEmpty(t, p.UserID)
	assert.Equal(t, userProfileVersion, p.Version)

	_, err = os.Stat(filepath.Join(dir, "user.json"))
	require.NoError(t, err)

	// A second load returns the same identity.
	again, err := LoadUserProfile()
	require.NoError(t, err)
	assert.Equal(t, p.UserID, again.UserID)
}

func TestUserProfileUpgradeFromV1(t *testing.T) {
	dir := useTempFolder(t)
	v1 := []byte(`{"version": 1, "static_user_id": "abc-123"}`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "user.json"), v1, 0o644))

	p, err := LoadUserProfile()
	require.NoError(t, err)
	assert.Equal(t, "abc-123", p.UserID)
	assert.Equal(t, userProfileVersion, p.Version)
	assert.NotNil(t, p.Fields)
	assert.NotNil(t, p.Checklist)
}

func TestUserProfileTooNewFails(t *testing.T) {
	dir := useTempFolder(t)
	future := []byte(`{"version": 99, "user_id": "x"}`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "user.json"), future, 0o644))

	_, err := LoadUserProfile()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user_profile_too_new")
}

func TestConnectionsRoundTrip(t *testing.T) {
	useTempFolder(t)

	list, err := LoadConnections()
	require.NoError(t, err)
	assert.Empty(t, list)

	want := []Connection{{Name: "prod", Account: "acme", Username: "ana"}}
	require.NoError(t, SaveConnections(want))

	got, err := LoadConnections()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoadRules(t *testing.T) {
	dir := useTempFolder(t)
	rulesDir := filepath.Join(dir, "rules")
	require.NoError(t, os.MkdirAll(rulesDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(rulesDir, "b.md"), []byte("second"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(rulesDir, "a.md"), []byte("first"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(rulesDir, "skip.txt"), []byte("no"), 0o644))

	rules, err := LoadRules()
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "a", rules[0].Name)
	assert.Equal(t, "first", rules[0].Content)
	assert.Equal(t, "b", rules[1].Name)
}

func TestLoadCodeOptionsFile(t *testing.T) {
	dir := useTempFolder(t)
	path := filepath.Join(dir, "opts.yaml")
	yaml := []byte("as_function: true\nfunction_name: run_it\ncomments: false\n")
	require.NoError(t, os.WriteFile(path, yaml, 0o644))

	opts, err := LoadCodeOptionsFile(path)
	require.NoError(t, err)
	assert.True(t, opts.AsFunction)
	assert.Equal(t, "run_it", opts.FunctionName)
	assert.False(t, opts.Comments)

	// Empty path means defaults.
	def, err := LoadCodeOptionsFile("")
	require.NoError(t, err)
	assert.True(t, def.Comments)
}
