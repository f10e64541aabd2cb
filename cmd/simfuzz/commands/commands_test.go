/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: commands_test.go
Description: Tests for settings resolution, flag value parsing and the utility commands.
*/

package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kleascm/simfuzz/pkg/core"
	"github.com/kleascm/simfuzz/pkg/fault"
	"github.com/kleascm/simfuzz/pkg/provision"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseSettings(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set("input_dir", "in")
	viper.Set("corpus_dir", "corpus")
	viper.Set("solutions_dir", "solutions")
	viper.Set("base_dir", "/opt/platform")
	viper.Set("simulator", "%simics%/simics")
	viper.Set("arch", "x86-64")
}

func TestLoadSettings(t *testing.T) {
	baseSettings(t)
	viper.Set("cores", 4)
	viper.Set("iterations", 1000)
	viper.Set("duration", "10m")
	viper.Set("packages", []string{"2096:6.0.185", "1000"})
	viper.Set("files", []string{"harness.py:%simics%/scripts/harness.py"})
	viper.Set("commands", []string{"CONFIG:%simics%/scripts/app.yml"})
	viper.Set("artifact", "tsffs.so")
	viper.Set("faults", []string{"Page", "Triple"})
	viper.Set("timeout_is_crash", true)
	viper.Set("keep_temp_projects", true)

	s, err := LoadSettings()
	require.NoError(t, err)

	assert.Equal(t, 4, s.Campaign.Workers)
	assert.Equal(t, int64(1000), s.Campaign.Iterations)
	assert.Equal(t, 10*time.Minute, s.Campaign.Duration)
	assert.Equal(t, core.DefaultExecTimeout, s.Campaign.ExecTimeout)
	assert.Equal(t, []string{"CONFIG:%simics%/scripts/app.yml"}, s.Campaign.Commands)
	assert.Equal(t, "solutions", s.SummaryDir)

	assert.True(t, s.Campaign.Policy.TimeoutIsCrash)
	assert.True(t, s.Campaign.Policy.Contains(fault.FromX86_64(fault.Page)))
	assert.False(t, s.Campaign.Policy.Contains(fault.FromX86_64(fault.Double)))

	assert.Equal(t, []provision.PackageSelection{
		{ID: 2096, Version: "6.0.185"},
		{ID: 1000, Version: provision.LatestVersion},
	}, s.Workspace.Packages)
	assert.Equal(t, []provision.FileMapping{
		{Source: "harness.py", Destination: "%simics%/scripts/harness.py"},
	}, s.Workspace.Files)
	require.NotNil(t, s.Workspace.Artifact)
	assert.Equal(t, provision.LibraryArtifact{Component: "tsffs", Kind: provision.Dynamic}, *s.Workspace.Artifact)
	assert.True(t, s.Workspace.Keep)
}

func TestLoadSettingsNoKeepWins(t *testing.T) {
	baseSettings(t)
	viper.Set("keep_temp_projects", true)
	viper.Set("no_keep_temp_projects", true)

	s, err := LoadSettings()
	require.NoError(t, err)
	assert.False(t, s.Workspace.Keep)
}

func TestLoadSettingsRejectsBadValues(t *testing.T) {
	cases := map[string]func(){
		"package":   func() { viper.Set("packages", []string{"abc:1.0"}) },
		"file":      func() { viper.Set("files", []string{"no-destination"}) },
		"artifact":  func() { viper.Set("artifact", "tsffs.dll") },
		"arch":      func() { viper.Set("arch", "sparc") },
		"fault":     func() { viper.Set("faults", []string{"Meltdown"}) },
		"simulator": func() { viper.Set("simulator", "") },
		"input":     func() { viper.Set("input_dir", "") },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			baseSettings(t)
			mutate()
			_, err := LoadSettings()
			assert.Error(t, err)
		})
	}
}

func TestParseArtifact(t *testing.T) {
	a, err := parseArtifact("")
	require.NoError(t, err)
	assert.Nil(t, a)

	a, err = parseArtifact("my-module.a")
	require.NoError(t, err)
	assert.Equal(t, provision.Static, a.Kind)
	assert.Equal(t, "libmy_module.a", a.FileName())

	_, err = parseArtifact(".so")
	assert.Error(t, err)
}

func TestListFaultsMarksPolicy(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set("faults", []string{"Page"})

	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	require.NoError(t, ListFaults(cmd, nil))

	assert.Contains(t, out.String(), " *   14  Page\n")
	assert.Contains(t, out.String(), "      8  Double\n")
}

func TestCheckWritable(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "out")
	require.NoError(t, checkWritable(dir))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLogDirStatus(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "simfuzz_2026-01-01_00-00-00.log"), []byte("line\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "simfuzz_2026-01-02_00-00-00.log.gz"), []byte("gz"), 0644))

	line, err := logDirStatus(dir)
	require.NoError(t, err)
	assert.Equal(t, "✅ Log directory: "+dir+" (2 files, 1 compressed, 7 bytes)", line)
}
