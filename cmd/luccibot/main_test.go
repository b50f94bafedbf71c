package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucci-labs/luccibot/pkg/config"
	"github.com/lucci-labs/luccibot/pkg/logger"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	configPath, skillsDir = "", "./skills"
	logger.Discard()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute())
	return out.String()
}

func TestResolveConfigPathPrecedence(t *testing.T) {
	configPath = ""
	t.Cleanup(func() { configPath = "" })

	got, err := resolveConfigPath(config.EnvOverrides{ConfigPath: "/env/config.json"})
	require.NoError(t, err)
	assert.Equal(t, "/env/config.json", got)

	configPath = "/flag/config.json"
	got, err = resolveConfigPath(config.EnvOverrides{ConfigPath: "/env/config.json"})
	require.NoError(t, err)
	assert.Equal(t, "/flag/config.json", got)
}

func TestConfigPathCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	out := execute(t, "config", "path", "--config", path)
	assert.Equal(t, path+"\n", out)
}

func TestConfigShowMasksKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		// hand edited
		"providers": {"openai": {"apiKey": "sk-live-abcd1234", "activeModels": ["gpt-4"]}},
		"defaultProvider": "openai"
	}`), 0600))

	out := execute(t, "config", "show", "--config", path)
	assert.NotContains(t, out, "sk-live")
	assert.Contains(t, out, "****1234")

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "openai", doc["defaultProvider"])
}

func TestSkillsCommand(t *testing.T) {
	dir := t.TempDir()
	skills := filepath.Join(dir, "skills")
	require.NoError(t, os.MkdirAll(skills, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(skills, "swap.sh"), []byte("#!/bin/sh\necho '{}'\n"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(skills, "skills.yaml"), []byte("skills:\n  swap:\n    description: Build a swap transaction\n"), 0644))

	out := execute(t, "skills", "--config", filepath.Join(dir, "config.json"), "--skills-dir", skills)
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "swap")
	assert.Contains(t, out, "Build a swap transaction")

	out = execute(t, "skills", "--config", filepath.Join(dir, "config.json"), "--skills-dir", filepath.Join(dir, "missing"))
	assert.Contains(t, out, "No skills found")
}
