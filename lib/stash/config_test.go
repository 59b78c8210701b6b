package stash

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveOptionsDefaults(t *testing.T) {
	opts := ResolveOptions(nil)

	assert.Equal(t, ".kvstash", opts.Dir)
	assert.Equal(t, "kvstash", opts.Database)
	assert.Equal(t, uint64(1), opts.Version)
	assert.Equal(t, "default", opts.DefaultCollection)
}

func TestResolveOptionsFromEnv(t *testing.T) {
	t.Setenv("KVSTASH_DIR", "/tmp/env-dir")
	t.Setenv("KVSTASH_DATABASE", "env-db")
	t.Setenv("KVSTASH_VERSION", "7")
	t.Setenv("KVSTASH_COLLECTION", "env-coll")
	InitEnvConfig()

	opts := ResolveOptions(nil)

	assert.Equal(t, "/tmp/env-dir", opts.Dir)
	assert.Equal(t, "env-db", opts.Database)
	assert.Equal(t, uint64(7), opts.Version)
	assert.Equal(t, "env-coll", opts.DefaultCollection)
}

func TestResolveOptionsOverridesBeatEnv(t *testing.T) {
	t.Setenv("KVSTASH_DATABASE", "env-db")
	t.Setenv("KVSTASH_VERSION", "7")
	InitEnvConfig()

	opts := ResolveOptions(&Options{
		Database: "override-db",
		Version:  3,
	})

	assert.Equal(t, "override-db", opts.Database)
	assert.Equal(t, uint64(3), opts.Version)
}

func TestResolveOptionsClampsVersion(t *testing.T) {
	opts := ResolveOptions(&Options{Version: 0})
	assert.GreaterOrEqual(t, opts.Version, uint64(1))
}
