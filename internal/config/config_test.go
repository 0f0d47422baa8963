package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTopologyFile(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "cluster.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write topology file: %v", err)
	}
	return path
}

func TestLoadTopology(t *testing.T) {
	path := writeTopologyFile(t, `
[peers]
0 = "127.0.0.1:9000"
1 = "127.0.0.1:9001"
2 = "127.0.0.1:9002"
`)
	topo, err := LoadTopology(path)
	if err != nil {
		t.Fatalf("LoadTopology: %v", err)
	}
	if len(topo) != 3 {
		t.Fatalf("got %d peers, want 3", len(topo))
	}
	if topo[1] != "127.0.0.1:9001" {
		t.Fatalf("topo[1] = %q, want 127.0.0.1:9001", topo[1])
	}
}

func TestLoadTopologyRejectsEmpty(t *testing.T) {
	path := writeTopologyFile(t, `[peers]`+"\n")
	if _, err := LoadTopology(path); err == nil {
		t.Fatal("expected error for a topology with no peers")
	}
}

func TestLoadTopologyMissingFile(t *testing.T) {
	if _, err := LoadTopology(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatal("expected error for a missing topology file")
	}
}

func TestLoadEnvRequiresRank(t *testing.T) {
	t.Setenv("DSM_RANK", "")
	t.Setenv("DSM_PEERS_FILE", "")
	if _, err := LoadEnv(); err == nil {
		t.Fatal("expected error when DSM_RANK is unset")
	}
}

func TestLoadEnvDefaultsPeersFile(t *testing.T) {
	t.Setenv("DSM_RANK", "2")
	t.Setenv("DSM_PEERS_FILE", "")
	env, err := LoadEnv()
	if err != nil {
		t.Fatalf("LoadEnv: %v", err)
	}
	if env.Rank != 2 {
		t.Fatalf("Rank = %d, want 2", env.Rank)
	}
	if env.PeersFile != "cluster.toml" {
		t.Fatalf("PeersFile = %q, want default cluster.toml", env.PeersFile)
	}
}
