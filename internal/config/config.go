// Package config loads the cluster topology (address per rank) that
// internal/transport dials at startup, and resolves this process's own
// rank from the environment. There is no equivalent in the original
// MPI program, which got rank assignment and a fully-connected process
// group for free from mpirun; see SPEC_FULL.md §1.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"github.com/dsmlab/dsmengine/internal/dsmerr"
	"github.com/dsmlab/dsmengine/internal/transport"
)

// Cluster is the on-disk shape of the peer topology file: one address
// per rank, keyed by rank as a string (TOML table keys are strings).
type Cluster struct {
	Peers map[string]string `toml:"peers"`
}

// LoadTopology reads a TOML file mapping each rank to the address it
// listens on.
func LoadTopology(path string) (transport.Topology, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, dsmerr.New(dsmerr.Config, "config.LoadTopology", err)
	}
	var c Cluster
	if err := toml.Unmarshal(b, &c); err != nil {
		return nil, dsmerr.New(dsmerr.Config, "config.LoadTopology", err)
	}
	topo := make(transport.Topology, len(c.Peers))
	for rankStr, addr := range c.Peers {
		rank, err := strconv.Atoi(rankStr)
		if err != nil {
			return nil, dsmerr.New(dsmerr.Config, "config.LoadTopology", fmt.Errorf("peers table key %q is not an integer rank", rankStr))
		}
		topo[rank] = addr
	}
	if len(topo) == 0 {
		return nil, dsmerr.New(dsmerr.Config, "config.LoadTopology", fmt.Errorf("topology file %s has no peers", path))
	}
	return topo, nil
}

// Env holds the environment-sourced startup overrides the original CLI
// had no use for (mpirun supplied them): this process's rank and where
// to find the peer topology file. DSM_PEERS_FILE defaults to
// "cluster.toml" when unset.
type Env struct {
	Rank      int
	PeersFile string
}

// LoadEnv optionally loads a .env file via godotenv (missing is not an
// error — the teacher's config loader treats an absent optional file
// the same way) and reads DSM_RANK / DSM_PEERS_FILE.
func LoadEnv() (Env, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Env{}, dsmerr.New(dsmerr.Config, "config.LoadEnv", err)
	}

	rankStr := os.Getenv("DSM_RANK")
	if rankStr == "" {
		return Env{}, dsmerr.New(dsmerr.Config, "config.LoadEnv", fmt.Errorf("DSM_RANK is not set"))
	}
	rank, err := strconv.Atoi(rankStr)
	if err != nil {
		return Env{}, dsmerr.New(dsmerr.Config, "config.LoadEnv", fmt.Errorf("DSM_RANK %q is not an integer", rankStr))
	}

	peersFile := os.Getenv("DSM_PEERS_FILE")
	if peersFile == "" {
		peersFile = "cluster.toml"
	}

	return Env{Rank: rank, PeersFile: peersFile}, nil
}
