package registry

import "testing"

func TestNewValidConfig(t *testing.T) {
	r, err := New(0, 3, 4, 8, 1000, 1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if r.Workers() != 2 {
		t.Fatalf("Workers() = %d, want 2", r.Workers())
	}
	if r.IsBroadcaster() {
		t.Fatal("rank 0 of 3 must not be the broadcaster")
	}
	if r.PollInterval == 0 {
		t.Fatal("PollInterval should default to a non-zero value")
	}
}

func TestIsBroadcaster(t *testing.T) {
	r, err := New(2, 3, 4, 8, 1000, 1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !r.IsBroadcaster() {
		t.Fatal("rank 2 of 3 must be the broadcaster")
	}
}

func TestNewRejectsInvalidInput(t *testing.T) {
	cases := []struct {
		name                                                 string
		worldRank, worldSize, numBlocks, blockSize, logLevel int
	}{
		{"worldSizeTooSmall", 0, 1, 4, 8, 1},
		{"rankOutOfRange", 5, 3, 4, 8, 1},
		{"blockSizeZero", 0, 3, 4, 0, 1},
		{"blockSizeTooBig", 0, 3, 4, 33, 1},
		{"numBlocksBelowWorkers", 0, 3, 1, 8, 1},
		{"numBlocksTooBig", 0, 3, 33, 8, 1},
		{"logLevelInvalid", 0, 3, 4, 8, 3},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := New(c.worldRank, c.worldSize, c.numBlocks, c.blockSize, 0, c.logLevel); err == nil {
				t.Fatalf("expected error for case %s", c.name)
			}
		})
	}
}

func TestWithPollInterval(t *testing.T) {
	r, err := New(0, 3, 4, 8, 0, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r2 := r.WithPollInterval(5)
	if r2.PollInterval != 5 {
		t.Fatalf("PollInterval = %d, want 5", r2.PollInterval)
	}
	if r.PollInterval == r2.PollInterval {
		t.Fatal("WithPollInterval must not mutate the receiver")
	}
}
