package benchmarks

import (
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/comalice/activex/dpp"
	"github.com/comalice/activex/internal/core"
	"github.com/comalice/activex/internal/primitives"
)

// BenchmarkPoolRoundTrip allocates and recycles one pooled event.
func BenchmarkPoolRoundTrip(b *testing.B) {
	ps, err := primitives.NewPoolSet(primitives.PoolConfig{BlockSize: 16, Blocks: 4})
	if err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		e := ps.New(SigTick, 8)
		ps.Retain(e)
		ps.Release(e)
	}
}

// BenchmarkMemoryFootprint builds a full table per iteration.
func BenchmarkMemoryFootprint(b *testing.B) {
	cfg := dpp.DefaultConfig()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := dpp.New(cfg); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkSnapshotDecode(b *testing.B) {
	data := GenSnapshotYAML(64)
	b.SetBytes(int64(len(data)))
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		var snap core.Snapshot
		if err := yaml.Unmarshal(data, &snap); err != nil {
			b.Fatal(err)
		}
	}
}

func TestPoolRoundTripRecycles(t *testing.T) {
	ps, err := primitives.NewPoolSet(primitives.PoolConfig{BlockSize: 16, Blocks: 1})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		e := ps.New(SigTick, 8)
		ps.Retain(e)
		ps.Release(e)
	}
	if n := ps.Outstanding(); n != 0 {
		t.Fatalf("outstanding = %d, want 0", n)
	}
}
