package benchmarks

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/swar00pduthks/Aaf/pkg/aaf"
	"github.com/swar00pduthks/Aaf/pkg/aaf/statestore"
)

func largeState() aaf.State {
	values := make([]any, 100)
	for i := range values {
		values[i] = i
	}
	meta := make(map[string]any, 20)
	for i := 0; i < 20; i++ {
		meta[nodeID(i)] = strings.Repeat("v", 32)
	}
	return aaf.StateOf("id", "bench", "values", values, "metadata", meta)
}

func sqliteBackend(b *testing.B) *statestore.SQLiteBackend {
	b.Helper()
	backend, err := statestore.NewSQLiteBackend(filepath.Join(b.TempDir(), "bench.db"))
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { _ = backend.Close() })
	return backend
}

func benchmarkSave(b *testing.B, backend statestore.Backend) {
	data, err := largeState().MarshalJSON()
	if err != nil {
		b.Fatal(err)
	}
	ctx := context.Background()
	b.SetBytes(int64(len(data)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = backend.Save(ctx, nodeID(i%100), data, 0)
	}
}

func benchmarkLoad(b *testing.B, backend statestore.Backend) {
	data, err := largeState().MarshalJSON()
	if err != nil {
		b.Fatal(err)
	}
	ctx := context.Background()
	_ = backend.Save(ctx, "k", data, 0)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = backend.Load(ctx, "k")
	}
}

func BenchmarkMemoryBackend_Save(b *testing.B) { benchmarkSave(b, statestore.NewMemoryBackend()) }
func BenchmarkMemoryBackend_Load(b *testing.B) { benchmarkLoad(b, statestore.NewMemoryBackend()) }
func BenchmarkSQLiteBackend_Save(b *testing.B) { benchmarkSave(b, sqliteBackend(b)) }
func BenchmarkSQLiteBackend_Load(b *testing.B) { benchmarkLoad(b, sqliteBackend(b)) }

// BenchmarkStateJSON measures the state round trip used by checkpoints.
func BenchmarkStateJSON(b *testing.B) {
	st := largeState()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		data, _ := st.MarshalJSON()
		var out aaf.State
		_ = out.UnmarshalJSON(data)
	}
}

func benchmarkCheckpointed(b *testing.B, backend statestore.Backend) {
	compiled := mustCompile(buildLinearGraph(10))
	m := statestore.NewManager(backend)
	ctx := context.Background()
	initial := largeState()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = compiled.Execute(ctx, initial, aaf.WithCheckpointing(m), aaf.WithRunID(nodeID(i)))
	}
}

// BenchmarkExecute_Checkpointed_* run a 10-node graph saving a
// checkpoint after every node.
func BenchmarkExecute_Checkpointed_Memory(b *testing.B) {
	benchmarkCheckpointed(b, statestore.NewMemoryBackend())
}

func BenchmarkExecute_Checkpointed_SQLite(b *testing.B) {
	benchmarkCheckpointed(b, sqliteBackend(b))
}
