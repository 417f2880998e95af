package benchmarks

import (
	"fmt"
	"testing"

	"github.com/swar00pduthks/Aaf/pkg/aaf"
)

// noopNode does minimal work to measure framework overhead.
func noopNode(aaf.Context, aaf.State) (any, error) {
	return nil, nil
}

func nodeID(i int) string {
	return fmt.Sprintf("node%d", i)
}

func registry(n int) *aaf.Registry {
	reg := aaf.NewRegistry()
	for i := 0; i < n; i++ {
		reg.RegisterFunc(nodeID(i), noopNode)
	}
	return reg
}

func buildLinearGraph(n int) *aaf.Graph {
	g := aaf.NewGraph(registry(n)).SetEntry(nodeID(0))
	for i := 0; i < n-1; i++ {
		g.AddEdge(nodeID(i), nodeID(i+1))
	}
	return g.AddEdge(nodeID(n-1), aaf.END)
}

func mustCompile(g *aaf.Graph) *aaf.CompiledGraph {
	compiled, err := g.Compile()
	if err != nil {
		panic(err)
	}
	return compiled
}

// BenchmarkRegisterFunc_100 measures registering 100 nodes.
func BenchmarkRegisterFunc_100(b *testing.B) {
	for i := 0; i < b.N; i++ {
		registry(100)
	}
}

// BenchmarkAddEdge_100 measures adding 100 edges.
func BenchmarkAddEdge_100(b *testing.B) {
	reg := registry(101)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		g := aaf.NewGraph(reg)
		for j := 0; j < 100; j++ {
			g.AddEdge(nodeID(j), nodeID(j+1))
		}
	}
}

// BenchmarkCompile_Linear_10 measures compiling a 10-node graph.
func BenchmarkCompile_Linear_10(b *testing.B) {
	g := buildLinearGraph(10)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = g.Compile()
	}
}

// BenchmarkCompile_Linear_100 measures compiling a 100-node graph.
func BenchmarkCompile_Linear_100(b *testing.B) {
	g := buildLinearGraph(100)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = g.Compile()
	}
}

// BenchmarkCompile_Switch_10 measures compiling a fan-out of 10 cases.
func BenchmarkCompile_Switch_10(b *testing.B) {
	reg := registry(11)
	cases := make(map[any]string, 10)
	for j := 1; j <= 10; j++ {
		cases[j] = nodeID(j)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		g := aaf.NewGraph(reg).SetEntry(nodeID(0)).AddSwitch(nodeID(0), "k", cases)
		for j := 1; j <= 10; j++ {
			g.AddEdge(nodeID(j), aaf.END)
		}
		_, _ = g.Compile()
	}
}
