package template

import (
	"fmt"
	"testing"

	"github.com/lex00/eks-gitops-go/intrinsics"
)

// BenchmarkBuild benchmarks building templates with varying resource counts.
func BenchmarkBuild(b *testing.B) {
	for _, size := range []int{10, 50, 100, 200} {
		b.Run(fmt.Sprintf("resources_%d", size), func(b *testing.B) {
			builder := chainBuilder(size)
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := builder.Build(); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkToJSON benchmarks JSON serialization with varying resource counts.
func BenchmarkToJSON(b *testing.B) {
	for _, size := range []int{10, 50, 100} {
		b.Run(fmt.Sprintf("resources_%d", size), func(b *testing.B) {
			tmpl, err := chainBuilder(size).Build()
			if err != nil {
				b.Fatal(err)
			}
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := ToJSON(tmpl); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkOrder benchmarks dependency ordering of a linear chain.
func BenchmarkOrder(b *testing.B) {
	tmpl, err := chainBuilder(200).Build()
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Order(tmpl); err != nil {
			b.Fatal(err)
		}
	}
}

// chainBuilder returns a builder where every route table references the previous one.
func chainBuilder(count int) *Builder {
	builder := NewBuilder("benchmark")
	builder.Tag("context", "bench")
	builder.AddResource("VPC", "AWS::EC2::VPC", map[string]any{"CidrBlock": "10.0.0.0/16"})
	prev := "VPC"
	for i := 0; i < count; i++ {
		id := fmt.Sprintf("RouteTable%03d", i)
		builder.AddResource(id, "AWS::EC2::RouteTable", map[string]any{
			"VpcId": intrinsics.Ref{LogicalName: "VPC"},
		}, DependsOn(prev))
		prev = id
	}
	return builder
}
