//go:build go1.24

package grammar

import (
	"context"
	"testing"
)

func BenchmarkFromSchema(b *testing.B) {
	for tt := range testCases(b) {
		b.Run(tt.name, func(b *testing.B) {
			s := []byte(tt.schema)

			b.ReportAllocs()
			for b.Loop() {
				if _, err := FromSchema(context.Background(), s); err != nil {
					b.Fatalf("FromSchema: %v", err)
				}
			}
		})
	}
}
