package parser

import "testing"

func BenchmarkParse(b *testing.B) {
	queries := []struct {
		name  string
		query string
	}{
		{"empty", ""},
		{"simple", "newtonsoft.json"},
		{"multi_term", "structured logging sinks console"},
		{"qualified", "id:serilog tags:logging"},
		{"phrase", `description:"object mapper" owner:jbogard`},
		{"long", "json http azure sql cache orm testing logging tags:dotnet author:microsoft"},
	}
	for _, q := range queries {
		b.Run(q.name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := Parse(q.query); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
