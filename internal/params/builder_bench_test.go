package params

import (
	"testing"

	"beacon-relay/internal/ga"
)

func BenchmarkBuildEvent(b *testing.B) {
	builder := NewBuilder(Settings{AccountID: "UA-1234-1", DomainName: "www.example.com", AllowHash: true})
	v := ga.NewVisitor()
	_ = v.SetUniqueID(12345)
	cv, _ := ga.NewCustomVariable(1, "plan", "gold", ga.ScopeVisitor)
	event := EventHit{Event: ga.NewEvent("Videos", "Play")}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		st := State{Visitor: v, Session: ga.NewSession(), CustomVariables: []*ga.CustomVariable{cv}}
		p, err := builder.Build(event, st)
		if err != nil {
			b.Fatal(err)
		}
		_ = p.Encode()
	}
}
