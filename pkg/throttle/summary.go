package throttle

import (
	"fmt"
	"sort"
	"strings"

	"k8s.io/klog/v2"

	"github.com/vnykmshr/detthrottle/pkg/throttle/functionality"
)

// OperationSummary is the effective per-node rate of one operation.
type OperationSummary struct {
	Op functionality.Functionality
	// EffectiveMtps is the rate of the most restrictive throttle gating Op,
	// in milli-operations per second.
	EffectiveMtps uint64
	// Throttles names every throttle gating Op, in definition order.
	Throttles []string
}

// Summary returns the effective rate of every gated operation, sorted by
// operation name.
func (t *Throttling) Summary() []OperationSummary {
	summaries := make([]OperationSummary, 0, len(t.managers))
	for op, manager := range t.managers {
		s := OperationSummary{Op: op}
		for i, req := range manager.Reqs() {
			mtps := req.Throttle.Mtps() / req.Ops
			if i == 0 || mtps < s.EffectiveMtps {
				s.EffectiveMtps = mtps
			}
			s.Throttles = append(s.Throttles, req.Throttle.Name())
		}
		summaries = append(summaries, s)
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Op.String() < summaries[j].Op.String()
	})
	return summaries
}

// String formats s as "<op>: <tps> tps (<throttles>)".
func (s OperationSummary) String() string {
	return fmt.Sprintf("%s: %d.%03d tps (%s)", s.Op, s.EffectiveMtps/1000, s.EffectiveMtps%1000,
		strings.Join(s.Throttles, ", "))
}

func (t *Throttling) logResolvedThrottles() {
	var b strings.Builder
	fmt.Fprintf(&b, "Resolved %s throttles (after splitting capacity %d ways) -", t.mode, t.nodeCount)
	for _, s := range t.Summary() {
		b.WriteString("\n  ")
		b.WriteString(s.String())
	}
	klog.Info(b.String())
}
