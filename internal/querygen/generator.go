// Package querygen expands a keyword root into the batch of suggestion queries.
package querygen

const alphabet = "abcdefghijklmnopqrstuvwxyz"

// Plan selects which combination classes are expanded.
type Plan struct {
	Bare         bool
	SinglePrefix bool
	SingleSuffix bool
	DoublePrefix bool
	DoubleSuffix bool
}

// FullPlan enables every class.
func FullPlan() Plan {
	return Plan{Bare: true, SinglePrefix: true, SingleSuffix: true, DoublePrefix: true, DoubleSuffix: true}
}

// Empty reports whether no class is enabled.
func (p Plan) Empty() bool {
	return !p.Bare && !p.SinglePrefix && !p.SingleSuffix && !p.DoublePrefix && !p.DoubleSuffix
}

// Count is the closed-form size of Generate's output for a root whose
// prefixed and suffixed forms cannot collide.
func Count(p Plan) int {
	single := len(alphabet)
	double := single * single
	n := 0
	if p.Bare {
		n++
	}
	if p.SingleSuffix {
		n += single
	}
	if p.SinglePrefix {
		n += single
	}
	if p.DoubleSuffix {
		n += double
	}
	if p.DoublePrefix {
		n += double
	}
	return n
}

// Generate returns the queries for root under plan: the bare root, then
// suffixed ("root x") and prefixed ("x root") forms over single and double letters.
// Order is deterministic and duplicates are dropped. root must already be validated.
func Generate(root string, p Plan) []string {
	out := make([]string, 0, Count(p))
	seen := make(map[string]struct{}, Count(p))
	add := func(q string) {
		if _, ok := seen[q]; ok {
			return
		}
		seen[q] = struct{}{}
		out = append(out, q)
	}

	if p.Bare {
		add(root)
	}
	for _, token := range tokens(1) {
		if p.SingleSuffix {
			add(root + " " + token)
		}
		if p.SinglePrefix {
			add(token + " " + root)
		}
	}
	if p.DoubleSuffix || p.DoublePrefix {
		for _, token := range tokens(2) {
			if p.DoubleSuffix {
				add(root + " " + token)
			}
			if p.DoublePrefix {
				add(token + " " + root)
			}
		}
	}
	return out
}

func tokens(width int) []string {
	if width == 1 {
		out := make([]string, 0, len(alphabet))
		for _, r := range alphabet {
			out = append(out, string(r))
		}
		return out
	}
	out := make([]string, 0, len(alphabet)*len(alphabet))
	for _, a := range alphabet {
		for _, b := range alphabet {
			out = append(out, string(a)+string(b))
		}
	}
	return out
}
