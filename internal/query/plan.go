package query

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	cerr "github.com/standardbeagle/logscan/internal/errors"
	"github.com/standardbeagle/logscan/internal/match"
)

// Strategy tags how the executor should run a plan.
type Strategy string

const (
	StrategySequential Strategy = "sequential"
	StrategyParallel   Strategy = "parallel"
	StrategyMixed      Strategy = "mixed"
)

// parallelThreshold is the candidate-file count above which the planner
// picks the parallel strategy.
const parallelThreshold = 4

// CompiledTerm is one term of a plan, regex pre-compiled if applicable.
type CompiledTerm struct {
	Term
	Regex *regexp.Regexp // nil for literal terms
}

// ExecutionPlan is the immutable compiled form of a valid query
// . It is safe to share across workers: the automaton and the
// compiled regexes are read-only after Plan returns.
type ExecutionPlan struct {
	Terms          []CompiledTerm // enabled, deduplicated, priority-sorted
	GlobalOperator Operator
	Filters        *Filters
	Strategy       Strategy
	CacheKey       uint64

	literal *match.LiteralMatcher
	// literalLoose is true when the automaton was built case-folded
	// because at least one literal term is case-insensitive; hits for
	// the case-sensitive terms are then re-verified against the raw
	// line bytes.
	literalLoose bool
}

// LiteralTerms returns the values of the plan's literal (non-regex)
// terms, for candidate narrowing under the mixed strategy.
func (p *ExecutionPlan) LiteralTerms() []string {
	var out []string
	for _, t := range p.Terms {
		if t.Regex == nil {
			out = append(out, t.Value)
		}
	}
	return out
}

// MatchLine evaluates every plan term against one line and returns the
// indexes (into p.Terms) of those that occur in it. NOT terms are
// reported like any other; combining them into an include/exclude
// verdict is the executor's job.
func (p *ExecutionPlan) MatchLine(line string) []int {
	var litHits []match.LiteralHit
	if p.literal != nil {
		litHits = p.literal.FindMatches(line)
	}

	var matched []int
	for i, t := range p.Terms {
		if t.Regex != nil {
			if t.Regex.MatchString(line) {
				matched = append(matched, i)
			}
			continue
		}
		if p.literalTermHit(t, line, litHits) {
			matched = append(matched, i)
		}
	}
	return matched
}

func (p *ExecutionPlan) literalTermHit(t CompiledTerm, line string, hits []match.LiteralHit) bool {
	for _, h := range hits {
		if h.Pattern != t.Value {
			continue
		}
		if p.literalLoose && t.CaseSensitive {
			// The automaton matched case-folded; confirm the raw bytes.
			if h.End > len(line) || line[h.Start:h.End] != t.Value {
				continue
			}
		}
		return true
	}
	return false
}

// Plan compiles a validated query into an ExecutionPlan.
// candidateFiles is the workspace's candidate count, which steers the
// sequential/parallel choice; pass 0 when unknown.
//
// Steps: keep enabled terms, deduplicate by canonical
// form, split literal vs regex, build one automaton from the literals,
// sort by priority then length, choose a strategy, derive the cache key.
func Plan(q Query, candidateFiles int) (*ExecutionPlan, error) {
	var kept []Term
	seen := make(map[string]bool)
	for _, t := range q.Terms {
		if !t.Enabled {
			continue
		}
		key := canonicalTerm(t)
		if seen[key] {
			continue
		}
		seen[key] = true
		kept = append(kept, t)
	}
	if len(kept) == 0 {
		return nil, cerr.New(cerr.CodeInvalidQuery, "query.Plan", "no enabled terms")
	}

	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Priority != kept[j].Priority {
			return kept[i].Priority > kept[j].Priority
		}
		return len(kept[i].Value) > len(kept[j].Value)
	})

	plan := &ExecutionPlan{
		GlobalOperator: q.GlobalOperator,
		Filters:        q.Filters,
	}

	var literals []string
	regexCount := 0
	anyInsensitive := false
	for _, t := range kept {
		ct := CompiledTerm{Term: t}
		if t.IsRegex {
			re, err := compileCached(t.Value, t.CaseSensitive)
			if err != nil {
				return nil, cerr.Wrap(cerr.CodeInvalidRegex, "query.Plan", t.Value, err)
			}
			ct.Regex = re
			regexCount++
		} else {
			literals = append(literals, t.Value)
			if !t.CaseSensitive {
				anyInsensitive = true
			}
		}
		plan.Terms = append(plan.Terms, ct)
	}

	if len(literals) > 0 {
		m, err := match.NewLiteralMatcher(literals, !anyInsensitive)
		if err != nil {
			return nil, cerr.Wrap(cerr.CodeInternal, "query.Plan", "build automaton", err)
		}
		plan.literal = m
		plan.literalLoose = anyInsensitive
	}

	switch {
	case regexCount > 0 && regexCount < 3 && len(literals) > regexCount:
		plan.Strategy = StrategyMixed
	case candidateFiles > parallelThreshold:
		plan.Strategy = StrategyParallel
	default:
		plan.Strategy = StrategySequential
	}

	plan.CacheKey = cacheKey(q.GlobalOperator, kept, q.Filters)
	return plan, nil
}

// canonicalTerm is the dedup key: (value, operator,
// case_sensitive, is_regex).
func canonicalTerm(t Term) string {
	return t.Value + "\x1f" + string(t.Operator) + "\x1f" +
		strconv.FormatBool(t.CaseSensitive) + "\x1f" + strconv.FormatBool(t.IsRegex)
}

// cacheKey is a stable hash over the canonicalised query: sorted canonical terms, the global operator, and the filters
// that change which lines qualify.
func cacheKey(op Operator, terms []Term, f *Filters) uint64 {
	keys := make([]string, len(terms))
	for i, t := range terms {
		keys[i] = canonicalTerm(t)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(string(op))
	b.WriteByte('\x1e')
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('\x1e')
	}
	if f != nil {
		b.WriteString(strings.Join(f.Levels, ","))
		b.WriteByte('\x1e')
		if f.TimeRange != nil {
			b.WriteString(strconv.FormatInt(f.TimeRange.From, 10))
			b.WriteByte(':')
			b.WriteString(strconv.FormatInt(f.TimeRange.To, 10))
		}
		b.WriteByte('\x1e')
		b.WriteString(f.FilePattern)
	}
	return xxhash.Sum64String(b.String())
}
