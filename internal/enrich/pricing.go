package enrich

import "strings"

// PricingRule is one entry of the fixed ordered cost table described in
// spec §4.2's pricing sub-module. Rates are USD per million tokens.
type PricingRule struct {
	ModelPrefix    string
	InputPerMTok   float64
	OutputPerMTok  float64
	CacheWritePerMTok float64
	CacheReadPerMTok  float64
}

// pricingTable is authored most-specific-prefix-first, grounded in shape on
// the teacher's DefaultModelCosts provider/model table but, per the Open
// Question Decision in SPEC_FULL.md, matched by plain ordered literal
// prefix rather than the teacher's contains/has-prefix heuristic chain —
// that heuristic would let "claude-opus-4" swallow "claude-opus-4-6" and
// return a non-zero cost for unknown models, violating §8's testable
// properties. lookupPricing takes the first rule whose ModelPrefix is a
// prefix of the queried model, so a longer, more specific prefix must
// precede its shorter ancestor.
var pricingTable = []PricingRule{
	{ModelPrefix: "claude-opus-4-6", InputPerMTok: 18, OutputPerMTok: 90, CacheWritePerMTok: 22.5, CacheReadPerMTok: 1.8},
	{ModelPrefix: "claude-opus-4-5", InputPerMTok: 16, OutputPerMTok: 80, CacheWritePerMTok: 20, CacheReadPerMTok: 1.6},
	{ModelPrefix: "claude-opus-4-1", InputPerMTok: 15, OutputPerMTok: 75, CacheWritePerMTok: 18.75, CacheReadPerMTok: 1.5},
	{ModelPrefix: "claude-opus-4", InputPerMTok: 15, OutputPerMTok: 75, CacheWritePerMTok: 18.75, CacheReadPerMTok: 1.5},
	{ModelPrefix: "claude-3-opus", InputPerMTok: 15, OutputPerMTok: 75, CacheWritePerMTok: 18.75, CacheReadPerMTok: 1.5},
	{ModelPrefix: "claude-sonnet-4-5", InputPerMTok: 3, OutputPerMTok: 15, CacheWritePerMTok: 3.75, CacheReadPerMTok: 0.3},
	{ModelPrefix: "claude-sonnet-4", InputPerMTok: 3, OutputPerMTok: 15, CacheWritePerMTok: 3.75, CacheReadPerMTok: 0.3},
	{ModelPrefix: "claude-3-5-sonnet", InputPerMTok: 3, OutputPerMTok: 15, CacheWritePerMTok: 3.75, CacheReadPerMTok: 0.3},
	{ModelPrefix: "claude-3-sonnet", InputPerMTok: 3, OutputPerMTok: 15, CacheWritePerMTok: 3.75, CacheReadPerMTok: 0.3},
	{ModelPrefix: "claude-haiku-4-5", InputPerMTok: 1, OutputPerMTok: 5, CacheWritePerMTok: 1.25, CacheReadPerMTok: 0.1},
	{ModelPrefix: "claude-3-5-haiku", InputPerMTok: 0.8, OutputPerMTok: 4, CacheWritePerMTok: 1, CacheReadPerMTok: 0.08},
	{ModelPrefix: "claude-3-haiku", InputPerMTok: 0.25, OutputPerMTok: 1.25, CacheWritePerMTok: 0.3, CacheReadPerMTok: 0.03},
}

// lookupPricing returns the first rule whose ModelPrefix is a literal
// prefix of model, or (zero, false) if none match.
func lookupPricing(model string) (PricingRule, bool) {
	for _, rule := range pricingTable {
		if strings.HasPrefix(model, rule.ModelPrefix) {
			return rule, true
		}
	}
	return PricingRule{}, false
}

// computeCost returns the estimated USD cost of one response's token usage.
// Unknown models cost exactly zero.
func computeCost(inputTokens, outputTokens, cacheCreate, cacheRead int, model string) float64 {
	rule, ok := lookupPricing(model)
	if !ok {
		return 0
	}
	const perMillion = 1_000_000.0
	cost := float64(inputTokens)/perMillion*rule.InputPerMTok +
		float64(outputTokens)/perMillion*rule.OutputPerMTok +
		float64(cacheCreate)/perMillion*rule.CacheWritePerMTok +
		float64(cacheRead)/perMillion*rule.CacheReadPerMTok
	if cost < 0 {
		return 0
	}
	return cost
}
