package workflow

import (
	"regexp"
	"strings"
)

// SearchSignal names a reason a prompt needs external facts.
type SearchSignal string

const (
	SignalTemporal  SearchSignal = "temporal"
	SignalNumeric   SearchSignal = "price_or_statistic"
	SignalEntity    SearchSignal = "entity_verification"
	SignalYear      SearchSignal = "explicit_year"
	SignalLocalized SearchSignal = "localized_keyword"
)

var signalPatterns = []struct {
	signal SearchSignal
	re     *regexp.Regexp
}{
	{SignalTemporal, regexp.MustCompile(`(?i)\b(current(ly)?|today|tonight|latest|now|recent(ly)?|news|yesterday|this (week|month|year)|upcoming|breaking|as of)\b`)},
	{SignalNumeric, regexp.MustCompile(`(?i)\b(prices?|cost(s)?|stocks?|shares? price|exchange rates?|how much|how many|statistics?|stats|population|gdp|inflation|percent(age)?|market cap|weather|forecast|scores?|rankings?|salary|revenue)\b`)},
	{SignalEntity, regexp.MustCompile(`(?i)\b(who (is|was|are)|ceo|president|prime minister|founded|founder|headquarter(s|ed)?|released?|launch(ed)?|acquired|election)\b`)},
	{SignalYear, regexp.MustCompile(`\b(19|20)\d{2}\b`)},
}

var localizedKeywords = []string{"最新", "今天", "现在", "目前", "价格", "股价", "汇率", "天气", "新闻", "多少钱"}

// DetectSearchSignals returns the distinct signals found in prompt, in a
// fixed order. It is deterministic and performs no I/O.
func DetectSearchSignals(prompt string) []SearchSignal {
	if strings.TrimSpace(prompt) == "" {
		return nil
	}
	var out []SearchSignal
	for _, sp := range signalPatterns {
		if sp.re.MatchString(prompt) {
			out = append(out, sp.signal)
		}
	}
	for _, kw := range localizedKeywords {
		if strings.Contains(prompt, kw) {
			out = append(out, SignalLocalized)
			break
		}
	}
	return out
}

// NeedsSearch reports whether prompt asks for facts a model cannot be
// trusted to know. Empty prompts never need search.
func NeedsSearch(prompt string) bool {
	return len(DetectSearchSignals(prompt)) > 0
}
