package transcript

// Strategy names the cascade step that produced a dialogue.
type Strategy string

const (
	StrategyNone      Strategy = ""
	StrategyLiteral   Strategy = "strict literal"
	StrategyQuoted    Strategy = "quoted tuples"
	StrategyLabeled   Strategy = "labeled dialogue"
	StrategyJSON      Strategy = "JSON array"
	StrategyMonologue Strategy = "monologue"
)

// Strategies lists the cascade in the order it is applied.
var Strategies = []Strategy{StrategyLiteral, StrategyQuoted, StrategyLabeled, StrategyJSON, StrategyMonologue}

// Parse runs the cascade and returns the first non-empty dialogue, or nil.
func Parse(raw string) []Turn {
	turns, _ := ParseDetailed(raw)
	return turns
}

// ParseDetailed is Parse that also reports which strategy succeeded.
func ParseDetailed(raw string) ([]Turn, Strategy) {
	text := Normalize(raw)
	if text == "" {
		return nil, StrategyNone
	}
	steps := []struct {
		name Strategy
		run  func(string) []Turn
	}{
		{StrategyLiteral, ParseLiteral},
		{StrategyQuoted, ParseQuotedTuples},
		{StrategyLabeled, ParseLabeled},
		{StrategyJSON, ParseJSON},
		{StrategyMonologue, func(s string) []Turn { return ParseMonologue(s, monologueMinChars) }},
	}
	for _, step := range steps {
		if turns := step.run(text); len(turns) > 0 {
			return turns, step.name
		}
	}
	return nil, StrategyNone
}
