package scenario

// Case is one intent under test within a scenario.
type Case struct {
	Intent      string            `yaml:"intent"`
	Confidence  float64           `yaml:"confidence,omitempty"`
	Environment string            `yaml:"environment,omitempty"`
	Payload     string            `yaml:"payload,omitempty"`
	Fields      map[string]string `yaml:"fields,omitempty"`
	Expect      string            `yaml:"expect"`
	Note        string            `yaml:"note,omitempty"`
}

// Scenario is a named collection of rule-table test cases.
type Scenario struct {
	Name  string `yaml:"name"`
	Cases []Case `yaml:"cases"`
}

// CaseResult is the outcome of evaluating one test case.
type CaseResult struct {
	Index    int    `json:"index"`
	Passed   bool   `json:"passed"`
	Intent   string `json:"intent"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
	Reason   string `json:"reason"`
}

// RunResult is the outcome of running all cases in one scenario.
type RunResult struct {
	File   string       `json:"file,omitempty"`
	Name   string       `json:"name"`
	Total  int          `json:"total"`
	Passed int          `json:"passed"`
	Failed int          `json:"failed"`
	Cases  []CaseResult `json:"cases"`
}
