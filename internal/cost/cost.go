// Package cost estimates and computes token costs for debate runs.
// Consumed only for dry-run and post-run reporting; never gates
// execution.
package cost

import (
	"github.com/alienxp03/thinktank/internal/core"
)

// Pricing is a model's USD price per million input/output tokens.
type Pricing struct {
	InputPerM  float64
	OutputPerM float64
}

// ModelPricing maps model names to prices (as of Feb 2026).
var ModelPricing = map[string]Pricing{
	"claude-sonnet-4-6":         {InputPerM: 3.0, OutputPerM: 15.0},
	"claude-opus-4-6":           {InputPerM: 15.0, OutputPerM: 75.0},
	"claude-haiku-4-5-20251001": {InputPerM: 0.80, OutputPerM: 4.0},
}

var (
	defaultAgentPricing = Pricing{InputPerM: 3.0, OutputPerM: 15.0}
	defaultSynthPricing = Pricing{InputPerM: 15.0, OutputPerM: 75.0}
)

// Rough token estimates per prompt component.
const (
	avgSystemPromptTokens   = 300
	avgProblemContextTokens = 2000
	avgPriorMovesTokens     = 1500
	avgRoundPromptTokens    = 200
	avgOutputTokens         = 1200
)

// RoundEstimate is the dry-run breakdown for one round.
type RoundEstimate struct {
	Round       int    `json:"round"`
	Focus       string `json:"focus"`
	Agents      int    `json:"agents"`
	IsSynthesis bool   `json:"is_synthesis"`
}

// Estimate is a dry-run cost projection for a debate spec.
type Estimate struct {
	Model        string          `json:"model"`
	SynthModel   string          `json:"synth_model"`
	TotalRounds  int             `json:"total_rounds"`
	TotalCalls   int             `json:"total_api_calls"`
	InputTokens  int             `json:"estimated_input_tokens"`
	OutputTokens int             `json:"estimated_output_tokens"`
	AgentCostUSD float64         `json:"estimated_agent_cost_usd"`
	SynthCostUSD float64         `json:"estimated_synth_cost_usd"`
	TotalCostUSD float64         `json:"estimated_total_cost_usd"`
	Rounds       []RoundEstimate `json:"rounds"`
}

// EstimateSpec projects the cost of running a spec without making any
// model calls.
func EstimateSpec(spec *core.DebateSpec, model, synthModel string) Estimate {
	var (
		agentInput, agentOutput int
		synthInput, synthOutput int
		totalCalls              int
		rounds                  []RoundEstimate
	)

	for _, rc := range spec.Rounds {
		nAgents := len(rc.Agents)
		if rc.AutoSelect && nAgents == 0 {
			nAgents = 5
		}
		totalCalls += nAgents

		if rc.IsSynthesis {
			// The synthesizer sees all prior output as input.
			synthInput += avgSystemPromptTokens + avgProblemContextTokens + agentOutput + avgRoundPromptTokens
			synthOutput += avgOutputTokens * 3
		} else {
			perAgent := avgSystemPromptTokens + avgProblemContextTokens + avgPriorMovesTokens + avgRoundPromptTokens
			agentInput += perAgent * nAgents
			agentOutput += avgOutputTokens * nAgents
		}

		rounds = append(rounds, RoundEstimate{
			Round:       rc.Number,
			Focus:       rc.Focus,
			Agents:      nAgents,
			IsSynthesis: rc.IsSynthesis,
		})
	}

	agentCost := dollars(agentInput, agentOutput, pricingFor(model, defaultAgentPricing))
	synthCost := dollars(synthInput, synthOutput, pricingFor(synthModel, defaultSynthPricing))

	return Estimate{
		Model:        model,
		SynthModel:   synthModel,
		TotalRounds:  len(spec.Rounds),
		TotalCalls:   totalCalls,
		InputTokens:  agentInput + synthInput,
		OutputTokens: agentOutput + synthOutput,
		AgentCostUSD: agentCost,
		SynthCostUSD: synthCost,
		TotalCostUSD: agentCost + synthCost,
		Rounds:       rounds,
	}
}

// Actual is the realized cost of a finished debate.
type Actual struct {
	Model             string  `json:"model"`
	SynthModel        string  `json:"synth_model"`
	AgentInputTokens  int     `json:"agent_input_tokens"`
	AgentOutputTokens int     `json:"agent_output_tokens"`
	SynthInputTokens  int     `json:"synth_input_tokens"`
	SynthOutputTokens int     `json:"synth_output_tokens"`
	AgentCostUSD      float64 `json:"agent_cost_usd"`
	SynthCostUSD      float64 `json:"synth_cost_usd"`
	TotalCostUSD      float64 `json:"total_cost_usd"`
}

// ComputeActual sums recorded token usage from a debate's moves.
func ComputeActual(debate *core.Debate) Actual {
	var a Actual
	a.Model = debate.Model
	a.SynthModel = debate.SynthModel

	for _, m := range debate.Moves() {
		if m.Type == core.MoveSynthesis {
			a.SynthInputTokens += m.InputTokens
			a.SynthOutputTokens += m.OutputTokens
		} else {
			a.AgentInputTokens += m.InputTokens
			a.AgentOutputTokens += m.OutputTokens
		}
	}

	a.AgentCostUSD = dollars(a.AgentInputTokens, a.AgentOutputTokens, pricingFor(debate.Model, defaultAgentPricing))
	a.SynthCostUSD = dollars(a.SynthInputTokens, a.SynthOutputTokens, pricingFor(debate.SynthModel, defaultSynthPricing))
	a.TotalCostUSD = a.AgentCostUSD + a.SynthCostUSD
	return a
}

func pricingFor(model string, fallback Pricing) Pricing {
	if p, ok := ModelPricing[model]; ok {
		return p
	}
	return fallback
}

func dollars(input, output int, p Pricing) float64 {
	return float64(input)/1_000_000*p.InputPerM + float64(output)/1_000_000*p.OutputPerM
}
