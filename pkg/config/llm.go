package config

import (
	"fmt"
)

// Task identifies a generation task that can be routed to its own model.
type Task string

const (
	// TaskPlanner produces the initial plan points.
	TaskPlanner Task = "planner"
	// TaskAdapter revises the plan after a reader choice.
	TaskAdapter Task = "adapter"
	// TaskGenerator writes story pages.
	TaskGenerator Task = "generator"
	// TaskVerifier checks whether a committed page dramatized its sub-step.
	TaskVerifier Task = "verifier"
)

// Reasoning efforts accepted by the chat endpoint.
const (
	EffortMinimal = "minimal"
	EffortLow     = "low"
	EffortMedium  = "medium"
	EffortHigh    = "high"
)

// ModelConfig selects the model and decoding budget for one task.
type ModelConfig struct {
	// Model name. Empty means the process-wide default model.
	Model string `yaml:"model,omitempty"`

	// ReasoningEffort passed to the chat endpoint (minimal/low/medium/high).
	ReasoningEffort string `yaml:"reasoning_effort,omitempty"`

	// MaxCompletionTokens caps the response size. Zero means provider default.
	MaxCompletionTokens int `yaml:"max_completion_tokens,omitempty"`
}

// ModelsConfig routes every generation task to a model configuration.
// Planning and adaptation get more reasoning budget than page generation;
// verification runs as small and fast as possible.
type ModelsConfig struct {
	Planner   ModelConfig `yaml:"planner,omitempty"`
	Adapter   ModelConfig `yaml:"adapter,omitempty"`
	Generator ModelConfig `yaml:"generator,omitempty"`
	Verifier  ModelConfig `yaml:"verifier,omitempty"`
}

// DefaultModelsConfig returns the built-in routing, using defaultModel for
// every task.
func DefaultModelsConfig(defaultModel string) *ModelsConfig {
	return &ModelsConfig{
		Planner:   ModelConfig{Model: defaultModel, ReasoningEffort: EffortMedium, MaxCompletionTokens: 8192},
		Adapter:   ModelConfig{Model: defaultModel, ReasoningEffort: EffortMedium, MaxCompletionTokens: 16384},
		Generator: ModelConfig{Model: defaultModel, ReasoningEffort: EffortLow, MaxCompletionTokens: 8192},
		Verifier:  ModelConfig{Model: defaultModel, ReasoningEffort: EffortMinimal, MaxCompletionTokens: 1024},
	}
}

// ForTask returns the routing for the given task. Unknown tasks fall back to
// the generator routing.
func (m *ModelsConfig) ForTask(task Task) ModelConfig {
	switch task {
	case TaskPlanner:
		return m.Planner
	case TaskAdapter:
		return m.Adapter
	case TaskVerifier:
		return m.Verifier
	default:
		return m.Generator
	}
}

func (m *ModelsConfig) validate() error {
	for _, entry := range []struct {
		task Task
		cfg  ModelConfig
	}{
		{TaskPlanner, m.Planner},
		{TaskAdapter, m.Adapter},
		{TaskGenerator, m.Generator},
		{TaskVerifier, m.Verifier},
	} {
		if err := entry.cfg.validate(); err != nil {
			return NewValidationError("models", string(entry.task), "", err)
		}
	}
	return nil
}

func (c ModelConfig) validate() error {
	switch c.ReasoningEffort {
	case "", EffortMinimal, EffortLow, EffortMedium, EffortHigh:
	default:
		return fmt.Errorf("%w: reasoning_effort %q", ErrInvalidValue, c.ReasoningEffort)
	}
	if c.MaxCompletionTokens < 0 {
		return fmt.Errorf("%w: max_completion_tokens must not be negative", ErrInvalidValue)
	}
	return nil
}
