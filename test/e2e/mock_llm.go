package e2e

import (
	"context"
	"fmt"
	"sync"

	"github.com/Sopamo/taletwo/pkg/llm"
)

// LLMScriptEntry defines a single scripted model response.
type LLMScriptEntry struct {
	// Response content (exactly one should be set).
	Text string // raw assistant text returned by Chat
	Err  error  // returned as the call error

	// Test control
	WaitCh  <-chan struct{} // block Chat until closed, then respond normally
	OnBlock chan<- struct{} // notified when Chat enters its blocking path
}

// CapturedCall records one Chat invocation for later inspection.
type CapturedCall struct {
	Tag      string
	Model    string
	Messages []llm.Message
}

// ScriptedLLMClient implements llm.Client with a dual-dispatch script:
// per-tag routing for the pipeline stages, plus a sequential fallback for
// calls a test does not need to differentiate. Speculative precompute runs
// page calls concurrently, so queued page entries must be interchangeable.
type ScriptedLLMClient struct {
	mu         sync.Mutex
	sequential []LLMScriptEntry
	seqIndex   int
	routes     map[string][]LLMScriptEntry // tag → per-stage script
	routeIndex map[string]int
	captured   []CapturedCall
}

// NewScriptedLLMClient creates an empty script.
func NewScriptedLLMClient() *ScriptedLLMClient {
	return &ScriptedLLMClient{
		routes:     make(map[string][]LLMScriptEntry),
		routeIndex: make(map[string]int),
	}
}

// AddRouted queues an entry for calls carrying the given tag: "planner",
// "substeps", "intro-insert", "page", "verifier", or "adapter".
func (c *ScriptedLLMClient) AddRouted(tag string, entry LLMScriptEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.routes[tag] = append(c.routes[tag], entry)
}

// AddSequential queues an entry consumed by any call whose tag has no
// routed entries left.
func (c *ScriptedLLMClient) AddSequential(entry LLMScriptEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sequential = append(c.sequential, entry)
}

// Chat implements llm.Client.
func (c *ScriptedLLMClient) Chat(ctx context.Context, messages []llm.Message, opts llm.ChatOptions) (string, error) {
	c.mu.Lock()
	c.captured = append(c.captured, CapturedCall{Tag: opts.Tag, Model: opts.Model, Messages: messages})
	entry, err := c.nextEntry(opts.Tag)
	c.mu.Unlock()
	if err != nil {
		return "", err
	}

	if entry.WaitCh != nil {
		if entry.OnBlock != nil {
			entry.OnBlock <- struct{}{}
		}
		select {
		case <-entry.WaitCh:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	if entry.Err != nil {
		return "", entry.Err
	}
	return entry.Text, nil
}

// CallCount returns the total number of Chat calls made, including calls
// that found the script exhausted.
func (c *ScriptedLLMClient) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.captured)
}

// CallsByTag returns the captured calls carrying the given tag, in order.
func (c *ScriptedLLMClient) CallsByTag(tag string) []CapturedCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	var calls []CapturedCall
	for _, call := range c.captured {
		if call.Tag == tag {
			calls = append(calls, call)
		}
	}
	return calls
}

// nextEntry selects the next script entry using dual dispatch.
// Must be called with c.mu held.
func (c *ScriptedLLMClient) nextEntry(tag string) (*LLMScriptEntry, error) {
	if entries, ok := c.routes[tag]; ok {
		idx := c.routeIndex[tag]
		if idx < len(entries) {
			c.routeIndex[tag] = idx + 1
			return &entries[idx], nil
		}
	}
	if c.seqIndex < len(c.sequential) {
		entry := &c.sequential[c.seqIndex]
		c.seqIndex++
		return entry, nil
	}
	return nil, fmt.Errorf("ScriptedLLMClient: no script entry left (tag=%q, sequential=%d/%d)",
		tag, c.seqIndex, len(c.sequential))
}
