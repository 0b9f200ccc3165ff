package validate

import (
	"context"
	"strings"

	"github.com/n8nkit/n8nkit/engine/core"
	"github.com/n8nkit/n8nkit/engine/kb"
	"github.com/n8nkit/n8nkit/engine/workflow"
)

func isAgentType(t string) bool {
	return strings.EqualFold(kb.BareType(t), "agent")
}

func isChainType(t string) bool {
	return strings.EqualFold(kb.BareType(t), "chainllm")
}

func isChatTriggerType(t string) bool {
	return strings.EqualFold(kb.BareType(t), "chattrigger")
}

// checkAITopology validates the ai_* connection subgraph around agents and
// LLM chains. It only runs when the workflow contains AI-family nodes.
func (r *run) checkAITopology(ctx context.Context) error {
	hasAI := false
	for _, n := range r.wf.Nodes {
		if isAgentType(n.Type) || isChainType(n.Type) || isChatTriggerType(n.Type) {
			hasAI = true
			break
		}
		d, err := r.descriptor(ctx, n.Type)
		if err != nil {
			return err
		}
		if d != nil && d.IsAINode() {
			hasAI = true
			break
		}
	}
	if !hasAI {
		return nil
	}
	for _, n := range r.wf.Nodes {
		switch {
		case isAgentType(n.Type):
			r.checkAgent(n)
		case isChainType(n.Type):
			r.checkChain(n)
		}
	}
	return nil
}

func (r *run) checkAgent(n *workflow.Node) {
	incoming := r.wf.Incoming(n.Name)

	models := incoming[workflow.ConnAILanguageModel]
	maxModels := 1
	if core.AsBool(n.Parameters["needsFallback"]) {
		maxModels = 2
	}
	switch {
	case len(models) == 0:
		r.addError(core.CodeMissingLanguageModel, n.Name, "",
			"agent %q has no ai_languageModel connection; attach a chat model node", n.Name)
	case len(models) > maxModels:
		r.addErrorDetails(core.CodeMultipleLanguageModels, n.Name, "",
			map[string]any{"connected": models, "max": maxModels},
			"agent %q has %d language models connected but allows %d", n.Name, len(models), maxModels)
	}

	if core.AsBool(n.Parameters["hasOutputParser"]) && len(incoming[workflow.ConnAIOutputParser]) == 0 {
		r.addError(core.CodeMissingOutputParser, n.Name, "hasOutputParser",
			"agent %q expects an output parser but none is connected over ai_outputParser", n.Name)
	}

	if memories := incoming[workflow.ConnAIMemory]; len(memories) > 1 {
		r.addErrorDetails(core.CodeMultipleMemories, n.Name, "",
			map[string]any{"connected": memories},
			"agent %q has %d memories connected; only one is supported", n.Name, len(memories))
	}

	if promptText := core.AsString(n.Parameters["text"]); core.AsString(n.Parameters["promptType"]) == "define" &&
		strings.TrimSpace(promptText) == "" {
		r.addError(core.CodeMissingPromptText, n.Name, "text",
			"agent %q uses promptType=define but the prompt text is empty", n.Name)
	}

	r.checkToolDescriptions(incoming[workflow.ConnAITool])

	if agentStreaming(n) {
		if mainEndpointCount(r.wf.Outgoing(n.Name)[workflow.ConnMain]) > 0 {
			r.addError(core.CodeStreamingWithMainOutput, n.Name, "",
				"agent %q streams its response and cannot also have main output connections", n.Name)
		}
		if !r.hasChatTriggerSource(incoming[workflow.ConnMain]) {
			r.addError(core.CodeStreamingNeedsChat, n.Name, "",
				"agent %q streams its response and must be fed by a chat trigger", n.Name)
		}
	}
}

func mainEndpointCount(slots [][]workflow.Endpoint) int {
	total := 0
	for _, slot := range slots {
		total += len(slot)
	}
	return total
}

func (r *run) checkChain(n *workflow.Node) {
	incoming := r.wf.Incoming(n.Name)
	models := incoming[workflow.ConnAILanguageModel]
	switch {
	case len(models) == 0:
		r.addError(core.CodeMissingLanguageModel, n.Name, "",
			"LLM chain %q has no ai_languageModel connection", n.Name)
	case len(models) > 1:
		r.addErrorDetails(core.CodeMultipleLanguageModels, n.Name, "",
			map[string]any{"connected": models},
			"LLM chain %q supports exactly one language model, found %d", n.Name, len(models))
	}
	if tools := incoming[workflow.ConnAITool]; len(tools) > 0 {
		r.addErrorDetails(core.CodeChainWithTools, n.Name, "",
			map[string]any{"connected": tools},
			"LLM chain %q cannot use tools; switch to an agent node", n.Name)
	}
}

// checkToolDescriptions requires a toolDescription on every connected
// tool node so the model can decide when to invoke it.
func (r *run) checkToolDescriptions(toolNodes []string) {
	for _, name := range toolNodes {
		tool := r.wf.Node(name)
		if tool == nil {
			continue
		}
		if isEmptyValue(tool.Parameters["toolDescription"]) {
			r.addErrorDetails(core.CodeMissingToolDescription, tool.Name, "toolDescription", nil,
				"tool node %q needs a toolDescription so the model knows when to call it", tool.Name)
		}
	}
}

// agentStreaming reports whether the agent is configured to stream its
// response rather than emit items.
func agentStreaming(n *workflow.Node) bool {
	if opts := core.AsMap(n.Parameters["options"]); opts != nil {
		if core.AsBool(opts["streaming"]) || core.AsString(opts["output"]) == "streaming" {
			return true
		}
	}
	return false
}

// hasChatTriggerSource reports whether any main-input source is a chat
// trigger.
func (r *run) hasChatTriggerSource(sources []string) bool {
	for _, name := range sources {
		if n := r.wf.Node(name); n != nil && isChatTriggerType(n.Type) {
			return true
		}
	}
	return false
}
