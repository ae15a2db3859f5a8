package pipeline

import "strings"

// Tool is the active playground tool. Names outside the known set parse to
// ToolUnknown.
type Tool string

const (
	ToolGuard          Tool = "guard"
	ToolContextManager Tool = "context-manager"
	ToolRAG            Tool = "rag"
	ToolScorer         Tool = "scorer"
	ToolValidators     Tool = "validators"
	ToolChat           Tool = "chat"
	ToolMonitor        Tool = "monitor"
	ToolVisualization  Tool = "visualization"
	ToolUnknown        Tool = "unknown"
)

// Tools lists the known tools.
var Tools = []Tool{
	ToolGuard,
	ToolContextManager,
	ToolRAG,
	ToolScorer,
	ToolValidators,
	ToolChat,
	ToolMonitor,
	ToolVisualization,
}

// ParseTool maps a tool name to its Tool.
func ParseTool(name string) Tool {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, t := range Tools {
		if string(t) == name {
			return t
		}
	}
	return ToolUnknown
}

// Tracked reports whether submissions on t are reported to the monitor.
func (t Tool) Tracked() bool {
	return t != ToolMonitor && t != ToolVisualization
}

// NeedsLLM reports whether t generates text.
func (t Tool) NeedsLLM() bool {
	return t == ToolGuard || t == ToolChat
}
