package memory

// Role tags the producer of a message in a conversation.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleTool:
		return true
	}
	return false
}

// ToolCall is a single capability invocation requested by the planner.
type ToolCall struct {
	ID        string         `json:"id" bson:"id"`
	Name      string         `json:"name" bson:"name"`
	Arguments map[string]any `json:"arguments,omitempty" bson:"arguments,omitempty"`
}

// Message is one entry of a conversation. ToolCalls, ToolCallID and Name are only
// populated inside a turn's working transcript.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// UserMessage builds a user-role message.
func UserMessage(content string) Message { return Message{Role: RoleUser, Content: content} }

// AssistantMessage builds an assistant-role message.
func AssistantMessage(content string) Message { return Message{Role: RoleAssistant, Content: content} }

// ToolResultMessage builds the tool-role message answering call.
func ToolResultMessage(call ToolCall, content string) Message {
	return Message{Role: RoleTool, Name: call.Name, ToolCallID: call.ID, Content: content}
}
