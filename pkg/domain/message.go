package domain

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry of the visible conversation. Content grows while the
// assistant reply is streaming; at most one message has IsStreaming set.
type Message struct {
	ID          string `json:"id"`
	Role        string `json:"role"`
	Content     string `json:"content"`
	IsStreaming bool   `json:"isStreaming,omitempty"`
}

// ChatMessage is the wire shape sent to the chat-completion gateway.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
