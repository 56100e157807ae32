// Package chat implements the conversation-augmentation pipeline: the model
// gateway, the in-memory conversation store, document reference extraction,
// and the orchestrator that ties a single chat turn together.
package chat

// Role represents the role of a message sender
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in a conversation. Turns are immutable once appended;
// a failed model call retracts the last turn rather than mutating it.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// DocumentReference is a (document id, version id) pair recovered from the
// model's reply text. Both ids are 24-character hexadecimal tokens.
type DocumentReference struct {
	DocumentID string `json:"document_id"`
	VersionID  string `json:"version_id"`
}

// ModelReply is a successful model invocation result.
type ModelReply struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// TurnResult is the committed outcome of one chat turn.
type TurnResult struct {
	ConversationID string
	ReplyText      string
	References     []DocumentReference
	InputTokens    int
	OutputTokens   int
}

// DefaultSystemPrompt instructs the model to cite documents in the bracketed
// format the extractor recovers.
const DefaultSystemPrompt = "You are a helpful assistant for reviewing case files. " +
	"When you cite a document, always include a bracketed citation of the form " +
	"[Document ID: <24-character hex id>, Document Version ID: <24-character hex id>] " +
	"using the ids exactly as they appear in the document."
