package models

import "time"

// ToolInvocationMessage is published to a tool worker's queue. MessageID
// equals the ledger record's correlation id; workers echo it back in the
// completion message.
type ToolInvocationMessage struct {
	MessageID  string                 `json:"messageId"`
	Timestamp  string                 `json:"timestamp"`
	Procedure  string                 `json:"procedure"`
	Parameters map[string]interface{} `json:"parameters"`
}

// NewToolInvocation builds an invocation message. Tool params ride alongside
// the reserved inputImageURI/outputImageURI keys.
func NewToolInvocation(correlationID string, ts time.Time, inputURI, outputURI, procedure string, params map[string]interface{}) ToolInvocationMessage {
	parameters := map[string]interface{}{
		"inputImageURI":  inputURI,
		"outputImageURI": outputURI,
	}
	for k, v := range params {
		parameters[k] = v
	}
	return ToolInvocationMessage{
		MessageID:  correlationID,
		Timestamp:  ts.UTC().Format(time.RFC3339),
		Procedure:  procedure,
		Parameters: parameters,
	}
}

// Completion statuses reported by tool workers
const (
	CompletionOK    = "ok"
	CompletionError = "error"
)

// ToolOutput describes what a successful step produced
type ToolOutput struct {
	ImageURI string `json:"imageURI"`
	Type     string `json:"type"` // "image" or "text"
}

// OutputTypeText marks a side-channel text output. Text does not consume the
// image stream: the next step keeps reading the previous step's URIs.
const OutputTypeText = "text"

// ToolError carries a worker-reported failure verbatim
type ToolError struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

// ToolCompletionMessage is consumed from the results queue
type ToolCompletionMessage struct {
	CorrelationID string      `json:"correlationId"`
	Status        string      `json:"status"`
	Output        *ToolOutput `json:"output,omitempty"`
	Error         *ToolError  `json:"error,omitempty"`
}

// ClientNotification is the ws_queue contract. The websocket gateway keys on
// the messageId prefix and the status field, and fans the payload out to the
// owning user's connections.
type ClientNotification struct {
	MessageID string      `json:"messageId"`
	Timestamp string      `json:"timestamp"`
	Status    string      `json:"status"`
	User      string      `json:"user"`
	ErrorCode string      `json:"errorCode,omitempty"`
	ErrorMsg  string      `json:"errorMsg,omitempty"`
	ImgURL    string      `json:"img_url,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

// PreviewPayload is the aggregate body of a preview-ready notification
type PreviewPayload struct {
	ImageURL    string   `json:"imageUrl"`
	TextResults []string `json:"textResults"`
}
