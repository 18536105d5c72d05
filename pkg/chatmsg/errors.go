package chatmsg

import "fmt"

// ErrorKind enumerates the taxonomy of errors a Chat call can fail with.
// Transport layers (pkg/httpapi) switch on Kind to pick an HTTP status;
// 4xx for caller mistakes, 5xx for everything else.
type ErrorKind string

const (
	// KindConfigInvalid: the configuration document failed validation
	// before any call could start.
	KindConfigInvalid ErrorKind = "config_invalid"
	// KindModelUnresolved: the requested model name has no matching
	// ModelConfig/ClientConfig pair.
	KindModelUnresolved ErrorKind = "model_unresolved"
	// KindToolsetValidation: a requested toolset references a server or
	// tool the catalogue does not have.
	KindToolsetValidation ErrorKind = "toolset_validation"
	// KindToolArgumentsMalformed: the model emitted a tool call whose
	// arguments could not be parsed as the tool's declared schema expects.
	KindToolArgumentsMalformed ErrorKind = "tool_arguments_malformed"
	// KindToolExecutionError: a tool ran and returned a failure; this is
	// folded back into the transcript as a ToolResult, not raised.
	KindToolExecutionError ErrorKind = "tool_execution_error"
	// KindDeferredToolCalledDirectly: the model called a tool name that
	// exists only in a deferred server's catalogue, bypassing search-tools.
	KindDeferredToolCalledDirectly ErrorKind = "deferred_tool_called_directly"
	// KindTransportError: an MCP or LLM transport failed (subprocess,
	// HTTP, stream).
	KindTransportError ErrorKind = "transport_error"
	// KindLoopLimitExceeded: the call reached MaxIterations without the
	// model producing a final answer.
	KindLoopLimitExceeded ErrorKind = "loop_limit_exceeded"
	// KindCancelled: the caller's context was cancelled or timed out.
	KindCancelled ErrorKind = "cancelled"
)

// ChatError is the typed error every Chat-call failure path returns. The
// Kind selects the taxonomy bucket; Err carries the underlying cause.
type ChatError struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *ChatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *ChatError) Unwrap() error {
	return e.Err
}

// NewChatError builds a ChatError of the given kind.
func NewChatError(kind ErrorKind, msg string, err error) *ChatError {
	return &ChatError{Kind: kind, Msg: msg, Err: err}
}

// IsKind reports whether err is a *ChatError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	ce, ok := err.(*ChatError)
	return ok && ce.Kind == kind
}

// The following constructors name each taxonomy bucket explicitly, so
// call sites read as "return chatmsg.ModelUnresolvedError(...)" rather
// than repeating the Kind constant at every call site.

func ConfigInvalidError(msg string, err error) *ChatError {
	return NewChatError(KindConfigInvalid, msg, err)
}

func ModelUnresolvedError(msg string, err error) *ChatError {
	return NewChatError(KindModelUnresolved, msg, err)
}

func ToolsetValidationError(msg string, err error) *ChatError {
	return NewChatError(KindToolsetValidation, msg, err)
}

func ToolArgumentsMalformedError(msg string, err error) *ChatError {
	return NewChatError(KindToolArgumentsMalformed, msg, err)
}

func ToolExecutionError(msg string, err error) *ChatError {
	return NewChatError(KindToolExecutionError, msg, err)
}

func DeferredToolCalledDirectlyError(msg string, err error) *ChatError {
	return NewChatError(KindDeferredToolCalledDirectly, msg, err)
}

func TransportError(msg string, err error) *ChatError {
	return NewChatError(KindTransportError, msg, err)
}

func LoopLimitExceededError(msg string, err error) *ChatError {
	return NewChatError(KindLoopLimitExceeded, msg, err)
}

func CancelledError(msg string, err error) *ChatError {
	return NewChatError(KindCancelled, msg, err)
}
