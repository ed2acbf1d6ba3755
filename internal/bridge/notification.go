package bridge

// Action identifies the kind of event a Notification carries.
type Action string

// Actions emitted by the connection engine. Operation results carry the
// correlation handle of the operation they complete; unsolicited events
// carry an empty handle.
const (
	ActionConnect          Action = "connect"
	ActionConnectExtended  Action = "connectExtended"
	ActionSubscribe        Action = "subscribe"
	ActionUnsubscribe      Action = "unsubscribe"
	ActionSend             Action = "send"
	ActionMessageDelivered Action = "messageDelivered"
	ActionMessageArrived   Action = "messageArrived"
	ActionConnectionLost   Action = "connectionLost"
	ActionDisconnect       Action = "disconnect"
	ActionTrace            Action = "trace"
)

// Status reports whether the operation a notification completes succeeded.
type Status int

const (
	StatusOK Status = iota
	StatusError
)

// Trace severities carried by ActionTrace notifications.
const (
	TraceSeverityDebug     = "debug"
	TraceSeverityError     = "error"
	TraceSeverityException = "exception"
)

// Notification is the unit of communication from the connection engine to the
// client's dispatch goroutine. Exactly one notification channel feeds each
// client; the engine must never invoke client state directly.
//
// Only the fields relevant to the Action are populated.
type Notification struct {
	Action Action

	// Handle correlates an operation result with its registered token.
	// Empty for unsolicited events.
	Handle string

	// Status and Err describe the outcome of an operation result.
	Status Status
	Err    error

	// Topic and Message are set for ActionMessageArrived.
	Topic   string
	Message *Message

	// MessageID tags an arrival for manual acknowledgment.
	MessageID string

	// Reconnect and ServerURI are set for ActionConnectExtended.
	Reconnect bool
	ServerURI string

	// Trace fields, set for ActionTrace.
	TraceSeverity string
	TraceTag      string
	TraceMessage  string
}
