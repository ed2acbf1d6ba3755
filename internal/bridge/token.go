package bridge

import (
	"sync"
	"time"
)

// Token tracks one asynchronous operation from initiation to completion.
//
// Every client operation (connect, subscribe, unsubscribe, publish,
// disconnect) returns a token immediately; the outcome arrives later via the
// notification channel. Callers may block on Wait/WaitTimeout, select on
// Done, poll IsComplete, or attach an ActionListener - all four observe the
// same single completion.
//
// Thread Safety: all methods are safe for concurrent use. Completion happens
// exactly once; waiters released by it always observe IsComplete() == true
// and the final Error() value.
type Token interface {
	// Wait blocks until the operation completes, then returns its error
	// (nil on success).
	Wait() error

	// WaitTimeout blocks up to the given duration. If the operation has not
	// completed in time it returns ErrClientTimeout; the operation itself
	// continues and may still complete later.
	WaitTimeout(timeout time.Duration) error

	// Done returns a channel that is closed when the operation completes.
	Done() <-chan struct{}

	// IsComplete reports whether the operation has finished.
	IsComplete() bool

	// Error returns the operation's failure cause, or nil if it succeeded
	// or has not completed yet.
	Error() error

	// UserContext returns the opaque value supplied when the operation was
	// initiated.
	UserContext() any

	// Topics returns the topic filters the operation applies to, or nil for
	// operations without topics (connect, disconnect).
	Topics() []string

	// SetActionListener attaches a completion listener. A listener attached
	// after completion is not invoked retroactively.
	SetActionListener(listener ActionListener)

	notifyComplete()
	notifyFailure(cause error)
}

// OperationToken is the concrete token for all non-publish operations.
type OperationToken struct {
	client      *Client
	userContext any
	topics      []string

	// self is the outermost token value, so listeners attached to a
	// DeliveryToken receive the DeliveryToken and not the embedded base.
	self Token

	mu       sync.Mutex
	listener ActionListener
	complete bool
	err      error
	delegate DeliveryHandle
	done     chan struct{}
}

var _ Token = (*OperationToken)(nil)

func newToken(client *Client, userContext any, listener ActionListener, topics []string) *OperationToken {
	t := &OperationToken{
		client:      client,
		userContext: userContext,
		topics:      topics,
		listener:    listener,
		done:        make(chan struct{}),
	}
	t.self = t
	return t
}

// Wait blocks until the operation completes, then returns its error.
func (t *OperationToken) Wait() error {
	<-t.done
	return t.Error()
}

// WaitTimeout blocks up to timeout for completion, returning ErrClientTimeout
// if the operation is still pending when the timer fires.
func (t *OperationToken) WaitTimeout(timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-t.done:
		return t.Error()
	case <-timer.C:
		return ErrClientTimeout
	}
}

// Done returns a channel closed on completion, for use in select statements.
func (t *OperationToken) Done() <-chan struct{} {
	return t.done
}

// IsComplete reports whether the operation has finished, successfully or not.
func (t *OperationToken) IsComplete() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.complete
}

// Error returns the failure cause recorded at completion, or nil.
func (t *OperationToken) Error() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// UserContext returns the opaque value supplied at initiation.
func (t *OperationToken) UserContext() any {
	return t.userContext
}

// Topics returns the topic filters this operation applies to.
func (t *OperationToken) Topics() []string {
	return t.topics
}

// Client returns the client that initiated the operation.
func (t *OperationToken) Client() *Client {
	return t.client
}

// SetActionListener attaches a completion listener. Attaching after
// completion is allowed but the listener is not invoked for the past event.
func (t *OperationToken) SetActionListener(listener ActionListener) {
	t.mu.Lock()
	t.listener = listener
	t.mu.Unlock()
}

// MessageID returns the wire-level packet identifier assigned by the engine,
// or ErrHandleUnbound if the engine has not yet accepted the operation.
func (t *OperationToken) MessageID() (uint16, error) {
	t.mu.Lock()
	delegate := t.delegate
	t.mu.Unlock()

	if delegate == nil {
		return 0, ErrHandleUnbound
	}
	return delegate.MessageID(), nil
}

// bindDelegate attaches the engine-native handle once the engine accepts the
// operation. First bind wins; later binds are ignored.
func (t *OperationToken) bindDelegate(delegate DeliveryHandle) {
	t.mu.Lock()
	if t.delegate == nil {
		t.delegate = delegate
	}
	t.mu.Unlock()
}

// notifyComplete marks the operation successful. The completion flag is set
// and waiters are released before the listener runs, so the listener observes
// a completed token. Subsequent notifications are ignored.
func (t *OperationToken) notifyComplete() {
	t.mu.Lock()
	if t.complete {
		t.mu.Unlock()
		return
	}
	t.complete = true
	listener := t.listener
	close(t.done)
	t.mu.Unlock()

	if listener != nil {
		listener.OnSuccess(t.self)
	}
}

// notifyFailure marks the operation failed with the given cause, wrapping it
// in ErrEngine unless it is already a domain error. Same ordering guarantees
// as notifyComplete.
func (t *OperationToken) notifyFailure(cause error) {
	wrapped := cause
	if !isDomainError(cause) {
		wrapped = wrapEngineCause(cause)
	}

	t.mu.Lock()
	if t.complete {
		t.mu.Unlock()
		return
	}
	t.complete = true
	t.err = wrapped
	listener := t.listener
	close(t.done)
	t.mu.Unlock()

	if listener != nil {
		listener.OnFailure(t.self, wrapped)
	}
}

// DeliveryToken extends OperationToken for publish operations. It retains the
// published message until the engine confirms delivery, at which point the
// message is released and Message returns nil.
type DeliveryToken struct {
	OperationToken

	msgMu   sync.Mutex
	message *Message
}

var _ Token = (*DeliveryToken)(nil)

func newDeliveryToken(client *Client, userContext any, listener ActionListener, topic string, msg *Message) *DeliveryToken {
	t := &DeliveryToken{
		OperationToken: OperationToken{
			client:      client,
			userContext: userContext,
			topics:      []string{topic},
			listener:    listener,
			done:        make(chan struct{}),
		},
		message: msg,
	}
	t.self = t
	return t
}

// Message returns the in-flight message, or nil once delivery has been
// confirmed.
func (t *DeliveryToken) Message() *Message {
	t.msgMu.Lock()
	defer t.msgMu.Unlock()
	return t.message
}

// Topic returns the topic the message was published to.
func (t *DeliveryToken) Topic() string {
	if len(t.topics) == 0 {
		return ""
	}
	return t.topics[0]
}

// markDelivered releases the retained message after delivery confirmation.
func (t *DeliveryToken) markDelivered() {
	t.msgMu.Lock()
	t.message = nil
	t.msgMu.Unlock()
}
