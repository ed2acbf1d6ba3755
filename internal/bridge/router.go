package bridge

import (
	"context"
	"fmt"

	"github.com/tidemark/mqttbridge/internal/infrastructure/config"
)

// Tags used on trace output from the dispatch layer itself.
const (
	routerTag   = "dispatch"
	listenerTag = "listener"
)

// route examines one engine notification and applies its effect: completing
// a token, firing an unsolicited event, or emitting a trace. Runs on the
// dispatch goroutine only.
func (c *Client) route(n Notification) {
	switch n.Action {
	case ActionConnect:
		c.routeConnect(n)
	case ActionConnectExtended:
		c.routeConnectExtended(n)
	case ActionSubscribe, ActionUnsubscribe:
		c.routeOperationEnd(n)
	case ActionSend:
		c.routeSend(n)
	case ActionMessageDelivered:
		c.routeMessageDelivered(n)
	case ActionMessageArrived:
		c.routeMessageArrived(n)
	case ActionConnectionLost:
		c.routeConnectionLost(n)
	case ActionDisconnect:
		c.routeDisconnect(n)
	case ActionTrace:
		c.routeTrace(n)
	default:
		c.traceError(routerTag, fmt.Sprintf("unknown notification action %q", n.Action))
	}
}

// completeToken applies an operation outcome to its token.
func (c *Client) completeToken(token Token, n Notification) {
	if n.Status == StatusOK {
		token.notifyComplete()
		return
	}
	token.notifyFailure(n.Err)
}

func (c *Client) routeConnect(n Notification) {
	token, ok := c.registry.Remove(n.Handle)
	c.connectMu.Lock()
	if !ok {
		// Engines that do not echo the handle still complete the connect
		// token held aside at initiation; its registry entry is consumed
		// under the remembered handle so no token is left behind.
		token = c.connectToken
		if c.connectHandle != "" {
			c.registry.Remove(c.connectHandle)
		}
	}
	c.connectToken = nil
	c.connectHandle = ""
	c.connectMu.Unlock()

	if token == nil {
		c.traceError(routerTag, "connect result with no pending connect token")
		return
	}

	if n.Status == StatusOK {
		c.setAlive(true)
		c.replayBuffer()
	}
	c.completeToken(token, n)
}

func (c *Client) routeConnectExtended(n Notification) {
	c.setAlive(true)
	c.replayBuffer()

	if listener := c.eventListener(); listener != nil {
		listener.ConnectComplete(n.Reconnect, n.ServerURI)
	}
}

// routeOperationEnd finishes subscribe and unsubscribe operations, whose
// result ends the token's lifecycle in one step.
func (c *Client) routeOperationEnd(n Notification) {
	token, ok := c.registry.Remove(n.Handle)
	if !ok {
		c.traceError(routerTag, fmt.Sprintf("%s result for unknown handle %q", n.Action, n.Handle))
		return
	}
	c.completeToken(token, n)
}

// routeSend completes a publish token when the engine accepts the message.
// The token stays registered: the later delivery confirmation still needs it.
func (c *Client) routeSend(n Notification) {
	token, ok := c.registry.Peek(n.Handle)
	if !ok {
		c.traceError(routerTag, fmt.Sprintf("send result for unknown handle %q", n.Handle))
		return
	}

	if n.Status != StatusOK {
		// A failed publish will see no delivery confirmation; the handle is
		// finished.
		c.registry.Remove(n.Handle)
	}
	c.completeToken(token, n)
}

// routeMessageDelivered ends a publish lifecycle: the token is unregistered,
// its retained message released, and the delivery event fired exactly once.
func (c *Client) routeMessageDelivered(n Notification) {
	token, ok := c.registry.Remove(n.Handle)
	if !ok {
		c.traceError(routerTag, fmt.Sprintf("delivery confirmation for unknown handle %q", n.Handle))
		return
	}
	if n.Status != StatusOK {
		token.notifyFailure(n.Err)
		return
	}

	delivery, ok := token.(*DeliveryToken)
	if !ok {
		c.traceError(routerTag, fmt.Sprintf("delivery confirmation for non-publish handle %q", n.Handle))
		return
	}

	// Late completion guard: a delivery confirmation implies acceptance even
	// if the send notification was never observed.
	delivery.notifyComplete()
	delivery.markDelivered()

	if listener := c.eventListener(); listener != nil {
		listener.DeliveryComplete(delivery)
	}
}

func (c *Client) routeMessageArrived(n Notification) {
	listener := c.eventListener()
	if listener == nil {
		// Without a listener nobody can ever acknowledge the message, so
		// release it back to the engine rather than hold it forever.
		c.traceDebug(routerTag, "inbound message dropped: no event listener")
		c.engine.Acknowledge(n.MessageID)
		return
	}

	manual := c.cfg.AckMode == config.AckModeManual
	if manual {
		n.Message.ID = n.MessageID
		c.ackMu.Lock()
		c.pendingAcks[n.MessageID] = struct{}{}
		c.ackMu.Unlock()
	}

	if err := c.invokeArrival(listener, n.Topic, n.Message); err != nil {
		c.traceException(listenerTag, "message arrival listener failed", err)
	}

	// Auto mode acknowledges regardless of the listener outcome; redelivery
	// of poison messages helps nobody.
	if !manual {
		c.engine.Acknowledge(n.MessageID)
	}
}

// invokeArrival shields the dispatch goroutine from panicking listeners.
func (c *Client) invokeArrival(listener EventListener, topic string, msg *Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener panic: %v", r)
		}
	}()
	return listener.MessageArrived(topic, msg)
}

func (c *Client) routeConnectionLost(n Notification) {
	c.setAlive(false)

	if listener := c.eventListener(); listener != nil {
		listener.ConnectionLost(n.Err)
	}
}

func (c *Client) routeDisconnect(n Notification) {
	c.setAlive(false)

	if token, ok := c.registry.Remove(n.Handle); ok {
		c.completeToken(token, n)
	}

	// A requested disconnect still surfaces as a lost connection, with a nil
	// cause marking it clean.
	if listener := c.eventListener(); listener != nil {
		listener.ConnectionLost(nil)
	}
}

func (c *Client) routeTrace(n Notification) {
	listener := c.traceListener()
	if listener == nil {
		if logger := c.getLogger(); logger != nil && n.TraceSeverity != TraceSeverityDebug {
			logger.Warn("engine trace", "tag", n.TraceTag, "message", n.TraceMessage)
		}
		return
	}

	switch n.TraceSeverity {
	case TraceSeverityError:
		listener.TraceError(n.TraceTag, n.TraceMessage)
	case TraceSeverityException:
		listener.TraceException(n.TraceTag, n.TraceMessage, n.Err)
	default:
		listener.TraceDebug(n.TraceTag, n.TraceMessage)
	}
}

// replayBuffer hands buffered publishes back to the engine in FIFO order.
// Runs on the dispatch goroutine after a connect completes.
func (c *Client) replayBuffer() {
	entries := c.buffer.drain()
	ctx := context.Background()

	for _, entry := range entries {
		delegate, err := c.engine.Publish(entry.topic, entry.msg.Payload, entry.msg.QoS, entry.msg.Retained, entry.handle)
		if err != nil {
			if token, ok := c.registry.Remove(entry.handle); ok {
				token.notifyFailure(err)
			}
			continue
		}

		if delegate != nil {
			if token, ok := c.registry.Peek(entry.handle); ok {
				if op, isOp := token.(*DeliveryToken); isOp {
					op.bindDelegate(delegate)
				}
			}
		}

		if err := c.buffer.clearPersisted(ctx, entry); err != nil {
			c.logError("clearing persisted buffer entry", err)
		}
	}
}

func (c *Client) traceDebug(tag, message string) {
	if listener := c.traceListener(); listener != nil {
		listener.TraceDebug(tag, message)
	}
}

func (c *Client) traceError(tag, message string) {
	if listener := c.traceListener(); listener != nil {
		listener.TraceError(tag, message)
		return
	}
	c.logError(message, nil)
}

func (c *Client) traceException(tag, message string, err error) {
	if listener := c.traceListener(); listener != nil {
		listener.TraceException(tag, message, err)
		return
	}
	c.logError(message, err)
}

func (c *Client) logError(message string, err error) {
	logger := c.getLogger()
	if logger == nil {
		return
	}
	if err != nil {
		logger.Error(message, "error", err)
		return
	}
	logger.Error(message)
}
