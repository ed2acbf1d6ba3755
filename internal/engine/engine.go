package engine

import (
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/tidemark/mqttbridge/internal/bridge"
	"github.com/tidemark/mqttbridge/internal/infrastructure/config"
)

// Engine adapts paho.mqtt.golang to the notification-based contract the
// bridge client expects: every operation returns immediately and its outcome
// is reported on the notification channel under the caller's handle.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - The notification channel must be consumed until Disconnect completes,
//     or engine goroutines will block on it.
type Engine struct {
	cfg    config.MQTTConfig
	notify chan<- bridge.Notification

	clientMu sync.Mutex
	client   pahomqtt.Client
	options  *pahomqtt.ClientOptions

	// held retains inbound messages awaiting manual acknowledgment,
	// keyed by the identifier stamped on the arrival notification.
	heldMu sync.Mutex
	held   map[string]pahomqtt.Message

	// connectedBefore distinguishes the first connect from reconnects.
	stateMu         sync.Mutex
	connectedBefore bool
}

var _ bridge.Engine = (*Engine)(nil)

// New creates an engine for the given configuration. No network activity
// happens until Connect.
func New(cfg config.MQTTConfig, notify chan<- bridge.Notification) *Engine {
	e := &Engine{
		cfg:    cfg,
		notify: notify,
		held:   make(map[string]pahomqtt.Message),
	}

	opts := buildClientOptions(cfg)
	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		e.handleConnect()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		e.emit(bridge.Notification{Action: bridge.ActionConnectionLost, Err: err})
	})
	opts.SetReconnectingHandler(func(_ pahomqtt.Client, _ *pahomqtt.ClientOptions) {
		e.emit(bridge.Notification{
			Action:        bridge.ActionTrace,
			TraceSeverity: bridge.TraceSeverityDebug,
			TraceTag:      "engine",
			TraceMessage:  "attempting reconnect",
		})
	})
	opts.SetDefaultPublishHandler(func(_ pahomqtt.Client, m pahomqtt.Message) {
		e.handleMessage(m)
	})
	e.options = opts

	return e
}

// Connect starts a connection attempt and reports the outcome under handle.
func (e *Engine) Connect(opts bridge.ConnectOptions, handle string) error {
	e.clientMu.Lock()
	if opts.Username != "" {
		e.options.SetUsername(opts.Username)
		e.options.SetPassword(opts.Password)
	}
	if opts.KeepAlive > 0 {
		e.options.SetKeepAlive(opts.KeepAlive)
	}
	if opts.CleanStart {
		e.options.SetCleanSession(true)
	}
	if e.client == nil {
		e.client = pahomqtt.NewClient(e.options)
	}
	client := e.client
	e.clientMu.Unlock()

	go func() {
		token := client.Connect()
		token.Wait()
		e.emitResult(bridge.ActionConnect, handle, token.Error())
	}()
	return nil
}

// Publish hands a message to paho and reports acceptance and delivery under
// handle. The returned handle exposes the paho packet identifier.
func (e *Engine) Publish(topic string, payload []byte, qos byte, retained bool, handle string) (bridge.DeliveryHandle, error) {
	client, err := e.activeClient()
	if err != nil {
		return nil, err
	}

	token := client.Publish(topic, qos, retained, payload)

	go func() {
		token.Wait()
		if err := token.Error(); err != nil {
			e.emitResult(bridge.ActionSend, handle, err)
			return
		}
		// Paho's token resolves once the QoS flow has finished, so
		// acceptance and delivery are reported back-to-back.
		e.emitResult(bridge.ActionSend, handle, nil)
		e.emitResult(bridge.ActionMessageDelivered, handle, nil)
	}()

	if pub, ok := token.(*pahomqtt.PublishToken); ok {
		return pahoHandle{token: pub}, nil
	}
	return nil, nil
}

// Subscribe registers the topic filters and reports the outcome under handle.
func (e *Engine) Subscribe(topics []string, qos []byte, handle string) error {
	client, err := e.activeClient()
	if err != nil {
		return err
	}

	filters := make(map[string]byte, len(topics))
	for i, topic := range topics {
		filters[topic] = qos[i]
	}

	token := client.SubscribeMultiple(filters, func(_ pahomqtt.Client, m pahomqtt.Message) {
		e.handleMessage(m)
	})

	go func() {
		token.Wait()
		e.emitResult(bridge.ActionSubscribe, handle, token.Error())
	}()
	return nil
}

// Unsubscribe removes the topic filters and reports the outcome under handle.
func (e *Engine) Unsubscribe(topics []string, handle string) error {
	client, err := e.activeClient()
	if err != nil {
		return err
	}

	token := client.Unsubscribe(topics...)

	go func() {
		token.Wait()
		e.emitResult(bridge.ActionUnsubscribe, handle, token.Error())
	}()
	return nil
}

// Disconnect closes the connection after the quiesce period and reports the
// outcome under handle. Held messages are released without acknowledgment;
// the broker redelivers them on the next connect.
func (e *Engine) Disconnect(quiesce time.Duration, handle string) error {
	client, err := e.activeClient()
	if err != nil {
		return err
	}

	go func() {
		client.Disconnect(uint(quiesce.Milliseconds()))

		e.heldMu.Lock()
		e.held = make(map[string]pahomqtt.Message)
		e.heldMu.Unlock()

		e.emitResult(bridge.ActionDisconnect, handle, nil)
	}()
	return nil
}

// IsConnected reports paho's view of the connection.
func (e *Engine) IsConnected() bool {
	e.clientMu.Lock()
	client := e.client
	e.clientMu.Unlock()

	return client != nil && client.IsConnected()
}

// Acknowledge releases a held inbound message, completing its QoS flow.
func (e *Engine) Acknowledge(messageID string) bool {
	if e.cfg.AckMode != config.AckModeManual {
		// Paho acknowledged on receipt; nothing is held.
		return true
	}

	e.heldMu.Lock()
	m, ok := e.held[messageID]
	if ok {
		delete(e.held, messageID)
	}
	e.heldMu.Unlock()

	if !ok {
		return false
	}
	m.Ack()
	return true
}

// handleConnect runs on every established connection, initial and re-established.
func (e *Engine) handleConnect() {
	e.stateMu.Lock()
	reconnect := e.connectedBefore
	e.connectedBefore = true
	e.stateMu.Unlock()

	e.emit(bridge.Notification{
		Action:    bridge.ActionConnectExtended,
		Reconnect: reconnect,
		ServerURI: brokerURL(e.cfg),
	})
}

// handleMessage converts a paho arrival into a notification, holding the
// message for manual acknowledgment when configured.
func (e *Engine) handleMessage(m pahomqtt.Message) {
	id := uuid.NewString()

	if e.cfg.AckMode == config.AckModeManual {
		e.heldMu.Lock()
		e.held[id] = m
		e.heldMu.Unlock()
	}

	e.emit(bridge.Notification{
		Action:    bridge.ActionMessageArrived,
		Topic:     m.Topic(),
		MessageID: id,
		Message: &bridge.Message{
			Payload:   m.Payload(),
			QoS:       m.Qos(),
			Retained:  m.Retained(),
			Duplicate: m.Duplicate(),
		},
	})
}

func (e *Engine) activeClient() (pahomqtt.Client, error) {
	e.clientMu.Lock()
	defer e.clientMu.Unlock()

	if e.client == nil {
		return nil, bridge.ErrNotConnected
	}
	return e.client, nil
}

func (e *Engine) emitResult(action bridge.Action, handle string, err error) {
	n := bridge.Notification{Action: action, Handle: handle}
	if err != nil {
		n.Status = bridge.StatusError
		n.Err = err
	}
	e.emit(n)
}

func (e *Engine) emit(n bridge.Notification) {
	e.notify <- n
}

// pahoHandle exposes paho-native metadata for an in-flight publish.
type pahoHandle struct {
	token *pahomqtt.PublishToken
}

func (h pahoHandle) MessageID() uint16 {
	return h.token.MessageID()
}
