package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tidemark/mqttbridge/internal/infrastructure/config"
	"github.com/tidemark/mqttbridge/internal/store"
)

const maxQoS = 2

// Deps carries the dependencies needed to construct a Client.
type Deps struct {
	// Config is the MQTT section of the daemon configuration.
	Config config.MQTTConfig

	// Buffer controls disconnected buffering of publishes.
	Buffer config.BufferConfig

	// Engine performs the actual network work.
	Engine Engine

	// Notifications is the channel the engine reports results and events on.
	Notifications <-chan Notification

	// Store optionally persists the disconnected buffer across restarts.
	// Only used when Buffer.Persist is set.
	Store *store.Store

	// Logger is optional; without it, dispatch problems are only visible
	// through the trace listener.
	Logger Logger
}

// Client is the facade over the connection engine. It turns fire-and-forget
// engine operations into tokens the application can wait on, and routes the
// engine's notifications back to tokens and listeners.
//
// Construct with New, then Start the dispatch goroutine before initiating
// operations. Each Client owns its listeners and token registry; independent
// instances never share state.
//
// Thread Safety: all exported methods are safe for concurrent use.
type Client struct {
	cfg    config.MQTTConfig
	engine Engine

	notifications <-chan Notification
	registry      *Registry
	buffer        *messageBuffer

	aliveMu sync.RWMutex
	alive   bool

	connectMu     sync.Mutex
	connectToken  Token
	connectHandle string

	callbackMu sync.RWMutex
	events     EventListener
	trace      TraceListener

	ackMu       sync.Mutex
	pendingAcks map[string]struct{}

	loggerMu sync.RWMutex
	logger   Logger

	lifecycleMu sync.Mutex
	started     bool
	stop        chan struct{}
	wg          sync.WaitGroup
}

// New creates a Client. The dispatch goroutine is not started; call Start.
func New(deps Deps) (*Client, error) {
	if deps.Engine == nil {
		return nil, fmt.Errorf("bridge: engine is required")
	}
	if deps.Notifications == nil {
		return nil, fmt.Errorf("bridge: notification channel is required")
	}

	c := &Client{
		cfg:           deps.Config,
		engine:        deps.Engine,
		notifications: deps.Notifications,
		registry:      NewRegistry(),
		buffer:        newMessageBuffer(deps.Buffer, deps.Store),
		pendingAcks:   make(map[string]struct{}),
		logger:        deps.Logger,
		stop:          make(chan struct{}),
	}

	if deps.Buffer.Persist && deps.Store != nil {
		if err := c.restorePersisted(context.Background()); err != nil {
			return nil, fmt.Errorf("restoring buffered messages: %w", err)
		}
	}

	return c, nil
}

// restorePersisted re-mints delivery tokens for publishes that were buffered
// when the previous process stopped, so they replay on the next connect.
func (c *Client) restorePersisted(ctx context.Context) error {
	persisted, err := c.buffer.persist.List(ctx)
	if err != nil {
		return err
	}

	entries := make([]*bufferedMessage, 0, len(persisted))
	for _, row := range persisted {
		msg := &Message{
			Payload:  row.Payload,
			QoS:      row.QoS,
			Retained: row.Retained,
		}
		token := newDeliveryToken(c, nil, nil, row.Topic, msg)
		entries = append(entries, &bufferedMessage{
			handle: c.registry.Store(token),
			topic:  row.Topic,
			msg:    msg,
			seq:    row.Seq,
		})
	}
	c.buffer.restore(entries)
	return nil
}

// Start launches the notification-dispatch goroutine. It returns immediately;
// the goroutine runs until Close is called or ctx is cancelled.
func (c *Client) Start(ctx context.Context) error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	if c.started {
		return fmt.Errorf("bridge: client already started")
	}
	c.started = true

	c.wg.Add(1)
	go c.dispatchLoop(ctx)
	return nil
}

// Close stops the dispatch goroutine and waits for it to exit. Pending tokens
// are not failed; the engine owns the fate of in-flight operations.
func (c *Client) Close() error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	if !c.started {
		return nil
	}
	c.started = false
	close(c.stop)
	c.wg.Wait()
	return nil
}

func (c *Client) dispatchLoop(ctx context.Context) {
	defer c.wg.Done()

	for {
		select {
		case n := <-c.notifications:
			c.route(n)
		case <-c.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Connect initiates a connection using the configured credentials.
func (c *Client) Connect() (Token, error) {
	return c.ConnectWith(ConnectOptions{}, nil, nil)
}

// ConnectWith initiates a connection with explicit options. Zero-valued
// credential fields fall back to the configured ones.
func (c *Client) ConnectWith(opts ConnectOptions, userContext any, listener ActionListener) (Token, error) {
	if opts.Username == "" {
		opts.Username = c.cfg.Auth.Username
		opts.Password = c.cfg.Auth.Password
	}

	token := newToken(c, userContext, listener, nil)
	handle := c.registry.Store(token)

	// The connect token and its handle are held separately as well: some
	// engines report the initial connect without echoing the handle back,
	// and the registry entry must still be consumed in that case.
	c.connectMu.Lock()
	c.connectToken = token
	c.connectHandle = handle
	c.connectMu.Unlock()

	if err := c.engine.Connect(opts, handle); err != nil {
		c.registry.Remove(handle)
		token.notifyFailure(err)
	}
	return token, nil
}

// Publish sends a message to the broker, or buffers it while disconnected.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) (*DeliveryToken, error) {
	return c.PublishWith(topic, payload, qos, retained, nil, nil)
}

// PublishWith is Publish with an operation context and completion listener.
//
// While connected the message goes straight to the engine. While disconnected
// and with buffering enabled, the message is queued for replay on reconnect
// and the returned token completes when the replayed publish does. With
// buffering disabled, publishing while disconnected fails with
// ErrNotConnected.
func (c *Client) PublishWith(topic string, payload []byte, qos byte, retained bool, userContext any, listener ActionListener) (*DeliveryToken, error) {
	if topic == "" {
		return nil, ErrInvalidTopic
	}
	if qos > maxQoS {
		return nil, ErrInvalidQoS
	}

	msg := &Message{Payload: payload, QoS: qos, Retained: retained}
	token := newDeliveryToken(c, userContext, listener, topic, msg)

	if !c.engine.IsConnected() {
		if !c.buffer.cfg.Enabled {
			return nil, ErrNotConnected
		}
		if err := c.bufferPublish(token, topic, msg); err != nil {
			return nil, err
		}
		return token, nil
	}

	handle := c.registry.Store(token)
	delegate, err := c.engine.Publish(topic, payload, qos, retained, handle)
	if err != nil {
		c.registry.Remove(handle)
		token.notifyFailure(err)
		return token, nil
	}
	if delegate != nil {
		token.bindDelegate(delegate)
	}
	return token, nil
}

// bufferPublish queues a publish for replay. An evicted entry's token is
// failed with ErrBufferFull and unregistered so the registry cannot leak.
func (c *Client) bufferPublish(token *DeliveryToken, topic string, msg *Message) error {
	handle := c.registry.Store(token)

	entry := &bufferedMessage{handle: handle, topic: topic, msg: msg}
	evicted, err := c.buffer.enqueue(context.Background(), entry)

	if evicted != nil {
		if old, ok := c.registry.Remove(evicted.handle); ok {
			old.notifyFailure(ErrBufferFull)
		}
	}

	if err != nil {
		c.registry.Remove(handle)
		return err
	}
	return nil
}

// Subscribe registers interest in a single topic filter.
func (c *Client) Subscribe(topic string, qos byte) (Token, error) {
	return c.SubscribeMultiple([]string{topic}, []byte{qos}, nil, nil)
}

// SubscribeWith is Subscribe with an operation context and completion listener.
func (c *Client) SubscribeWith(topic string, qos byte, userContext any, listener ActionListener) (Token, error) {
	return c.SubscribeMultiple([]string{topic}, []byte{qos}, userContext, listener)
}

// SubscribeMultiple registers interest in several topic filters at once.
// topics and qos must have the same length.
func (c *Client) SubscribeMultiple(topics []string, qos []byte, userContext any, listener ActionListener) (Token, error) {
	if len(topics) == 0 {
		return nil, ErrInvalidTopic
	}
	if len(topics) != len(qos) {
		return nil, ErrTopicQoSMismatch
	}
	for i, topic := range topics {
		if topic == "" {
			return nil, ErrInvalidTopic
		}
		if qos[i] > maxQoS {
			return nil, ErrInvalidQoS
		}
	}

	token := newToken(c, userContext, listener, topics)
	handle := c.registry.Store(token)
	if err := c.engine.Subscribe(topics, qos, handle); err != nil {
		c.registry.Remove(handle)
		token.notifyFailure(err)
	}
	return token, nil
}

// Unsubscribe removes interest in the given topic filters.
func (c *Client) Unsubscribe(topics ...string) (Token, error) {
	return c.UnsubscribeWith(topics, nil, nil)
}

// UnsubscribeWith is Unsubscribe with an operation context and completion listener.
func (c *Client) UnsubscribeWith(topics []string, userContext any, listener ActionListener) (Token, error) {
	if len(topics) == 0 {
		return nil, ErrInvalidTopic
	}
	for _, topic := range topics {
		if topic == "" {
			return nil, ErrInvalidTopic
		}
	}

	token := newToken(c, userContext, listener, topics)
	handle := c.registry.Store(token)
	if err := c.engine.Unsubscribe(topics, handle); err != nil {
		c.registry.Remove(handle)
		token.notifyFailure(err)
	}
	return token, nil
}

// Disconnect closes the connection using the configured quiesce period.
func (c *Client) Disconnect() (Token, error) {
	quiesce := time.Duration(c.cfg.QuiesceMillis) * time.Millisecond
	return c.DisconnectWith(quiesce, nil, nil)
}

// DisconnectWith closes the connection, allowing up to quiesce for in-flight
// work to finish before the engine tears the connection down.
func (c *Client) DisconnectWith(quiesce time.Duration, userContext any, listener ActionListener) (Token, error) {
	token := newToken(c, userContext, listener, nil)
	handle := c.registry.Store(token)
	if err := c.engine.Disconnect(quiesce, handle); err != nil {
		c.registry.Remove(handle)
		token.notifyFailure(err)
	}
	return token, nil
}

// AcknowledgeMessage releases a manually held inbound message. Returns true
// when the id named a message awaiting acknowledgment; false for unknown ids,
// repeated acknowledgment, or when the client is not in manual-ack mode.
func (c *Client) AcknowledgeMessage(id string) bool {
	if c.cfg.AckMode != config.AckModeManual {
		return false
	}

	c.ackMu.Lock()
	_, pending := c.pendingAcks[id]
	if pending {
		delete(c.pendingAcks, id)
	}
	c.ackMu.Unlock()

	if !pending {
		return false
	}
	return c.engine.Acknowledge(id)
}

// IsConnected reports whether the client considers the connection usable:
// the engine must agree and the dispatch layer must have seen the connect
// complete.
func (c *Client) IsConnected() bool {
	c.aliveMu.RLock()
	alive := c.alive
	c.aliveMu.RUnlock()
	return alive && c.engine.IsConnected()
}

func (c *Client) setAlive(alive bool) {
	c.aliveMu.Lock()
	c.alive = alive
	c.aliveMu.Unlock()
}

// SetEventListener installs the listener for unsolicited events. Replaces any
// previous listener; pass nil to remove.
func (c *Client) SetEventListener(listener EventListener) {
	c.callbackMu.Lock()
	c.events = listener
	c.callbackMu.Unlock()
}

// SetTraceListener installs the diagnostic trace sink. Pass nil to remove.
func (c *Client) SetTraceListener(listener TraceListener) {
	c.callbackMu.Lock()
	c.trace = listener
	c.callbackMu.Unlock()
}

// SetLogger installs the logger used for dispatch-layer problems.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *Client) eventListener() EventListener {
	c.callbackMu.RLock()
	defer c.callbackMu.RUnlock()
	return c.events
}

func (c *Client) traceListener() TraceListener {
	c.callbackMu.RLock()
	defer c.callbackMu.RUnlock()
	return c.trace
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// BufferedMessageCount returns the number of publishes waiting for replay.
func (c *Client) BufferedMessageCount() int {
	return c.buffer.count()
}

// BufferedMessage returns the message buffered at index i, oldest first, or
// nil if out of range.
func (c *Client) BufferedMessage(i int) *Message {
	entry := c.buffer.get(i)
	if entry == nil {
		return nil
	}
	return entry.msg
}

// DeleteBufferedMessage discards the buffered publish at index i. Its token
// is failed with ErrNotConnected since the message will never be sent.
func (c *Client) DeleteBufferedMessage(i int) error {
	entry, err := c.buffer.remove(context.Background(), i)
	if entry != nil {
		if token, ok := c.registry.Remove(entry.handle); ok {
			token.notifyFailure(ErrNotConnected)
		}
	}
	return err
}

// PendingTokens returns all tokens whose operations have not completed.
func (c *Client) PendingTokens() []Token {
	return c.registry.Pending()
}

// ServerURI returns the broker URI the client is configured against.
func (c *Client) ServerURI() string {
	scheme := "tcp"
	if c.cfg.Broker.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, c.cfg.Broker.Host, c.cfg.Broker.Port)
}

// ClientID returns the configured client identifier.
func (c *Client) ClientID() string {
	return c.cfg.Broker.ClientID
}
