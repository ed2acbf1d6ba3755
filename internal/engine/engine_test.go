package engine

import (
	"testing"

	"github.com/tidemark/mqttbridge/internal/bridge"
	"github.com/tidemark/mqttbridge/internal/infrastructure/config"
)

// fakeMessage implements pahomqtt.Message for handler tests.
type fakeMessage struct {
	topic     string
	payload   []byte
	qos       byte
	retained  bool
	duplicate bool
	id        uint16

	acks int
}

func (m *fakeMessage) Duplicate() bool   { return m.duplicate }
func (m *fakeMessage) Qos() byte         { return m.qos }
func (m *fakeMessage) Retained() bool    { return m.retained }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return m.id }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              { m.acks++ }

func testConfig(ackMode string) config.MQTTConfig {
	cfg := config.Default().MQTT
	cfg.AckMode = ackMode
	return cfg
}

func TestHandleMessage_AutoAck(t *testing.T) {
	notify := make(chan bridge.Notification, 1)
	e := New(testConfig(config.AckModeAuto), notify)

	msg := &fakeMessage{
		topic:     "sensors/temp",
		payload:   []byte("21.5"),
		qos:       1,
		retained:  true,
		duplicate: true,
	}
	e.handleMessage(msg)

	n := <-notify
	if n.Action != bridge.ActionMessageArrived {
		t.Fatalf("notification action = %q, want messageArrived", n.Action)
	}
	if n.Topic != "sensors/temp" {
		t.Errorf("topic = %q, want sensors/temp", n.Topic)
	}
	if n.MessageID == "" {
		t.Error("message ID is empty, want a generated identifier")
	}
	got := n.Message
	if string(got.Payload) != "21.5" || got.QoS != 1 || !got.Retained || !got.Duplicate {
		t.Errorf("mapped message = %+v, want payload/qos/retained/duplicate preserved", got)
	}

	// Auto mode holds nothing; paho already acknowledged
	if len(e.held) != 0 {
		t.Errorf("held messages = %d in auto mode, want 0", len(e.held))
	}
	if !e.Acknowledge(n.MessageID) {
		t.Error("Acknowledge() = false in auto mode, want true (no-op)")
	}
	if msg.acks != 0 {
		t.Errorf("Ack() called %d times in auto mode, want 0", msg.acks)
	}
}

func TestHandleMessage_ManualAckHoldsUntilRelease(t *testing.T) {
	notify := make(chan bridge.Notification, 1)
	e := New(testConfig(config.AckModeManual), notify)

	msg := &fakeMessage{topic: "t", payload: []byte("x"), qos: 2}
	e.handleMessage(msg)
	n := <-notify

	if len(e.held) != 1 {
		t.Fatalf("held messages = %d, want 1", len(e.held))
	}
	if msg.acks != 0 {
		t.Fatalf("Ack() called before release")
	}

	if !e.Acknowledge(n.MessageID) {
		t.Fatal("Acknowledge() = false for held message, want true")
	}
	if msg.acks != 1 {
		t.Errorf("Ack() called %d times, want 1", msg.acks)
	}
	if len(e.held) != 0 {
		t.Errorf("held messages = %d after release, want 0", len(e.held))
	}

	// Double release and unknown ids are refused
	if e.Acknowledge(n.MessageID) {
		t.Error("second Acknowledge() = true, want false")
	}
	if e.Acknowledge("unknown") {
		t.Error("Acknowledge(unknown) = true, want false")
	}
}

func TestHandleMessage_DistinctIDs(t *testing.T) {
	notify := make(chan bridge.Notification, 2)
	e := New(testConfig(config.AckModeManual), notify)

	e.handleMessage(&fakeMessage{topic: "t", id: 1})
	e.handleMessage(&fakeMessage{topic: "t", id: 1})

	first := <-notify
	second := <-notify
	if first.MessageID == second.MessageID {
		t.Error("two arrivals share a message ID; wire-level packet ids must not leak into ack ids")
	}
}

func TestHandleConnect_ReconnectFlag(t *testing.T) {
	notify := make(chan bridge.Notification, 2)
	e := New(testConfig(config.AckModeAuto), notify)

	e.handleConnect()
	if n := <-notify; n.Action != bridge.ActionConnectExtended || n.Reconnect {
		t.Errorf("first connect notification = %+v, want connectExtended with reconnect=false", n)
	}

	e.handleConnect()
	if n := <-notify; !n.Reconnect {
		t.Errorf("second connect notification = %+v, want reconnect=true", n)
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := config.Default().MQTT
	cfg.Broker.Host = "broker.example"
	cfg.Broker.Port = 8883
	cfg.Broker.TLS = true
	cfg.Broker.ClientID = "edge-1"
	cfg.Auth.Username = "svc"
	cfg.Auth.Password = "secret"
	cfg.AckMode = config.AckModeManual

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "ssl://broker.example:8883" {
		t.Errorf("broker servers = %v, want [ssl://broker.example:8883]", opts.Servers)
	}
	if opts.ClientID != "edge-1" {
		t.Errorf("client id = %q, want edge-1", opts.ClientID)
	}
	if opts.Username != "svc" {
		t.Errorf("username = %q, want svc", opts.Username)
	}
	if !opts.CleanSession {
		t.Error("clean session = false, want true")
	}
	if !opts.AutoReconnect {
		t.Error("auto reconnect = false, want true")
	}
	if !opts.AutoAckDisabled {
		t.Error("auto ack still enabled in manual mode")
	}
	if opts.TLSConfig == nil {
		t.Error("TLS config missing with tls enabled")
	}
}

func TestOperationsBeforeConnect(t *testing.T) {
	notify := make(chan bridge.Notification, 1)
	e := New(testConfig(config.AckModeAuto), notify)

	if _, err := e.Publish("t", []byte("x"), 1, false, "1"); err == nil {
		t.Error("Publish() before Connect error = nil, want error")
	}
	if err := e.Subscribe([]string{"t"}, []byte{1}, "2"); err == nil {
		t.Error("Subscribe() before Connect error = nil, want error")
	}
	if e.IsConnected() {
		t.Error("IsConnected() = true before Connect")
	}
}
