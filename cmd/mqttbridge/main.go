// mqttbridge - asynchronous MQTT bridge daemon
//
// mqttbridge maintains a broker connection through an asynchronous
// operation-tracking layer: every connect, publish, subscribe, and disconnect
// is represented by a token that completes when the broker round-trip does.
// Publishes issued while the connection is down are buffered (optionally in
// SQLite) and replayed on reconnect, and a small HTTP API exposes health and
// bridge status for monitoring.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tidemark/mqttbridge/internal/api"
	"github.com/tidemark/mqttbridge/internal/bridge"
	"github.com/tidemark/mqttbridge/internal/engine"
	"github.com/tidemark/mqttbridge/internal/infrastructure/config"
	"github.com/tidemark/mqttbridge/internal/infrastructure/logging"
	"github.com/tidemark/mqttbridge/internal/store"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// notificationBuffer sizes the engine-to-dispatch channel. The dispatch
// goroutine drains continuously; the buffer only absorbs bursts.
const notificationBuffer = 64

// disconnectWait bounds how long shutdown waits for the disconnect token.
const disconnectWait = 5 * time.Second

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting mqttbridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open the buffer store (only when persistence is enabled)
	var bufferStore *store.Store
	if cfg.Buffer.Persist {
		bufferStore, err = store.Open(cfg.Store)
		if err != nil {
			return fmt.Errorf("opening buffer store: %w", err)
		}
		defer func() {
			log.Info("closing buffer store")
			if closeErr := bufferStore.Close(); closeErr != nil {
				log.Error("error closing buffer store", "error", closeErr)
			}
		}()
		log.Info("buffer store opened", "path", bufferStore.Path())
	}

	// Wire the engine to the bridge client through a notification channel
	notifications := make(chan bridge.Notification, notificationBuffer)
	eng := engine.New(cfg.MQTT, notifications)

	client, err := bridge.New(bridge.Deps{
		Config:        cfg.MQTT,
		Buffer:        cfg.Buffer,
		Engine:        eng,
		Notifications: notifications,
		Store:         bufferStore,
		Logger:        log.WithComponent("bridge"),
	})
	if err != nil {
		return fmt.Errorf("creating bridge client: %w", err)
	}
	if restored := client.BufferedMessageCount(); restored > 0 {
		log.Info("restored buffered publishes", "count", restored)
	}

	// Subscriptions are (re-)applied on every established connection
	client.SetEventListener(&daemonEvents{client: client, cfg: cfg.MQTT, log: log})

	if err := client.Start(ctx); err != nil {
		return fmt.Errorf("starting dispatch: %w", err)
	}
	defer func() {
		if closeErr := client.Close(); closeErr != nil {
			log.Error("error stopping dispatch", "error", closeErr)
		}
	}()

	// Connect and wait for the broker to accept us
	connectToken, err := client.Connect()
	if err != nil {
		return fmt.Errorf("initiating connect: %w", err)
	}
	if err := connectToken.WaitTimeout(cfg.GetConnectTimeout()); err != nil {
		return fmt.Errorf("connecting to broker: %w", err)
	}
	log.Info("MQTT connected",
		"broker", client.ServerURI(),
		"client_id", client.ClientID(),
	)

	// Start the diagnostics API (if enabled)
	if cfg.API.Enabled {
		apiServer, apiErr := api.New(api.Deps{
			Config:  cfg.API,
			Logger:  log.WithComponent("api"),
			Bridge:  client,
			Version: version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := apiServer.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
		log.Info("API server started", "host", cfg.API.Host, "port", cfg.API.Port)
	} else {
		log.Info("API server disabled")
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, disconnecting")

	// Quiesced disconnect: give in-flight publishes a chance to finish
	disconnectToken, err := client.Disconnect()
	if err != nil {
		log.Warn("initiating disconnect failed", "error", err)
	} else if waitErr := disconnectToken.WaitTimeout(disconnectWait); waitErr != nil {
		log.Warn("disconnect did not complete cleanly", "error", waitErr)
	}

	log.Info("mqttbridge stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses MQTTBRIDGE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("MQTTBRIDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// daemonEvents is the daemon's event listener: it applies the configured
// subscriptions on every established connection and logs the rest.
type daemonEvents struct {
	client *bridge.Client
	cfg    config.MQTTConfig
	log    *logging.Logger
}

// ConnectComplete re-applies configured subscriptions. Sessions are clean, so
// the broker forgets them across connections.
func (d *daemonEvents) ConnectComplete(reconnect bool, serverURI string) {
	d.log.Info("connection established", "reconnect", reconnect, "broker", serverURI)

	if len(d.cfg.Subscriptions) == 0 {
		return
	}

	topics := make([]string, len(d.cfg.Subscriptions))
	qos := make([]byte, len(d.cfg.Subscriptions))
	for i, sub := range d.cfg.Subscriptions {
		topics[i] = sub.Topic
		qos[i] = byte(sub.QoS)
	}

	if _, err := d.client.SubscribeMultiple(topics, qos, nil, subscribeLogger{log: d.log, topics: topics}); err != nil {
		d.log.Error("subscribing to configured topics", "error", err)
	}
}

func (d *daemonEvents) ConnectionLost(cause error) {
	if cause == nil {
		d.log.Info("disconnected from broker")
		return
	}
	d.log.Warn("connection lost", "error", cause)
}

func (d *daemonEvents) MessageArrived(topic string, msg *bridge.Message) error {
	d.log.Info("message arrived",
		"topic", topic,
		"bytes", len(msg.Payload),
		"qos", msg.QoS,
		"retained", msg.Retained,
	)
	return nil
}

func (d *daemonEvents) DeliveryComplete(token *bridge.DeliveryToken) {
	d.log.Info("delivery complete", "topic", token.Topic())
}

// subscribeLogger reports the outcome of the configured subscriptions.
type subscribeLogger struct {
	log    *logging.Logger
	topics []string
}

func (l subscribeLogger) OnSuccess(_ bridge.Token) {
	l.log.Info("subscriptions active", "topics", l.topics)
}

func (l subscribeLogger) OnFailure(_ bridge.Token, cause error) {
	l.log.Error("subscription failed", "topics", l.topics, "error", cause)
}
