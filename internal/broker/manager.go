// Package broker owns the single MQTT connection of the top-level context.
// The connection outlives content swaps; inbound messages are wrapped in
// mqtt envelopes and handed to a Forwarder that targets whatever content is
// mounted at that moment.
package broker

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"code.cloudfoundry.org/clock"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/i474232898/weather-skin/internal/config"
	"github.com/i474232898/weather-skin/internal/envelope"
	"github.com/i474232898/weather-skin/internal/frame"
	"github.com/i474232898/weather-skin/internal/store"
)

var ErrBreakerOpen = errors.New("broker connect circuit open")

// Status of the connection.
type Status int32

const (
	Disconnected Status = iota
	Connecting
	Connected
)

func (s Status) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Options are the connection settings of the skin.
type Options struct {
	Host              string
	Port              int
	Path              string
	Timeout           time.Duration
	KeepAliveInterval time.Duration
	CleanSession      bool
	UseSSL            bool
	Reconnect         bool
	UserName          string
	Password          string

	// Topics maps each subscribed topic to its QoS.
	Topics map[string]byte

	// DisconnectAfter closes the connection that long after it was
	// established; zero keeps it open.
	DisconnectAfter time.Duration
}

// OptionsFromConfig converts the skin broker section.
func OptionsFromConfig(c config.MQTTConfig) Options {
	topics := make(map[string]byte, len(c.Topics))
	for topic, tc := range c.Topics {
		topics[topic] = tc.QoS
	}
	return Options{
		Host:              c.Host,
		Port:              c.Port,
		Path:              c.Path,
		Timeout:           time.Duration(c.Timeout) * time.Second,
		KeepAliveInterval: time.Duration(c.KeepAliveInterval) * time.Second,
		CleanSession:      c.CleanSession,
		UseSSL:            c.UseSSL,
		Reconnect:         c.Reconnect,
		UserName:          c.Username,
		Password:          c.Password,
		Topics:            topics,
		DisconnectAfter:   time.Duration(c.Disconnect) * time.Second,
	}
}

// Forwarder receives every inbound message as an mqtt envelope.
type Forwarder func(envelope.Envelope)

// ClientFactory builds the transport client.
type ClientFactory func(*mqtt.ClientOptions) mqtt.Client

// Deps are the collaborators of a Manager.
type Deps struct {
	// Loop is the top-level event loop; every transport callback is
	// re-posted onto it before touching state.
	Loop      frame.Poster
	Store     store.Store
	Clock     clock.Clock
	Forward   Forwarder
	NewClient ClientFactory
	Logger    *slog.Logger
}

// Info is a point-in-time view of the manager, for diagnostics.
type Info struct {
	Status   string   `json:"status"`
	ClientID string   `json:"clientId,omitempty"`
	Broker   string   `json:"broker"`
	Topics   []string `json:"topics"`
}

// Manager is the connection singleton.
type Manager struct {
	opts      Options
	loop      frame.Poster
	store     store.Store
	clock     clock.Clock
	forward   Forwarder
	newClient ClientFactory
	logger    *slog.Logger
	breaker   *gobreaker.TwoStepCircuitBreaker

	status atomic.Int32

	mu       sync.Mutex
	client   mqtt.Client
	clientID string
	session  uint64
	outcome  func(success bool)
	stop     chan struct{}
}

func NewManager(opts Options, deps Deps) *Manager {
	if deps.Clock == nil {
		deps.Clock = clock.NewClock()
	}
	if deps.NewClient == nil {
		deps.NewClient = mqtt.NewClient
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Forward == nil {
		deps.Forward = func(envelope.Envelope) {}
	}
	if opts.Path == "" {
		opts.Path = "/mqtt"
	}
	return &Manager{
		opts:      opts,
		loop:      deps.Loop,
		store:     deps.Store,
		clock:     deps.Clock,
		forward:   deps.Forward,
		newClient: deps.NewClient,
		logger:    deps.Logger.With("component", "broker"),
		breaker: gobreaker.NewTwoStepCircuitBreaker(gobreaker.Settings{
			Name:        "mqtt-connect",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 3 },
		}),
	}
}

// Status returns the current connection status. Safe from any goroutine.
func (m *Manager) Status() Status { return Status(m.status.Load()) }

// BrokerURL is the websocket URL of the broker.
func (m *Manager) BrokerURL() string {
	scheme := "ws"
	if m.opts.UseSSL {
		scheme = "wss"
	}
	return scheme + "://" + net.JoinHostPort(m.opts.Host, strconv.Itoa(m.opts.Port)) + m.opts.Path
}

// Info describes the connection.
func (m *Manager) Info() Info {
	m.mu.Lock()
	id := m.clientID
	m.mu.Unlock()
	topics := make([]string, 0, len(m.opts.Topics))
	for topic := range m.opts.Topics {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return Info{Status: m.Status().String(), ClientID: id, Broker: m.BrokerURL(), Topics: topics}
}

// Connect opens the connection asynchronously with a fresh client id. It
// is a no-op while a connection exists or is being established. Failures
// are logged and reported through the circuit breaker; they are not
// retried here.
func (m *Manager) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Status() != Disconnected {
		m.logger.Debug("connect ignored", "status", m.Status())
		return nil
	}
	outcome, err := m.breaker.Allow()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBreakerOpen, err)
	}

	m.session++
	session := m.session
	m.clientID = "jas-" + uuid.NewString()

	opts := mqtt.NewClientOptions().
		AddBroker(m.BrokerURL()).
		SetClientID(m.clientID).
		SetConnectTimeout(m.opts.Timeout).
		SetKeepAlive(m.opts.KeepAliveInterval).
		SetCleanSession(m.opts.CleanSession).
		SetAutoReconnect(m.opts.Reconnect).
		SetOrderMatters(false)
	if m.opts.UserName != "" {
		opts.SetUsername(m.opts.UserName)
		opts.SetPassword(m.opts.Password)
	}
	opts.SetOnConnectHandler(func(mqtt.Client) {
		m.post(func() { m.onConnected(session) })
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		m.post(func() { m.onConnectionLost(session, err) })
	})

	client := m.newClient(opts)
	m.client = client
	m.outcome = outcome
	m.status.Store(int32(Connecting))

	m.logger.Info("connecting to broker", "broker", m.BrokerURL(), "client_id", m.clientID)
	token := client.Connect()
	go func() {
		<-token.Done()
		if err := token.Error(); err != nil {
			m.post(func() { m.onFailure(session, err) })
		}
	}()
	return nil
}

// Disconnect closes the connection. Calling it while disconnected is
// harmless; either way the connected flag is left absent.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	client := m.client
	m.resetLocked(false)
	m.mu.Unlock()

	if client != nil {
		client.Disconnect(250)
		m.logger.Info("disconnected from broker")
	}
	m.clearFlag()
}

// resetLocked forgets the current client. Callbacks still queued for it are
// ignored because the session number moves on.
func (m *Manager) resetLocked(success bool) {
	if m.outcome != nil {
		m.outcome(success)
		m.outcome = nil
	}
	if m.stop != nil {
		close(m.stop)
		m.stop = nil
	}
	m.client = nil
	m.session++
	m.status.Store(int32(Disconnected))
}

func (m *Manager) onConnected(session uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if session != m.session || m.client == nil {
		return
	}
	if m.outcome != nil {
		m.outcome(true)
		m.outcome = nil
	}
	m.status.Store(int32(Connected))
	m.logger.Info("broker connection established", "broker", m.BrokerURL(), "client_id", m.clientID)

	if len(m.opts.Topics) > 0 {
		token := m.client.SubscribeMultiple(m.opts.Topics, func(_ mqtt.Client, msg mqtt.Message) {
			topic, payload, qos, retained := msg.Topic(), msg.Payload(), msg.Qos(), msg.Retained()
			m.post(func() { m.onMessage(session, topic, payload, qos, retained) })
		})
		go func() {
			<-token.Done()
			if err := token.Error(); err != nil {
				m.logger.Error("subscribe failed", "error", err)
			}
		}()
	}

	if err := store.SetBool(m.store, store.KeyMQTTConnected, true); err != nil {
		m.logger.Warn("failed to persist connected flag", "error", err)
	}

	if m.opts.DisconnectAfter > 0 && m.stop == nil {
		m.scheduleDisconnectLocked(session)
	}
}

func (m *Manager) scheduleDisconnectLocked(session uint64) {
	timer := m.clock.NewTimer(m.opts.DisconnectAfter)
	stop := make(chan struct{})
	m.stop = stop
	go func() {
		select {
		case <-timer.C():
			m.post(func() { m.autoDisconnect(session) })
		case <-stop:
			timer.Stop()
		}
	}()
}

func (m *Manager) autoDisconnect(session uint64) {
	m.mu.Lock()
	current := session == m.session
	m.mu.Unlock()
	if !current {
		return
	}
	m.logger.Info("disconnecting after configured interval", "after", m.opts.DisconnectAfter)
	m.Disconnect()
}

func (m *Manager) onConnectionLost(session uint64, err error) {
	m.mu.Lock()
	if session != m.session {
		m.mu.Unlock()
		return
	}
	if m.opts.Reconnect {
		m.status.Store(int32(Connecting))
	} else {
		m.resetLocked(false)
	}
	m.mu.Unlock()

	m.clearFlag()
	if err != nil {
		m.logger.Warn("broker connection lost", "error", err, "reconnect", m.opts.Reconnect)
	}
}

func (m *Manager) onFailure(session uint64, err error) {
	m.mu.Lock()
	if session != m.session {
		m.mu.Unlock()
		return
	}
	m.resetLocked(false)
	m.mu.Unlock()

	m.clearFlag()
	m.logger.Error("broker connect failed", "broker", m.BrokerURL(), "error", err)
}

func (m *Manager) onMessage(session uint64, topic string, raw []byte, qos byte, retained bool) {
	m.mu.Lock()
	current := session == m.session
	m.mu.Unlock()
	if !current {
		return
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		m.logger.Warn("malformed broker payload dropped", "topic", topic, "error", err)
		return
	}
	m.forward(envelope.NewMQTT(topic, payload, qos, retained))
}

func (m *Manager) clearFlag() {
	if err := m.store.Remove(store.KeyMQTTConnected); err != nil {
		m.logger.Warn("failed to clear connected flag", "error", err)
	}
}

func (m *Manager) post(task func()) {
	if !m.loop.Post(task) {
		m.logger.Debug("event loop closed, broker callback dropped")
	}
}
