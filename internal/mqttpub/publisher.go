package mqttpub

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/snarg/lecture-agent/internal/events"
)

// Publisher forwards agent events to an MQTT broker, one topic per event
// type under the configured prefix. Publishing is fire-and-forget: a broker
// outage never blocks or fails the agent's own state machine.
type Publisher struct {
	conn      mqtt.Client
	prefix    string
	bus       *events.Bus
	connected atomic.Bool
	log       zerolog.Logger
	cancelSub func()
	quit      chan struct{}
	stopOnce  sync.Once
}

type Options struct {
	BrokerURL   string
	ClientID    string
	TopicPrefix string
	Username    string
	Password    string
	Bus         *events.Bus
	Log         zerolog.Logger
}

// Connect dials the broker and starts forwarding bus events.
func Connect(opts Options) (*Publisher, error) {
	p := &Publisher{
		prefix: opts.TopicPrefix,
		bus:    opts.Bus,
		log:    opts.Log.With().Str("component", "mqtt").Logger(),
		quit:   make(chan struct{}),
	}
	if p.prefix == "" {
		p.prefix = "lecture-agent"
	}

	clientOpts := mqtt.NewClientOptions().
		AddBroker(opts.BrokerURL).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOrderMatters(false).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(p.onConnectionLost)

	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		clientOpts.SetPassword(opts.Password)
	}

	p.conn = mqtt.NewClient(clientOpts)
	token := p.conn.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, err
	}

	ch, cancel := p.bus.Subscribe()
	p.cancelSub = cancel
	go p.forward(ch)

	return p, nil
}

func (p *Publisher) onConnect(mqtt.Client) {
	p.connected.Store(true)
	p.log.Info().Str("prefix", p.prefix).Msg("mqtt connected")
}

func (p *Publisher) onConnectionLost(_ mqtt.Client, err error) {
	p.connected.Store(false)
	p.log.Warn().Err(err).Msg("mqtt connection lost, will auto-reconnect")
}

func (p *Publisher) forward(ch <-chan events.Event) {
	for {
		select {
		case <-p.quit:
			return
		case e := <-ch:
			if !p.connected.Load() {
				continue
			}
			payload, err := json.Marshal(e)
			if err != nil {
				continue
			}
			topic := p.prefix + "/" + e.Type
			if e.Action != "" {
				topic += "/" + e.Action
			}
			// QoS 0, no wait: events are ephemeral observability data.
			p.conn.Publish(topic, 0, false, payload)
		}
	}
}

func (p *Publisher) IsConnected() bool {
	return p.connected.Load()
}

// Close stops event forwarding and disconnects from the broker.
func (p *Publisher) Close() {
	p.stopOnce.Do(func() {
		p.log.Info().Msg("disconnecting mqtt publisher")
		close(p.quit)
		if p.cancelSub != nil {
			p.cancelSub()
		}
		p.conn.Disconnect(1000)
	})
}
