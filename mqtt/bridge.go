// Package mqtt republishes hub events to an MQTT broker so consumers
// outside the WebSocket surface (dashboards, loggers, home automation) can
// follow the feed.
package mqtt

import (
	"fmt"
	"log"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	jsoniter "github.com/json-iterator/go"

	"aprswx/config"
	"aprswx/hub"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	bridgeSubscriberID = "mqtt-bridge"
	connectTimeout     = 10 * time.Second
	publishQoS         = 0
)

// frame is the JSON document published per event.
type frame struct {
	Type    string    `json:"type"`
	Topic   hub.Topic `json:"topic"`
	Payload any       `json:"data"`
	Time    time.Time `json:"timestamp"`
}

// Bridge forwards every hub event to `<prefix>/<topic>`.
type Bridge struct {
	client   pahomqtt.Client
	events   *hub.Hub
	prefix   string
	queue    <-chan hub.Event
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewBridge connects to the broker and registers with the hub on all topics.
// A broker that is down is an error at startup, not a silent degradation;
// after that paho's auto-reconnect keeps the session alive.
func NewBridge(cfg config.MQTTConfig, events *hub.Hub) (*Bridge, error) {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Broker, cfg.Port))
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		log.Printf("mqtt: connection lost: %v", err)
	})
	opts.SetOnConnectHandler(func(pahomqtt.Client) {
		log.Printf("mqtt: connected to %s:%d", cfg.Broker, cfg.Port)
	})

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("mqtt: connect to %s:%d timed out", cfg.Broker, cfg.Port)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt: connect to %s:%d: %w", cfg.Broker, cfg.Port, err)
	}

	b := &Bridge{
		client: client,
		events: events,
		prefix: cfg.TopicPrefix,
		queue:  events.Register(bridgeSubscriberID),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	for _, topic := range []hub.Topic{hub.TopicPackets, hub.TopicStations, hub.TopicWeather} {
		if err := events.Subscribe(bridgeSubscriberID, topic, hub.Filter{}); err != nil {
			events.Unregister(bridgeSubscriberID)
			client.Disconnect(250)
			return nil, fmt.Errorf("mqtt: subscribe %s: %w", topic, err)
		}
	}
	go b.forward()
	return b, nil
}

// forward drains the hub queue until Stop. Publishes are fire-and-forget at
// QoS 0: a slow broker must not stall the pipeline.
func (b *Bridge) forward() {
	defer close(b.done)
	for {
		select {
		case <-b.stop:
			return
		case ev, ok := <-b.queue:
			if !ok {
				return
			}
			b.publish(ev)
		}
	}
}

func (b *Bridge) publish(ev hub.Event) {
	payload, err := json.Marshal(frame{
		Type:    ev.Kind,
		Topic:   ev.Topic,
		Payload: ev.Payload,
		Time:    ev.Time,
	})
	if err != nil {
		log.Printf("mqtt: marshal event: %v", err)
		return
	}
	topic := fmt.Sprintf("%s/%s", b.prefix, ev.Topic)
	b.client.Publish(topic, publishQoS, false, payload)
}

// Stop unregisters from the hub and disconnects from the broker.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		close(b.stop)
		b.events.Unregister(bridgeSubscriberID)
		<-b.done
		b.client.Disconnect(250)
		log.Printf("mqtt: bridge stopped")
	})
}
