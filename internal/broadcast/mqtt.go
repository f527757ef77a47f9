// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package broadcast

import (
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/trip_capture/internal/monitoring"
)

// MQTTBus carries broadcasts over an MQTT broker so that the controller,
// the worker and any non-binding consumer can live in separate processes.
type MQTTBus struct {
	client mqtt.Client
	qos    byte

	// subMu serializes broker subscribe and unsubscribe calls.
	subMu sync.Mutex

	mu       sync.Mutex
	nextID   int
	handlers map[string]map[int]func([]byte)
}

const mqttOpTimeout = 5 * time.Second

// DialMQTT connects to broker with the given client id.
func DialMQTT(broker, clientID string) (*MQTTBus, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			monitoring.Logf("broadcast: connection to %s lost: %v", broker, err)
		})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("broadcast: connect %s: %w", broker, token.Error())
	}
	monitoring.Logf("broadcast: connected to MQTT broker at %s as %s", broker, clientID)
	return newMQTTBus(client), nil
}

func newMQTTBus(client mqtt.Client) *MQTTBus {
	return &MQTTBus{client: client, handlers: make(map[string]map[int]func([]byte))}
}

func (b *MQTTBus) Publish(topic string, payload []byte) error {
	token := b.client.Publish(topic, b.qos, false, payload)
	if !token.WaitTimeout(mqttOpTimeout) {
		return fmt.Errorf("broadcast: publish %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("broadcast: publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe adds handler for topic. The broker subscription is shared by
// every handler of a topic and dropped when the last one unsubscribes.
func (b *MQTTBus) Subscribe(topic string, handler func([]byte)) (func(), error) {
	b.subMu.Lock()
	defer b.subMu.Unlock()

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	if hs, ok := b.handlers[topic]; ok {
		hs[id] = handler
		b.mu.Unlock()
		return b.unsubscriber(topic, id), nil
	}
	b.mu.Unlock()

	token := b.client.Subscribe(topic, b.qos, func(_ mqtt.Client, msg mqtt.Message) {
		b.deliver(topic, msg.Payload())
	})
	if !token.WaitTimeout(mqttOpTimeout) {
		return nil, fmt.Errorf("broadcast: subscribe %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("broadcast: subscribe %s: %w", topic, err)
	}

	b.mu.Lock()
	b.handlers[topic] = map[int]func([]byte){id: handler}
	b.mu.Unlock()
	return b.unsubscriber(topic, id), nil
}

func (b *MQTTBus) unsubscriber(topic string, id int) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			b.subMu.Lock()
			defer b.subMu.Unlock()

			b.mu.Lock()
			hs := b.handlers[topic]
			delete(hs, id)
			last := len(hs) == 0
			if last {
				delete(b.handlers, topic)
			}
			b.mu.Unlock()
			if !last {
				return
			}

			t := b.client.Unsubscribe(topic)
			if !t.WaitTimeout(mqttOpTimeout) {
				monitoring.Logf("broadcast: unsubscribe %s: timeout", topic)
				return
			}
			if err := t.Error(); err != nil {
				monitoring.Logf("broadcast: unsubscribe %s: %v", topic, err)
			}
		})
	}
}

// deliver runs the handlers of topic in subscription order.
func (b *MQTTBus) deliver(topic string, payload []byte) {
	b.mu.Lock()
	hs := b.handlers[topic]
	ordered := make([]func([]byte), 0, len(hs))
	for _, id := range slices.Sorted(maps.Keys(hs)) {
		ordered = append(ordered, hs[id])
	}
	b.mu.Unlock()
	for _, h := range ordered {
		h(payload)
	}
}

// Close disconnects from the broker, allowing in-flight work 250ms.
func (b *MQTTBus) Close() {
	b.client.Disconnect(250)
}
