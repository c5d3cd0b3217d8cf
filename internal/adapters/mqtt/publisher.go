package mqtt

import (
	"encoding/json"
	"fmt"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/beobridge/halo-bridge-go/internal/config"
	"github.com/beobridge/halo-bridge-go/internal/halo"
)

// Publisher mirrors Halo telemetry onto an MQTT broker: battery,
// system state and session connectivity, each retained so consumers
// see the latest value on subscribe. It implements
// halosync.TelemetrySink.
type Publisher struct {
	client    pahomqtt.Client
	baseTopic string
	discovery bool
	logger    *logrus.Entry
}

// NewPublisher connects to the broker. The bridge's own availability
// is handled with a last-will message so the broker flips the status
// topic to offline if the process dies.
func NewPublisher(cfg config.MQTTConfig, logger *logrus.Logger) (*Publisher, error) {
	p := &Publisher{
		baseTopic: cfg.BaseTopic,
		discovery: cfg.Discovery,
		logger:    logger.WithField("component", "mqtt"),
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetWill(p.topic("status"), "offline", 1, true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetOnConnectHandler(func(c pahomqtt.Client) {
		p.publish(p.topic("status"), "online")
		if p.discovery {
			p.publishDiscovery()
		}
	})

	p.client = pahomqtt.NewClient(opts)
	token := p.client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}
	return p, nil
}

// Close announces offline and disconnects.
func (p *Publisher) Close() {
	p.publish(p.topic("status"), "offline")
	p.client.Disconnect(250)
}

func (p *Publisher) PowerChanged(capacity int, state halo.PowerEventState) {
	p.publishJSON(p.topic("battery"), map[string]interface{}{
		"capacity": capacity,
		"state":    string(state),
	})
}

func (p *Publisher) SystemChanged(state halo.SystemEventState) {
	p.publish(p.topic("system"), string(state))
}

func (p *Publisher) ConnectionChanged(connected bool) {
	payload := "OFF"
	if connected {
		payload = "ON"
	}
	p.publish(p.topic("connected"), payload)
}

func (p *Publisher) topic(suffix string) string {
	return p.baseTopic + "/" + suffix
}

func (p *Publisher) publish(topic, payload string) {
	token := p.client.Publish(topic, 0, true, payload)
	go func() {
		<-token.Done()
		if token.Error() != nil {
			p.logger.WithError(token.Error()).WithField("topic", topic).Warn("Publish failed")
		}
	}()
}

func (p *Publisher) publishJSON(topic string, value interface{}) {
	payload, err := json.Marshal(value)
	if err != nil {
		p.logger.WithError(err).WithField("topic", topic).Warn("Unable to marshal payload")
		return
	}
	p.publish(topic, string(payload))
}

// publishDiscovery announces the telemetry topics using Home Assistant
// MQTT discovery so they show up as entities without manual setup.
func (p *Publisher) publishDiscovery() {
	device := map[string]interface{}{
		"identifiers":  []string{p.baseTopic},
		"name":         "Beoremote Halo Bridge",
		"manufacturer": "Bang & Olufsen",
		"model":        "Beoremote Halo",
	}
	availability := map[string]interface{}{"topic": p.topic("status")}

	p.publishJSON("homeassistant/sensor/"+p.baseTopic+"_battery/config", map[string]interface{}{
		"name":                p.baseTopic + " battery",
		"unique_id":           p.baseTopic + "_battery",
		"state_topic":         p.topic("battery"),
		"value_template":      "{{ value_json.capacity }}",
		"unit_of_measurement": "%",
		"device_class":        "battery",
		"availability":        availability,
		"device":              device,
	})
	p.publishJSON("homeassistant/sensor/"+p.baseTopic+"_system/config", map[string]interface{}{
		"name":         p.baseTopic + " system state",
		"unique_id":    p.baseTopic + "_system",
		"state_topic":  p.topic("system"),
		"availability": availability,
		"device":       device,
	})
	p.publishJSON("homeassistant/binary_sensor/"+p.baseTopic+"_connected/config", map[string]interface{}{
		"name":         p.baseTopic + " connected",
		"unique_id":    p.baseTopic + "_connected",
		"state_topic":  p.topic("connected"),
		"device_class": "connectivity",
		"availability": availability,
		"device":       device,
	})
}
