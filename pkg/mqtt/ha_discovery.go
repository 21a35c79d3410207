package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"
)

// HAEntity describes one Home Assistant entity exposed via MQTT discovery.
// Home Assistant reads the retained config document and creates a sensor
// (or binary_sensor) that tracks the entity's state topic.
type HAEntity struct {
	// Binary selects binary_sensor instead of sensor.
	Binary bool

	// UnitOfMeasurement is the optional display unit, e.g. "°C".
	UnitOfMeasurement string

	// DeviceClass is the optional Home Assistant device class,
	// e.g. "temperature".
	DeviceClass string

	// ExpireAfter marks the state stale after this many seconds without
	// an update. Zero disables expiry.
	ExpireAfter int

	// ValueTemplate optionally extracts the state from a JSON payload.
	ValueTemplate string

	// ForceUpdate makes Home Assistant record every message even when
	// the value is unchanged.
	ForceUpdate bool

	// JSONAttributes exposes the full state payload as entity attributes.
	JSONAttributes bool

	// EntitySuffix distinguishes multiple entities sharing a state topic.
	EntitySuffix string

	// StateTopicSuffix selects the state topic beneath the base topic.
	// Empty means the base topic itself.
	StateTopicSuffix string
}

// PublishHADiscovery publishes a retained Home Assistant discovery config
// for the entity. A no-op when no discovery prefix is configured.
func (c *Client) PublishHADiscovery(e HAEntity) error {
	if c.cfg.HADiscoveryPrefix == "" {
		return nil
	}

	var idSuffix string
	if e.StateTopicSuffix != "" {
		idSuffix += "_" + e.StateTopicSuffix
	}
	if e.EntitySuffix != "" {
		idSuffix += "_" + e.EntitySuffix
	}

	deviceID := "esp32_" + strings.ToLower(c.cfg.MAC)
	if c.cfg.MAC == "" {
		deviceID = "esp32_" + c.cfg.DeviceName
	}
	entityID := deviceID + idSuffix
	entityName := c.cfg.DeviceName + idSuffix

	stateTopic := c.cfg.BaseTopic
	if e.StateTopicSuffix != "" {
		stateTopic += "/" + e.StateTopicSuffix
	}

	entityType := "sensor"
	if e.Binary {
		entityType = "binary_sensor"
	}

	doc := map[string]any{
		"unique_id":   entityID,
		"name":        entityName,
		"state_topic": stateTopic,
	}
	if e.UnitOfMeasurement != "" {
		doc["unit_of_measurement"] = e.UnitOfMeasurement
	}
	if e.DeviceClass != "" {
		doc["device_class"] = e.DeviceClass
	}
	if e.ExpireAfter > 0 {
		doc["expire_after"] = e.ExpireAfter
	}
	if e.ValueTemplate != "" {
		doc["value_template"] = e.ValueTemplate
		if e.Binary {
			doc["payload_on"] = true
			doc["payload_off"] = false
		}
	} else if e.Binary {
		// Without a template the raw payload is matched textually.
		doc["payload_on"] = 1
		doc["payload_off"] = 0
	}
	if e.ForceUpdate {
		doc["force_update"] = "true"
	}
	if e.JSONAttributes {
		doc["json_attributes_topic"] = stateTopic
	}
	doc["device"] = map[string]any{
		"identifiers": []string{deviceID},
		"name":        c.cfg.DeviceName,
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("mqtt: encoding discovery config: %w", err)
	}

	topic := c.cfg.HADiscoveryPrefix + "/" + entityType + "/" + entityID + "/config"
	return c.PublishTo(topic, string(data), true)
}
