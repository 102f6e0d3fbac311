package mqtt

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultTopicPrefix is the root of every remapd topic.
const DefaultTopicPrefix = "remapd"

// Topics builds the topics used to bridge devices over MQTT.
//
// Layout:
//
//	{prefix}/discovery/{provider}                    retained device list
//	{prefix}/state/{provider}/{type}/{number}        control value reports
//	{prefix}/command/{provider}/{type}/{number}      output writes
//	{prefix}/system/status                           remapd online/offline
type Topics struct {
	Prefix string
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return t.Prefix
}

// Discovery returns the retained device list topic for a provider.
//
// Example: remapd/discovery/pad-bridge
func (t Topics) Discovery(provider string) string {
	return fmt.Sprintf("%s/discovery/%s", t.prefix(), provider)
}

// State returns the topic a bridge publishes control values on.
//
// Example: remapd/state/pad-bridge/joystick/0
func (t Topics) State(provider, deviceType string, number int) string {
	return fmt.Sprintf("%s/state/%s/%s/%d", t.prefix(), provider, deviceType, number)
}

// Command returns the topic remapd publishes output writes on.
//
// Example: remapd/command/pad-bridge/keyboard/0
func (t Topics) Command(provider, deviceType string, number int) string {
	return fmt.Sprintf("%s/command/%s/%s/%d", t.prefix(), provider, deviceType, number)
}

// SystemStatus returns the remapd status topic used for the LWT.
func (t Topics) SystemStatus() string {
	return t.prefix() + "/system/status"
}

// AllDiscovery matches every provider's discovery topic.
func (t Topics) AllDiscovery() string {
	return t.prefix() + "/discovery/+"
}

// AllStates matches every state report.
func (t Topics) AllStates() string {
	return t.prefix() + "/state/+/+/+"
}

// DeviceAddress identifies one device by the segments of a state or command topic.
type DeviceAddress struct {
	Provider   string
	DeviceType string
	Number     int
}

// ParseState extracts the device address from a state topic.
// ok is false for topics outside the state hierarchy.
func (t Topics) ParseState(topic string) (addr DeviceAddress, ok bool) {
	rest, found := strings.CutPrefix(topic, t.prefix()+"/state/")
	if !found {
		return DeviceAddress{}, false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		return DeviceAddress{}, false
	}
	n, err := strconv.Atoi(parts[2])
	if err != nil || n < 0 {
		return DeviceAddress{}, false
	}
	return DeviceAddress{Provider: parts[0], DeviceType: parts[1], Number: n}, true
}

// ParseDiscovery extracts the provider id from a discovery topic.
func (t Topics) ParseDiscovery(topic string) (provider string, ok bool) {
	rest, found := strings.CutPrefix(topic, t.prefix()+"/discovery/")
	if !found || rest == "" || strings.Contains(rest, "/") {
		return "", false
	}
	return rest, true
}
