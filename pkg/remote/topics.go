package remote

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// BaseTopic is the default MQTT topic prefix for the state bridge.
const BaseTopic = "echo/v1"

// Presence describes a node presence payload on the bridge.
type Presence struct {
	NodeID     string   `json:"nodeId"`
	Kind       string   `json:"kind"`
	Name       string   `json:"name"`
	Port       int      `json:"port,omitempty"`
	Extensions []string `json:"extensions,omitempty"`
	Online     bool     `json:"online"`
	TS         int64    `json:"ts"`
}

// TopicPresence builds the presence topic for a node.
func TopicPresence(topicBase, nodeID string) string {
	return fmt.Sprintf("%s/node/%s/presence", topicBase, nodeID)
}

// TopicState builds the state topic for a node.
func TopicState(topicBase, nodeID string) string {
	return fmt.Sprintf("%s/node/%s/state", topicBase, nodeID)
}

// TopicCommands builds the command topic for a node.
func TopicCommands(topicBase, nodeID string) string {
	return fmt.Sprintf("%s/node/%s/cmd", topicBase, nodeID)
}

// TopicEvents builds the events topic for a node.
func TopicEvents(topicBase, nodeID string) string {
	return fmt.Sprintf("%s/node/%s/evt", topicBase, nodeID)
}

// EncodeCommand renders msg for the command topic. The frame is the normal
// wire form with the sender's trusted device id alongside the type.
func EncodeCommand(deviceID string, msg Message) ([]byte, error) {
	data, err := Encode(msg)
	if err != nil {
		return nil, err
	}
	id, err := json.Marshal(deviceID)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.Grow(len(data) + len(id) + 14)
	buf.WriteString(`{"deviceId":`)
	buf.Write(id)
	buf.WriteByte(',')
	buf.Write(data[1:])
	return buf.Bytes(), nil
}

// CommandSender returns the device id carried by a command frame, or "".
func CommandSender(payload []byte) string {
	var env struct {
		DeviceID string `json:"deviceId"`
	}
	if err := json.Unmarshal(payload, &env); err != nil {
		return ""
	}
	return env.DeviceID
}
