package mqtt

import "fmt"

// TopicPrefix is the root of every readingd topic.
const TopicPrefix = "readingd"

// Topics provides builders for readingd MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.Device("36d5658a-6908-479e-887e-a949ec199272")
//	// Returns: "readingd/device/36d5658a-6908-479e-887e-a949ec199272"
type Topics struct{}

// Ingest is where producers publish ingest bodies.
func (Topics) Ingest() string {
	return TopicPrefix + "/ingest"
}

// IngestRejected carries {error} for ingest messages that were refused.
func (Topics) IngestRejected() string {
	return TopicPrefix + "/ingest/rejected"
}

// Device carries the retained aggregate for one device.
func (Topics) Device(id string) string {
	return fmt.Sprintf("%s/device/%s", TopicPrefix, id)
}

// AllDevices matches every device aggregate topic.
func (Topics) AllDevices() string {
	return TopicPrefix + "/device/+"
}

// SystemStatus carries the retained online/offline status (and the LWT).
func (Topics) SystemStatus() string {
	return TopicPrefix + "/system/status"
}
