// Package mqtt provides MQTT connectivity for readingd.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Publishing with QoS and payload size checks
//   - Subscriptions that are restored after a reconnect
//   - Last Will and Testament on readingd/system/status, so consumers see
//     the service go offline even when it crashes
//
// The relay package builds on this client: it subscribes to the ingest
// topic and publishes device aggregates after each merge.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.Ingest(), 1,
//	    func(topic string, payload []byte) error {
//	        return handle(payload)
//	    })
package mqtt
