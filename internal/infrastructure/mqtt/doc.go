// Package mqtt provides MQTT client connectivity for Room Sync Core.
//
// This package manages:
//   - A single clean-session connection per Client, without auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Topic and filter validation and matching
//   - Connection health monitoring
//
// # Architecture
//
// The dashboard talks to room controllers only through the broker:
//
//	Room Sync Core ↔ MQTT Broker ↔ Room controllers / sensors
//
// Each Client is one session. When the broker drops it, the Client reports
// the loss and stays down; the sync engine builds a fresh Client for the next
// attempt so late callbacks from the old session can be told apart.
//
// # Security Considerations
//
//   - Use TLS (cfg.Broker.TLS=true, or an ssl:// / wss:// URL) outside the lab
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//
// # Usage
//
//	client, err := mqtt.Dial(ctx, cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe("office/room1/#", 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	client.Publish("office/room1", []byte(`{"light":"on"}`), 1, false)
package mqtt
