// Package mqtt provides the broker connection used to bridge devices that
// live on other machines (or behind other daemons) into remapd.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Publishing with QoS guarantees
//   - Topic subscriptions with wildcard support, restored after reconnects
//   - Last Will and Testament so bridges notice when remapd goes away
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, mqtt.Topics{Prefix: "remapd"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe(client.Topics().AllStates(), 1,
//	    func(topic string, payload []byte) error {
//	        addr, _ := client.Topics().ParseState(topic)
//	        log.Printf("%s/%s/%d = %s", addr.Provider, addr.DeviceType, addr.Number, payload)
//	        return nil
//	    })
package mqtt
