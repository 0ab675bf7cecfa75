// Package enterprise implements the transport.Connection interface over the
// enterprise WebSocket service.
//
// The client maintains a single WebSocket connection with ping/pong
// keepalive. Frames are the generic {type, feature, data} envelopes defined
// by the transport package; the client itself is payload-agnostic and leaves
// envelope handling to its consumers.
//
// When Reconnect is enabled in the configuration, a dropped connection is
// reestablished with exponential backoff; the reconnection handler fires on
// success and the disconnection handler on each drop.
//
// # Usage Example
//
//	client := enterprise.NewClient(logger)
//	client.SetMessageHandler(func(data []byte) error {
//		// handle inbound envelope frames
//		return nil
//	})
//
//	config := &transport.EnterpriseConfig{
//		AuthToken: token,
//		Reconnect: true,
//	}
//	if err := client.Start(ctx, "wss://realtime.quietspace.io/ws", config); err != nil {
//		log.Fatal(err)
//	}
//	defer client.Stop(ctx)
package enterprise
