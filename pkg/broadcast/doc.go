// Package broadcast pushes published events to live client connections.
//
// The Hub keeps an in-memory map of user id to connection handles, each
// annotated with the event patterns the client subscribed to. Fanout is
// best-effort and never blocks the publisher: each handle has a bounded
// buffer, and a consumer that falls behind is disconnected instead of
// slowing everyone else down. Durable delivery is the event store's job,
// not the hub's.
//
// Transports plug in through Handle. The websocket adapter in this package
// wires a gorilla/websocket connection to a handle, including the ping/pong
// heartbeat that reaps silent connections.
package broadcast
