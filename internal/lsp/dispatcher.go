package lsp

import "encoding/json"

// MessageHandler receives a classified message.
type MessageHandler func(msg Message)

// NotificationHandler handles incoming notifications from the server.
type NotificationHandler func(method string, params json.RawMessage)

// DispatchStats counts messages seen by a Dispatcher.
type DispatchStats struct {
	Requests      int
	Responses     int
	Errors        int
	Notifications int
	// Unhandled counts notifications with neither a handler nor a fallback.
	Unhandled int
	// Dropped counts payloads that matched no JSON-RPC shape.
	Dropped int
}

// Dispatcher routes classified payloads to registered handlers.
// It performs no business logic and is not safe for concurrent use.
type Dispatcher struct {
	onRequest  MessageHandler
	onResponse MessageHandler
	handlers   map[string]NotificationHandler
	fallback   NotificationHandler
	stats      DispatchStats
}

// NewDispatcher creates a dispatcher with no handlers.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]NotificationHandler)}
}

// OnRequest sets the handler for server-to-client requests.
func (d *Dispatcher) OnRequest(h MessageHandler) {
	d.onRequest = h
}

// OnResponse sets the handler for replies, successful or failed.
func (d *Dispatcher) OnResponse(h MessageHandler) {
	d.onResponse = h
}

// OnNotification registers a handler for one notification method.
func (d *Dispatcher) OnNotification(method string, h NotificationHandler) {
	d.handlers[method] = h
}

// OnUnhandledNotification sets the handler for methods without a registered handler.
func (d *Dispatcher) OnUnhandledNotification(h NotificationHandler) {
	d.fallback = h
}

// Stats returns a snapshot of the counters.
func (d *Dispatcher) Stats() DispatchStats {
	return d.stats
}

// Dispatch classifies raw and hands it to the matching handler.
// The classified message is returned so callers can log it.
func (d *Dispatcher) Dispatch(raw json.RawMessage) Message {
	msg := Classify(raw)

	switch msg.Kind {
	case KindRequest:
		d.stats.Requests++
		if d.onRequest != nil {
			d.onRequest(msg)
		}
	case KindResponse, KindError:
		if msg.Kind == KindError {
			d.stats.Errors++
		} else {
			d.stats.Responses++
		}
		if d.onResponse != nil {
			d.onResponse(msg)
		}
	case KindNotification:
		d.stats.Notifications++
		if h, ok := d.handlers[msg.Method]; ok {
			h(msg.Method, msg.Params)
		} else if d.fallback != nil {
			d.fallback(msg.Method, msg.Params)
		} else {
			d.stats.Unhandled++
		}
	default:
		d.stats.Dropped++
	}
	return msg
}
