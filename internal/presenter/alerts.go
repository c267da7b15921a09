package presenter

import "github.com/quantumauth-io/quantum-go-utils/log"

// Alerts shows user-facing messages on the UI stream.
type Alerts struct {
	Hub *Hub
}

func (a Alerts) Alert(msg string) {
	log.Warn("wallet alert", "message", msg)
	if a.Hub != nil {
		a.Hub.Publish(Event{Type: EventAlert, Message: msg})
	}
}
