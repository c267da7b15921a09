package presenter

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/quantumauth-io/quantum-go-utils/log"
)

// Modal shows relay pairing URIs: it publishes them to the UI stream, keeps the
// current one for the QR endpoint, and optionally prints a QR to Out.
type Modal struct {
	Hub *Hub
	Out io.Writer

	mu  sync.RWMutex
	uri string
}

func (m *Modal) Open(_ context.Context, uri string) error {
	m.mu.Lock()
	m.uri = uri
	m.mu.Unlock()

	if m.Out != nil {
		qr, err := TerminalQR(uri)
		if err != nil {
			return err
		}
		fmt.Fprintf(m.Out, "Scan with your mobile wallet:\n%s\n%s\n", qr, uri)
	}
	if m.Hub != nil {
		m.Hub.Publish(Event{Type: EventPairing, URI: uri})
	}
	log.Info("pairing modal opened")
	return nil
}

func (m *Modal) Close() {
	m.mu.Lock()
	open := m.uri != ""
	m.uri = ""
	m.mu.Unlock()

	if open && m.Hub != nil {
		m.Hub.Publish(Event{Type: EventPairing})
	}
}

// URI returns the pairing URI currently shown, or "".
func (m *Modal) URI() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.uri
}
