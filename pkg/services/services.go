// Package services implements the logical Pokit GATT services on top of a
// transport.Connection. Each service is cheap to construct; the gopokit.Device caches one of
// each per connection.
package services

import (
	"fmt"
	"io"
	"sync"

	"github.com/mlsorensen/gopokit/pkg/comms"
	"github.com/mlsorensen/gopokit/pkg/transport"
	"github.com/sirupsen/logrus"
	"tinygo.org/x/bluetooth"
)

// base holds what every service needs: the connection, its own service UUID and a logger.
type base struct {
	conn    transport.Connection
	service bluetooth.UUID
	log     logrus.FieldLogger
}

func newBase(conn transport.Connection, service bluetooth.UUID, log logrus.FieldLogger) base {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	name := comms.ServiceName(service)
	if name == "" {
		name = service.String()
	}
	return base{
		conn:    conn,
		service: service,
		log:     log.WithField("service", name),
	}
}

func (b *base) characteristic(char bluetooth.UUID) (transport.Characteristic, error) {
	return b.conn.Characteristic(b.service, char)
}

func (b *base) read(char bluetooth.UUID) ([]byte, error) {
	c, err := b.characteristic(char)
	if err != nil {
		return nil, err
	}
	value, err := transport.ReadValue(c)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", charName(char), err)
	}
	b.log.Debugf("read %s: % X", charName(char), value)
	return value, nil
}

func (b *base) write(char bluetooth.UUID, payload []byte) error {
	c, err := b.characteristic(char)
	if err != nil {
		return err
	}
	b.log.Debugf("write %s: % X", charName(char), payload)
	if _, err := c.Write(payload); err != nil {
		return fmt.Errorf("write %s: %w", charName(char), err)
	}
	return nil
}

func (b *base) readString(char bluetooth.UUID) (string, error) {
	value, err := b.read(char)
	if err != nil {
		return "", err
	}
	return string(value), nil
}

// notifier enables notifications on a characteristic at most once per service instance.
type notifier struct {
	mu      sync.Mutex
	enabled map[bluetooth.UUID]bool
}

func (n *notifier) enable(b *base, char bluetooth.UUID, callback func([]byte)) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.enabled[char] {
		return nil
	}
	c, err := b.characteristic(char)
	if err != nil {
		return err
	}
	if err := c.EnableNotifications(callback); err != nil {
		return fmt.Errorf("failed to enable %s notifications: %w", charName(char), err)
	}
	if n.enabled == nil {
		n.enabled = make(map[bluetooth.UUID]bool)
	}
	n.enabled[char] = true
	b.log.Debugf("notifications enabled for %s", charName(char))
	return nil
}

func charName(char bluetooth.UUID) string {
	if name := comms.CharacteristicName(char); name != "" {
		return name
	}
	return char.String()
}
