package events

import (
	"sync"

	"git.handmade.network/hmn/discuss/src/config"
	"github.com/nats-io/nats.go"
)

type natsTransport struct {
	conn   *nats.Conn
	closed chan struct{}
}

/*
Dials NATS. The client reconnects by itself up to cfg.MaxReconnects times;
once it gives up the transport reports itself closed and Bus.Run dials
again from scratch.
*/
func DialNATS(cfg config.NATSConfig) DialFunc {
	return func() (Transport, error) {
		closed := make(chan struct{})
		var once sync.Once
		conn, err := nats.Connect(cfg.URL,
			nats.Name("discuss"),
			nats.MaxReconnects(cfg.MaxReconnects),
			nats.ReconnectWait(cfg.ReconnectWait),
			nats.ClosedHandler(func(*nats.Conn) {
				once.Do(func() { close(closed) })
			}),
		)
		if err != nil {
			return nil, err
		}
		return &natsTransport{conn: conn, closed: closed}, nil
	}
}

func (t *natsTransport) Publish(subject string, data []byte) error {
	return t.conn.Publish(subject, data)
}

func (t *natsTransport) Subscribe(subject string, handler func(data []byte)) error {
	_, err := t.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	return err
}

func (t *natsTransport) Closed() <-chan struct{} {
	return t.closed
}

func (t *natsTransport) Close() {
	t.conn.Close()
}
