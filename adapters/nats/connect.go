package nats

import (
	"os"
	"sync"

	natsgo "github.com/nats-io/nats.go"
)

// Connector opens a NATS connection. The returned release function must be
// called once the caller is done with the connection.
type Connector func() (nc *natsgo.Conn, release func(), err error)

// ReuseConnection shares one connection between all callers of the returned
// Connector. The connection is closed when the last lease is released and
// reopened by the next call.
func ReuseConnection(connect Connector) Connector {
	var (
		mu      sync.Mutex
		nc      *natsgo.Conn
		closeNc func()
		leases  int
	)

	release := func() {
		mu.Lock()
		defer mu.Unlock()
		leases--
		if leases == 0 && nc != nil {
			closeNc()
			nc, closeNc = nil, nil
		}
	}

	return func() (*natsgo.Conn, func(), error) {
		mu.Lock()
		defer mu.Unlock()
		if nc == nil {
			c, closeFn, err := connect()
			if err != nil {
				return nil, nil, err
			}
			nc, closeNc = c, closeFn
		}
		leases++
		var once sync.Once
		return nc, func() { once.Do(release) }, nil
	}
}

// ConnectURL dials natsURL. Connections are named "msgstore" unless opts
// say otherwise.
func ConnectURL(natsURL string, opts ...natsgo.Option) Connector {
	return func() (*natsgo.Conn, func(), error) {
		nc, err := natsgo.Connect(
			natsURL,
			append([]natsgo.Option{
				natsgo.Name("msgstore"),
				natsgo.MaxReconnects(3),
			}, opts...)...,
		)
		if err != nil {
			return nil, nil, err
		}
		return nc, nc.Close, nil
	}
}

// ConnectDefault dials $NATS_URL, or the local default server.
func ConnectDefault(opts ...natsgo.Option) Connector {
	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		return ConnectURL(natsURL, opts...)
	}
	return ConnectURL(natsgo.DefaultURL, opts...)
}
