// Package transport is glue, not core: it adapts the Dispatcher's
// decode/route/encode contract onto a concrete bidirectional message
// channel. spec.md explicitly calls the transport an external
// collaborator; this package is the thin, swappable adapter the rest of
// the system never imports back into.
package transport

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tkim90/billion-row-table/internal/dispatch"
	"github.com/tkim90/billion-row-table/internal/workerpool"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler upgrades incoming HTTP connections to websockets and feeds
// each connection's messages to d, one at a time. Every connection gets
// its own writer goroutine fed by a channel, so responses are written in
// the order the server finished computing them — spec.md §5's ordering
// guarantee — without the Dispatcher itself needing to track ordering.
func Handler(d *dispatch.Dispatcher, pool *workerpool.Pool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("transport: upgrade failed: %v", err)
			return
		}
		serveConn(conn, d, pool)
	})
}

func serveConn(conn *websocket.Conn, d *dispatch.Dispatcher, pool *workerpool.Pool) {
	defer conn.Close()

	outbox := make(chan []byte, 32)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for msg := range outbox {
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}()

readLoop:
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			break
		}
		// A disconnecting client abandons in-flight requests; the
		// dispatcher has already returned synchronously here, so there
		// is nothing to cancel mid-flight, and no resource is leaked.
		if err := pool.Acquire(context.Background()); err != nil {
			break readLoop
		}
		resp := d.Handle(raw)
		pool.Release()
		select {
		case outbox <- resp:
		case <-done:
			break readLoop
		}
	}
	close(outbox)
	<-done
}
