// Package wsforward implements the WebSocket forwarding branch:
// upgrade negotiation with the caller, a second upgrade to the
// upstream, and bidirectional message pumps that forward close codes
// and propagate cancellation in either direction (spec.md §4.2).
package wsforward

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/stacklok/oagw/pkg/oagw"
)

// upgrader is shared across requests; gorilla's Upgrader is safe for
// concurrent use once its fields are set.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Forward upgrades the inbound connection, dials the upstream endpoint
// with the same subprotocol/headers, and pumps messages between the
// two connections until either side closes or ctx is cancelled.
func Forward(ctx context.Context, w http.ResponseWriter, r *http.Request, ep oagw.Endpoint, path string, header http.Header) error {
	callerConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("upgrading caller connection: %w", err)
	}
	defer callerConn.Close()

	scheme := "ws"
	if ep.Scheme == oagw.SchemeHTTPS {
		scheme = "wss"
	}
	upstreamURL := fmt.Sprintf("%s://%s:%d%s", scheme, ep.Host, ep.Port, path)

	// The Dialer writes the handshake headers itself and rejects a request
	// header that already carries them.
	header = header.Clone()
	for _, k := range []string{"Upgrade", "Connection", "Sec-Websocket-Key", "Sec-Websocket-Version", "Sec-Websocket-Extensions"} {
		header.Del(k)
	}

	dialer := websocket.Dialer{}
	upstreamConn, _, err := dialer.DialContext(ctx, upstreamURL, header)
	if err != nil {
		_ = callerConn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "upstream unreachable"), time.Time{})
		return fmt.Errorf("dialing upstream: %w", err)
	}
	defer upstreamConn.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errc := make(chan error, 2)
	go pump(ctx, cancel, upstreamConn, callerConn, errc)
	go pump(ctx, cancel, callerConn, upstreamConn, errc)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// pump copies messages from src to dst until an error, a close frame,
// or ctx cancellation, forwarding the close code it observes.
func pump(ctx context.Context, cancel context.CancelFunc, src, dst *websocket.Conn, errc chan<- error) {
	defer cancel()
	for {
		if ctx.Err() != nil {
			return
		}
		msgType, data, err := src.ReadMessage()
		if err != nil {
			code := websocket.CloseNormalClosure
			if ce, ok := err.(*websocket.CloseError); ok {
				code = ce.Code
			}
			_ = dst.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, ""), time.Time{})
			errc <- err
			return
		}
		if err := dst.WriteMessage(msgType, data); err != nil {
			errc <- err
			return
		}
	}
}
