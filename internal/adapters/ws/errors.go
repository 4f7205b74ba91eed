package ws

import (
	"errors"
	"fmt"
	"net"

	"github.com/gorilla/websocket"
)

var (
	// ErrTransportLost reports an unexpected close of an open connection.
	ErrTransportLost = errors.New("transport lost")
	// ErrReconnectExhausted is terminal: the reconnect bound was reached.
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
	// ErrNotConnected is returned when sending without an open connection.
	ErrNotConnected = errors.New("not connected")
	// ErrClosed is returned by operations on a closed client or server.
	ErrClosed = errors.New("transport closed")
)

// NormalClosure is the websocket close code used for intentional closes.
const NormalClosure = websocket.CloseNormalClosure

func describeReadError(err error) string {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		if closeErr.Text != "" {
			return closeErr.Text
		}
		return fmt.Sprintf("closed with code %d", closeErr.Code)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "idle timeout"
	}
	return err.Error()
}
