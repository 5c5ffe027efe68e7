package transport

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/bryanchriswhite/DetectStreamer/internal/logger"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// DefaultChannelPath is where the service accepts the persistent channel
const DefaultChannelPath = "/ws"

const writeTimeout = 10 * time.Second

// Handler receives channel callbacks. Calls come from the channel's read
// goroutine, one at a time.
type Handler interface {
	OnConnect()
	OnProcessedFrame(image string)
	OnError(message string)
}

// Channel is the persistent bidirectional connection to the service
type Channel struct {
	id      string
	url     string
	conn    *websocket.Conn
	handler Handler

	writeMu sync.Mutex

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// ChannelURL derives the websocket URL from the service base URL
func ChannelURL(serviceURL, path string) (string, error) {
	u, err := url.Parse(serviceURL)
	if err != nil {
		return "", fmt.Errorf("invalid service URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported service URL scheme: %q", u.Scheme)
	}
	if path == "" {
		path = DefaultChannelPath
	}
	u.Path = strings.TrimRight(u.Path, "/") + path
	return u.String(), nil
}

// Dial opens the channel and starts dispatching events to h
func Dial(ctx context.Context, wsURL string, h Handler) (*Channel, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: DefaultConnectTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect channel %s: %w", wsURL, err)
	}

	c := &Channel{
		id:      uuid.NewString(),
		url:     wsURL,
		conn:    conn,
		handler: h,
		done:    make(chan struct{}),
	}

	logger.WithComponent("transport").Info().
		Str("channel_id", c.id).
		Str("url", wsURL).
		Msg("Channel connected")

	go c.readLoop()
	return c, nil
}

// ID identifies this connection in logs
func (c *Channel) ID() string {
	return c.id
}

// SendFrame emits a frame event carrying a data URL
func (c *Channel) SendFrame(dataURL string) error {
	ev, err := NewEvent(EventFrame, dataURL)
	if err != nil {
		return err
	}
	return c.send(ev)
}

func (c *Channel) send(ev *Event) error {
	if c.isClosed() {
		return ErrChannelClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteJSON(ev); err != nil {
		return fmt.Errorf("failed to send %s: %w", ev.Event, err)
	}
	return nil
}

func (c *Channel) readLoop() {
	log := logger.WithComponent("transport").With().Str("channel_id", c.id).Logger()
	defer close(c.done)
	defer c.conn.Close()

	c.handler.OnConnect()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.isClosed() || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				log.Debug().Msg("Channel closed")
			} else {
				log.Warn().Err(err).Msg("Channel read failed")
				c.handler.OnError("connection lost")
			}
			c.markClosed()
			return
		}

		ev, err := ParseEvent(data)
		if err != nil {
			log.Warn().Err(err).Msg("Dropping malformed event")
			continue
		}

		switch ev.Event {
		case EventProcessedFrame:
			var p ProcessedFrameData
			if err := ev.ParseData(&p); err != nil {
				log.Warn().Err(err).Msg("Bad processed_frame payload")
				continue
			}
			c.handler.OnProcessedFrame(p.Image)
		case EventError:
			var e ErrorData
			if err := ev.ParseData(&e); err != nil {
				log.Warn().Err(err).Msg("Bad error payload")
				continue
			}
			log.Error().Str("message", e.Message).Msg("Server error")
			c.handler.OnError(e.Message)
		default:
			log.Debug().Str("event", ev.Event).Msg("Ignoring unknown event")
		}
	}
}

func (c *Channel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Channel) markClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	was := c.closed
	c.closed = true
	return was
}

// Done is closed once the read loop has exited
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// Close shuts the channel down and waits for the read loop. The read loop
// releases the connection itself when the peer goes away first.
func (c *Channel) Close() error {
	if c.markClosed() {
		<-c.done
		return nil
	}

	c.writeMu.Lock()
	// best effort, the peer may already be gone
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()

	err := c.conn.Close()
	<-c.done
	return err
}
