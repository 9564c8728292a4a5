package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/zucenko/rescuegrid/model"
)

const writeWait = time.Second

func NewHub(timeout time.Duration, buffer int) *Hub {
	return &Hub{
		Joins:  make(chan *Watcher),
		Leaves: make(chan *Watcher),
		Frames: make(chan model.Frame, buffer),
		Upgrader: &websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		timeout: timeout,
		buffer:  buffer,
		done:    make(chan struct{}),
	}
}

// Publish queues a frame for every watcher. It never blocks a tick for
// longer than the hub timeout; a frame that cannot be queued is dropped.
func (h *Hub) Publish(f model.Frame) {
	select {
	case h.Frames <- f:
	case <-h.done:
	case <-time.After(h.timeout):
		log.WithFields(log.Fields{"type": f.Type, "tick": f.Tick}).Warn("Hub.Publish TIMEOUTED, frame dropped")
	}
}

// Loop owns the watcher list until ctx is done.
func (h *Hub) Loop(ctx context.Context) {
	log.Info("Hub.Loop starting")
	defer close(h.done)
	for {
		select {
		case w := <-h.Joins:
			w.State = WS_WATCH
			h.watchers = append(h.watchers, w)
			log.WithField("watchers", len(h.watchers)).Info("Hub.Loop watcher joined")
			if h.last != nil {
				h.deliver(w, h.last)
			}
		case w := <-h.Leaves:
			h.remove(w)
		case f := <-h.Frames:
			b, err := f.Encode()
			if err != nil {
				log.WithError(err).Error("Hub.Loop cant encode frame")
				continue
			}
			h.last = b
			for _, w := range h.watchers {
				h.deliver(w, b)
			}
		case <-ctx.Done():
			for _, w := range h.watchers {
				w.State = WS_GONE
				close(w.Frames)
			}
			h.watchers = nil
			log.Info("Hub.Loop stopped")
			return
		}
	}
}

// deliver never blocks the loop: a watcher with a full buffer misses the frame.
func (h *Hub) deliver(w *Watcher, b []byte) {
	select {
	case w.Frames <- b:
	default:
		w.Dropped++
		log.WithField("dropped", w.Dropped).Warn("Hub watcher too slow, frame dropped")
	}
}

func (h *Hub) remove(w *Watcher) {
	for i, other := range h.watchers {
		if other == w {
			h.watchers = append(h.watchers[:i], h.watchers[i+1:]...)
			w.State = WS_GONE
			close(w.Frames)
			log.WithField("watchers", len(h.watchers)).Info("Hub.Loop watcher left")
			return
		}
	}
}

// HandleWatch upgrades to a websocket and streams frames until the client
// goes away or the hub stops.
func (h *Hub) HandleWatch() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-h.done:
			w.WriteHeader(HTTP_UNAVAILABLE)
			return
		default:
		}

		conn, err := h.Upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.WithError(err).Warn("HandleWatch websocket upgrade failed")
			return
		}
		defer conn.Close()

		watcher := &Watcher{
			State:  WS_NEW,
			Conn:   conn,
			Frames: make(chan []byte, h.buffer),
			Done:   make(chan struct{}),
		}
		conn.SetPingHandler(func(message string) error {
			err := conn.WriteControl(websocket.PongMessage, []byte(message), time.Now().Add(writeWait))
			if err == websocket.ErrCloseSent {
				return nil
			} else if e, ok := err.(net.Error); ok && e.Timeout() {
				return nil
			}
			return err
		})

		select {
		case h.Joins <- watcher:
		case <-h.done:
			return
		case <-time.After(h.timeout):
			log.Warn("HandleWatch join TIMEOUTED")
			return
		}

		go watcher.LoopChannelWrite()
		watcher.LoopChannelRead()

		select {
		case h.Leaves <- watcher:
		case <-h.done:
		}
		<-watcher.Done
	}
}

// LoopChannelRead discards client messages and returns once the
// connection is gone.
func (wa *Watcher) LoopChannelRead() {
	for {
		if _, _, err := wa.Conn.ReadMessage(); err != nil {
			log.WithError(err).Debug("Watcher.LoopChannelRead ended")
			return
		}
	}
}

// LoopChannelWrite drains Frames until the hub closes it.
func (wa *Watcher) LoopChannelWrite() {
	defer close(wa.Done)
	for b := range wa.Frames {
		wa.Conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := wa.Conn.WriteMessage(websocket.TextMessage, b); err != nil {
			log.WithError(err).Warn("Watcher.LoopChannelWrite cant write")
			wa.Conn.Close()
			for range wa.Frames {
			}
			return
		}
		wa.Sent++
	}
	wa.Conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
}
