package server

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zucenko/rescuegrid/config"
	"github.com/zucenko/rescuegrid/engine"
	"github.com/zucenko/rescuegrid/model"
)

// RescueServer owns the single active mission. mu serialises generate and
// move so the mission metadata always matches the session it describes.
type RescueServer struct {
	mu       sync.Mutex
	Session  *engine.Session
	Mission  *Mission
	defaults config.MissionConfig

	Archive *Archive
	Hub     *Hub
	Limiter *RateLimiter
}

type MissionState int

const (
	MS_NEW MissionState = iota
	MS_RUNNING
	MS_COMPLETE
)

// Mission is the lifetime of one generated grid.
type Mission struct {
	ID      string
	Seed    int64
	Params  engine.Params
	State   MissionState
	Legacy  bool
	Created time.Time
}

// Hub fans frames out to websocket watchers. Only Loop touches watchers.
type Hub struct {
	Joins    chan *Watcher
	Leaves   chan *Watcher
	Frames   chan model.Frame
	Upgrader *websocket.Upgrader

	watchers []*Watcher
	last     []byte
	timeout  time.Duration
	buffer   int
	done     chan struct{}
}

type WatcherState int

const (
	WS_NEW WatcherState = iota + 1
	WS_WATCH
	WS_GONE
)

type Watcher struct {
	State WatcherState
	Conn  *websocket.Conn
	// Frames is closed by the hub when the watcher leaves.
	Frames chan []byte
	// Done is closed when the write loop has ended.
	Done chan struct{}

	Dropped int
	Sent    int
}
