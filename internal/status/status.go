// Package status keeps the live operator view: a snapshot of the loop's
// key figures plus a bounded log ring, served over HTTP and pushed to
// websocket subscribers.
package status

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ringSize bounds the retained log records.
const ringSize = 300

// Log record levels.
const (
	LevelInfo    = "info"
	LevelOK      = "ok"
	LevelWarn    = "warn"
	LevelError   = "err"
	LevelTx      = "tx"
	LevelPrice   = "price"
	LevelSection = "section"
)

// Record is one log line kept for the operator view.
type Record struct {
	Time  time.Time `json:"time"`
	Level string    `json:"level"`
	Text  string    `json:"text"`
}

// Snapshot is the current state of the loop as shown to operators. All
// fields are preformatted strings; "-" marks a value not yet known.
type Snapshot struct {
	Wallet     string `json:"wallet"`
	Mint       string `json:"mint"`
	Sol        string `json:"sol"`
	Claimed    string `json:"claimed"`
	LastAction string `json:"lastAction"`
	Next       string `json:"next"`
	SolUSD     string `json:"solUsd"`
	TokenUSD   string `json:"tokenUsd"`
	Burned     string `json:"burned"`
	BurnValue  string `json:"burnValue"`
}

func emptySnapshot() Snapshot {
	return Snapshot{
		Sol: "-", Claimed: "-", LastAction: "-", Next: "-",
		SolUSD: "-", TokenUSD: "-", Burned: "-", BurnValue: "-",
	}
}

// subscriber serializes writes to one websocket connection. gorilla
// allows only one concurrent writer per connection, and the initial
// snapshot push can race a broadcast without this.
type subscriber struct {
	conn *websocket.Conn
	wmu  sync.Mutex
}

func (s *subscriber) write(payload interface{}) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return s.conn.WriteJSON(payload)
}

// Reporter mirrors loop activity to the process log, the record ring and
// any connected websocket subscribers. The zero value is not usable; use
// NewReporter.
type Reporter struct {
	mu       sync.Mutex
	snapshot Snapshot
	records  []Record
	start    int
	count    int

	subscribers map[*websocket.Conn]*subscriber
	upgrader    websocket.Upgrader
	logger      *log.Logger
}

// NewReporter creates a Reporter. logger may be nil.
func NewReporter(logger *log.Logger) *Reporter {
	if logger == nil {
		logger = log.New(os.Stdout, "", log.LstdFlags)
	}
	return &Reporter{
		snapshot:    emptySnapshot(),
		records:     make([]Record, ringSize),
		subscribers: make(map[*websocket.Conn]*subscriber),
		upgrader:    websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		logger:      logger,
	}
}

// Info logs an informational line.
func (r *Reporter) Info(format string, args ...interface{}) { r.emit(LevelInfo, format, args...) }

// OK logs a success line.
func (r *Reporter) OK(format string, args ...interface{}) { r.emit(LevelOK, format, args...) }

// Warn logs a warning line.
func (r *Reporter) Warn(format string, args ...interface{}) { r.emit(LevelWarn, format, args...) }

// Err logs an error line.
func (r *Reporter) Err(format string, args ...interface{}) { r.emit(LevelError, format, args...) }

// Tx logs a labeled transaction signature.
func (r *Reporter) Tx(label, signature string) { r.emit(LevelTx, "%s: %s", label, signature) }

// Price logs one price observation.
func (r *Reporter) Price(source, value, note string) {
	if note != "" {
		r.emit(LevelPrice, "%s: %s (%s)", source, value, note)
		return
	}
	r.emit(LevelPrice, "%s: %s", source, value)
}

// Section logs a banner line separating cycle phases.
func (r *Reporter) Section(title string) { r.emit(LevelSection, "=== %s ===", title) }

func (r *Reporter) emit(level, format string, args ...interface{}) {
	rec := Record{Time: time.Now(), Level: level, Text: fmt.Sprintf(format, args...)}
	r.logger.Printf("[%s] %s", level, rec.Text)

	r.mu.Lock()
	idx := (r.start + r.count) % ringSize
	if r.count == ringSize {
		r.start = (r.start + 1) % ringSize
	} else {
		r.count++
	}
	r.records[idx] = rec
	r.mu.Unlock()

	r.broadcast(map[string]interface{}{"type": "log", "record": rec})
}

// Update mutates the snapshot under the lock and pushes the new state to
// subscribers.
func (r *Reporter) Update(mutate func(*Snapshot)) {
	r.mu.Lock()
	mutate(&r.snapshot)
	snap := r.snapshot
	r.mu.Unlock()

	r.broadcast(map[string]interface{}{"type": "status", "snapshot": snap})
}

// Snapshot returns a copy of the current snapshot.
func (r *Reporter) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot
}

// Records returns the retained log records, oldest first.
func (r *Reporter) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, 0, r.count)
	for i := 0; i < r.count; i++ {
		out = append(out, r.records[(r.start+i)%ringSize])
	}
	return out
}

// Register installs the /status and /ws handlers on mux.
func (r *Reporter) Register(mux *http.ServeMux) {
	mux.HandleFunc("/status", r.handleStatus)
	mux.HandleFunc("/ws", r.handleWS)
}

func (r *Reporter) handleStatus(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	payload := map[string]interface{}{
		"snapshot": r.Snapshot(),
		"log":      r.Records(),
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.logger.Printf("[err] status encode: %v", err)
	}
}

func (r *Reporter) handleWS(w http.ResponseWriter, req *http.Request) {
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		return
	}

	sub := &subscriber{conn: conn}
	r.mu.Lock()
	r.subscribers[conn] = sub
	snap := r.snapshot
	r.mu.Unlock()

	sub.write(map[string]interface{}{"type": "status", "snapshot": snap})

	// Drain reads so close frames are processed; drop the subscriber on
	// any error.
	go func() {
		defer func() {
			r.mu.Lock()
			delete(r.subscribers, conn)
			r.mu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (r *Reporter) broadcast(payload interface{}) {
	r.mu.Lock()
	subs := make([]*subscriber, 0, len(r.subscribers))
	for _, s := range r.subscribers {
		subs = append(subs, s)
	}
	r.mu.Unlock()

	for _, s := range subs {
		if err := s.write(payload); err != nil {
			r.mu.Lock()
			delete(r.subscribers, s.conn)
			r.mu.Unlock()
			s.conn.Close()
		}
	}
}
