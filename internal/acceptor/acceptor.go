// Package acceptor binds the control-channel listener and drives it with a
// fixed pool of goroutines, each blocked on the shared listener's Accept.
// Go's net.Listener already tolerates concurrent Accept calls from
// multiple goroutines, so this is the idiomatic equivalent of a
// reactor-plus-worker-pool design in a language without that guarantee —
// no custom reactor is built.
package acceptor

import (
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/embeddable-ftpd/ftpd/filesystem"
	"github.com/embeddable-ftpd/ftpd/internal/session"
	"github.com/embeddable-ftpd/ftpd/users"
)

// Acceptor owns the listening socket, the worker pool, and the live-session
// table for one server.
type Acceptor struct {
	addr   string
	fs     filesystem.Filesystem
	db     *users.Database
	log    *slog.Logger
	config session.Config

	mu       sync.Mutex
	listener net.Listener
	sessions map[uint64]*session.Session
	stopped  bool
	wg       sync.WaitGroup

	nextID atomic.Uint64
}

// New returns an Acceptor bound to no socket yet; call Start to listen.
// config is passed through unchanged to every session it spawns.
func New(addr string, fs filesystem.Filesystem, db *users.Database, log *slog.Logger, config session.Config) *Acceptor {
	return &Acceptor{
		addr:     addr,
		fs:       fs,
		db:       db,
		log:      log,
		config:   config,
		sessions: make(map[uint64]*session.Session),
	}
}

// Start binds the listener and launches n worker goroutines that Accept
// connections from it. It returns false, with the failure logged, if the
// bind/listen fails. Unlike the teacher's combined bind+serve
// TryListenAndServe (which needed a timeout to catch a bind failure
// buried inside a blocking call), net.Listen here returns any bind error
// synchronously, so no probe window is needed before spawning workers.
func (a *Acceptor) Start(n int) bool {
	ln, err := net.Listen("tcp", a.addr)
	if err != nil {
		a.log.Error("failed to bind listener", "addr", a.addr, "error", err)
		return false
	}

	a.mu.Lock()
	a.listener = ln
	a.mu.Unlock()

	for i := 0; i < n; i++ {
		a.wg.Add(1)
		go func(workerID int) {
			defer a.wg.Done()
			a.acceptLoop(workerID)
		}(i)
	}
	return true
}

// acceptLoop runs until the listener is closed.
func (a *Acceptor) acceptLoop(workerID int) error {
	for {
		a.mu.Lock()
		ln := a.listener
		stopped := a.stopped
		a.mu.Unlock()
		if stopped || ln == nil {
			return nil
		}

		conn, err := ln.Accept()
		if err != nil {
			a.mu.Lock()
			stopped = a.stopped
			a.mu.Unlock()
			if stopped {
				return nil
			}
			a.log.Debug("accept error", "worker", workerID, "error", err)
			return err
		}
		a.handle(conn)
	}
}

func (a *Acceptor) handle(conn net.Conn) {
	id := a.nextID.Add(1)
	sess := session.New(id, conn, a.fs, a.db, a.log, a.config)

	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		conn.Close()
		return
	}
	a.sessions[id] = sess
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		delete(a.sessions, id)
		a.mu.Unlock()
	}()

	sess.Serve()
}

// Stop closes the listener, stops every live session, and waits for all
// worker goroutines to return.
func (a *Acceptor) Stop() {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return
	}
	a.stopped = true
	ln := a.listener
	live := make([]*session.Session, 0, len(a.sessions))
	for _, s := range a.sessions {
		live = append(live, s)
	}
	a.mu.Unlock()

	if ln != nil {
		ln.Close()
	}
	for _, s := range live {
		s.Stop()
	}
	a.wg.Wait()
}

// OpenConnectionCount reports the number of currently live sessions.
func (a *Acceptor) OpenConnectionCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.sessions)
}

// Port reports the bound TCP port, or 0 if not yet started.
func (a *Acceptor) Port() uint16 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener == nil {
		return 0
	}
	tcpAddr, ok := a.listener.Addr().(*net.TCPAddr)
	if !ok {
		return 0
	}
	return uint16(tcpAddr.Port)
}

// Address reports the bound listener's full address, or "" if not yet
// started.
func (a *Acceptor) Address() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener == nil {
		return ""
	}
	return a.listener.Addr().String()
}
