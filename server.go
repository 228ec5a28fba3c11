// Package ftpd is an embeddable FTP server implementing a practical
// subset of RFC 959 and RFC 3659: USER/PASS authentication against an
// in-process user database, a virtual filesystem rooted per user,
// passive-mode-only data transfers, and the common navigation/transfer
// command set. See internal/session for the command state machine and
// internal/acceptor for connection handling.
package ftpd

import (
	"log/slog"
	"time"

	"github.com/embeddable-ftpd/ftpd/filesystem"
	"github.com/embeddable-ftpd/ftpd/internal/acceptor"
	"github.com/embeddable-ftpd/ftpd/internal/session"
	"github.com/embeddable-ftpd/ftpd/users"
)

// Permission re-exports the users package's permission bits so callers
// configuring a Server don't need a second import.
type Permission = users.Permission

const (
	FileRead   = users.FileRead
	FileWrite  = users.FileWrite
	FileAppend = users.FileAppend
	FileDelete = users.FileDelete
	FileRename = users.FileRename
	DirList    = users.DirList
	DirCreate  = users.DirCreate
	DirDelete  = users.DirDelete
	DirRename  = users.DirRename
	None       = users.None
	ReadOnly   = users.ReadOnly
	All        = users.All
)

// Server is an embeddable FTP server bound to a single address. The zero
// value is not usable; construct with New.
//
// The exported fields are tunables that must be set before Start: Start
// captures them into the Config handed to every session it spawns, and
// later changes have no effect on a running server.
type Server struct {
	// WelcomeMessage is sent as the 220 banner's text on each new
	// connection. Defaults to a generic banner if left empty.
	WelcomeMessage string
	// CloseDelay pads the final 226 reply of a completed transfer by this
	// duration, to accommodate clients that race the data socket close.
	CloseDelay time.Duration
	// PasvPortRangeStart/End bound the port PASV binds to. Leaving both
	// zero (the default) lets the OS choose any free port.
	PasvPortRangeStart int
	PasvPortRangeEnd   int

	addr string
	log  *slog.Logger
	db   *users.Database
	a    *acceptor.Acceptor
}

// New constructs a Server listening on addr (not yet started). The server
// keeps a single logger: infoLog, or errLog when infoLog is nil. All output,
// errors included, goes to that one logger; errLog is not used otherwise.
func New(addr string, infoLog, errLog *slog.Logger) *Server {
	log := infoLog
	if log == nil {
		log = errLog
	}
	return &Server{
		addr: addr,
		log:  log,
		db:   users.NewDatabase(),
	}
}

// AddUser registers a named account rooted at localRoot with the given
// permission mask. It returns false if the username is already taken or
// is a reserved anonymous spelling.
func (s *Server) AddUser(name, password, localRoot string, perms users.Permission) bool {
	return s.db.AddUser(name, password, localRoot, perms)
}

// AddUserAnonymous registers the anonymous account (matched by "",
// "anonymous", or "ftp" regardless of password). It returns false if an
// anonymous account is already registered.
func (s *Server) AddUserAnonymous(localRoot string, perms users.Permission) bool {
	return s.db.AddUserAnonymous(localRoot, perms)
}

// Start binds the listener and spawns nThreads worker goroutines Accepting
// connections from it. It returns false if the bind fails.
func (s *Server) Start(nThreads int) bool {
	config := session.Config{
		WelcomeMessage:     s.WelcomeMessage,
		CloseDelay:         s.CloseDelay,
		PasvPortRangeStart: s.PasvPortRangeStart,
		PasvPortRangeEnd:   s.PasvPortRangeEnd,
	}
	fs := filesystem.NewLocalFilesystem()
	s.a = acceptor.New(s.addr, fs, s.db, s.log, config)
	ok := s.a.Start(nThreads)
	if ok {
		s.logDiskFree(fs)
	}
	return ok
}

// logDiskFree reports free-space statistics for every registered user's
// local root, once at startup — an operational detail an operator
// embedding the server would want in the log, not an FTP command.
func (s *Server) logDiskFree(fs *filesystem.LocalFilesystem) {
	for _, root := range s.db.Roots() {
		info, err := fs.DiskFree(root)
		if err != nil {
			s.log.Warn("disk free unavailable", "root", root, "error", err)
			continue
		}
		s.log.Info("disk free", "root", root,
			"free_bytes", info.BlocksFree*info.BlockSize,
			"total_bytes", info.Blocks*info.BlockSize)
	}
}

// Stop closes the listener and every live session, then waits for all
// worker goroutines to return. It is a no-op if Start was never called.
func (s *Server) Stop() {
	if s.a != nil {
		s.a.Stop()
	}
}

// GetOpenConnectionCount reports the number of currently connected clients.
func (s *Server) GetOpenConnectionCount() int {
	if s.a == nil {
		return 0
	}
	return s.a.OpenConnectionCount()
}

// GetPort reports the bound TCP port, or 0 before Start succeeds.
func (s *Server) GetPort() uint16 {
	if s.a == nil {
		return 0
	}
	return s.a.Port()
}

// GetAddress reports the bound listener's full address, or "" before
// Start succeeds.
func (s *Server) GetAddress() string {
	if s.a == nil {
		return ""
	}
	return s.a.Address()
}
