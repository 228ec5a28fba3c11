// Package session implements the per-connection FTP command state
// machine: command parsing, authentication, directory navigation, and
// the PASV-only transfer flow for LIST/NLST/RETR/STOR/APPE.
//
// Every mutation of session state happens on a single goroutine per
// session (the control loop started by Serve), so no additional locking
// is required inside the state machine itself — the idiomatic Go
// rendering of a per-connection serial executor.
package session

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/embeddable-ftpd/ftpd/filesystem"
	"github.com/embeddable-ftpd/ftpd/reply"
	"github.com/embeddable-ftpd/ftpd/tools"
	"github.com/embeddable-ftpd/ftpd/users"
	"github.com/embeddable-ftpd/ftpd/vpath"
)

// TransferType selects ASCII vs binary wire representation. This
// implementation treats both identically on the data channel (spec
// decision, see DESIGN.md) — the flag is tracked only so TYPE's reply
// reflects the client's last request.
type TransferType int

const (
	TypeASCII TransferType = iota
	TypeBinary
)

// Config carries the server-wide tunables a Session needs. The zero value
// is usable: an OS-chosen PASV port on every call, no close delay, and a
// generic welcome banner.
type Config struct {
	// WelcomeMessage is sent as the 220 banner's text when a session
	// starts. Defaults to a generic banner if empty.
	WelcomeMessage string
	// CloseDelay pads the final 226 reply of a completed transfer by this
	// duration after the data socket is closed, to accommodate clients
	// that race the close. Zero by default; spec.md documents this as a
	// tunable, not a correctness requirement.
	CloseDelay time.Duration
	// PasvPortRangeStart/End bound the OS port PASV binds to. Both zero
	// (the default) means let the OS choose any free port.
	PasvPortRangeStart int
	PasvPortRangeEnd   int
}

// Session holds all per-connection state. Exactly one goroutine (the one
// running Serve) ever mutates it.
type Session struct {
	ID     uint64
	conn   net.Conn
	fs     filesystem.Filesystem
	db     *users.Database
	log    *slog.Logger
	config Config

	writer *bufio.Writer
	reader *bufio.Reader

	user               users.User
	authenticated      bool
	pendingUsername    string
	hasPendingUsername bool
	workingDir         string
	transferType    TransferType
	lastVerb        string

	pendingRenameSource string

	dataListener net.Listener

	closed bool
}

// New constructs a session bound to conn. fs and db are shared across all
// sessions on a server.
func New(id uint64, conn net.Conn, fs filesystem.Filesystem, db *users.Database, log *slog.Logger, config Config) *Session {
	traced := tools.NewLogReadWriter(conn, log)
	return &Session{
		ID:         id,
		conn:       conn,
		fs:         fs,
		db:         db,
		log:        log,
		config:     config,
		writer:     bufio.NewWriter(traced),
		reader:     bufio.NewReader(traced),
		workingDir: "/",
	}
}

// Serve drives the control loop until the client disconnects, QUIT is
// received, or Stop is called from another goroutine. It never panics
// across its own boundary: a recovered panic is logged and treated as
// connection loss.
func (s *Session) Serve() {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("session panic recovered", "session", s.ID, "panic", r)
		}
	}()
	defer s.Stop()

	welcome := s.config.WelcomeMessage
	if welcome == "" {
		welcome = "embeddable-ftpd ready"
	}
	s.reply(reply.Line(reply.ServiceReady, welcome))

	for {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			if err != io.EOF {
				s.log.Debug("control read error", "session", s.ID, "error", err)
			}
			return
		}
		verb, arg := parseLine(line)
		if verb == "" {
			continue
		}

		if verb != "RNTO" {
			s.pendingRenameSource = ""
		}

		quit := s.dispatch(verb, arg)
		s.lastVerb = verb
		if quit {
			return
		}
	}
}

// Stop closes the control connection and any pending PASV data listener; a
// data connection already accepted by a transfer in progress is not closed
// here. Safe to call more
// than once and from a goroutine other than the one running Serve.
func (s *Session) Stop() {
	if s.closed {
		return
	}
	s.closed = true
	s.closeDataListener()
	s.conn.Close()
}

// parseLine splits a command line into its verb and argument, discarding
// any non-printable bytes a malicious or confused client might send ahead
// of the wire-format CRLF.
func parseLine(line string) (verb, arg string) {
	line = tools.IsPrintable(strings.TrimRight(line, "\r\n"))
	line = strings.TrimSpace(line)
	if line == "" {
		return "", ""
	}
	parts := strings.SplitN(line, " ", 2)
	verb = strings.ToUpper(parts[0])
	if len(parts) > 1 {
		arg = strings.TrimSpace(parts[1])
	}
	return verb, arg
}

func (s *Session) reply(line string) {
	if _, err := s.writer.WriteString(line); err != nil {
		s.log.Debug("reply write error", "session", s.ID, "error", err)
		return
	}
	if err := s.writer.Flush(); err != nil {
		s.log.Debug("reply flush error", "session", s.ID, "error", err)
	}
}

// dispatch routes one parsed command. It returns true when the control
// loop should terminate.
func (s *Session) dispatch(verb, arg string) (quit bool) {
	switch verb {
	case "USER":
		s.cmdUser(arg)
	case "PASS":
		s.cmdPass(arg)
	case "QUIT":
		s.cmdQuit()
		return true
	case "CWD":
		s.cmdCWD(arg)
	case "CDUP":
		s.cmdCDUP()
	case "PWD":
		s.cmdPWD()
	case "TYPE":
		s.cmdType(arg)
	case "PASV":
		s.cmdPasv()
	case "SYST":
		s.cmdSyst()
	case "NOOP":
		s.reply(reply.Line(reply.CommandOK, "NOOP ok"))
	case "FEAT":
		s.cmdFeat()
	case "OPTS":
		s.cmdOpts(arg)
	case "SIZE":
		s.cmdSize(arg)
	case "LIST":
		s.cmdList(arg, false)
	case "NLST":
		s.cmdList(arg, true)
	case "RETR":
		s.cmdRetr(arg)
	case "STOR":
		s.cmdStorAppe(arg, false)
	case "APPE":
		s.cmdStorAppe(arg, true)
	case "DELE":
		s.cmdDele(arg)
	case "RMD":
		s.cmdRmd(arg)
	case "MKD":
		s.cmdMkd(arg)
	case "RNFR":
		s.cmdRnfr(arg)
	case "RNTO":
		s.cmdRnto(arg)
	case "PORT", "STRU", "MODE", "REIN", "ACCT", "ALLO", "REST", "ABOR", "STOU", "SITE", "STAT", "HELP":
		s.reply(reply.Line(reply.NotImplemented, verb+" not implemented"))
	default:
		s.reply(reply.Line(reply.SyntaxError, "Unknown command "+verb))
	}
	return false
}

// requireAuth replies 530 and returns false if the session is not yet
// authenticated.
func (s *Session) requireAuth() bool {
	if !s.authenticated {
		s.reply(reply.Line(reply.NotLoggedIn, "Not logged in"))
		return false
	}
	return true
}

// requirePerm requires authentication and the given permission bits,
// replying 550 if the user lacks them.
func (s *Session) requirePerm(want users.Permission) bool {
	if !s.requireAuth() {
		return false
	}
	if !s.user.Permissions.Has(want) {
		s.reply(reply.Line(reply.ActionNotTaken, "Permission denied"))
		return false
	}
	return true
}

func (s *Session) cmdUser(arg string) {
	s.authenticated = false
	s.user = users.User{}
	s.workingDir = "/"
	// arg may legitimately be "" — it's one of the reserved anonymous
	// spellings ("", "anonymous", "ftp"), so it isn't rejected here.
	s.pendingUsername = arg
	s.hasPendingUsername = true
	s.reply(reply.Line(reply.UsernameOK, "Please specify the password"))
}

func (s *Session) cmdPass(arg string) {
	if s.lastVerb != "USER" || !s.hasPendingUsername {
		s.reply(reply.Line(reply.BadCommandSequence, "Login with USER first"))
		return
	}
	u, ok := s.db.Lookup(s.pendingUsername, arg)
	s.pendingUsername = ""
	s.hasPendingUsername = false
	if !ok {
		s.reply(reply.Line(reply.NotLoggedIn, "Login incorrect"))
		return
	}
	s.user = u
	s.authenticated = true
	s.reply(reply.Line(reply.LoggedIn, "Login successful"))
}

func (s *Session) cmdQuit() {
	s.reply(reply.Line(reply.ClosingControl, "Goodbye"))
}

func (s *Session) localPath(arg string) string {
	return vpath.VirtualToLocal(s.workingDir, arg, s.user.LocalRoot)
}

func (s *Session) cmdCWD(arg string) {
	if !s.requirePerm(users.DirList) {
		return
	}
	target := vpath.Normalize(s.workingDir+"/"+arg, false, '/')
	if !strings.HasPrefix(target, "/") {
		target = "/" + target
	}
	local := s.localPath(arg)
	if !s.fs.CanOpenDir(local) {
		s.reply(reply.Line(reply.ActionNotTaken, "Failed to change directory"))
		return
	}
	s.workingDir = target
	s.reply(reply.Line(reply.FileActionOK, "Directory successfully changed to "+target))
}

func (s *Session) cmdCDUP() {
	if !s.requirePerm(users.DirList) {
		return
	}
	target := vpath.Normalize(s.workingDir+"/..", false, '/')
	if !strings.HasPrefix(target, "/") {
		target = "/" + target
	}
	if target == s.workingDir {
		s.reply(reply.Line(reply.ActionNotTaken, "Already at root"))
		return
	}
	local := s.localPath("..")
	if !s.fs.CanOpenDir(local) {
		s.reply(reply.Line(reply.ActionNotTaken, "Failed to change directory"))
		return
	}
	s.workingDir = target
	s.reply(reply.Line(reply.CommandOK, "Directory successfully changed to "+target))
}

func (s *Session) cmdPWD() {
	// RFC 959 doesn't allow 530 here, so an unauthenticated PWD is reported
	// as ActionNotTaken (550) instead of going through requireAuth.
	if !s.authenticated {
		s.reply(reply.Line(reply.ActionNotTaken, "Not logged in"))
		return
	}
	s.reply(reply.Line(reply.PathnameCreated, reply.QuotePath(s.workingDir)+" is current directory"))
}

func (s *Session) cmdType(arg string) {
	switch strings.ToUpper(arg) {
	case "A":
		s.transferType = TypeASCII
		s.reply(reply.Line(reply.CommandOK, "Type set to A"))
	case "I":
		s.transferType = TypeBinary
		s.reply(reply.Line(reply.CommandOK, "Type set to I"))
	default:
		s.reply(reply.Line(reply.NotImplementedForParam, "Unknown type"))
	}
}

func (s *Session) closeDataListener() {
	if s.dataListener != nil {
		s.dataListener.Close()
		s.dataListener = nil
	}
}

// listenPassive opens the data listener for PASV. When the session's config
// bounds a port range, it tries each port of that range in order and
// returns the first one it can bind; otherwise it lets the OS choose any
// free port.
func (s *Session) listenPassive(host string) (net.Listener, error) {
	start, end := s.config.PasvPortRangeStart, s.config.PasvPortRangeEnd
	if start == 0 && end == 0 {
		return net.Listen("tcp", net.JoinHostPort(host, "0"))
	}
	var lastErr error
	for port := start; port <= end; port++ {
		ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
		if err == nil {
			return ln, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no ports available in range %d-%d", start, end)
	}
	return nil, lastErr
}

func (s *Session) cmdPasv() {
	if !s.requireAuth() {
		return
	}
	s.closeDataListener()

	host, _, err := net.SplitHostPort(s.conn.LocalAddr().String())
	if err != nil {
		s.reply(reply.Line(reply.ServiceNotAvailable, "Cannot determine server address"))
		return
	}
	ln, err := s.listenPassive(host)
	if err != nil {
		s.reply(reply.Line(reply.ServiceNotAvailable, "Cannot open passive listener"))
		return
	}
	s.dataListener = ln

	ip := net.ParseIP(host).To4()
	_, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)
	if ip == nil {
		s.closeDataListener()
		s.reply(reply.Line(reply.ServiceNotAvailable, "Server address is not IPv4"))
		return
	}
	s.reply(reply.Line(reply.EnteringPassiveMode, fmt.Sprintf(
		"Entering passive mode (%d,%d,%d,%d,%d,%d)",
		ip[0], ip[1], ip[2], ip[3], port/256, port%256)))
}

func (s *Session) cmdSyst() {
	s.reply(reply.Line(reply.SystemType, "UNIX Type: L8"))
}

func (s *Session) cmdFeat() {
	s.reply(reply.MultiLine(reply.FeatureList, []string{
		"Features:",
		"UTF8",
		"SIZE",
		"LANG EN",
		"End",
	}))
}

func (s *Session) cmdOpts(arg string) {
	if strings.EqualFold(arg, "UTF8 ON") {
		s.reply(reply.Line(reply.CommandOK, "Always in UTF8 mode"))
		return
	}
	s.reply(reply.Line(reply.NotImplementedForParam, "Unknown option"))
}

func (s *Session) cmdSize(arg string) {
	if !s.requireAuth() {
		return
	}
	if !s.user.Permissions.Has(users.FileRead) && !s.user.Permissions.Has(users.DirList) {
		s.reply(reply.Line(reply.ActionNotTaken, "Permission denied"))
		return
	}
	info, err := s.fs.Stat(s.localPath(arg))
	if err != nil || !info.Present {
		s.reply(reply.Line(reply.ActionAbortedLocalError, "Could not get file size"))
		return
	}
	s.reply(reply.Line(reply.FileStatus, strconv.FormatInt(info.Size, 10)))
}

// acceptData accepts exactly one connection on the pending PASV listener.
// The listener is always consumed (closed) whether or not accept
// succeeds, matching the spec's "listener is logically spent" rule.
func (s *Session) acceptData() (net.Conn, error) {
	ln := s.dataListener
	if ln == nil {
		return nil, fmt.Errorf("no passive listener open")
	}
	defer s.closeDataListener()
	return ln.Accept()
}

// stripListFlags discards leading "-a"/"-l"/"-la"/"-al" tokens before the
// path argument, per LIST/NLST's flag-tolerant grammar.
func stripListFlags(arg string) string {
	for {
		arg = strings.TrimSpace(arg)
		fields := strings.SplitN(arg, " ", 2)
		first := fields[0]
		if first == "-a" || first == "-l" || first == "-la" || first == "-al" {
			if len(fields) > 1 {
				arg = fields[1]
				continue
			}
			return ""
		}
		return arg
	}
}

var monthNames = [...]string{
	"Jan", "Feb", "Mar", "Apr", "May", "Jun",
	"Jul", "Aug", "Sep", "Oct", "Nov", "Dec",
}

func formatListLine(name string, info filesystem.Info, now time.Time) string {
	kind := byte('-')
	if info.Type == filesystem.Directory {
		kind = 'd'
	}
	mod := info.ModTime
	var timePart string
	if mod.Year() == now.Year() {
		timePart = fmt.Sprintf("%s %2d %02d:%02d", monthNames[mod.Month()-1], mod.Day(), mod.Hour(), mod.Minute())
	} else {
		timePart = fmt.Sprintf("%s %2d  %d", monthNames[mod.Month()-1], mod.Day(), mod.Year())
	}
	return fmt.Sprintf("%c%s   1 owner group %d %s %s", kind, info.Perm, info.Size, timePart, name)
}

func (s *Session) cmdList(arg string, namesOnly bool) {
	if !s.requirePerm(users.DirList) {
		return
	}
	arg = stripListFlags(arg)
	local := s.localPath(arg)
	info, err := s.fs.Stat(local)
	if err != nil || !info.Present || info.Type != filesystem.Directory || !s.fs.CanOpenDir(local) {
		s.reply(reply.Line(reply.FileActionNotTaken, "Directory not found"))
		return
	}
	entries, err := s.fs.ListDir(local)
	if err != nil {
		s.reply(reply.Line(reply.ActionNotTaken, "Failed to read directory"))
		return
	}

	s.reply(reply.Line(reply.FileStatusOK, "Here comes the directory listing"))
	dataConn, err := s.acceptData()
	if err != nil {
		s.reply(reply.Line(reply.CantOpenDataConnection, "Can't open data connection"))
		return
	}
	defer dataConn.Close()

	now := time.Now()
	for _, e := range entries {
		var line string
		if namesOnly {
			line = e.Name
		} else {
			line = formatListLine(e.Name, e.Info, now)
		}
		if _, err := fmt.Fprintf(dataConn, "%s\r\n", line); err != nil {
			break
		}
	}
	dataConn.Close()
	if s.config.CloseDelay > 0 {
		time.Sleep(s.config.CloseDelay)
	}
	s.reply(reply.Line(reply.ClosingData, "Directory send OK"))
}

func (s *Session) cmdRetr(arg string) {
	if !s.requirePerm(users.FileRead) {
		return
	}
	if s.dataListener == nil {
		s.reply(reply.Line(reply.CantOpenDataConnection, "Use PASV first"))
		return
	}
	local := s.localPath(arg)
	handle, err := s.fs.OpenReadable(local)
	if err != nil {
		s.reply(reply.Line(reply.ActionAbortedLocalError, "Failed to open file for reading"))
		return
	}
	defer handle.Release()

	s.reply(reply.Line(reply.FileStatusOK, "Opening data connection"))
	dataConn, err := s.acceptData()
	if err != nil {
		s.reply(reply.Line(reply.CantOpenDataConnection, "Can't open data connection"))
		return
	}
	defer dataConn.Close()

	if data := handle.Bytes(); len(data) > 0 {
		if _, err := dataConn.Write(data); err != nil {
			s.reply(reply.Line(reply.TransferAborted, "Transfer aborted"))
			return
		}
	}
	dataConn.Close()
	if s.config.CloseDelay > 0 {
		time.Sleep(s.config.CloseDelay)
	}
	s.reply(reply.Line(reply.ClosingData, "Transfer complete"))
}

func (s *Session) cmdStorAppe(arg string, appending bool) {
	local := s.localPath(arg)
	info, err := s.fs.Stat(local)
	if err != nil {
		s.reply(reply.Line(reply.ActionAbortedLocalError, "Failed to stat target"))
		return
	}

	if appending {
		if !s.requireAuth() {
			return
		}
		if info.Present {
			if info.Type != filesystem.Regular {
				s.reply(reply.Line(reply.ActionNotTaken, "Target is not a regular file"))
				return
			}
			if !s.user.Permissions.Has(users.FileAppend) {
				s.reply(reply.Line(reply.ActionNotTaken, "Permission denied"))
				return
			}
		} else if !s.user.Permissions.Has(users.FileWrite) {
			s.reply(reply.Line(reply.ActionNotTaken, "Permission denied"))
			return
		}
	} else {
		if !s.requirePerm(users.FileWrite) {
			return
		}
		if info.Present {
			if info.Type == filesystem.Directory {
				s.reply(reply.Line(reply.FileNameNotAllowed, "Cannot overwrite a directory"))
				return
			}
			if !s.user.Permissions.Has(users.FileDelete) {
				s.reply(reply.Line(reply.ActionNotTaken, "Permission denied"))
				return
			}
		}
	}

	mode := filesystem.TruncateCreate
	if appending {
		mode = filesystem.AppendCreate
	}
	w, err := s.fs.OpenWriteable(local, mode)
	if err != nil {
		s.reply(reply.Line(reply.ActionAbortedLocalError, "Failed to open file for writing"))
		return
	}

	s.reply(reply.Line(reply.FileStatusOK, "Ready to receive data"))
	dataConn, err := s.acceptData()
	if err != nil {
		w.Close()
		s.reply(reply.Line(reply.CantOpenDataConnection, "Can't open data connection"))
		return
	}
	defer dataConn.Close()

	_, copyErr := io.Copy(w, dataConn)
	closeErr := w.Close()
	dataConn.Close()
	if copyErr != nil || closeErr != nil {
		s.reply(reply.Line(reply.ActionAbortedLocalError, "Error writing to the file"))
		return
	}
	if s.config.CloseDelay > 0 {
		time.Sleep(s.config.CloseDelay)
	}
	s.reply(reply.Line(reply.ClosingData, "Transfer complete"))
}

func (s *Session) cmdDele(arg string) {
	if !s.requirePerm(users.FileDelete) {
		return
	}
	local := s.localPath(arg)
	info, err := s.fs.Stat(local)
	if err != nil || !info.Present || info.Type != filesystem.Regular {
		s.reply(reply.Line(reply.ActionNotTaken, "File not found"))
		return
	}
	if err := s.fs.RemoveFile(local); err != nil {
		s.reply(reply.Line(reply.ActionNotTaken, "Failed to delete file"))
		return
	}
	s.reply(reply.Line(reply.FileActionOK, "File deleted"))
}

func (s *Session) cmdRmd(arg string) {
	if !s.requirePerm(users.DirDelete) {
		return
	}
	local := s.localPath(arg)
	if err := s.fs.RemoveDir(local); err != nil {
		s.reply(reply.Line(reply.ActionNotTaken, "Failed to remove directory"))
		return
	}
	s.reply(reply.Line(reply.FileActionOK, "Directory removed"))
}

func (s *Session) cmdMkd(arg string) {
	if !s.requirePerm(users.DirCreate) {
		return
	}
	target := vpath.Normalize(s.workingDir+"/"+arg, false, '/')
	if !strings.HasPrefix(target, "/") {
		target = "/" + target
	}
	local := s.localPath(arg)
	if err := s.fs.CreateDir(local); err != nil {
		s.reply(reply.Line(reply.ActionNotTaken, "Failed to create directory"))
		return
	}
	s.reply(reply.Line(reply.PathnameCreated, reply.QuotePath(target)+" created"))
}

func (s *Session) cmdRnfr(arg string) {
	if !s.requireAuth() {
		return
	}
	if arg == "" {
		s.reply(reply.Line(reply.SyntaxError, "No file name given"))
		return
	}
	local := s.localPath(arg)
	info, err := s.fs.Stat(local)
	if err != nil || !info.Present {
		s.reply(reply.Line(reply.ActionNotTaken, "File not found"))
		return
	}
	var want users.Permission
	if info.Type == filesystem.Directory {
		want = users.DirRename
	} else {
		want = users.FileRename
	}
	if !s.user.Permissions.Has(want) {
		s.reply(reply.Line(reply.ActionNotTaken, "Permission denied"))
		return
	}
	s.pendingRenameSource = local
	s.reply(reply.Line(reply.AwaitingFurtherInfo, "File exists, ready for destination name"))
}

func (s *Session) cmdRnto(arg string) {
	defer func() { s.pendingRenameSource = "" }()

	if s.lastVerb != "RNFR" || s.pendingRenameSource == "" {
		s.reply(reply.Line(reply.BadCommandSequence, "RNFR required before RNTO"))
		return
	}
	if arg == "" {
		s.reply(reply.Line(reply.SyntaxError, "No file name given"))
		return
	}

	source := s.pendingRenameSource
	info, err := s.fs.Stat(source)
	if err != nil || !info.Present {
		s.reply(reply.Line(reply.ActionNotTaken, "Source no longer exists"))
		return
	}
	var want users.Permission
	if info.Type == filesystem.Directory {
		want = users.DirRename
	} else {
		want = users.FileRename
	}
	if !s.user.Permissions.Has(want) {
		s.reply(reply.Line(reply.ActionNotTaken, "Permission denied"))
		return
	}

	target := s.localPath(arg)
	if targetInfo, err := s.fs.Stat(target); err == nil && targetInfo.Present {
		s.reply(reply.Line(reply.FileActionNotTaken, "Destination already exists"))
		return
	}
	if err := s.fs.Rename(source, target); err != nil {
		s.reply(reply.Line(reply.FileActionNotTaken, "Rename failed"))
		return
	}
	s.reply(reply.Line(reply.FileActionOK, "File renamed successfully"))
}
