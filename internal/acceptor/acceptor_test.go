package acceptor

import (
	"bufio"
	"io"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/embeddable-ftpd/ftpd/filesystem"
	"github.com/embeddable-ftpd/ftpd/internal/session"
	"github.com/embeddable-ftpd/ftpd/users"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestAcceptor(t *testing.T) (*Acceptor, *users.Database) {
	t.Helper()
	db := users.NewDatabase()
	db.AddUserAnonymous(t.TempDir(), users.ReadOnly)
	a := New("127.0.0.1:0", filesystem.NewLocalFilesystem(), db, testLogger(), session.Config{})
	if !a.Start(2) {
		t.Fatal("expected Start to succeed")
	}
	t.Cleanup(a.Stop)
	return a, db
}

func Test_Acceptor_StartAssignsPort(t *testing.T) {
	a, _ := newTestAcceptor(t)
	if a.Port() == 0 {
		t.Fatal("expected a non-zero port after Start")
	}
	if a.Address() == "" {
		t.Fatal("expected a non-empty address after Start")
	}
}

func Test_Acceptor_StartFailsOnBadAddress(t *testing.T) {
	db := users.NewDatabase()
	a := New("not-a-valid-host:99999", filesystem.NewLocalFilesystem(), db, testLogger(), session.Config{})
	if a.Start(1) {
		t.Fatal("expected Start to fail on an invalid address")
	}
}

func Test_Acceptor_acceptsConnectionsAndTracksCount(t *testing.T) {
	a, _ := newTestAcceptor(t)

	if got := a.OpenConnectionCount(); got != 0 {
		t.Fatalf("expected 0 open connections, got %d", got)
	}

	conn, err := net.Dial("tcp", a.Address())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(line, "220") {
		t.Fatalf("expected a 220 welcome banner, got %q", line)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if a.OpenConnectionCount() == 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if got := a.OpenConnectionCount(); got != 1 {
		t.Fatalf("expected 1 open connection, got %d", got)
	}
}

func Test_Acceptor_StopClosesListenerAndSessions(t *testing.T) {
	a, _ := newTestAcceptor(t)
	addr := a.Address()

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	bufio.NewReader(conn).ReadString('\n')

	a.Stop()

	if _, err := net.Dial("tcp", addr); err == nil {
		t.Fatal("expected dialing a stopped listener to fail")
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	if _, err := conn.Read(buf); err == nil {
		t.Fatal("expected the session's connection to be closed by Stop")
	}
}

func Test_Acceptor_StopIsIdempotent(t *testing.T) {
	db := users.NewDatabase()
	a := New("127.0.0.1:0", filesystem.NewLocalFilesystem(), db, testLogger(), session.Config{})
	if !a.Start(1) {
		t.Fatal("expected Start to succeed")
	}
	a.Stop()
	a.Stop()
}
