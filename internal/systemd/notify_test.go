package systemd

import (
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNotifyWithoutSystemd(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")
	t.Setenv("WATCHDOG_USEC", "")

	Ready()
	Watchdog()
	Stopping()

	if d := WatchdogInterval(); d != 0 {
		t.Errorf("WatchdogInterval = %v, want 0 outside systemd", d)
	}
	FeedWatchdog()()
}

// notifySocket listens where systemd would and returns the datagram conn.
func notifySocket(t *testing.T) *net.UnixConn {
	t.Helper()
	// Unix socket paths are short; t.TempDir can exceed the limit.
	dir, err := os.MkdirTemp("", "sd")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	path := filepath.Join(dir, "notify")
	conn, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Name: path, Net: "unixgram"})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	t.Setenv("NOTIFY_SOCKET", path)
	return conn
}

func TestFeedWatchdogPetsOnItsOwn(t *testing.T) {
	conn := notifySocket(t)
	t.Setenv("WATCHDOG_USEC", "40000")
	t.Setenv("WATCHDOG_PID", "")

	if d := WatchdogInterval(); d != 40*time.Millisecond {
		t.Fatalf("WatchdogInterval = %v", d)
	}

	stop := FeedWatchdog()
	defer stop()

	buf := make([]byte, 64)
	pets := 0
	for pets < 2 {
		if err := conn.SetReadDeadline(time.Now().Add(time.Second)); err != nil {
			t.Fatal(err)
		}
		n, _, err := conn.ReadFromUnix(buf)
		if err != nil {
			t.Fatalf("after %d pets: %v", pets, err)
		}
		if strings.TrimSpace(string(buf[:n])) == "WATCHDOG=1" {
			pets++
		}
	}
}
