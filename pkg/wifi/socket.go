package wifi

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"
)

// socketSeq distinguishes the local reply sockets of one process.
var socketSeq atomic.Uint32

// ctrlConn is one unix datagram connection to the supplicant control
// socket. The protocol is strictly datagram-oriented: every request and
// every event is a single datagram.
type ctrlConn struct {
	conn    *net.UnixConn
	local   string
	timeout time.Duration
}

// dialCtrl connects to the supplicant socket, binding a local reply socket
// under localDir.
func dialCtrl(remote, localDir string, timeout time.Duration) (*ctrlConn, error) {
	local := filepath.Join(localDir, fmt.Sprintf("basecamp-wpa-%d-%d", os.Getpid(), socketSeq.Add(1)))

	laddr := &net.UnixAddr{Name: local, Net: "unixgram"}
	raddr := &net.UnixAddr{Name: remote, Net: "unixgram"}

	conn, err := net.DialUnix("unixgram", laddr, raddr)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", remote, err)
	}

	return &ctrlConn{
		conn:    conn,
		local:   local,
		timeout: timeout,
	}, nil
}

// request sends a command and returns the trimmed reply. Unsolicited
// events that slip in between are skipped.
func (c *ctrlConn) request(cmd string) (string, error) {
	deadline := time.Now().Add(c.timeout)
	if err := c.conn.SetDeadline(deadline); err != nil {
		return "", err
	}

	if _, err := c.conn.Write([]byte(cmd)); err != nil {
		return "", fmt.Errorf("sending %q: %w", cmd, err)
	}

	buf := make([]byte, 4096)
	for {
		n, err := c.conn.Read(buf)
		if err != nil {
			return "", fmt.Errorf("reply to %q: %w", cmd, err)
		}
		reply := string(buf[:n])
		if isUnsolicited(reply) {
			continue
		}
		return strings.TrimSpace(reply), nil
	}
}

// requestOK sends a command whose only acceptable reply is OK.
func (c *ctrlConn) requestOK(cmd string) error {
	reply, err := c.request(cmd)
	if err != nil {
		return err
	}
	if reply != "OK" {
		return fmt.Errorf("%w: %q replied %q", ErrCommandFailed, cmd, reply)
	}
	return nil
}

// readEvent blocks until the next datagram arrives. The deadline is
// cleared so monitor reads wait indefinitely.
func (c *ctrlConn) readEvent() (string, error) {
	if err := c.conn.SetDeadline(time.Time{}); err != nil {
		return "", err
	}

	buf := make([]byte, 4096)
	n, err := c.conn.Read(buf)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(buf[:n]), "\n"), nil
}

// send writes a datagram without waiting for a reply.
func (c *ctrlConn) send(cmd string) error {
	_, err := c.conn.Write([]byte(cmd))
	return err
}

func (c *ctrlConn) close() error {
	err := c.conn.Close()
	_ = os.Remove(c.local)
	return err
}

// isUnsolicited reports whether a datagram is an event rather than a
// command reply. Events carry a "<priority>" prefix.
func isUnsolicited(msg string) bool {
	return strings.HasPrefix(msg, "<")
}

// stripPriority removes the "<priority>" prefix from an event line.
func stripPriority(msg string) string {
	if !strings.HasPrefix(msg, "<") {
		return msg
	}
	end := strings.IndexByte(msg, '>')
	if end < 0 {
		return msg
	}
	return msg[end+1:]
}
