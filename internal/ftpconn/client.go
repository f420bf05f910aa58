// Package ftpconn is a minimal FTP client for anonymous read-only scanning:
// connect, login, change directory, raw directory listings, quit. It keeps
// the server greeting and the unparsed LIST lines, which full-featured client
// libraries hide, because banner detection and listing parsing happen upstream.
package ftpconn

import (
	"bufio"
	"fmt"
	"net"
	"time"
)

// Client is one control connection to one FTP server. It is not safe for
// concurrent use; each scan session owns exactly one Client.
type Client struct {
	conn    net.Conn
	reader  *bufio.Reader
	host    string
	timeout time.Duration
	welcome string

	// EPSV is preferred for data connections; a server replying 502 turns
	// it off for the rest of the session.
	epsvDisabled bool
}

// Dial connects to addr ("host:port") and reads the 220 greeting. The timeout
// bounds the TCP connect and every subsequent control read and write; its
// expiry surfaces as an ordinary connection error.
func Dial(addr string, timeout time.Duration) (*Client, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid address %q: %w", addr, err)
	}

	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("connecting: %w", err)
	}

	c := &Client{
		conn:    conn,
		reader:  bufio.NewReader(conn),
		host:    host,
		timeout: timeout,
	}

	if err := c.setReadDeadline(); err != nil {
		conn.Close()
		return nil, err
	}
	resp, err := c.readReply()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("reading greeting: %w", err)
	}
	if resp.Code != 220 {
		conn.Close()
		return nil, &ReplyError{Cmd: "CONNECT", Code: resp.Code, Msg: resp.Message}
	}
	c.welcome = resp.Message

	return c, nil
}

// Welcome returns the greeting text the server sent on connect.
func (c *Client) Welcome() string {
	return c.welcome
}

// Login authenticates with USER/PASS. Servers either accept USER outright
// (230) or ask for a password (331/332) first.
func (c *Client) Login(user, pass string) error {
	resp, err := c.sendCommand("USER " + user)
	if err != nil {
		return err
	}
	switch {
	case resp.Code == 230:
		return nil
	case resp.Code == 331 || resp.Code == 332:
		resp, err = c.sendCommand("PASS " + pass)
		if err != nil {
			return err
		}
		if !resp.is2xx() {
			return &ReplyError{Cmd: "PASS", Code: resp.Code, Msg: resp.Message}
		}
		return nil
	default:
		return &ReplyError{Cmd: "USER", Code: resp.Code, Msg: resp.Message}
	}
}

// ChangeDir changes the remote working directory.
func (c *Client) ChangeDir(path string) error {
	return c.expect2xx("CWD " + path)
}

// ChangeDirToParent moves to the parent of the remote working directory.
func (c *Client) ChangeDirToParent() error {
	return c.expect2xx("CDUP")
}

// List returns the raw LIST lines for the current remote directory, read
// over a passive data connection.
func (c *Client) List() ([]string, error) {
	dataConn, err := c.openDataConn()
	if err != nil {
		return nil, err
	}

	resp, err := c.sendCommand("LIST")
	if err != nil {
		dataConn.Close()
		return nil, err
	}
	// Expect a preliminary 1xx or an immediate 2xx.
	if resp.Code >= 400 || resp.is3xx() {
		dataConn.Close()
		return nil, &ReplyError{Cmd: "LIST", Code: resp.Code, Msg: resp.Message}
	}

	var lines []string
	sc := bufio.NewScanner(dataConn)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	scanErr := sc.Err()
	dataConn.Close()

	if scanErr != nil {
		return nil, fmt.Errorf("reading listing: %w", scanErr)
	}

	// Transfer-complete reply (usually 226).
	if err := c.setReadDeadline(); err != nil {
		return nil, err
	}
	resp, err = c.readReply()
	if err != nil {
		return nil, fmt.Errorf("reading transfer completion: %w", err)
	}
	if !resp.is2xx() {
		return nil, &ReplyError{Cmd: "LIST", Code: resp.Code, Msg: resp.Message}
	}

	return lines, nil
}

// Quit sends QUIT best-effort and closes the connection. It is safe to call
// after any error.
func (c *Client) Quit() error {
	_, _ = c.sendCommand("QUIT")
	return c.conn.Close()
}

func (c *Client) sendCommand(cmd string) (*Response, error) {
	if c.timeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
			return nil, fmt.Errorf("setting write deadline: %w", err)
		}
	}
	if _, err := fmt.Fprintf(c.conn, "%s\r\n", cmd); err != nil {
		return nil, fmt.Errorf("sending %s: %w", commandVerb(cmd), err)
	}

	if err := c.setReadDeadline(); err != nil {
		return nil, err
	}
	resp, err := c.readReply()
	if err != nil {
		return nil, fmt.Errorf("reading %s reply: %w", commandVerb(cmd), err)
	}
	return resp, nil
}

func (c *Client) expect2xx(cmd string) error {
	resp, err := c.sendCommand(cmd)
	if err != nil {
		return err
	}
	if !resp.is2xx() {
		return &ReplyError{Cmd: commandVerb(cmd), Code: resp.Code, Msg: resp.Message}
	}
	return nil
}

func (c *Client) readReply() (*Response, error) {
	return readResponse(c.reader)
}

func (c *Client) setReadDeadline() error {
	if c.timeout <= 0 {
		return nil
	}
	if err := c.conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return fmt.Errorf("setting read deadline: %w", err)
	}
	return nil
}

// commandVerb strips arguments so errors never echo paths or credentials.
func commandVerb(cmd string) string {
	for i := 0; i < len(cmd); i++ {
		if cmd[i] == ' ' {
			return cmd[:i]
		}
	}
	return cmd
}
