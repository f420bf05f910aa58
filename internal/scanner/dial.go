package scanner

import (
	"net"
	"time"

	"github.com/whearn17/FTP-Smasher/internal/ftpconn"
)

const defaultFTPPort = "21"

// dialFTP is the production DialFunc. Bare hosts get the default FTP port.
func dialFTP(host string, timeout time.Duration) (Conn, error) {
	addr := host
	if _, _, err := net.SplitHostPort(host); err != nil {
		addr = net.JoinHostPort(host, defaultFTPPort)
	}

	c, err := ftpconn.Dial(addr, timeout)
	if err != nil {
		return nil, err
	}
	return c, nil
}
