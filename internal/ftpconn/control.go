package ftpconn

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Response is one FTP server reply.
type Response struct {
	// Code is the three-digit reply code (e.g. 220, 550).
	Code int

	// Message is the human-readable text, joined across lines for
	// multi-line replies.
	Message string
}

func (r *Response) is2xx() bool { return r.Code >= 200 && r.Code < 300 }
func (r *Response) is3xx() bool { return r.Code >= 300 && r.Code < 400 }

// ReplyError is a reply-level rejection: the conversation worked at the
// protocol layer but the server said no.
type ReplyError struct {
	Cmd  string
	Code int
	Msg  string
}

func (e *ReplyError) Error() string {
	return fmt.Sprintf("ftp: %s rejected: %s (code %d)", e.Cmd, e.Msg, e.Code)
}

// readResponse reads one complete reply, handling both single-line
// ("220 Ready") and multi-line ("220-... / 220 Ready") forms. A reply is
// complete when a line starts with the code followed by a space.
func readResponse(r *bufio.Reader) (*Response, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return nil, err
	}

	line = strings.TrimRight(line, "\r\n")
	if len(line) < 4 {
		return nil, fmt.Errorf("short reply line: %q", line)
	}

	code, err := strconv.Atoi(line[0:3])
	if err != nil {
		return nil, fmt.Errorf("invalid reply code: %q", line[0:3])
	}

	if line[3] == ' ' {
		return &Response{Code: code, Message: line[4:]}, nil
	}
	if line[3] != '-' {
		return nil, fmt.Errorf("invalid reply format: %q", line)
	}

	lines := []string{line[4:]}
	codeStr := line[0:3]
	for {
		line, err = r.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				return nil, fmt.Errorf("unexpected EOF in multi-line reply")
			}
			return nil, err
		}
		line = strings.TrimRight(line, "\r\n")

		// RFC 2389 continuation lines start with a space.
		if len(line) > 0 && line[0] == ' ' {
			lines = append(lines, strings.TrimSpace(line))
			continue
		}
		if len(line) < 4 || line[0:3] != codeStr {
			return nil, fmt.Errorf("mismatched reply line: %q", line)
		}

		lines = append(lines, line[4:])
		if line[3] == ' ' {
			return &Response{Code: code, Message: strings.Join(lines, "\n")}, nil
		}
		if line[3] != '-' {
			return nil, fmt.Errorf("invalid reply format: %q", line)
		}
	}
}
