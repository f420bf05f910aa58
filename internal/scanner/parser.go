package scanner

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// DirectoryEntry is one parsed line of a remote directory listing. Size,
// Modified, and Permissions are nil when the line did not yield them.
type DirectoryEntry struct {
	Name        string
	IsDir       bool
	Size        *int64
	Modified    *time.Time
	Permissions *string
}

// listFieldCount is the conventional Unix listing shape:
// permissions, links, owner, group, size, month, day, year, name.
const listFieldCount = 9

// ParseListLine turns one raw LIST line into a DirectoryEntry. The line is
// split on whitespace into at most nine fields; the name field absorbs any
// remaining text verbatim, since filenames may contain spaces. Lines with
// fewer than nine fields fall back to an entry whose name is the whole raw
// line. Unparseable size or date fields become nil rather than errors;
// listings in the wild are too heterogeneous to reject lines over them.
func ParseListLine(line string) DirectoryEntry {
	fields := splitFields(line, listFieldCount)
	if len(fields) < listFieldCount {
		return DirectoryEntry{Name: line}
	}

	entry := DirectoryEntry{
		Name:        fields[8],
		IsDir:       strings.HasPrefix(fields[0], "d"),
		Permissions: &fields[0],
	}

	if size, err := strconv.ParseInt(fields[4], 10, 64); err == nil {
		entry.Size = &size
	}
	if mod, err := time.Parse("Jan 2 2006", fields[5]+" "+fields[6]+" "+fields[7]); err == nil {
		entry.Modified = &mod
	}

	return entry
}

// splitFields splits s on runs of whitespace into at most n fields; the last
// field keeps the remainder of the line verbatim.
func splitFields(s string, n int) []string {
	var fields []string
	rest := strings.TrimLeftFunc(s, unicode.IsSpace)

	for len(rest) > 0 && len(fields) < n-1 {
		end := strings.IndexFunc(rest, unicode.IsSpace)
		if end < 0 {
			fields = append(fields, rest)
			return fields
		}
		fields = append(fields, rest[:end])
		rest = strings.TrimLeftFunc(rest[end:], unicode.IsSpace)
	}

	if len(rest) > 0 {
		fields = append(fields, rest)
	}
	return fields
}

// bannerRegex matches a product name followed by a dotted version in a
// server greeting, e.g. "Microsoft FTP Service (Version 5.0)".
var bannerRegex = regexp.MustCompile(`([A-Za-z]+) FTPD? .*?([0-9.]+)`)

// DetectServer extracts a product name and version from the greeting text.
// No match returns empty strings; absence of a banner is not an error.
func DetectServer(welcome string) (serverType, version string) {
	m := bannerRegex.FindStringSubmatch(welcome)
	if m == nil {
		return "", ""
	}
	return m[1], m[2]
}
