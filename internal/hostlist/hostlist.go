// Package hostlist reads the scan input and splits it into worker partitions.
package hostlist

import (
	"bufio"
	"fmt"
	"math/rand"
	"os"
	"strings"
)

// Read loads a newline-delimited host list. Blank lines and surrounding
// whitespace are stripped. A missing or unreadable file is an error; scanning
// must not start without input.
func Read(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening host list: %w", err)
	}
	defer f.Close() //nolint:errcheck

	var hosts []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		host := strings.TrimSpace(sc.Text())
		if host == "" {
			continue
		}
		hosts = append(hosts, host)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading host list: %w", err)
	}

	return hosts, nil
}

// Shuffle permutes hosts in place. Hosts adjacent in the input (often sorted
// by subnet) tend to behave alike; spreading them evens out latency variance
// across workers.
func Shuffle(hosts []string) {
	rand.Shuffle(len(hosts), func(i, j int) {
		hosts[i], hosts[j] = hosts[j], hosts[i]
	})
}

// Partition splits hosts into k contiguous partitions whose sizes differ by
// at most one. When k exceeds the host count the tail partitions are empty.
// The union of the partitions is exactly the input, once each.
func Partition(hosts []string, k int) [][]string {
	if len(hosts) == 0 || k < 1 {
		return nil
	}

	parts := make([][]string, 0, k)
	base := len(hosts) / k
	extra := len(hosts) % k

	start := 0
	for i := 0; i < k; i++ {
		size := base
		if i < extra {
			size++
		}
		parts = append(parts, hosts[start:start+size])
		start += size
	}

	return parts
}
