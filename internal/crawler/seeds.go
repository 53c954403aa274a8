package crawler

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// ReadSeeds returns the non-blank lines of path, trimmed. Lines starting
// with '#' are comments.
func ReadSeeds(path string) ([]string, error) {
	f, err := os.Open(path) //nolint:gosec // operator-supplied seed file
	if err != nil {
		return nil, fmt.Errorf("open seed file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var seeds []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		seeds = append(seeds, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return seeds, nil
}
