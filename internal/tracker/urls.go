package tracker

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

var ErrEmptyURLList = errors.New("no product URLs to track")

// ReadURLList loads one URL per line from path.
func ReadURLList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open products file: %w", err)
	}
	defer f.Close()

	return ParseURLList(f)
}

// ParseURLList skips blank lines and lines starting with '#'.
func ParseURLList(r io.Reader) ([]string, error) {
	var urls []string

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read products file: %w", err)
	}

	if len(urls) == 0 {
		return nil, ErrEmptyURLList
	}
	return urls, nil
}
