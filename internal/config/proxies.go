package config

import (
	"fmt"
	"os"
	"strings"
)

// ReadProxies returns the non-blank, non-comment lines of the proxies file.
// An empty file yields no proxies, which disables rotation.
func ReadProxies(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading proxies: %w", err)
	}

	var proxies []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		proxies = append(proxies, line)
	}

	return proxies, nil
}
