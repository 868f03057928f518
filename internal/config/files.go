package config

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"
)

var keyRe = regexp.MustCompile(`^(0x)?[0-9a-fA-F]{64}$`)

// LoadPrivateKeys reads one hex private key per line, filtering out anything
// that is not 64 hex chars (optional 0x prefix). Zero valid keys is an error.
func LoadPrivateKeys(path string) ([]string, error) {
	lines, err := readLines(path)
	if err != nil {
		return nil, fmt.Errorf("read keys %s: %w", path, err)
	}
	keys := make([]string, 0, len(lines))
	for _, l := range lines {
		if keyRe.MatchString(l) {
			keys = append(keys, l)
		}
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("no valid private keys in %s", path)
	}
	return keys, nil
}

// LoadProxies reads proxy URLs, one per line. A missing or empty file is not
// an error: the bot simply runs without proxies.
func LoadProxies(path string) []string {
	lines, err := readLines(path)
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://") || strings.HasPrefix(l, "socks") {
			out = append(out, l)
		}
	}
	return out
}

// ProxyFor assigns proxies round-robin by account index.
func ProxyFor(proxies []string, index int) string {
	if len(proxies) == 0 {
		return ""
	}
	return proxies[index%len(proxies)]
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines, sc.Err()
}
