package runner

import "strings"

// Compose writes routine progress to stderr. A line is noise when it
// starts with one of these words, or when one of them follows the object
// the line is about ("plex Pulled", "Container plex  Started").
var noiseWords = []string{
	"creating", "created", "starting", "started", "pulling", "pulled",
	"waiting", "healthy", "running", "recreate", "recreated",
	"stopping", "stopped", "removing", "removed",
	"downloading", "download complete", "extracting", "verifying checksum",
	"pull complete", "already exists", "digest:", "status:", "[+]",
}

var composeObjects = map[string]bool{
	"container": true, "network": true, "volume": true, "image": true, "service": true,
}

// IsNoiseLine reports whether one line of stderr is compose progress
// output. Blank lines are noise.
func IsNoiseLine(line string) bool {
	lower := strings.ToLower(strings.TrimSpace(line))
	if lower == "" {
		return true
	}
	if hasNoisePrefix(lower) {
		return true
	}

	fields := strings.Fields(lower)
	if len(fields) < 2 {
		return false
	}
	if composeObjects[fields[0]] && len(fields) >= 3 && hasNoisePrefix(strings.Join(fields[2:], " ")) {
		return true
	}
	return hasNoisePrefix(strings.Join(fields[1:], " "))
}

// SplitStderr separates compose progress lines from everything else.
func SplitStderr(stderr string) (noise, other []string) {
	for _, line := range strings.Split(stderr, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if IsNoiseLine(line) {
			noise = append(noise, line)
		} else {
			other = append(other, line)
		}
	}
	return noise, other
}

// IsNoise reports whether stderr holds nothing but compose progress lines.
func IsNoise(stderr string) bool {
	_, other := SplitStderr(stderr)
	return len(other) == 0
}

func hasNoisePrefix(s string) bool {
	for _, w := range noiseWords {
		if strings.HasPrefix(s, w) {
			return true
		}
	}
	return false
}
