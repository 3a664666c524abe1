package violations

import (
	"bufio"
	"context"
	"encoding/base64"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/AgentShepherd/vsbx/internal/logger"
)

var log = logger.New("violations")

// noiseProcesses are macOS system daemons whose log lines are never
// sandbox violations and are filtered before reaching the store (spec.md
// §4.9).
var noiseProcesses = []string{"mDNSResponder", "diagnosticd", "analyticsd"}

// ignoredCommandPatterns are additional wildcard substrings that mark a
// line as noise regardless of process name.
var ignoredCommandPatterns = []string{"com.apple.", "/usr/libexec/"}

// Monitor runs `log stream` and parses seatbelt deny lines into Events
// pushed onto a Store.
type Monitor struct {
	store            *Store
	ignoreViolations map[string][]string

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewMonitor creates a Monitor that will push parsed events to store.
// ignoreViolations is the policy's command-pattern ignore list (spec.md
// §4.9): key "*" is the wildcard list, any other key is matched as a
// substring of the decoded command, and the associated paths are the
// violated resources to drop silently.
func NewMonitor(store *Store, ignoreViolations map[string][]string) *Monitor {
	return &Monitor{store: store, ignoreViolations: ignoreViolations}
}

// Start launches the `log stream` subprocess and begins parsing its
// output in a background goroutine. ctx bounds the subprocess lifetime.
func (m *Monitor) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)

	cmd := exec.CommandContext(runCtx, "log", "stream",
		"--predicate", `sender == "Sandbox" or eventMessage contains "Sandbox:"`,
		"--style", "compact")

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return err
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return err
	}

	m.mu.Lock()
	m.cancel = cancel
	m.done = make(chan struct{})
	m.mu.Unlock()

	go m.readLoop(stdout, cmd)
	return nil
}

func (m *Monitor) readLoop(stdout io.Reader, cmd *exec.Cmd) {
	defer close(m.done)
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)

	for scanner.Scan() {
		line := scanner.Text()
		if isNoise(line) {
			continue
		}
		command, tag := parseCommandTag(line)
		if tag == "" {
			continue
		}
		if isIgnored(m.ignoreViolations, command, extractViolationPath(line)) {
			continue
		}
		m.store.Add(NewEvent(line, command, time.Now()))
	}
	_ = cmd.Wait()
}

func isNoise(line string) bool {
	for _, proc := range noiseProcesses {
		if strings.Contains(line, proc) {
			return true
		}
	}
	for _, pattern := range ignoredCommandPatterns {
		if strings.Contains(line, pattern) {
			return true
		}
	}
	return false
}

// parseCommandTag extracts the CMD64_<b64>_END_<session> log tag and
// decodes the command prefix it carries (internal/seatbelt.NewLogTag is
// the producer of this exact shape).
func parseCommandTag(line string) (command, tag string) {
	idx := strings.Index(line, "CMD64_")
	if idx < 0 {
		return "", ""
	}
	rest := line[idx+len("CMD64_"):]
	endIdx := strings.Index(rest, "_END_")
	if endIdx < 0 {
		return "", ""
	}
	encoded := rest[:endIdx]
	decoded, err := decodeCommandTag(encoded)
	if err != nil {
		return "", line[idx:]
	}
	return decoded, line[idx:]
}

func decodeCommandTag(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// extractViolationPath returns the first double-quoted token of a log
// line, taken as the path the denied operation targeted, or "" when the
// line has no quoted token. A path logged unquoted (e.g.
// `Sandbox: deny(1) file-write* /etc/passwd`) is not found.
func extractViolationPath(line string) string {
	start := strings.IndexByte(line, '"')
	if start < 0 {
		return ""
	}
	rest := line[start+1:]
	end := strings.IndexByte(rest, '"')
	if end < 0 {
		return ""
	}
	return rest[:end]
}

// isIgnored reports whether a violation against path, raised while running
// command, is suppressed by the policy's ignore_violations map: the
// wildcard key "*", or any key that is a substring of command, each
// carrying a list of paths to ignore (spec.md §4.9).
func isIgnored(ignoreViolations map[string][]string, command, path string) bool {
	if path == "" {
		return false
	}
	for pattern, paths := range ignoreViolations {
		if pattern != "*" && !strings.Contains(command, pattern) {
			continue
		}
		for _, p := range paths {
			if p == path {
				return true
			}
		}
	}
	return false
}

// Stop cancels the log stream subprocess and waits for the read loop to
// exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	done := m.done
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	if done != nil {
		<-done
	}
}
