// internal/monitoring/prober.go
package monitoring

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/owl29bd/cctv-automation-backend/internal/config"
)

// ProbeResult is the outcome of one reachability check. Failures are data,
// never errors.
type ProbeResult struct {
	Success   bool
	LatencyMs *float64
	Error     string
}

// Prober checks whether one address answers within a bounded time.
type Prober interface {
	Name() string
	Probe(ctx context.Context, address string) ProbeResult
}

// NewProber builds the prober selected by monitoring.probe_method.
func NewProber(cfg config.MonitoringConfig) Prober {
	if cfg.ProbeMethod == "tcp" {
		return &TCPProber{Timeout: cfg.ProbeTimeout, Port: cfg.ProbePort}
	}
	return &PingProber{Timeout: cfg.ProbeTimeout}
}

var (
	hostnamePattern = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9.-]*[A-Za-z0-9])?$`)
	rttPattern      = regexp.MustCompile(`time[=<]\s*([\d.]+)\s*ms`)
)

// validateAddress rejects empty values and anything that could be taken as a ping flag.
func validateAddress(address string) error {
	if address == "" {
		return errors.New("empty address")
	}
	if net.ParseIP(address) != nil {
		return nil
	}
	if !hostnamePattern.MatchString(address) {
		return fmt.Errorf("malformed address %q", address)
	}
	return nil
}

// CommandRunner executes a command and returns its combined output.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// PingProber sends a single ICMP echo through the system ping binary.
type PingProber struct {
	Timeout time.Duration
	Run     CommandRunner
}

func (p *PingProber) Name() string {
	return "icmp"
}

func (p *PingProber) Probe(ctx context.Context, address string) ProbeResult {
	address = strings.TrimSpace(address)
	if err := validateAddress(address); err != nil {
		return ProbeResult{Error: err.Error()}
	}

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	run := p.Run
	if run == nil {
		run = execRunner
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	waitSeconds := int(math.Ceil(timeout.Seconds()))
	output, err := run(ctx, "ping", "-c", "1", "-W", strconv.Itoa(waitSeconds), address)
	if ctx.Err() == context.DeadlineExceeded {
		return ProbeResult{Error: fmt.Sprintf("timeout after %s", timeout)}
	}
	if err != nil {
		return ProbeResult{Error: describePingFailure(address, output, err)}
	}

	return ProbeResult{Success: true, LatencyMs: parseLatency(string(output))}
}

// parseLatency returns nil when the output carries no finite round-trip time.
func parseLatency(output string) *float64 {
	matches := rttPattern.FindStringSubmatch(output)
	if len(matches) < 2 {
		return nil
	}
	latency, err := strconv.ParseFloat(matches[1], 64)
	if err != nil || math.IsNaN(latency) || math.IsInf(latency, 0) {
		return nil
	}
	return &latency
}

func describePingFailure(address string, output []byte, err error) string {
	text := strings.TrimSpace(string(output))
	if strings.Contains(text, "100% packet loss") || strings.Contains(text, "0 received") {
		return fmt.Sprintf("host %s unreachable", address)
	}
	if line := lastLine(text); line != "" {
		return fmt.Sprintf("ping failed: %s", line)
	}
	return fmt.Sprintf("ping failed: %v", err)
}

func lastLine(text string) string {
	lines := strings.Split(text, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}

// TCPProber treats a completed TCP handshake on the camera port as alive.
type TCPProber struct {
	Timeout time.Duration
	Port    int
}

func (p *TCPProber) Name() string {
	return "tcp"
}

func (p *TCPProber) Probe(ctx context.Context, address string) ProbeResult {
	address = strings.TrimSpace(address)
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		host, port = address, strconv.Itoa(p.Port)
	}
	if err := validateAddress(host); err != nil {
		return ProbeResult{Error: err.Error()}
	}

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	dialer := net.Dialer{}
	started := time.Now()
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, port))
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return ProbeResult{Error: fmt.Sprintf("timeout after %s", timeout)}
		}
		return ProbeResult{Error: fmt.Sprintf("dial failed: %v", err)}
	}
	conn.Close()

	latency := float64(time.Since(started).Microseconds()) / 1000
	return ProbeResult{Success: true, LatencyMs: &latency}
}
