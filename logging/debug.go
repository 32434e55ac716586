package logging

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// DebugLogger writes protocol-level traces, including hex dumps of every
// EtherNet/IP frame, to a dedicated file. It is meant for troubleshooting
// connection failures and malformed replies, not for day-to-day logging.
type DebugLogger struct {
	file    *os.File
	mu      sync.Mutex
	closed  bool
	filters map[string]bool // empty = log everything
}

var (
	globalDebugLogger *DebugLogger
	globalDebugMu     sync.RWMutex
)

// KnownProtocols lists the names accepted by SetFilter.
var KnownProtocols = []string{"eip", "logix", "plcman", "api", "http", "events", "mqtt", "kafka", "valkey"}

// related widens a filter so that asking for a layer also shows the layer
// underneath it.
var related = map[string][]string{
	"logix":  {"eip"},
	"plcman": {"logix", "eip"},
	"api":    {"plcman"},
	"events": {"mqtt", "kafka", "valkey"},
}

const debugTimeFormat = "2006-01-02 15:04:05.000"

// NewDebugLogger truncates path and starts a new debug session in it.
func NewDebugLogger(path string) (*DebugLogger, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open debug log file: %w", err)
	}

	l := &DebugLogger{file: file, filters: make(map[string]bool)}
	l.Log("debug", "debug logging started %s", time.Now().Format(time.RFC3339))
	return l, nil
}

// SetFilter restricts logging to a comma separated list of protocols.
// An empty filter logs everything.
func (l *DebugLogger) SetFilter(filter string) {
	if l == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.filters = make(map[string]bool)
	for _, p := range strings.Split(filter, ",") {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		l.filters[p] = true
		for _, r := range related[p] {
			l.filters[r] = true
		}
	}

	if len(l.filters) > 0 {
		names := make([]string, 0, len(l.filters))
		for p := range l.filters {
			names = append(names, p)
		}
		sort.Strings(names)
		l.writeLocked("debug", "filtering enabled for: "+strings.Join(names, ", "))
	}
}

// Enabled reports whether messages for protocol would be written.
func (l *DebugLogger) Enabled(protocol string) bool {
	if l == nil {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return !l.closed && l.shouldLog(protocol)
}

// shouldLog must be called with l.mu held.
func (l *DebugLogger) shouldLog(protocol string) bool {
	if len(l.filters) == 0 {
		return true
	}
	p := strings.ToLower(protocol)
	return p == "debug" || l.filters[p]
}

func (l *DebugLogger) writeLocked(protocol, msg string) {
	fmt.Fprintf(l.file, "%s [%s] %s\n", time.Now().Format(debugTimeFormat), protocol, msg)
}

// Log writes one timestamped line tagged with protocol.
func (l *DebugLogger) Log(protocol, format string, args ...any) {
	if l == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed || !l.shouldLog(protocol) {
		return
	}
	l.writeLocked(protocol, fmt.Sprintf(format, args...))
}

// LogTX logs a transmitted frame with hex dump.
func (l *DebugLogger) LogTX(protocol string, data []byte) {
	l.logPacket(protocol, "TX", data)
}

// LogRX logs a received frame with hex dump.
func (l *DebugLogger) LogRX(protocol string, data []byte) {
	l.logPacket(protocol, "RX", data)
}

func (l *DebugLogger) logPacket(protocol, direction string, data []byte) {
	if l == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed || !l.shouldLog(protocol) {
		return
	}
	l.writeLocked(protocol, fmt.Sprintf("%s (%d bytes):\n%s", direction, len(data), hexDump(data)))
}

// Write lets the logger back a log.Logger, such as http.Server.ErrorLog.
// Lines are tagged "http".
func (l *DebugLogger) Write(p []byte) (int, error) {
	l.Log("http", "%s", strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

// Close ends the session and closes the file.
func (l *DebugLogger) Close() error {
	if l == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.writeLocked("debug", "debug logging ended")
	l.closed = true
	return l.file.Close()
}

// hexDump renders data as offset, two groups of eight hex bytes and ASCII:
//
//	0000: 65 00 04 00 00 00 00 00  00 00 00 00 00 00 00 00  e...............
func hexDump(data []byte) string {
	if len(data) == 0 {
		return "    (empty)"
	}

	var sb strings.Builder
	for off := 0; off < len(data); off += 16 {
		row := data[off:min(off+16, len(data))]
		fmt.Fprintf(&sb, "    %04X: ", off)
		for i := 0; i < 16; i++ {
			if i == 8 {
				sb.WriteByte(' ')
			}
			if i < len(row) {
				fmt.Fprintf(&sb, "%02X ", row[i])
			} else {
				sb.WriteString("   ")
			}
		}
		sb.WriteByte(' ')
		for _, b := range row {
			if b >= 32 && b < 127 {
				sb.WriteByte(b)
			} else {
				sb.WriteByte('.')
			}
		}
		if off+16 < len(data) {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// SetGlobalDebugLogger installs the process-wide debug logger. Nil disables it.
func SetGlobalDebugLogger(l *DebugLogger) {
	globalDebugMu.Lock()
	defer globalDebugMu.Unlock()
	globalDebugLogger = l
}

// GetGlobalDebugLogger returns the process-wide debug logger, or nil.
func GetGlobalDebugLogger() *DebugLogger {
	globalDebugMu.RLock()
	defer globalDebugMu.RUnlock()
	return globalDebugLogger
}

// DebugLog logs through the global debug logger when one is installed.
func DebugLog(protocol, format string, args ...any) {
	GetGlobalDebugLogger().Log(protocol, format, args...)
}

// DebugTX hex dumps a transmitted frame.
func DebugTX(protocol string, data []byte) {
	GetGlobalDebugLogger().LogTX(protocol, data)
}

// DebugRX hex dumps a received frame.
func DebugRX(protocol string, data []byte) {
	GetGlobalDebugLogger().LogRX(protocol, data)
}

func DebugConnect(protocol, address string) {
	DebugLog(protocol, "CONNECT to %s", address)
}

func DebugConnectSuccess(protocol, address, details string) {
	DebugLog(protocol, "CONNECTED to %s - %s", address, details)
}

func DebugConnectError(protocol, address string, err error) {
	DebugLog(protocol, "CONNECT FAILED to %s: %v", address, err)
}

func DebugDisconnect(protocol, address, reason string) {
	DebugLog(protocol, "DISCONNECT from %s: %s", address, reason)
}

func DebugError(protocol, context string, err error) {
	DebugLog(protocol, "ERROR in %s: %v", context, err)
}
