// Package monitor implements the Monitoring Probe: best-effort
// system stats, top processes, and login history gathered by running
// short-lived commands over a session's SSH transport.
package monitor

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"sshgateway/pkg/models"
)

// Runner is the slice of gateway.Session the probe needs.
type Runner interface {
	Run(cmd string) (string, error)
}

const snapshotScript = `
echo '---CPU_MODEL---'
grep -m1 'model name' /proc/cpuinfo 2>/dev/null | cut -d: -f2
echo '---CPU_PERCENT---'
top -bn1 2>/dev/null | grep -m1 'Cpu(s)' || true
echo '---MEMINFO---'
cat /proc/meminfo 2>/dev/null
echo '---DISK---'
df -kP / 2>/dev/null | tail -1
echo '---NET---'
cat /proc/net/dev 2>/dev/null
echo '---UPTIME---'
cat /proc/uptime 2>/dev/null
echo '---LOADAVG---'
cat /proc/loadavg 2>/dev/null
echo '---HOSTNAME---'
hostname 2>/dev/null
echo '---OS---'
cat /etc/os-release 2>/dev/null
echo '---KERNEL---'
uname -r 2>/dev/null
`

// Snapshot gathers a single point-in-time record. It never returns an
// error: any probe failure yields zero-valued fields in the record.
func Snapshot(r Runner) models.MonitorSnapshot {
	out, err := r.Run(snapshotScript)
	if err != nil && out == "" {
		return models.MonitorSnapshot{Timestamp: time.Now().Unix()}
	}
	sections := splitSections(out)

	snap := models.MonitorSnapshot{
		Timestamp: time.Now().Unix(),
		CPU:       parseCPU(sections["CPU_MODEL"], sections["CPU_PERCENT"]),
		Memory:    parseMemory(sections["MEMINFO"]),
		Disk:      parseDisk(sections["DISK"]),
		Network:   parseNetwork(sections["NET"]),
		System:    parseSystem(sections["UPTIME"], sections["LOADAVG"], sections["HOSTNAME"], sections["OS"], sections["KERNEL"]),
	}
	return snap
}

// splitSections breaks the batched script's output into named blocks
// delimited by "---NAME---" marker lines.
func splitSections(out string) map[string]string {
	sections := make(map[string]string)
	var current string
	var buf strings.Builder
	marker := regexp.MustCompile(`^---([A-Z_]+)---$`)

	flush := func() {
		if current != "" {
			sections[current] = strings.TrimSpace(buf.String())
		}
		buf.Reset()
	}

	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r")
		if m := marker.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			flush()
			current = m[1]
			continue
		}
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	flush()
	return sections
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}

func parseInt64(s string) int64 {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

var cpuPercentRe = regexp.MustCompile(`(\d+(\.\d+)?)\s*%?\s*id`)

func parseCPU(modelBlock, percentBlock string) models.CPUStats {
	stats := models.CPUStats{Model: strings.TrimSpace(modelBlock)}
	if m := cpuPercentRe.FindStringSubmatch(percentBlock); m != nil {
		idle := parseFloat(m[1])
		stats.Percent = round2(100 - idle)
	}
	return stats
}

func parseMemory(block string) models.MemoryStats {
	fields := map[string]int64{}
	for _, line := range strings.Split(block, "\n") {
		parts := strings.Fields(line)
		if len(parts) < 2 {
			continue
		}
		key := strings.TrimSuffix(parts[0], ":")
		fields[key] = parseInt64(parts[1]) * 1024 // /proc/meminfo is in kB
	}
	total := fields["MemTotal"]
	free := fields["MemFree"]
	available := fields["MemAvailable"]
	if available == 0 {
		available = free
	}
	used := total - available
	if used < 0 {
		used = 0
	}
	var percent float64
	if total > 0 {
		percent = round2(float64(used) / float64(total) * 100)
	}
	return models.MemoryStats{
		TotalBytes:     total,
		UsedBytes:      used,
		FreeBytes:      free,
		AvailableBytes: available,
		Percent:        percent,
	}
}

var dfLineRe = regexp.MustCompile(`\s+`)

func parseDisk(line string) models.DiskStats {
	fields := dfLineRe.Split(strings.TrimSpace(line), -1)
	// Expected columns: Filesystem 1K-blocks Used Available Use% Mounted
	if len(fields) < 5 {
		return models.DiskStats{}
	}
	totalKB := parseInt64(fields[1])
	usedKB := parseInt64(fields[2])
	freeKB := parseInt64(fields[3])
	pct := strings.TrimSuffix(fields[4], "%")
	return models.DiskStats{
		TotalBytes: totalKB * 1024,
		UsedBytes:  usedKB * 1024,
		FreeBytes:  freeKB * 1024,
		Percent:    parseFloat(pct),
	}
}

func parseNetwork(block string) models.NetworkStats {
	var best models.NetworkStats
	var bestTotal int64
	for _, line := range strings.Split(block, "\n") {
		if !strings.Contains(line, ":") {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		iface := strings.TrimSpace(parts[0])
		if iface == "" || iface == "lo" {
			continue
		}
		fields := strings.Fields(parts[1])
		if len(fields) < 9 {
			continue
		}
		rx := parseInt64(fields[0])
		tx := parseInt64(fields[8])
		total := rx + tx
		if total > bestTotal {
			bestTotal = total
			best = models.NetworkStats{Interface: iface, RxBytes: rx, TxBytes: tx}
		}
	}
	return best
}

func parseSystem(uptimeBlock, loadavgBlock, hostnameBlock, osBlock, kernelBlock string) models.SystemStats {
	stats := models.SystemStats{
		Hostname: strings.TrimSpace(hostnameBlock),
		Kernel:   strings.TrimSpace(kernelBlock),
	}

	if fields := strings.Fields(uptimeBlock); len(fields) >= 1 {
		stats.Uptime = formatUptime(parseFloat(fields[0]))
	}
	if fields := strings.Fields(loadavgBlock); len(fields) >= 3 {
		stats.Load1 = parseFloat(fields[0])
		stats.Load5 = parseFloat(fields[1])
		stats.Load15 = parseFloat(fields[2])
	}
	for _, line := range strings.Split(osBlock, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "NAME=") {
			stats.OSName = strings.Trim(strings.TrimPrefix(line, "NAME="), `"`)
		}
		if strings.HasPrefix(line, "VERSION=") {
			stats.OSVersion = strings.Trim(strings.TrimPrefix(line, "VERSION="), `"`)
		}
	}
	return stats
}

func formatUptime(seconds float64) string {
	if seconds <= 0 {
		return ""
	}
	d := int64(seconds)
	days := d / 86400
	hours := (d % 86400) / 3600
	minutes := (d % 3600) / 60
	switch {
	case days > 0:
		return strconv.FormatInt(days, 10) + "d " + strconv.FormatInt(hours, 10) + "h"
	case hours > 0:
		return strconv.FormatInt(hours, 10) + "h " + strconv.FormatInt(minutes, 10) + "m"
	default:
		return strconv.FormatInt(minutes, 10) + "m"
	}
}

func round2(f float64) float64 {
	return float64(int64(f*100)) / 100
}

// TopProcesses parses `ps aux --sort=-%mem`, tolerant of column spacing,
// returning at most 10 rows with command names truncated to 20 chars.
func TopProcesses(r Runner) []models.ProcessInfo {
	out, err := r.Run("ps aux --sort=-%mem 2>/dev/null")
	if err != nil && out == "" {
		return nil
	}
	lines := strings.Split(out, "\n")
	if len(lines) <= 1 {
		return nil
	}

	var procs []models.ProcessInfo
	for _, line := range lines[1:] {
		fields := strings.Fields(line)
		if len(fields) < 11 {
			continue
		}
		pid, err := strconv.Atoi(fields[1])
		if err != nil {
			continue
		}
		command := strings.Join(fields[10:], " ")
		if len(command) > 20 {
			command = command[:20]
		}
		procs = append(procs, models.ProcessInfo{
			User:    fields[0],
			PID:     pid,
			CPU:     parseFloat(fields[2]),
			Mem:     parseFloat(fields[3]),
			Command: command,
		})
		if len(procs) == 10 {
			break
		}
	}
	return procs
}
