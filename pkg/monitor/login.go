package monitor

import (
	"regexp"
	"strings"

	"sshgateway/pkg/models"
)

// loginSources is tried in priority order; LoginHistory stops at the
// first source that yields at least one parseable row.
var loginSources = []struct {
	cmd   string
	parse func(string) []models.LoginRecord
}{
	{"wtmpdb last 2>/dev/null", parseLastStyle},
	{"last -Fw 2>/dev/null", parseLastStyle},
	{"last 2>/dev/null", parseLastStyle},
	{"lastlog 2>/dev/null", parseLastlog},
	{"tail -n 200 /var/log/auth.log 2>/dev/null || tail -n 200 /var/log/secure 2>/dev/null", parseAuthLog},
	{"journalctl -u sshd -u ssh -n 200 --no-pager 2>/dev/null", parseAuthLog},
}

// LoginHistory walks loginSources in order, stopping at the first one
// that produces output it can parse, then always merges `who` to tag
// currently logged-in users. An all-failed probe returns an empty list,
// never an error.
func LoginHistory(r Runner) []models.LoginRecord {
	var records []models.LoginRecord
	for _, src := range loginSources {
		out, err := r.Run(src.cmd)
		if err != nil && out == "" {
			continue
		}
		parsed := src.parse(out)
		if len(parsed) > 0 {
			records = parsed
			break
		}
	}

	current := whoCurrentUsers(r)
	records = mergeCurrent(records, current)
	return records
}

func whoCurrentUsers(r Runner) map[string]bool {
	out, err := r.Run("who 2>/dev/null")
	if err != nil && out == "" {
		return nil
	}
	users := make(map[string]bool)
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		users[fields[0]] = true
	}
	return users
}

func mergeCurrent(records []models.LoginRecord, current map[string]bool) []models.LoginRecord {
	seen := make(map[string]bool, len(records))
	out := make([]models.LoginRecord, 0, len(records)+len(current))
	for _, rec := range records {
		if current[rec.User] {
			rec.Status = "current"
		}
		key := rec.User + "|" + rec.SourceAddr + "|" + rec.Status
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, rec)
	}
	for user := range current {
		key := user + "||current"
		if seen[key] {
			continue
		}
		already := false
		for _, rec := range out {
			if rec.User == user && rec.Status == "current" {
				already = true
				break
			}
		}
		if already {
			continue
		}
		out = append(out, models.LoginRecord{User: user, Status: "current"})
	}
	return out
}

var lastLineRe = regexp.MustCompile(`^(\S+)\s+\S+\s+(\S+)`)

// parseLastStyle handles `wtmpdb last` / `last` / `last -Fw` output,
// which all share the same leading "user tty source ..." shape.
func parseLastStyle(out string) []models.LoginRecord {
	var records []models.LoginRecord
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "wtmp begins") {
			continue
		}
		m := lastLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		status := "success"
		if strings.Contains(line, "still logged in") || strings.Contains(line, "still running") {
			status = "current"
		}
		source := m[2]
		if source == "" || strings.HasPrefix(source, ":") {
			source = ""
		}
		records = append(records, models.LoginRecord{
			User:       m[1],
			SourceAddr: source,
			Status:     status,
		})
	}
	return records
}

// parseLastlog handles `lastlog`, excluding "Never logged in" rows.
func parseLastlog(out string) []models.LoginRecord {
	var records []models.LoginRecord
	for i, line := range strings.Split(out, "\n") {
		if i == 0 {
			continue // header
		}
		line = strings.TrimSpace(line)
		if line == "" || strings.Contains(strings.ToLower(line), "never logged in") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		rec := models.LoginRecord{User: fields[0], Status: "success"}
		if len(fields) >= 3 && looksLikeAddress(fields[2]) {
			rec.SourceAddr = fields[2]
		}
		records = append(records, rec)
	}
	return records
}

var sshdAuthLineRe = regexp.MustCompile(`(?i)sshd.*?(Accepted|Failed) password for (?:invalid user )?(\S+) from (\S+)`)

// parseAuthLog handles syslog-style sshd lines, whether from a plain log
// file tail or journalctl's equivalent format.
func parseAuthLog(out string) []models.LoginRecord {
	var records []models.LoginRecord
	for _, line := range strings.Split(out, "\n") {
		m := sshdAuthLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		status := "success"
		if strings.EqualFold(m[1], "Failed") {
			status = "failed"
		}
		records = append(records, models.LoginRecord{
			User:       m[2],
			SourceAddr: m[3],
			Status:     status,
		})
	}
	return records
}

func looksLikeAddress(s string) bool {
	return strings.Contains(s, ".") || strings.Contains(s, ":")
}
