package git

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var porcelainHeaderPattern = regexp.MustCompile(`^([0-9a-f]{40,64}) (\d+) (\d+)(?: \d+)?$`)

// BlameLine attributes one line of a file to the commit that last touched it
type BlameLine struct {
	Commit        string
	Line          int
	CommitterTime time.Time
}

// Blame attributes the given line ranges of path as of rev. Whitespace-only
// changes are skipped when ignoreWhitespace is set.
func (r *Repo) Blame(ctx context.Context, rev, path string, ranges []LineRange, ignoreWhitespace bool) ([]BlameLine, error) {
	if len(ranges) == 0 {
		return nil, nil
	}
	args := []string{"blame", "--porcelain"}
	if ignoreWhitespace {
		args = append(args, "-w")
	}
	for _, lr := range ranges {
		args = append(args, "-L", fmt.Sprintf("%d,%d", lr.Start, lr.End))
	}
	args = append(args, rev, "--", path)

	out, err := r.run(ctx, args...)
	if err != nil {
		return nil, err
	}
	return parsePorcelain(out)
}

// parsePorcelain reads git blame --porcelain output. Commit metadata is only
// printed the first time a commit appears, so times are filled in at the end.
func parsePorcelain(out []byte) ([]BlameLine, error) {
	var (
		lines   []BlameLine
		times   = make(map[string]time.Time)
		current string
	)

	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "\t") {
			continue
		}
		if m := porcelainHeaderPattern.FindStringSubmatch(line); m != nil {
			current = m[1]
			final, _ := strconv.Atoi(m[3])
			lines = append(lines, BlameLine{Commit: current, Line: final})
			continue
		}
		if v, ok := strings.CutPrefix(line, "committer-time "); ok && current != "" {
			sec, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid committer-time %q: %w", v, err)
			}
			times[current] = time.Unix(sec, 0).UTC()
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error scanning blame output: %w", err)
	}

	for i := range lines {
		lines[i].CommitterTime = times[lines[i].Commit]
	}
	return lines, nil
}
