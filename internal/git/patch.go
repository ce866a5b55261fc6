package git

import (
	"bufio"
	"regexp"
	"strconv"
	"strings"
)

var hunkHeaderPattern = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@`)

// Hunk is one @@ header of a unified diff. An omitted count is 1.
type Hunk struct {
	OldStart int
	OldCount int
	NewStart int
	NewCount int
}

// LineRange is an inclusive range of line numbers
type LineRange struct {
	Start int
	End   int
}

// FilePatch is the diff of one file. OldPath is empty for an added file and
// NewPath is empty for a deleted one.
type FilePatch struct {
	OldPath string
	NewPath string
	// Body is the patch text from the first @@ line on
	Body  string
	Hunks []Hunk
}

// Path returns the path the file has after the change, or its old path when
// it was deleted.
func (p FilePatch) Path() string {
	if p.NewPath != "" {
		return p.NewPath
	}
	return p.OldPath
}

// Added reports whether the file did not exist before the change
func (p FilePatch) Added() bool {
	return p.OldPath == ""
}

// DeletedRanges returns the removed lines in the old file's coordinates.
// Pure insertions (old count 0) contribute nothing.
func (p FilePatch) DeletedRanges() []LineRange {
	var out []LineRange
	for _, h := range p.Hunks {
		if h.OldCount == 0 {
			continue
		}
		out = append(out, LineRange{Start: h.OldStart, End: h.OldStart + h.OldCount - 1})
	}
	return out
}

// ParsePatches splits git diff output into per-file patches, using the
// "diff --git" lines as file boundaries.
func ParsePatches(diffOutput string) []FilePatch {
	var (
		patches []FilePatch
		current *FilePatch
		body    strings.Builder
		inBody  bool
	)
	flush := func() {
		if current == nil {
			return
		}
		current.Body = body.String()
		patches = append(patches, *current)
		body.Reset()
	}

	scanner := bufio.NewScanner(strings.NewReader(diffOutput))
	scanner.Buffer(make([]byte, 64*1024), 64*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()

		if strings.HasPrefix(line, "diff --git ") {
			flush()
			oldPath, newPath := parseDiffGitHeader(line)
			current = &FilePatch{OldPath: oldPath, NewPath: newPath}
			inBody = false
			continue
		}
		if current == nil {
			continue
		}

		if !inBody {
			switch {
			case strings.HasPrefix(line, "new file mode"):
				current.OldPath = ""
			case strings.HasPrefix(line, "deleted file mode"):
				current.NewPath = ""
			case strings.HasPrefix(line, "rename from "):
				current.OldPath = strings.TrimPrefix(line, "rename from ")
			case strings.HasPrefix(line, "rename to "):
				current.NewPath = strings.TrimPrefix(line, "rename to ")
			case line == "--- /dev/null":
				current.OldPath = ""
			case strings.HasPrefix(line, "--- a/"):
				current.OldPath = strings.TrimPrefix(line, "--- a/")
			case line == "+++ /dev/null":
				current.NewPath = ""
			case strings.HasPrefix(line, "+++ b/"):
				current.NewPath = strings.TrimPrefix(line, "+++ b/")
			}
		}

		if strings.HasPrefix(line, "@@") {
			if h, ok := parseHunkHeader(line); ok {
				current.Hunks = append(current.Hunks, h)
				inBody = true
			}
		}
		if inBody {
			body.WriteString(line)
			body.WriteByte('\n')
		}
	}
	flush()
	return patches
}

// parseDiffGitHeader extracts both paths from "diff --git a/old b/new"
func parseDiffGitHeader(line string) (string, string) {
	rest := strings.TrimPrefix(line, "diff --git ")
	idx := strings.LastIndex(rest, " b/")
	if idx < 0 || !strings.HasPrefix(rest, "a/") {
		return "", ""
	}
	return rest[2:idx], rest[idx+3:]
}

// parseHunkHeader parses "@@ -oldStart[,oldCount] +newStart[,newCount] @@"
func parseHunkHeader(line string) (Hunk, bool) {
	m := hunkHeaderPattern.FindStringSubmatch(line)
	if m == nil {
		return Hunk{}, false
	}
	count := func(s string) int {
		if s == "" {
			return 1
		}
		n, _ := strconv.Atoi(s)
		return n
	}
	oldStart, _ := strconv.Atoi(m[1])
	newStart, _ := strconv.Atoi(m[3])
	return Hunk{
		OldStart: oldStart,
		OldCount: count(m[2]),
		NewStart: newStart,
		NewCount: count(m[4]),
	}, true
}
