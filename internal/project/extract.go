package project

import (
	"fmt"
	"regexp"
	"strings"

	"previewkit/internal/vfs"
)

// Problem reports an anomaly found while extracting files from chat
// output.
type Problem struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

// fenceOpen matches an opening code fence with an info string, e.g.
// ```tsx file=/App.tsx
var fenceOpen = regexp.MustCompile("^(`{3,})([^`]*)$")

var fileAttr = regexp.MustCompile(`(?:^|\s)file=("([^"]*)"|(\S+))`)

// ExtractFiles scans chat output for fenced code blocks carrying a
// file=path attribute. The scanner tracks the opening fence length, so
// a block opened with four backticks may contain three-backtick fences
// verbatim. Unterminated blocks and duplicate paths are reported as
// problems; for a duplicate the later block wins.
func ExtractFiles(text string) ([]ParsedFile, []Problem) {
	var (
		files    []ParsedFile
		problems []Problem
		byPath   = make(map[string]int)
	)

	var (
		inBlock   bool
		fenceLen  int
		openLine  int
		blockPath string
		blockLang string
		content   []string
	)

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lineNo := i + 1

		if inBlock {
			if isClosingFence(line, fenceLen) {
				inBlock = false
				if blockPath == "" {
					continue
				}
				body := strings.Join(content, "\n")
				if len(content) > 0 {
					body += "\n"
				}
				f := ParsedFile{Path: blockPath, Content: body, Language: blockLang}
				if prev, dup := byPath[blockPath]; dup {
					problems = append(problems, Problem{
						Line:    openLine,
						Message: fmt.Sprintf("duplicate file %s; this block replaces the earlier one", blockPath),
					})
					files[prev] = f
				} else {
					byPath[blockPath] = len(files)
					files = append(files, f)
				}
				continue
			}
			content = append(content, line)
			continue
		}

		m := fenceOpen.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		inBlock = true
		fenceLen = len(m[1])
		openLine = lineNo
		blockPath = ""
		blockLang = ""
		content = content[:0]

		info := strings.TrimSpace(m[2])
		if fa := fileAttr.FindStringSubmatch(info); fa != nil {
			p := fa[2]
			if p == "" {
				p = fa[3]
			}
			if p != "" {
				blockPath = vfs.Normalize(p)
			}
		}
		if fields := strings.Fields(info); len(fields) > 0 && !strings.Contains(fields[0], "=") {
			blockLang = fields[0]
		}
	}

	if inBlock && blockPath != "" {
		problems = append(problems, Problem{
			Line:    openLine,
			Message: fmt.Sprintf("unterminated code block for %s", blockPath),
		})
	} else if inBlock {
		problems = append(problems, Problem{
			Line:    openLine,
			Message: "unterminated code block",
		})
	}
	return files, problems
}

// isClosingFence reports whether a line closes a block opened with
// fenceLen backticks: backticks only, at least as many as the opener.
func isClosingFence(line string, fenceLen int) bool {
	trimmed := strings.TrimRight(line, " \t")
	if len(trimmed) < fenceLen {
		return false
	}
	for _, r := range trimmed {
		if r != '`' {
			return false
		}
	}
	return true
}
