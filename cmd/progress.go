package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// progressLine rewrites a single status line in place when stdout is a
// terminal and stays silent otherwise.
type progressLine struct {
	out      io.Writer
	enabled  bool
	width    int
	lastLine string
}

func newProgressLine() *progressLine {
	fd := int(os.Stdout.Fd())
	p := &progressLine{out: os.Stdout, width: 80}
	p.enabled = term.IsTerminal(fd)
	if w, _, err := term.GetSize(fd); err == nil && w > 20 {
		p.width = w
	}
	return p
}

func (p *progressLine) Update(line string) {
	if !p.enabled {
		return
	}
	if len(line) > p.width-1 {
		line = line[:p.width-1]
	}
	p.Clear()
	p.lastLine = line
	fmt.Fprint(p.out, line)
}

func (p *progressLine) Clear() {
	if p.lastLine != "" {
		fmt.Fprint(p.out, "\r"+strings.Repeat(" ", len(p.lastLine))+"\r")
		p.lastLine = ""
	}
}

func shortenPath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}

	dir, file := splitPath(path)
	if len(file) >= maxLen-3 {
		return "..." + file[len(file)-(maxLen-3):]
	}

	remaining := maxLen - len(file) - 4 // 4 for ".../"
	if remaining > 0 && len(dir) > remaining {
		dir = dir[len(dir)-remaining:]
	}
	return "..." + dir + file
}

func splitPath(path string) (string, string) {
	i := strings.LastIndexAny(path, `/\`)
	return path[:i+1], path[i+1:]
}
