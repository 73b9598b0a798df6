package manifest

import (
	"bufio"
	"bytes"
	"strings"
)

const (
	docPrefix    = "//!"
	fenceMarker  = "```"
	manifestLang = "cargo"
)

// Fragment is the raw TOML text of the ```cargo block.
type Fragment struct {
	Text string

	// StartLine is the 1-based source line of the first manifest line.
	// Syntax errors reported by the TOML parser are offset by it.
	StartLine int
}

type scanState int

const (
	stateStart scanState = iota
	stateDoc
	stateManifest
	stateForeignFence
)

// Extract locates the single ```cargo block inside the //! comment run that
// opens the file.
//
// Blank lines and a #! shebang line may precede the run. The run ends at the
// first line that does not start with //!. Fenced blocks with another
// language tag are skipped as a whole.
func Extract(content []byte) (Fragment, error) {
	sc := bufio.NewScanner(bytes.NewReader(content))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var (
		state     = stateStart
		body      strings.Builder
		found     bool
		startLine int
		openLine  int
		lineNo    int
	)

	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), "\r")

		if state == stateStart {
			trimmed := strings.TrimSpace(line)
			if trimmed == "" {
				continue
			}
			if lineNo == 1 && isShebang(line) {
				continue
			}
			if !strings.HasPrefix(line, docPrefix) {
				return Fragment{}, missingf("file does not start with a //! documentation comment")
			}
			state = stateDoc
		}

		text, isDoc := docText(line)
		if !isDoc {
			break
		}

		switch state {
		case stateDoc:
			lang, isFence := fenceOpen(text)
			if !isFence {
				continue
			}
			if lang != manifestLang {
				state = stateForeignFence
				continue
			}
			if found {
				return Fragment{}, fenceErrorf(lineNo, "second ```%s block (first opened at line %d)", manifestLang, openLine)
			}
			found = true
			openLine = lineNo
			startLine = lineNo + 1
			state = stateManifest
		case stateForeignFence:
			if isFenceClose(text) {
				state = stateDoc
			}
		case stateManifest:
			if isFenceClose(text) {
				state = stateDoc
				continue
			}
			if lang, isFence := fenceOpen(text); isFence && lang == manifestLang {
				return Fragment{}, fenceErrorf(lineNo, "```%s block opened inside the block opened at line %d", manifestLang, openLine)
			}
			body.WriteString(manifestLine(line))
			body.WriteByte('\n')
		}
	}
	if err := sc.Err(); err != nil {
		return Fragment{}, fenceErrorf(lineNo, "reading source: %v", err)
	}

	switch {
	case state == stateStart:
		return Fragment{}, missingf("file does not start with a //! documentation comment")
	case state == stateManifest:
		return Fragment{}, fenceErrorf(openLine, "```%s block is not terminated", manifestLang)
	case !found:
		return Fragment{}, missingf("no ```%s block in the leading documentation comment", manifestLang)
	}

	return Fragment{Text: body.String(), StartLine: startLine}, nil
}

func isShebang(line string) bool {
	return strings.HasPrefix(line, "#!") && !strings.HasPrefix(line, "#![")
}

// docText returns the comment text of a //! line with surrounding space removed.
func docText(line string) (string, bool) {
	if !strings.HasPrefix(line, docPrefix) {
		return "", false
	}
	return strings.TrimSpace(line[len(docPrefix):]), true
}

func fenceOpen(text string) (lang string, ok bool) {
	if !strings.HasPrefix(text, fenceMarker) {
		return "", false
	}
	info := strings.TrimSpace(strings.TrimLeft(text, "`"))
	// Info strings such as "cargo,ignore" carry attributes after the language.
	if i := strings.IndexAny(info, ", \t"); i >= 0 {
		info = info[:i]
	}
	return info, true
}

func isFenceClose(text string) bool {
	return strings.HasPrefix(text, fenceMarker) && strings.TrimLeft(text, "`") == ""
}

// manifestLine drops the //! prefix and at most one following space so that
// indentation inside the block survives.
func manifestLine(line string) string {
	rest := line[len(docPrefix):]
	return strings.TrimPrefix(rest, " ")
}
