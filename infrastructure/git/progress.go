package git

import (
	"bytes"
	"strings"
)

// Stage is one phase of git's progress output.
type Stage int

// Stages in rendering order.
const (
	StageCloning Stage = iota
	StageEnumerating
	StageCounting
	StageCompressing
	StageTotal
	StageReceiving
	StageResolving
	StageUpdating
	stageCount
)

var stageNames = [stageCount]string{
	"cloning", "enumerating", "counting", "compressing",
	"total", "receiving", "resolving", "updating",
}

// String implements fmt.Stringer.
func (s Stage) String() string {
	if s < 0 || s >= stageCount {
		return "unknown"
	}
	return stageNames[s]
}

// StageClassifier maps one progress line to the stage it reports on.
type StageClassifier interface {
	Classify(line string) (Stage, bool)
}

type marker struct {
	text  string
	stage Stage
}

// MarkerClassifier recognises git's English progress messages by substring.
type MarkerClassifier struct {
	markers []marker
}

// NewMarkerClassifier creates the default classifier. Git must run with
// LC_ALL=C for the markers to match.
func NewMarkerClassifier() MarkerClassifier {
	return MarkerClassifier{markers: []marker{
		{"remote: Enumerating", StageEnumerating},
		{"remote: Counting", StageCounting},
		{"remote: Compressing", StageCompressing},
		{"remote: Total", StageTotal},
		{"Cloning", StageCloning},
		{"Receiving", StageReceiving},
		{"Resolving", StageResolving},
		{"Updating", StageUpdating},
	}}
}

// Classify implements StageClassifier.
func (c MarkerClassifier) Classify(line string) (Stage, bool) {
	for _, m := range c.markers {
		if strings.Contains(line, m.text) {
			return m.stage, true
		}
	}
	return 0, false
}

// Progress keeps the latest line per stage.
type Progress struct {
	header     string
	slots      [stageCount]string
	classifier StageClassifier
}

// NewProgress creates a Progress. The header, when set, is rendered first.
func NewProgress(header string, classifier StageClassifier) *Progress {
	if classifier == nil {
		classifier = NewMarkerClassifier()
	}
	return &Progress{header: header, classifier: classifier}
}

// Feed stores line in its stage slot and reports whether anything changed.
func (p *Progress) Feed(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	stage, ok := p.classifier.Classify(line)
	if !ok || p.slots[stage] == line {
		return false
	}
	p.slots[stage] = line
	return true
}

// Stage returns the latest line recorded for s.
func (p *Progress) Stage(s Stage) string {
	if s < 0 || s >= stageCount {
		return ""
	}
	return p.slots[s]
}

// String renders the header and every non-empty stage in fixed order, one
// per line.
func (p *Progress) String() string {
	var b strings.Builder
	if p.header != "" {
		b.WriteString(p.header)
		b.WriteByte('\n')
	}
	for _, line := range p.slots {
		if line == "" {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

// scanProgressLines is a bufio.SplitFunc that ends a token at '\r' or '\n'.
// Git redraws a progress line with '\r' and finishes it with '\n'.
func scanProgressLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
