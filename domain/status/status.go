// Package status holds the lifecycle state of branch analyses.
package status

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind discriminates the Status union.
type Kind string

// Kind values.
const (
	KindReady      Kind = "ready"
	KindInProgress Kind = "in_progress"
	KindCloned     Kind = "cloned"
	KindDone       Kind = "done"
	KindPrevious   Kind = "previous"
	KindError      Kind = "error"
)

// String implements fmt.Stringer.
func (k Kind) String() string { return string(k) }

// Status is the observable state of one reference.
//
// Only the fields relevant to the kind are populated: progress for
// InProgress, report for Done and Previous, asOf and commit for Previous,
// message for Error.
type Status struct {
	kind     Kind
	progress string
	report   []byte
	asOf     time.Time
	commit   string
	message  string
}

// Ready marks a request that has been accepted and not yet started.
func Ready() Status { return Status{kind: KindReady} }

// InProgress carries the rendered progress text of a running subprocess.
func InProgress(progress string) Status {
	return Status{kind: KindInProgress, progress: progress}
}

// Cloned marks a branch that has been materialized and awaits analysis.
func Cloned() Status { return Status{kind: KindCloned} }

// Done carries the finished report.
func Done(report []byte) Status {
	return Status{kind: KindDone, report: cloneBytes(report)}
}

// Previous carries a stored report that is older than the remote head.
func Previous(asOf time.Time, commit string, report []byte) Status {
	return Status{kind: KindPrevious, asOf: asOf, commit: commit, report: cloneBytes(report)}
}

// Failed carries a human-readable failure message.
func Failed(message string) Status {
	return Status{kind: KindError, message: message}
}

// Kind returns the discriminator.
func (s Status) Kind() Kind { return s.kind }

// Progress returns the progress text for InProgress.
func (s Status) Progress() string { return s.progress }

// Report returns a copy of the report for Done and Previous.
func (s Status) Report() []byte { return cloneBytes(s.report) }

// AsOf returns when a Previous report was written.
func (s Status) AsOf() time.Time { return s.asOf }

// Commit returns the commit a Previous report applies to.
func (s Status) Commit() string { return s.commit }

// Message returns the failure message for Error.
func (s Status) Message() string { return s.message }

// IsTerminal reports whether the status ends a processing cycle.
func (s Status) IsTerminal() bool {
	return s.kind == KindDone || s.kind == KindError
}

// IsZero reports whether the status was never assigned.
func (s Status) IsZero() bool { return s.kind == "" }

// Equal compares two statuses by value.
func (s Status) Equal(other Status) bool {
	return s.kind == other.kind &&
		s.progress == other.progress &&
		string(s.report) == string(other.report) &&
		s.asOf.Equal(other.asOf) &&
		s.commit == other.commit &&
		s.message == other.message
}

// String renders a short description for logs.
func (s Status) String() string {
	switch s.kind {
	case KindInProgress:
		return fmt.Sprintf("%s(%d bytes of progress)", s.kind, len(s.progress))
	case KindDone:
		return fmt.Sprintf("%s(%d bytes)", s.kind, len(s.report))
	case KindPrevious:
		return fmt.Sprintf("%s(%s @ %s)", s.kind, s.commit, s.asOf.Format(time.RFC3339))
	case KindError:
		return fmt.Sprintf("%s(%s)", s.kind, s.message)
	default:
		return string(s.kind)
	}
}

type statusJSON struct {
	Kind     Kind       `json:"kind"`
	Progress string     `json:"progress,omitempty"`
	Report   *string    `json:"report,omitempty"`
	AsOf     *time.Time `json:"as_of,omitempty"`
	Commit   string     `json:"commit,omitempty"`
	Message  string     `json:"message,omitempty"`
}

// MarshalJSON renders {"kind": ..., ...} with the kind-specific fields.
func (s Status) MarshalJSON() ([]byte, error) {
	out := statusJSON{Kind: s.kind}
	switch s.kind {
	case KindInProgress:
		out.Progress = s.progress
	case KindDone:
		report := string(s.report)
		out.Report = &report
	case KindPrevious:
		report := string(s.report)
		asOf := s.asOf.UTC()
		out.Report = &report
		out.AsOf = &asOf
		out.Commit = s.commit
	case KindError:
		out.Message = s.message
	}
	return json.Marshal(out)
}

// UnmarshalJSON parses the form produced by MarshalJSON.
func (s *Status) UnmarshalJSON(data []byte) error {
	var in statusJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("decode status: %w", err)
	}
	var report []byte
	if in.Report != nil {
		report = []byte(*in.Report)
	}
	switch in.Kind {
	case KindReady:
		*s = Ready()
	case KindInProgress:
		*s = InProgress(in.Progress)
	case KindCloned:
		*s = Cloned()
	case KindDone:
		*s = Done(report)
	case KindPrevious:
		var asOf time.Time
		if in.AsOf != nil {
			asOf = *in.AsOf
		}
		*s = Previous(asOf, in.Commit, report)
	case KindError:
		*s = Failed(in.Message)
	default:
		return fmt.Errorf("decode status: unknown kind %q", in.Kind)
	}
	return nil
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
