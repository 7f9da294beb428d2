package domain

// MessageLevel grades a mutation report message.
type MessageLevel string

// Report message levels. Error strictly blocks persistence.
const (
	LevelDebug   MessageLevel = "debug"
	LevelInfo    MessageLevel = "info"
	LevelWarning MessageLevel = "warning"
	LevelError   MessageLevel = "error"
)

// Message codes emitted by the mutation planner.
const (
	CodeOverlappingRoles   = "overlapping_roles"
	CodeSampleSetFull      = "sampleset_full"
	CodeMismatchedPrograms = "mismatched_programs"
	CodeMismatchedBuilders = "mismatched_builders"
	CodeMismatchedMetros   = "mismatched_metros"
	CodeMetroUnsupported   = "metro_unsupported"
	CodeUsingMetro         = "using_metro"
	CodeNoTestHomes        = "no_test_homes"
	CodeNoSampledHomes     = "no_sampled_homes"
	CodeOnlySampledHomes   = "only_sampled_homes"
	CodeOnlyTestHomes      = "only_test_homes"
	CodeUnknownEnrollment  = "unknown_enrollment"
)

// ReportMessage is one finding produced while validating a proposed mutation.
type ReportMessage struct {
	Level   MessageLevel `json:"level"`
	Message string       `json:"message"`
	Code    string       `json:"code,omitempty"`
}

// MutationPlan captures the set arithmetic of a proposed membership change.
// Moved maps enrollment ids onto the sample set they are currently active in.
type MutationPlan struct {
	Unchanged []string          `json:"unchanged"`
	Added     []string          `json:"added"`
	Removed   []string          `json:"removed"`
	Moved     map[string]string `json:"moved"`
}

// MutationReport is returned by every planner invocation, whether or not the
// commit happened, so a UI can explain exactly why a composition was rejected.
type MutationReport struct {
	SampleSetID string          `json:"sample_set_id,omitempty"`
	Plan        MutationPlan    `json:"plan"`
	ProgramID   *string         `json:"program_id"`
	BuilderID   *string         `json:"builder_id"`

	IsMetroSampled bool `json:"is_metro_sampled"`
	IsCertifiable  bool `json:"is_certifiable"`
	Committed      bool `json:"committed"`

	Messages []ReportMessage `json:"messages"`
}

// Append records a finding on the report.
func (r *MutationReport) Append(level MessageLevel, code, message string) {
	r.Messages = append(r.Messages, ReportMessage{Level: level, Message: message, Code: code})
}

// HasErrors reports whether any error-level finding is present.
func (r MutationReport) HasErrors() bool {
	for _, m := range r.Messages {
		if m.Level == LevelError {
			return true
		}
	}
	return false
}

// MessagesAt returns the messages recorded at the given level, in order.
func (r MutationReport) MessagesAt(level MessageLevel) []ReportMessage {
	var out []ReportMessage
	for _, m := range r.Messages {
		if m.Level == level {
			out = append(out, m)
		}
	}
	return out
}

// CertifyReport collects the per-level findings of a certification run.
type CertifyReport struct {
	Debug   []string `json:"debug"`
	Info    []string `json:"info"`
	Warning []string `json:"warning"`
	Error   []string `json:"error"`
}
