package pipeline

// StageStatus classifies the outcome of one pipeline stage.
type StageStatus string

const (
	StageOK      StageStatus = "ok"
	StageWarned  StageStatus = "warned"
	StageFailed  StageStatus = "failed"
	StageSkipped StageStatus = "skipped"
)

// StageResult is one stage's outcome in a run. Optional stages record their
// failures here instead of aborting the run.
type StageResult struct {
	Name   string      `json:"name"`
	Status StageStatus `json:"status"`
	Error  string      `json:"error,omitempty"`
	Detail string      `json:"detail,omitempty"`
}

// Result summarizes a whole pipeline run.
type Result struct {
	RunID      string        `json:"run_id"`
	SessionID  string        `json:"session_id"`
	Status     string        `json:"status"` // ok | partial | failed
	Stages     []StageResult `json:"stages"`
	BundlePath string        `json:"bundle_path,omitempty"`
}

func (r *Result) addStage(s StageResult) {
	r.Stages = append(r.Stages, s)
}

// failedStages counts stages that did not complete.
func (r *Result) failedStages() int {
	n := 0
	for _, s := range r.Stages {
		if s.Status == StageFailed {
			n++
		}
	}
	return n
}
