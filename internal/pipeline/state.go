package pipeline

// State is the last stage a Runner reached.
type State int32

const (
	StateInit State = iota
	StateLoadEncoder
	StateResolveOffset
	StatePerFrameExtraction
	StateFilterOutliers
	StateComputeDerivedAngles
	StateFitAndEmit
	StateDone
	StateFailed
)

var stateNames = [...]string{
	StateInit:                 "init",
	StateLoadEncoder:          "load_encoder",
	StateResolveOffset:        "resolve_offset",
	StatePerFrameExtraction:   "per_frame_extraction",
	StateFilterOutliers:       "filter_outliers",
	StateComputeDerivedAngles: "compute_derived_angles",
	StateFitAndEmit:           "fit_and_emit",
	StateDone:                 "done",
	StateFailed:               "failed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}
