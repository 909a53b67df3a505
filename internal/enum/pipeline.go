package enum

type PipelineState string

const (
	StateContextSetup PipelineState = "context_setup"
	StateCacheCheck   PipelineState = "cache_check"
	StateFetching     PipelineState = "fetching"
	StateParsing      PipelineState = "parsing"
	StateAnalyzing    PipelineState = "analyzing"
	StateFiltering    PipelineState = "filtering"
	StateDone         PipelineState = "done"
	StateFailed       PipelineState = "failed"
)

func (s PipelineState) String() string {
	return string(s)
}

func (s PipelineState) IsTerminal() bool {
	return s == StateDone || s == StateFailed
}

// pipelineTransitions lists the legal successors of every state. Fetching through Filtering repeat once
// per fetched batch; every non-terminal state may fail.
var pipelineTransitions = map[PipelineState][]PipelineState{
	StateContextSetup: {StateCacheCheck},
	StateCacheCheck:   {StateAnalyzing, StateFetching, StateDone},
	StateFetching:     {StateParsing, StateDone},
	StateParsing:      {StateAnalyzing, StateFetching, StateDone},
	StateAnalyzing:    {StateFiltering},
	StateFiltering:    {StateFetching, StateDone},
}

func (s PipelineState) CanTransitionTo(next PipelineState) bool {
	if next == StateFailed {
		return !s.IsTerminal()
	}
	for _, allowed := range pipelineTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type PipelineEventType string

const (
	EventState    PipelineEventType = "state"
	EventCached   PipelineEventType = "cached"
	EventMessages PipelineEventType = "messages"
	EventStats    PipelineEventType = "stats"
)

func (t PipelineEventType) String() string {
	return string(t)
}

type PipelineStage string

const (
	StageSetup    PipelineStage = "setup"
	StageCache    PipelineStage = "cache"
	StageFetch    PipelineStage = "fetch"
	StageParse    PipelineStage = "parse"
	StageAnalyze  PipelineStage = "analyze"
	StageActivity PipelineStage = "activity"
)
