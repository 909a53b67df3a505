package enum

type WorkerAction string

const (
	WorkerActionProviderList    WorkerAction = "provider.list"
	WorkerActionProviderFetch   WorkerAction = "provider.fetch"
	WorkerActionLinguisticBatch WorkerAction = "linguistic.analyze"
)

func (a WorkerAction) String() string {
	return string(a)
}

type WorkerOutcome string

const (
	WorkerOutcomeSuccess       WorkerOutcome = "success"
	WorkerOutcomeTaskFailed    WorkerOutcome = "task_failed"
	WorkerOutcomeTimeout       WorkerOutcome = "timeout"
	WorkerOutcomeCrashed       WorkerOutcome = "crashed"
	WorkerOutcomeProtocolError WorkerOutcome = "protocol_error"
)

type LinguisticMode string

const (
	LinguisticInProcess LinguisticMode = "inprocess"
	LinguisticWorker    LinguisticMode = "worker"
)
