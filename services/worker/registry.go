package worker

import (
	"sort"

	"github.com/asergian/beacon-sub001/interfaces"
	"github.com/asergian/beacon-sub001/internal/enum"
)

// Registry maps worker actions to their handlers. The same registry backs the child entrypoint and the
// in-process runner.
type Registry struct {
	handlers map[enum.WorkerAction]interfaces.WorkerHandler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[enum.WorkerAction]interfaces.WorkerHandler)}
}

func (r *Registry) Register(action enum.WorkerAction, handler interfaces.WorkerHandler) *Registry {
	r.handlers[action] = handler
	return r
}

func (r *Registry) Handler(action enum.WorkerAction) (interfaces.WorkerHandler, bool) {
	handler, ok := r.handlers[action]
	return handler, ok
}

func (r *Registry) Actions() []enum.WorkerAction {
	actions := make([]enum.WorkerAction, 0, len(r.handlers))
	for action := range r.handlers {
		actions = append(actions, action)
	}
	sort.Slice(actions, func(i, j int) bool { return actions[i] < actions[j] })
	return actions
}
