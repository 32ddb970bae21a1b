package broker

import (
	"context"

	"github.com/jmolinaso/voxbridge/internal/classify"
	"github.com/jmolinaso/voxbridge/internal/workflow"
)

// StepDispatcher adapts a [*Broker] to the workflow engine's dispatcher
// contract, routing each step to the tool serving its category.
type StepDispatcher struct {
	Broker *Broker
}

var _ workflow.Dispatcher = StepDispatcher{}

// Dispatch routes one workflow step command.
func (s StepDispatcher) Dispatch(ctx context.Context, category classify.Category, command string, params map[string]string) (map[string]any, error) {
	return s.Broker.DispatchCategory(ctx, category, command, params)
}
