package errors

import (
	"fmt"
	"sync"

	"github.com/asergian/beacon-sub001/internal/enum"
	"github.com/asergian/beacon-sub001/internal/models"
)

// ItemErrors collects per-message and per-chunk failures of one request. Safe for concurrent use.
type ItemErrors struct {
	mu     sync.Mutex
	errors []models.ItemError
}

func NewItemErrors() *ItemErrors {
	return &ItemErrors{errors: make([]models.ItemError, 0)}
}

func (e *ItemErrors) Add(stage enum.PipelineStage, messageID string, err error) {
	if err == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errors = append(e.errors, models.ItemError{
		Kind:      Kind(err),
		Stage:     stage,
		MessageID: messageID,
		Message:   err.Error(),
	})
}

func (e *ItemErrors) Append(items ...models.ItemError) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errors = append(e.errors, items...)
}

func (e *ItemErrors) HasErrors() bool {
	return e.Len() > 0
}

func (e *ItemErrors) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.errors)
}

// Since returns the errors recorded after the first n.
func (e *ItemErrors) Since(n int) []models.ItemError {
	e.mu.Lock()
	defer e.mu.Unlock()
	if n >= len(e.errors) {
		return []models.ItemError{}
	}
	out := make([]models.ItemError, len(e.errors)-n)
	copy(out, e.errors[n:])
	return out
}

func (e *ItemErrors) Items() []models.ItemError {
	return e.Since(0)
}

func (e *ItemErrors) Error() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.errors) == 0 {
		return "no errors"
	}
	return fmt.Sprintf("%d item error(s), first: %s", len(e.errors), e.errors[0].Message)
}
