package common

import (
	"github.com/google/uuid"
)

// NewWorkerID generates the identifier a batch run claims jobs under
// Format: worker_<uuid>
func NewWorkerID() string {
	return "worker_" + uuid.New().String()
}
