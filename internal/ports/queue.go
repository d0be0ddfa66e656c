package ports

import (
	"context"

	"movefines/internal/models"
)

type Queue interface {
	CreateElement(ctx context.Context, queueName, reference string, data []byte, createdBy string) (models.QueueElement, error)
	ListElements(ctx context.Context, filter models.QueueFilter) ([]models.QueueElement, error)
	SetStatus(ctx context.Context, id string, status models.QueueStatus, message []byte) error
	DeleteReference(ctx context.Context, queueName, reference string) (int64, error)
}

type StepJournal interface {
	Record(ctx context.Context, entry models.StepEntry)
}
