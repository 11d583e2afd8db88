package reporting

import "github.com/deepforge-ai/trainer/internal/models"

// Publisher delivers run status updates to external observers. The pipeline
// treats publishing as best-effort: a failed publish never fails the run.
type Publisher interface {
	PublishStatus(update *models.TrainStatusUpdate) error
	Close()
}

// NopPublisher is used when no reporting backend is configured.
type NopPublisher struct{}

func (NopPublisher) PublishStatus(*models.TrainStatusUpdate) error { return nil }

func (NopPublisher) Close() {}
