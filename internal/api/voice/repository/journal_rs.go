package voiceRepository

import (
	"context"

	"VoiceAssistant/internal/entity"
)

// Journal records finished turns through the repository client.
type Journal struct {
	repo Repository
}

func NewJournal(repo Repository) *Journal {
	return &Journal{repo: repo}
}

func (j *Journal) Record(ctx context.Context, interaction entity.Interaction) error {
	client, err := j.repo.NewClient(false)
	if err != nil {
		return err
	}

	return client.Interactions.CreateInteraction(ctx, interaction)
}

func (j *Journal) List(ctx context.Context, userID string, limit, offset int) ([]entity.Interaction, int, error) {
	client, err := j.repo.NewClient(false)
	if err != nil {
		return nil, 0, err
	}

	return client.Interactions.GetInteractionsByUserID(ctx, userID, limit, offset)
}
