package voiceRepository

import (
	"context"
	"time"

	"VoiceAssistant/internal/entity"
	contextPkg "VoiceAssistant/pkg/context"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

type InteractionDB struct {
	ID        string         `db:"id"`
	UserID    string         `db:"user_id"`
	SessionID string         `db:"session_id"`
	Query     string         `db:"query"`
	Type      string         `db:"interpretation_type"`
	ToolIDs   pq.StringArray `db:"tool_ids"`
	Outcome   string         `db:"outcome"`
	Message   string         `db:"message"`
	CreatedAt time.Time      `db:"created_at"`
}

func (r *interactionRepository) CreateInteraction(ctx context.Context, interaction entity.Interaction) error {
	requestID := contextPkg.GetRequestID(ctx)

	argsKV := map[string]interface{}{
		"id":                  interaction.ID,
		"user_id":             interaction.UserID,
		"session_id":          interaction.SessionID,
		"query":               interaction.Query,
		"interpretation_type": interaction.Type,
		"tool_ids":            pq.StringArray(interaction.ToolIDs),
		"outcome":             interaction.Outcome,
		"message":             interaction.Message,
		"created_at":          interaction.CreatedAt,
	}

	query, args, err := sqlx.Named(queryCreateInteraction, argsKV)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("CreateInteraction named query preparation err")
		return err
	}
	query = r.q.Rebind(query)

	if _, err := r.q.ExecContext(ctx, query, args...); err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("CreateInteraction execution err")
		return err
	}

	return nil
}

func (r *interactionRepository) GetInteractionsByUserID(ctx context.Context, userID string, limit, offset int) ([]entity.Interaction, int, error) {
	requestID := contextPkg.GetRequestID(ctx)
	var rows []InteractionDB
	var total int

	countQuery, countArgs, err := sqlx.Named(queryCountInteractionsByUserID, map[string]interface{}{
		"user_id": userID,
	})
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("CountInteractionsByUserID named query preparation err")
		return nil, 0, err
	}
	countQuery = r.q.Rebind(countQuery)

	if err := r.q.QueryRowxContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("CountInteractionsByUserID execution err")
		return nil, 0, err
	}

	argsKV := map[string]interface{}{
		"user_id": userID,
		"limit":   limit,
		"offset":  offset,
	}

	query, args, err := sqlx.Named(queryGetInteractionsByUserID, argsKV)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("GetInteractionsByUserID named query preparation err")
		return nil, 0, err
	}
	query = r.q.Rebind(query)

	if err := r.q.SelectContext(ctx, &rows, query, args...); err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("GetInteractionsByUserID execution err")
		return nil, 0, err
	}

	interactions := make([]entity.Interaction, 0, len(rows))
	for _, row := range rows {
		interactions = append(interactions, r.makeInteraction(row))
	}

	return interactions, total, nil
}

func (r *interactionRepository) makeInteraction(row InteractionDB) entity.Interaction {
	toolIDs := []string(row.ToolIDs)
	if toolIDs == nil {
		toolIDs = []string{}
	}

	return entity.Interaction{
		ID:        row.ID,
		UserID:    row.UserID,
		SessionID: row.SessionID,
		Query:     row.Query,
		Type:      row.Type,
		ToolIDs:   toolIDs,
		Outcome:   row.Outcome,
		Message:   row.Message,
		CreatedAt: row.CreatedAt,
	}
}
