package voiceRepository

const (
	queryCreateInteraction = `
		INSERT INTO voice_interactions (
			id, user_id, session_id, query, interpretation_type,
			tool_ids, outcome, message, created_at
		) VALUES (
			:id, :user_id, :session_id, :query, :interpretation_type,
			:tool_ids, :outcome, :message, :created_at
		)
	`

	queryGetInteractionsByUserID = `
		SELECT
			id, user_id, session_id, query, interpretation_type,
			tool_ids, outcome, message, created_at
		FROM voice_interactions
		WHERE user_id = :user_id
		ORDER BY created_at DESC
		LIMIT :limit OFFSET :offset
	`

	queryCountInteractionsByUserID = `
		SELECT COUNT(*)
		FROM voice_interactions
		WHERE user_id = :user_id
	`
)
