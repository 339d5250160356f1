package voiceService

import (
	"context"

	"VoiceAssistant/internal/api/voice"
	"VoiceAssistant/internal/entity"
	contextPkg "VoiceAssistant/pkg/context"

	"github.com/sirupsen/logrus"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

func (s *voiceService) OpenSession(ctx context.Context, params SessionParams) (*Session, error) {
	requestID := contextPkg.GetRequestID(ctx)

	if params.Assistant == nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"user_id":    params.User.ID,
		}).Error("Session opened without an assistant client")
		return nil, voice.ErrInvalidSession
	}

	var snapshot *entity.SessionSnapshot
	if s.snapshots != nil && params.User.ID != "" {
		restored, err := s.snapshots.Load(ctx, params.User.ID)
		if err != nil {
			s.log.WithFields(logrus.Fields{
				"request_id": requestID,
				"user_id":    params.User.ID,
				"error":      err.Error(),
			}).Warn("Failed to restore session snapshot, starting fresh")
		} else {
			snapshot = restored
		}
	}

	session := NewSession(s.config, SessionDeps{
		Log:        s.log,
		Classifier: s.classifier,
		Recorder:   params.Recorder,
		Narrator:   params.Narrator,
		Assistant:  params.Assistant,
		Snapshots:  s.snapshots,
		Journal:    s.journal,
		Utils:      s.utils,
		User:       params.User,
	}, snapshot)

	s.log.WithFields(logrus.Fields{
		"request_id": requestID,
		"user_id":    params.User.ID,
		"restored":   snapshot != nil,
	}).Info("Voice session opened")

	return session, nil
}

func (s *voiceService) Classify(ctx context.Context, req voice.ClassifyRequest) (*voice.ClassifyResponse, error) {
	classification := s.classifier.Classify(req.Text)
	entities := s.classifier.ExtractEntities(req.Text, classification.Intent)
	validation := s.classifier.Validate(classification.Intent, entities)

	res := &voice.ClassifyResponse{
		Classification: classification,
		Entities:       entities,
		Validation:     validation,
	}
	if validation.IsValid {
		res.ConfirmationMessage = s.classifier.GenerateConfirmationMessage(classification.Intent, validation.Entities)
	}

	s.log.WithFields(logrus.Fields{
		"request_id": contextPkg.GetRequestID(ctx),
		"intent":     classification.Intent,
		"confidence": classification.Confidence,
		"valid":      validation.IsValid,
	}).Debug("Utterance classified")

	return res, nil
}

func (s *voiceService) GetHistory(ctx context.Context, userID string, limit, offset int) ([]entity.Interaction, int, error) {
	requestID := contextPkg.GetRequestID(ctx)

	if s.journal == nil {
		return nil, 0, voice.ErrHistoryUnavailable
	}

	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}

	interactions, total, err := s.journal.List(ctx, userID, limit, offset)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"user_id":    userID,
			"error":      err.Error(),
		}).Error("Failed to list interactions")
		return nil, 0, err
	}

	return interactions, total, nil
}
