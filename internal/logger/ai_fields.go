package logger

import (
	"strings"

	"go.uber.org/zap"
)

const (
	// FieldProvider is the structured log field key for the AI provider name.
	FieldProvider = "ai_provider"
	// FieldChatModel is the structured log field key for the completion model identifier.
	FieldChatModel = "chat_model"
	// FieldEmbedModel is the structured log field key for the embedding model identifier.
	FieldEmbedModel = "embed_model"
	// FieldRunID is the structured log field key for the pipeline run identifier.
	FieldRunID = "run_id"
	// FieldPhase is the structured log field key for the pipeline phase.
	FieldPhase = "phase"
)

// StringField describes a string-valued structured logging field.
type StringField struct {
	Key   string
	Value string
}

// StringFields converts the provided key/value pairs into zap fields, trimming
// whitespace and omitting entries with empty keys or values.
func StringFields(fields ...StringField) []zap.Field {
	result := make([]zap.Field, 0, len(fields))
	for _, field := range fields {
		key := strings.TrimSpace(field.Key)
		if key == "" {
			continue
		}

		value := strings.TrimSpace(field.Value)
		if value == "" {
			continue
		}

		result = append(result, zap.String(key, value))
	}

	return result
}

// WithFields returns a logger enriched with the provided fields, falling back
// to a no-op logger when nil is supplied.
func WithFields(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(fields) == 0 {
		return logger
	}
	return logger.With(fields...)
}

// CommonFields builds the shared provider/model fields attached to every AI
// interaction log entry.
func CommonFields(provider, chatModel, embedModel string) []zap.Field {
	return StringFields(
		StringField{Key: FieldProvider, Value: provider},
		StringField{Key: FieldChatModel, Value: chatModel},
		StringField{Key: FieldEmbedModel, Value: embedModel},
	)
}

// WithCommonFields enriches the logger with the shared provider/model fields.
func WithCommonFields(logger *zap.Logger, provider, chatModel, embedModel string) *zap.Logger {
	return WithFields(logger, CommonFields(provider, chatModel, embedModel)...)
}
