package mapper

import (
	"support-chat-be/internal/entity"
	"support-chat-be/internal/model"

	"gorm.io/datatypes"
)

type ConversationMapper struct{}

func NewConversationMapper() *ConversationMapper {
	return &ConversationMapper{}
}

// Conversation Mappers

func (m *ConversationMapper) ConversationToEntity(c *model.Conversation) *entity.Conversation {
	if c == nil {
		return nil
	}

	return &entity.Conversation{
		Id:               c.Id,
		ParticipantName:  c.ParticipantName,
		ParticipantEmail: c.ParticipantEmail,
		Team:             c.Team,
		Status:           c.Status,
		AssignedAgentId:  c.AssignedAgentId,
		IsRead:           c.IsRead,
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
	}
}

func (m *ConversationMapper) ConversationToModel(c *entity.Conversation) *model.Conversation {
	if c == nil {
		return nil
	}

	return &model.Conversation{
		Id:               c.Id,
		ParticipantName:  c.ParticipantName,
		ParticipantEmail: c.ParticipantEmail,
		Team:             c.Team,
		Status:           c.Status,
		AssignedAgentId:  c.AssignedAgentId,
		IsRead:           c.IsRead,
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
	}
}

// Message Mappers

func (m *ConversationMapper) MessageToEntity(msg *model.Message) *entity.Message {
	if msg == nil {
		return nil
	}

	return &entity.Message{
		Id:             msg.Id,
		ConversationId: msg.ConversationId,
		Text:           msg.Text,
		Sender:         msg.Sender,
		CreatedAt:      msg.CreatedAt,
	}
}

func (m *ConversationMapper) MessageToModel(msg *entity.Message) *model.Message {
	if msg == nil {
		return nil
	}

	return &model.Message{
		Id:             msg.Id,
		ConversationId: msg.ConversationId,
		Text:           msg.Text,
		Sender:         msg.Sender,
		CreatedAt:      msg.CreatedAt,
	}
}

// Event Mappers

func (m *ConversationMapper) EventToEntity(e *model.ConversationEvent) *entity.ConversationEvent {
	if e == nil {
		return nil
	}

	return &entity.ConversationEvent{
		Id:             e.Id,
		ConversationId: e.ConversationId,
		Seq:            e.Seq,
		EventType:      e.EventType,
		Payload:        []byte(e.Payload),
		CreatedAt:      e.CreatedAt,
	}
}

func (m *ConversationMapper) EventToModel(e *entity.ConversationEvent) *model.ConversationEvent {
	if e == nil {
		return nil
	}

	return &model.ConversationEvent{
		Id:             e.Id,
		ConversationId: e.ConversationId,
		Seq:            e.Seq,
		EventType:      e.EventType,
		Payload:        datatypes.JSON(e.Payload),
		CreatedAt:      e.CreatedAt,
	}
}
