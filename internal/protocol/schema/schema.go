package schema

import (
	"fmt"

	"github.com/danmuck/counterctl/internal/protocol/tlv"
	"github.com/rs/zerolog/log"
)

// Message type IDs.
const (
	MsgInvoke uint32 = 1
	MsgResult uint32 = 2
	MsgError  uint32 = 3
	MsgQuery  uint32 = 4
)

// Field IDs.
const (
	FieldSlotID      uint16 = 1
	FieldInstruction uint16 = 2

	FieldPrevious  uint16 = 100
	FieldCounter   uint16 = 101
	FieldOperation uint16 = 102

	FieldErrorCode    uint16 = 200
	FieldErrorMessage uint16 = 201
)

type Requirement struct {
	ID   uint16
	Type uint8
}

type ValidationError struct {
	MessageType uint32
	FieldID     uint16
	Reason      string
}

func (e ValidationError) Error() string {
	if e.FieldID == 0 {
		return fmt.Sprintf("schema: message_type=%d: %s", e.MessageType, e.Reason)
	}
	return fmt.Sprintf("schema: message_type=%d field=%d: %s", e.MessageType, e.FieldID, e.Reason)
}

var requirements = map[uint32][]Requirement{
	MsgInvoke: {
		{FieldSlotID, tlv.TypeString},
		{FieldInstruction, tlv.TypeBytes},
	},
	MsgQuery: {
		{FieldSlotID, tlv.TypeString},
	},
	MsgResult: {
		{FieldSlotID, tlv.TypeString},
		{FieldCounter, tlv.TypeU32},
	},
	MsgError: {
		{FieldErrorCode, tlv.TypeU32},
		{FieldErrorMessage, tlv.TypeString},
	},
}

// Validate enforces required fields and required field types for a message type.
// Unknown fields are ignored.
func Validate(messageType uint32, fields []tlv.Field) error {
	log.Trace().Uint32("message_type", messageType).Int("fields", len(fields)).Msg("schema.Validate")
	reqs, ok := requirements[messageType]
	if !ok {
		log.Debug().Uint32("message_type", messageType).Msg("schema.Validate unknown message_type")
		return ValidationError{MessageType: messageType, Reason: "unknown message_type"}
	}
	for _, req := range reqs {
		f, found := tlv.GetField(fields, req.ID)
		if !found {
			log.Debug().
				Uint32("message_type", messageType).
				Uint16("field_id", req.ID).
				Msg("schema.Validate missing field")
			return ValidationError{MessageType: messageType, FieldID: req.ID, Reason: "missing required field"}
		}
		if f.Type != req.Type {
			log.Debug().
				Uint32("message_type", messageType).
				Uint16("field_id", req.ID).
				Uint8("got", f.Type).
				Uint8("want", req.Type).
				Msg("schema.Validate type mismatch")
			return ValidationError{MessageType: messageType, FieldID: req.ID, Reason: "type mismatch"}
		}
	}
	return nil
}
