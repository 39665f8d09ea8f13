package session

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/danmuck/counterctl/internal/protocol/frame"
	"github.com/danmuck/counterctl/internal/protocol/schema"
	"github.com/danmuck/counterctl/internal/protocol/tlv"
)

// Invoke asks counterd to run one encoded instruction against a slot.
type Invoke struct {
	SlotID      string
	Instruction []byte
}

// Validate rejects envelopes that can never be served.
func (i Invoke) Validate() error {
	if strings.TrimSpace(i.SlotID) == "" {
		return fmt.Errorf("invoke missing slot_id")
	}
	return nil
}

// Query asks counterd for the current counter of a slot.
type Query struct {
	SlotID string
}

func (q Query) Validate() error {
	if strings.TrimSpace(q.SlotID) == "" {
		return fmt.Errorf("query missing slot_id")
	}
	return nil
}

// Result is the response to a successful invoke or query.
type Result struct {
	SlotID    string
	Previous  uint32
	Counter   uint32
	Operation string
}

func (r Result) Validate() error {
	if strings.TrimSpace(r.SlotID) == "" {
		return fmt.Errorf("result missing slot_id")
	}
	return nil
}

// Failure is the response to a rejected request. Code carries the host
// error code.
type Failure struct {
	Code    uint32
	Message string
}

func (f Failure) Validate() error {
	if f.Code == 0 {
		return fmt.Errorf("failure missing code")
	}
	return nil
}

// Error lets a Failure travel as a plain error value.
func (f Failure) Error() string {
	return fmt.Sprintf("remote error %d: %s", f.Code, f.Message)
}

func EncodeInvokeFrame(messageID uint64, invoke Invoke) ([]byte, error) {
	if err := invoke.Validate(); err != nil {
		return nil, err
	}
	fields := []tlv.Field{
		tlv.String(schema.FieldSlotID, invoke.SlotID),
		tlv.Bytes(schema.FieldInstruction, invoke.Instruction),
	}
	return encodeFrame(messageID, schema.MsgInvoke, 0, fields)
}

func DecodeInvokeFrame(f frame.Frame) (Invoke, error) {
	fields, err := decodeFields(f, schema.MsgInvoke)
	if err != nil {
		return Invoke{}, err
	}
	instr, _ := tlv.GetField(fields, schema.FieldInstruction)
	return Invoke{
		SlotID:      getRequiredString(fields, schema.FieldSlotID),
		Instruction: instr.Value,
	}, nil
}

func EncodeQueryFrame(messageID uint64, query Query) ([]byte, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}
	fields := []tlv.Field{tlv.String(schema.FieldSlotID, query.SlotID)}
	return encodeFrame(messageID, schema.MsgQuery, 0, fields)
}

func DecodeQueryFrame(f frame.Frame) (Query, error) {
	fields, err := decodeFields(f, schema.MsgQuery)
	if err != nil {
		return Query{}, err
	}
	return Query{SlotID: getRequiredString(fields, schema.FieldSlotID)}, nil
}

func EncodeResultFrame(messageID uint64, result Result) ([]byte, error) {
	if err := result.Validate(); err != nil {
		return nil, err
	}
	fields := []tlv.Field{
		tlv.String(schema.FieldSlotID, result.SlotID),
		tlv.U32(schema.FieldCounter, result.Counter),
		tlv.U32(schema.FieldPrevious, result.Previous),
	}
	if v := strings.TrimSpace(result.Operation); v != "" {
		fields = append(fields, tlv.String(schema.FieldOperation, v))
	}
	return encodeFrame(messageID, schema.MsgResult, frame.FlagIsResponse, fields)
}

func DecodeResultFrame(f frame.Frame) (Result, error) {
	fields, err := decodeFields(f, schema.MsgResult)
	if err != nil {
		return Result{}, err
	}
	counterField, _ := tlv.GetField(fields, schema.FieldCounter)
	counter, err := counterField.Uint32()
	if err != nil {
		return Result{}, err
	}
	result := Result{
		SlotID:    getRequiredString(fields, schema.FieldSlotID),
		Counter:   counter,
		Operation: getOptionalString(fields, schema.FieldOperation),
	}
	if prev, ok := tlv.GetField(fields, schema.FieldPrevious); ok {
		if result.Previous, err = prev.Uint32(); err != nil {
			return Result{}, err
		}
	}
	return result, nil
}

func EncodeFailureFrame(messageID uint64, failure Failure) ([]byte, error) {
	if err := failure.Validate(); err != nil {
		return nil, err
	}
	fields := []tlv.Field{
		tlv.U32(schema.FieldErrorCode, failure.Code),
		tlv.String(schema.FieldErrorMessage, failure.Message),
	}
	return encodeFrame(messageID, schema.MsgError, frame.FlagIsResponse|frame.FlagIsError, fields)
}

func DecodeFailureFrame(f frame.Frame) (Failure, error) {
	fields, err := decodeFields(f, schema.MsgError)
	if err != nil {
		return Failure{}, err
	}
	codeField, _ := tlv.GetField(fields, schema.FieldErrorCode)
	code, err := codeField.Uint32()
	if err != nil {
		return Failure{}, err
	}
	return Failure{
		Code:    code,
		Message: getRequiredString(fields, schema.FieldErrorMessage),
	}, nil
}

func encodeFrame(messageID uint64, messageType uint32, flags uint32, fields []tlv.Field) ([]byte, error) {
	if err := schema.Validate(messageType, fields); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	err := frame.WriteFrame(&buf, frame.Frame{
		Header: frame.Header{
			MessageID:   messageID,
			MessageType: messageType,
			Flags:       flags,
		},
		Payload: tlv.EncodeFields(fields),
	}, frame.DefaultLimits())
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeFields(f frame.Frame, messageType uint32) ([]tlv.Field, error) {
	if f.Header.MessageType != messageType {
		return nil, fmt.Errorf("session: message_type=%d, want %d", f.Header.MessageType, messageType)
	}
	fields, err := tlv.DecodeFields(f.Payload)
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(messageType, fields); err != nil {
		return nil, err
	}
	return fields, nil
}

func getRequiredString(fields []tlv.Field, id uint16) string {
	f, _ := tlv.GetField(fields, id)
	return string(f.Value)
}

func getOptionalString(fields []tlv.Field, id uint16) string {
	f, ok := tlv.GetField(fields, id)
	if !ok {
		return ""
	}
	return string(f.Value)
}
