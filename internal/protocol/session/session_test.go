package session

import (
	"bufio"
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/counterctl/internal/protocol/frame"
	"github.com/danmuck/counterctl/internal/protocol/schema"
	"github.com/danmuck/counterctl/internal/protocol/tlv"
	"github.com/danmuck/counterctl/internal/testutil/testlog"
)

func TestNewBackOffDeterministicNoJitter(t *testing.T) {
	testlog.Start(t)
	b := NewBackOff(BackoffConfig{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
		Jitter:       false,
	})
	want := []time.Duration{
		250 * time.Millisecond,
		500 * time.Millisecond,
		time.Second,
		2 * time.Second,
		4 * time.Second,
		5 * time.Second,
		5 * time.Second,
	}
	for i, w := range want {
		if got := b.NextBackOff(); got != w {
			t.Fatalf("attempt%d: expected %v, got %v", i+1, w, got)
		}
	}
}

func TestNewBackOffJitterBounds(t *testing.T) {
	testlog.Start(t)
	b := NewBackOff(DefaultConfig().Backoff)
	for i := 0; i < 50; i++ {
		b.Reset()
		got := b.NextBackOff()
		if got < 125*time.Millisecond || got > 375*time.Millisecond {
			t.Fatalf("jittered delay out of range: %v", got)
		}
	}
}

func TestValidateReportsFirstInvalidDuration(t *testing.T) {
	testlog.Start(t)
	cfg := Config{ConnectTimeout: -time.Second, ReadTimeout: -time.Second, IdleTimeout: -time.Second}
	for i := 0; i < 20; i++ {
		err := cfg.Validate()
		if err == nil || !strings.Contains(err.Error(), "connect_timeout") {
			t.Fatalf("expected connect_timeout error, got %v", err)
		}
	}
}

func TestConfigWithDefaults(t *testing.T) {
	testlog.Start(t)
	cfg := Config{ReadTimeout: time.Second}.WithDefaults()
	if cfg.ReadTimeout != time.Second {
		t.Fatalf("explicit read timeout overwritten: %v", cfg.ReadTimeout)
	}
	if cfg.ConnectTimeout != DefaultConfig().ConnectTimeout {
		t.Fatalf("connect timeout not defaulted: %v", cfg.ConnectTimeout)
	}
	if cfg.Backoff.InitialDelay != 250*time.Millisecond {
		t.Fatalf("backoff not defaulted: %+v", cfg.Backoff)
	}
	if err := (Config{WriteTimeout: -time.Second}).Validate(); err == nil {
		t.Fatalf("expected negative timeout to fail validation")
	}
}

func readOne(t *testing.T, raw []byte) frame.Frame {
	t.Helper()
	f, err := frame.ReadFrame(bufio.NewReader(bytes.NewReader(raw)), frame.DefaultLimits())
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return f
}

func TestInvokeFrameRoundTrip(t *testing.T) {
	testlog.Start(t)
	raw, err := EncodeInvokeFrame(7, Invoke{SlotID: "main", Instruction: []byte{0, 10, 0, 0, 0}})
	if err != nil {
		t.Fatalf("encode invoke: %v", err)
	}
	f := readOne(t, raw)
	if f.Header.MessageID != 7 || f.Header.MessageType != schema.MsgInvoke {
		t.Fatalf("unexpected header: %+v", f.Header)
	}
	if f.Header.Flags&frame.FlagIsResponse != 0 {
		t.Fatalf("request frame flagged as response")
	}
	got, err := DecodeInvokeFrame(f)
	if err != nil {
		t.Fatalf("decode invoke: %v", err)
	}
	if got.SlotID != "main" || !bytes.Equal(got.Instruction, []byte{0, 10, 0, 0, 0}) {
		t.Fatalf("unexpected invoke: %+v", got)
	}
}

func TestInvokeFrameCarriesMalformedInstructionVerbatim(t *testing.T) {
	testlog.Start(t)
	raw, err := EncodeInvokeFrame(1, Invoke{SlotID: "main", Instruction: nil})
	if err != nil {
		t.Fatalf("encode invoke: %v", err)
	}
	got, err := DecodeInvokeFrame(readOne(t, raw))
	if err != nil {
		t.Fatalf("decode invoke: %v", err)
	}
	if len(got.Instruction) != 0 {
		t.Fatalf("expected empty instruction, got %v", got.Instruction)
	}
}

func TestQueryFrameRoundTrip(t *testing.T) {
	testlog.Start(t)
	raw, err := EncodeQueryFrame(3, Query{SlotID: "a"})
	if err != nil {
		t.Fatalf("encode query: %v", err)
	}
	got, err := DecodeQueryFrame(readOne(t, raw))
	if err != nil {
		t.Fatalf("decode query: %v", err)
	}
	if got.SlotID != "a" {
		t.Fatalf("unexpected query: %+v", got)
	}
}

func TestResultFrameRoundTrip(t *testing.T) {
	testlog.Start(t)
	in := Result{SlotID: "main", Previous: 10, Counter: 7, Operation: "decrement(3)"}
	raw, err := EncodeResultFrame(9, in)
	if err != nil {
		t.Fatalf("encode result: %v", err)
	}
	f := readOne(t, raw)
	if f.Header.Flags&frame.FlagIsResponse == 0 || f.Header.Flags&frame.FlagIsError != 0 {
		t.Fatalf("unexpected flags: %#x", f.Header.Flags)
	}
	got, err := DecodeResultFrame(f)
	if err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if got != in {
		t.Fatalf("expected %+v, got %+v", in, got)
	}
}

func TestFailureFrameRoundTrip(t *testing.T) {
	testlog.Start(t)
	in := Failure{Code: 2, Message: "unknown instruction tag 9"}
	raw, err := EncodeFailureFrame(4, in)
	if err != nil {
		t.Fatalf("encode failure: %v", err)
	}
	f := readOne(t, raw)
	if f.Header.Flags&frame.FlagIsError == 0 {
		t.Fatalf("expected error flag, got %#x", f.Header.Flags)
	}
	got, err := DecodeFailureFrame(f)
	if err != nil {
		t.Fatalf("decode failure: %v", err)
	}
	if got != in {
		t.Fatalf("expected %+v, got %+v", in, got)
	}
}

func TestEncodeRejectsInvalidEnvelopes(t *testing.T) {
	testlog.Start(t)
	if _, err := EncodeInvokeFrame(1, Invoke{SlotID: " "}); err == nil {
		t.Fatalf("expected invoke without slot to fail")
	}
	if _, err := EncodeQueryFrame(1, Query{}); err == nil {
		t.Fatalf("expected query without slot to fail")
	}
	if _, err := EncodeFailureFrame(1, Failure{Message: "x"}); err == nil {
		t.Fatalf("expected failure without code to fail")
	}
}

func TestDecodeRejectsWrongMessageType(t *testing.T) {
	testlog.Start(t)
	raw, err := EncodeQueryFrame(1, Query{SlotID: "main"})
	if err != nil {
		t.Fatalf("encode query: %v", err)
	}
	if _, err := DecodeInvokeFrame(readOne(t, raw)); err == nil {
		t.Fatalf("expected type mismatch")
	}
}

func TestDecodeResultRejectsBadCounterType(t *testing.T) {
	testlog.Start(t)
	f := frame.Frame{
		Header: frame.Header{MessageType: schema.MsgResult},
		Payload: tlv.EncodeFields([]tlv.Field{
			tlv.String(schema.FieldSlotID, "main"),
			tlv.String(schema.FieldCounter, "seven"),
		}),
	}
	if _, err := DecodeResultFrame(f); err == nil {
		t.Fatalf("expected schema failure")
	}
}
