package wampmsg

import (
	"errors"
	"testing"
)

func TestJSONCodecRoundTrip(t *testing.T) {
	var c JSONCodec
	msg := Publish{RequestID: 1, Options: Dict{}, Topic: "a.b.c", Args: List{1, 2}, KwArgs: Dict{}}.ToArray()
	data, err := c.Encode(msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := c.Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	kind, err := KindOf(decoded)
	if err != nil {
		t.Fatalf("kindOf: %v", err)
	}
	if kind != KindPublish {
		t.Errorf("kind = %v, want PUBLISH", kind)
	}
}

func TestMsgPackCodecRoundTrip(t *testing.T) {
	var c MsgPackCodec
	msg := Call{RequestID: 7, Options: Dict{}, Procedure: "com.example.add", Args: List{int64(1), int64(2)}, KwArgs: Dict{}}.ToArray()
	data, err := c.Encode(msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := c.Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	kind, err := KindOf(decoded)
	if err != nil {
		t.Fatalf("kindOf: %v", err)
	}
	if kind != KindCall {
		t.Errorf("kind = %v, want CALL", kind)
	}
}

// TestKindOfRejectsNonNumericKind covers the case where the first array
// element isn't a number at all (as opposed to an unrecognized numeric
// kind, which KindOf accepts and leaves to the caller to reject).
func TestKindOfRejectsNonNumericKind(t *testing.T) {
	_, err := KindOf(List{"not-a-number", 1, Dict{}})
	if !errors.Is(err, ErrProtocolViolation) {
		t.Fatalf("expected protocol violation, got %v", err)
	}
}

// TestKindStringRendersUnrecognizedNumericKind covers spec.md §8 scenario
// 6's literal [0, 1, {}] frame: kind 0 decodes successfully (KindOf only
// rejects non-numeric or empty arrays), so the violation hint must name
// the raw numeric code rather than falling back to a bare "UNKNOWN".
func TestKindStringRendersUnrecognizedNumericKind(t *testing.T) {
	kind, err := KindOf(List{0, 1, Dict{}})
	if err != nil {
		t.Fatalf("kind 0 must decode without error, got %v", err)
	}
	if got := kind.String(); got != "type number 0" {
		t.Fatalf("want %q, got %q", "type number 0", got)
	}
}

func TestErrorToArrayOmitsEmptyArgs(t *testing.T) {
	e := Error{RequestKind: KindCall, RequestID: 1, Details: Dict{}, Reason: "wamp.error.no_such_procedure"}
	arr := e.ToArray()
	if len(arr) != 5 {
		t.Fatalf("expected 5-element array without args/kwargs, got %d", len(arr))
	}
}
