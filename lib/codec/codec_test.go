package codec

import (
	"testing"
)

type testValue struct {
	Name  string
	Count int
}

func TestJSONCodecRoundTrip(t *testing.T) {
	c := NewJSONCodec()

	data, err := c.Encode(testValue{Name: "a", Count: 3})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	var got testValue
	if err := c.Decode(data, &got); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if got.Name != "a" || got.Count != 3 {
		t.Errorf("got %+v, want {a 3}", got)
	}
}

func TestGOBCodecRoundTrip(t *testing.T) {
	c := NewGOBCodec()

	data, err := c.Encode(testValue{Name: "b", Count: 7})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	var got testValue
	if err := c.Decode(data, &got); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if got.Name != "b" || got.Count != 7 {
		t.Errorf("got %+v, want {b 7}", got)
	}
}

func TestJSONCodecDecodeInvalid(t *testing.T) {
	c := NewJSONCodec()
	var got testValue
	if err := c.Decode([]byte("not json"), &got); err == nil {
		t.Error("expected an error for invalid input")
	}
}
