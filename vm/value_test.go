package vm

import "testing"

func TestValueABIWordRoundTrip(t *testing.T) {
	cases := []Value{
		IntegerValue(0),
		IntegerValue(-1),
		IntegerValue(1 << 40),
		FloatValue(0),
		FloatValue(-3.5),
		FloatValue(3.14159265),
	}
	for _, v := range cases {
		word := v.ABIWord()
		got := ValueFromABIWord(word, v.Type())
		switch v.Type() {
		case ValueInteger:
			want, _ := v.Integer()
			have, ok := got.Integer()
			if !ok || have != want {
				t.Fatalf("round-trip integer %v: got %v", v, got)
			}
		case ValueFloat:
			want, _ := v.Float()
			have, ok := got.Float()
			if !ok || have != want {
				t.Fatalf("round-trip float %v: got %v", v, got)
			}
		}
	}
}

func TestValueTypeMismatch(t *testing.T) {
	v := IntegerValue(5)
	if _, ok := v.Float(); ok {
		t.Fatalf("expected Float() to fail on an integer Value")
	}
	f := FloatValue(5)
	if _, ok := f.Integer(); ok {
		t.Fatalf("expected Integer() to fail on a float Value")
	}
}

func TestValueNoneCarriesNoPayload(t *testing.T) {
	var v Value
	if v.Type() != ValueNone {
		t.Fatalf("zero Value should be ValueNone, got %v", v.Type())
	}
	if v.ABIWord() != 0 {
		t.Fatalf("ValueNone should project to 0, got %d", v.ABIWord())
	}
}
