package literals

import (
	"math"
	"testing"
)

func TestLiteral_Equality(t *testing.T) {
	if IntegerLiteral(10) != IntegerLiteral(10) {
		t.Error("equal literals should compare equal with ==")
	}
	if IntegerLiteral(10).Equal(LongLiteral(10)) {
		t.Error("literals of different types must not be equal")
	}
	if StringLiteral("10").Equal(IntegerLiteral(10)) {
		t.Error("string and integer literals must not be equal")
	}
	if IntegerLiteral(10).Hash() != IntegerLiteral(10).Hash() {
		t.Error("equal literals must hash equally")
	}
	if IntegerLiteral(10).Hash() == LongLiteral(10).Hash() {
		t.Error("type should participate in the hash")
	}
}

func TestLiteral_DoubleEqualityMatchesHash(t *testing.T) {
	pos, neg := DoubleLiteral(0), DoubleLiteral(math.Copysign(0, -1))
	if pos.Equal(neg) {
		t.Error("+0 and -0 hash differently, so they must not be equal")
	}
	if pos.Hash() == neg.Hash() {
		t.Error("+0 and -0 should hash differently")
	}

	nan := DoubleLiteral(math.NaN())
	if !nan.Equal(nan) {
		t.Error("a NaN literal must equal itself")
	}
	parsed, err := Parse(Double, nan.String())
	if err != nil {
		t.Fatalf("Parse(NaN): %v", err)
	}
	if !nan.Equal(parsed) || nan.Hash() != parsed.Hash() {
		t.Error("NaN should survive a text round trip with equal hash")
	}

	if !DoubleLiteral(1.5).Equal(DoubleLiteral(1.5)) {
		t.Error("equal doubles should be equal")
	}
	if DoubleLiteral(1).Equal(LongLiteral(1)) {
		t.Error("double and long literals must not be equal")
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		typ     DataType
		text    string
		want    Literal
		wantErr bool
	}{
		{Integer, "42", IntegerLiteral(42), false},
		{Integer, "99999999999", Literal{}, true},
		{Long, "99999999999", LongLiteral(99999999999), false},
		{Boolean, "true", BooleanLiteral(true), false},
		{Double, "1.5", DoubleLiteral(1.5), false},
		{Double, "x", Literal{}, true},
		{String, "abc", StringLiteral("abc"), false},
		{Date, "2024-01-01", DateLiteral("2024-01-01"), false},
		{Timestamp, "2024-01-01T00:00:00", TimestampLiteral("2024-01-01T00:00:00"), false},
		{Null, "", NullLiteral(), false},
	}
	for _, tt := range tests {
		got, err := Parse(tt.typ, tt.text)
		if tt.wantErr {
			if err == nil {
				t.Errorf("Parse(%v, %q) should fail", tt.typ, tt.text)
			}
			continue
		}
		if err != nil {
			t.Errorf("Parse(%v, %q): %v", tt.typ, tt.text, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Parse(%v, %q) = %v, want %v", tt.typ, tt.text, got, tt.want)
		}
	}
}

func TestLiteral_JSON(t *testing.T) {
	for _, l := range []Literal{
		IntegerLiteral(-3),
		LongLiteral(1 << 40),
		StringLiteral("a \"quoted\" value"),
		DateLiteral("2024-02-29"),
		NullLiteral(),
	} {
		data, err := json.Marshal(l)
		if err != nil {
			t.Fatalf("marshal %v: %v", l, err)
		}
		var back Literal
		if err := json.Unmarshal(data, &back); err != nil {
			t.Fatalf("unmarshal %s: %v", data, err)
		}
		if back != l {
			t.Errorf("round trip of %v gave %v (%s)", l, back, data)
		}
	}

	var bad Literal
	if err := json.Unmarshal([]byte(`{"type":"decimal","value":"1"}`), &bad); err == nil {
		t.Error("unknown type should fail to decode")
	}
}
