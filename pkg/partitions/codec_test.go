package partitions

import (
	"testing"

	"github.com/arkilian/catalogmeta/pkg/literals"
)

func samplePartitions(t *testing.T) []Partition {
	t.Helper()
	l, err := List("p_list", [][]literals.Literal{
		{literals.StringLiteral("us"), literals.IntegerLiteral(1)},
		{literals.StringLiteral("eu"), literals.IntegerLiteral(2)},
	}, map[string]string{"owner": "etl"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	id, err := Identity("p_id", [][]string{{"dt"}}, []literals.Literal{literals.DateLiteral("2024-01-01")}, nil)
	if err != nil {
		t.Fatalf("Identity: %v", err)
	}
	return []Partition{
		Range("p_range", literals.LongLiteral(100), literals.LongLiteral(0), map[string]string{"k": "v"}),
		l,
		id,
	}
}

func TestMarshalUnmarshal(t *testing.T) {
	for _, p := range samplePartitions(t) {
		data, err := Marshal(p)
		if err != nil {
			t.Fatalf("Marshal %s: %v", p.Name(), err)
		}
		back, err := Unmarshal(data)
		if err != nil {
			t.Fatalf("Unmarshal %s: %v", data, err)
		}
		if !p.Equal(back) {
			t.Errorf("wire round trip changed %s: %s", p.Name(), data)
		}
	}
}

func TestUnmarshal_Rejects(t *testing.T) {
	tests := map[string]string{
		"unknown type":   `{"type":"hash","name":"p"}`,
		"range no upper": `{"type":"range","name":"p","lower":{"type":"integer","value":"1"}}`,
		"ragged list":    `{"type":"list","name":"p","lists":[[{"type":"integer","value":"1"}],[]]}`,
		"not json":       `{`,
	}
	for name, in := range tests {
		if _, err := Unmarshal([]byte(in)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestWireFieldNames(t *testing.T) {
	id, _ := Identity("p", [][]string{{"a", "b"}}, []literals.Literal{literals.StringLiteral("x")}, nil)
	data, err := Marshal(id)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, field := range []string{"type", "name", "properties", "fieldNames", "values"} {
		if _, ok := m[field]; !ok {
			t.Errorf("wire form missing %q: %s", field, data)
		}
	}
}

func TestStructAndCompressed(t *testing.T) {
	for _, p := range samplePartitions(t) {
		s, err := ToStruct(p)
		if err != nil {
			t.Fatalf("ToStruct: %v", err)
		}
		if s.Fields["name"].GetStringValue() != p.Name() {
			t.Errorf("struct name = %v", s.Fields["name"])
		}
		back, err := FromStruct(s)
		if err != nil {
			t.Fatalf("FromStruct: %v", err)
		}
		if !p.Equal(back) {
			t.Errorf("struct round trip changed %s", p.Name())
		}

		blob, err := Compress(p)
		if err != nil {
			t.Fatalf("Compress: %v", err)
		}
		restored, err := Decompress(blob)
		if err != nil {
			t.Fatalf("Decompress: %v", err)
		}
		if !p.Equal(restored) || p.Hash() != restored.Hash() {
			t.Errorf("compressed round trip changed %s", p.Name())
		}
	}

	if _, err := Decompress([]byte("not snappy")); err == nil {
		t.Error("garbage input should fail to decompress")
	}
}
