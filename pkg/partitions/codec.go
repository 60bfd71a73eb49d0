package partitions

import (
	"fmt"

	"github.com/arkilian/catalogmeta/pkg/literals"
	"github.com/golang/snappy"
	jsoniter "github.com/json-iterator/go"
	"google.golang.org/protobuf/types/known/structpb"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// wirePartition is the external wire form shared by all three variants.
type wirePartition struct {
	Type       Kind                 `json:"type"`
	Name       string               `json:"name"`
	Properties map[string]string    `json:"properties"`
	Upper      *literals.Literal    `json:"upper,omitempty"`
	Lower      *literals.Literal    `json:"lower,omitempty"`
	Lists      [][]literals.Literal `json:"lists,omitempty"`
	FieldNames [][]string           `json:"fieldNames,omitempty"`
	Values     []literals.Literal   `json:"values,omitempty"`
}

// Marshal encodes a partition in its JSON wire form.
func Marshal(p Partition) ([]byte, error) {
	w := wirePartition{
		Type:       p.Kind(),
		Name:       p.Name(),
		Properties: p.Properties(),
	}
	switch v := p.(type) {
	case *RangePartition:
		upper, lower := v.Upper(), v.Lower()
		w.Upper, w.Lower = &upper, &lower
	case *ListPartition:
		w.Lists = v.Lists()
	case *IdentityPartition:
		w.FieldNames = v.FieldNames()
		w.Values = v.Values()
	default:
		return nil, fmt.Errorf("partitions: unsupported partition type %T", p)
	}
	return json.Marshal(w)
}

// Unmarshal decodes the JSON wire form. Shape rules are enforced through the
// factory functions.
func Unmarshal(data []byte) (Partition, error) {
	var w wirePartition
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("partitions: failed to decode partition: %w", err)
	}
	switch w.Type {
	case KindRange:
		if w.Upper == nil || w.Lower == nil {
			return nil, fmt.Errorf("partitions: range partition %q requires upper and lower", w.Name)
		}
		return Range(w.Name, *w.Upper, *w.Lower, w.Properties), nil
	case KindList:
		return List(w.Name, w.Lists, w.Properties)
	case KindIdentity:
		return Identity(w.Name, w.FieldNames, w.Values, w.Properties)
	}
	return nil, fmt.Errorf("partitions: unknown partition type %q", w.Type)
}

// ToStruct converts a partition to a protobuf Struct carrying the same wire
// fields, for RPC collaborators.
func ToStruct(p Partition) (*structpb.Struct, error) {
	data, err := Marshal(p)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("partitions: failed to decode wire form: %w", err)
	}
	return structpb.NewStruct(m)
}

// FromStruct is the inverse of ToStruct.
func FromStruct(s *structpb.Struct) (Partition, error) {
	data, err := s.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("partitions: failed to encode struct: %w", err)
	}
	return Unmarshal(data)
}

// Compress returns the snappy-compressed wire form, used for persistence.
func Compress(p Partition) ([]byte, error) {
	data, err := Marshal(p)
	if err != nil {
		return nil, err
	}
	return snappy.Encode(nil, data), nil
}

// Decompress decodes bytes produced by Compress.
func Decompress(data []byte) (Partition, error) {
	raw, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("partitions: snappy decompress failed: %w", err)
	}
	return Unmarshal(raw)
}
