package grpc

import (
	"context"

	metaerrors "github.com/arkilian/catalogmeta/internal/errors"
	"github.com/arkilian/catalogmeta/pkg/partitions"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls PropertyService. Failures that the server reported as a
// MetaError come back as a *MetaError with the same category, code and
// property.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient creates a client over cc.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// KindInfo is one entry of ListKinds.
type KindInfo struct {
	Name        string
	Entity      string
	Description string
}

// ListKinds returns the kinds registered on the server.
func (c *Client) ListKinds(ctx context.Context) ([]KindInfo, error) {
	resp, err := c.invoke(ctx, "ListKinds", &structpb.Struct{})
	if err != nil {
		return nil, err
	}
	var kinds []KindInfo
	for _, v := range resp.GetFields()["kinds"].GetListValue().GetValues() {
		f := v.GetStructValue().GetFields()
		kinds = append(kinds, KindInfo{
			Name:        f["name"].GetStringValue(),
			Entity:      f["entity"].GetStringValue(),
			Description: f["description"].GetStringValue(),
		})
	}
	return kinds, nil
}

// Validate dry-runs a create of kind with props.
func (c *Client) Validate(ctx context.Context, kind string, props map[string]string) (map[string]string, error) {
	return c.properties(ctx, "Validate", kind, "", props)
}

// Create creates entity of kind.
func (c *Client) Create(ctx context.Context, kind, entity string, props map[string]string) (map[string]string, error) {
	return c.properties(ctx, "Create", kind, entity, props)
}

// Alter applies changes to entity.
func (c *Client) Alter(ctx context.Context, kind, entity string, changes map[string]string) (map[string]string, error) {
	return c.properties(ctx, "Alter", kind, entity, changes)
}

// Describe returns the caller-facing properties of entity.
func (c *Client) Describe(ctx context.Context, kind, entity string) (map[string]string, error) {
	return c.properties(ctx, "Describe", kind, entity, nil)
}

// History returns every recorded property set of entity, oldest first.
func (c *Client) History(ctx context.Context, kind, entity string) ([]map[string]string, error) {
	resp, err := c.invoke(ctx, "History", &structpb.Struct{Fields: map[string]*structpb.Value{
		"kind":   structpb.NewStringValue(kind),
		"entity": structpb.NewStringValue(entity),
	}})
	if err != nil {
		return nil, err
	}
	var out []map[string]string
	for _, v := range resp.GetFields()["revisions"].GetListValue().GetValues() {
		out = append(out, toStringMap(v.GetStructValue()))
	}
	return out, nil
}

// ListEntities returns the names of all stored entities.
func (c *Client) ListEntities(ctx context.Context) ([]string, error) {
	resp, err := c.invoke(ctx, "ListEntities", &structpb.Struct{})
	if err != nil {
		return nil, err
	}
	names := []string{}
	for _, v := range resp.GetFields()["entities"].GetListValue().GetValues() {
		names = append(names, v.GetStringValue())
	}
	return names, nil
}

// AddPartition stores p for entity.
func (c *Client) AddPartition(ctx context.Context, entity string, p partitions.Partition) error {
	st, err := partitions.ToStruct(p)
	if err != nil {
		return err
	}
	_, err = c.invoke(ctx, "AddPartition", &structpb.Struct{Fields: map[string]*structpb.Value{
		"entity":    structpb.NewStringValue(entity),
		"partition": structpb.NewStructValue(st),
	}})
	return err
}

// ListPartitions returns the partitions stored for entity.
func (c *Client) ListPartitions(ctx context.Context, entity string) ([]partitions.Partition, error) {
	resp, err := c.invoke(ctx, "ListPartitions", &structpb.Struct{Fields: map[string]*structpb.Value{
		"entity": structpb.NewStringValue(entity),
	}})
	if err != nil {
		return nil, err
	}
	var out []partitions.Partition
	for _, v := range resp.GetFields()["partitions"].GetListValue().GetValues() {
		p, err := partitions.FromStruct(v.GetStructValue())
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (c *Client) properties(ctx context.Context, method, kind, entity string, props map[string]string) (map[string]string, error) {
	fields := make(map[string]*structpb.Value, len(props))
	for k, v := range props {
		fields[k] = structpb.NewStringValue(v)
	}
	req := &structpb.Struct{Fields: map[string]*structpb.Value{
		"kind":       structpb.NewStringValue(kind),
		"properties": structpb.NewStructValue(&structpb.Struct{Fields: fields}),
	}}
	if entity != "" {
		req.Fields["entity"] = structpb.NewStringValue(entity)
	}

	resp, err := c.invoke(ctx, method, req)
	if err != nil {
		return nil, err
	}
	return toStringMap(resp.GetFields()["properties"].GetStructValue()), nil
}

func toStringMap(st *structpb.Struct) map[string]string {
	out := map[string]string{}
	for k, v := range st.GetFields() {
		out[k] = v.GetStringValue()
	}
	return out
}

func (c *Client) invoke(ctx context.Context, method string, req *structpb.Struct) (*structpb.Struct, error) {
	resp := new(structpb.Struct)
	var trailer metadata.MD
	err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, req, resp, grpc.Trailer(&trailer))
	if err != nil {
		return nil, remoteError(err, trailer)
	}
	return resp, nil
}

func remoteError(err error, trailer metadata.MD) error {
	code := first(trailer, trailerCode)
	if code == "" {
		return err
	}
	message := first(trailer, trailerMessage)
	if message == "" {
		message = status.Convert(err).Message()
	}
	e := metaerrors.New(metaerrors.ErrorCategory(first(trailer, trailerCategory)), code, message)
	e.Property = first(trailer, trailerProperty)
	e.Expected = first(trailer, trailerExpected)
	e.Actual = first(trailer, trailerActual)
	return e
}

func first(md metadata.MD, key string) string {
	if v := md.Get(key); len(v) > 0 {
		return v[0]
	}
	return ""
}
