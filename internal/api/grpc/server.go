// Package grpc exposes the property lifecycle over gRPC. Messages are
// google.protobuf.Struct values so no generated stubs are needed; the
// service descriptor is declared by hand below.
package grpc

import (
	"context"
	"errors"
	"fmt"
	"log"

	metaerrors "github.com/arkilian/catalogmeta/internal/errors"
	"github.com/arkilian/catalogmeta/internal/lifecycle"
	"github.com/arkilian/catalogmeta/pkg/partitions"
	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "catalogmeta.v1.PropertyService"

// Trailer keys carrying the structured error fields.
const (
	trailerCategory = "error-category"
	trailerCode     = "error-code"
	trailerMessage  = "error-message"
	trailerProperty = "error-property"
	trailerExpected = "error-expected"
	trailerActual   = "error-actual"
)

// PropertyServiceServer is the server API for PropertyService.
type PropertyServiceServer interface {
	ListKinds(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Validate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Create(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Alter(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Describe(context.Context, *structpb.Struct) (*structpb.Struct, error)
	History(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListEntities(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AddPartition(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListPartitions(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(PropertyServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

// ServiceDesc describes PropertyService for grpc.ServiceRegistrar.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PropertyServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("ListKinds", PropertyServiceServer.ListKinds),
		unaryHandler("Validate", PropertyServiceServer.Validate),
		unaryHandler("Create", PropertyServiceServer.Create),
		unaryHandler("Alter", PropertyServiceServer.Alter),
		unaryHandler("Describe", PropertyServiceServer.Describe),
		unaryHandler("History", PropertyServiceServer.History),
		unaryHandler("ListEntities", PropertyServiceServer.ListEntities),
		unaryHandler("AddPartition", PropertyServiceServer.AddPartition),
		unaryHandler("ListPartitions", PropertyServiceServer.ListPartitions),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "catalogmeta/v1/property.proto",
}

func unaryHandler(name string, call unaryMethod) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(PropertyServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(PropertyServiceServer), ctx, req.(*structpb.Struct))
			})
		},
	}
}

// PropertyServer implements PropertyServiceServer on top of a lifecycle
// service.
type PropertyServer struct {
	service *lifecycle.Service
}

// NewPropertyServer creates a new gRPC property server.
func NewPropertyServer(service *lifecycle.Service) *PropertyServer {
	return &PropertyServer{service: service}
}

// Register attaches the server to r.
func (s *PropertyServer) Register(r grpc.ServiceRegistrar) {
	r.RegisterService(&ServiceDesc, s)
}

// ListKinds returns {"kinds": [{"name", "entity", "description"}]}.
func (s *PropertyServer) ListKinds(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	registry := s.service.Registry()
	kinds := make([]interface{}, 0, len(registry.Names()))
	for _, name := range registry.Names() {
		k, err := registry.Get(name)
		if err != nil {
			continue
		}
		kinds = append(kinds, map[string]interface{}{
			"name":        k.Name,
			"entity":      string(k.Entity),
			"description": k.Description,
		})
	}
	return respond(ctx, map[string]interface{}{"kinds": kinds})
}

// Validate checks {"kind", "properties"} as for a create without storing
// anything.
func (s *PropertyServer) Validate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	kind, props, err := kindAndProperties(req)
	if err != nil {
		return nil, fail(ctx, "validate", err)
	}
	k, err := s.service.Registry().Get(kind)
	if err != nil {
		return nil, fail(ctx, "validate", err)
	}
	normalized, err := k.Schema.ValidateForCreate(props)
	if err != nil {
		return nil, fail(ctx, "validate", err)
	}
	return propertiesResponse(ctx, kind, "", k.Schema.Display(normalized))
}

// Create handles {"kind", "entity", "properties"}.
func (s *PropertyServer) Create(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	kind, props, err := kindAndProperties(req)
	if err != nil {
		return nil, fail(ctx, lifecycle.OpCreate, err)
	}
	entity, err := requiredString(req, "entity")
	if err != nil {
		return nil, fail(ctx, lifecycle.OpCreate, err)
	}
	shown, err := s.service.Create(ctx, kind, entity, props)
	if err != nil {
		return nil, fail(ctx, lifecycle.OpCreate, err)
	}
	return propertiesResponse(ctx, kind, entity, shown)
}

// Alter handles {"kind", "entity", "properties"}; properties holds only the
// changed keys.
func (s *PropertyServer) Alter(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	kind, props, err := kindAndProperties(req)
	if err != nil {
		return nil, fail(ctx, lifecycle.OpAlter, err)
	}
	entity, err := requiredString(req, "entity")
	if err != nil {
		return nil, fail(ctx, lifecycle.OpAlter, err)
	}
	shown, err := s.service.Alter(ctx, kind, entity, props)
	if err != nil {
		return nil, fail(ctx, lifecycle.OpAlter, err)
	}
	return propertiesResponse(ctx, kind, entity, shown)
}

// Describe handles {"kind", "entity"}.
func (s *PropertyServer) Describe(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	kind, err := requiredString(req, "kind")
	if err != nil {
		return nil, fail(ctx, lifecycle.OpDescribe, err)
	}
	entity, err := requiredString(req, "entity")
	if err != nil {
		return nil, fail(ctx, lifecycle.OpDescribe, err)
	}
	shown, err := s.service.Describe(ctx, kind, entity)
	if err != nil {
		return nil, fail(ctx, lifecycle.OpDescribe, err)
	}
	return propertiesResponse(ctx, kind, entity, shown)
}

// History handles {"kind", "entity"} and returns {"revisions": [{...}]},
// oldest first.
func (s *PropertyServer) History(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	kind, err := requiredString(req, "kind")
	if err != nil {
		return nil, fail(ctx, "history", err)
	}
	entity, err := requiredString(req, "entity")
	if err != nil {
		return nil, fail(ctx, "history", err)
	}
	sets, err := s.service.History(ctx, kind, entity)
	if err != nil {
		return nil, fail(ctx, "history", err)
	}
	revisions := make([]interface{}, len(sets))
	for i, props := range sets {
		revisions[i] = stringMap(props)
	}
	return respond(ctx, map[string]interface{}{"kind": kind, "entity": entity, "revisions": revisions})
}

// ListEntities returns {"entities": [...]}.
func (s *PropertyServer) ListEntities(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	names, err := s.service.Entities(ctx)
	if err != nil {
		return nil, fail(ctx, "list-entities", err)
	}
	entities := make([]interface{}, len(names))
	for i, n := range names {
		entities[i] = n
	}
	return respond(ctx, map[string]interface{}{"entities": entities})
}

// AddPartition handles {"entity", "partition"} where partition is the wire
// form of a partition.
func (s *PropertyServer) AddPartition(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	entity, err := requiredString(req, "entity")
	if err != nil {
		return nil, fail(ctx, "add-partition", err)
	}
	raw := req.GetFields()["partition"].GetStructValue()
	if raw == nil {
		return nil, fail(ctx, "add-partition", status.Error(codes.InvalidArgument, "partition is required"))
	}
	p, err := partitions.FromStruct(raw)
	if err != nil {
		if metaerrors.GetCategory(err) == "" {
			err = status.Error(codes.InvalidArgument, err.Error())
		}
		return nil, fail(ctx, "add-partition", err)
	}
	if err := s.service.AddPartition(ctx, entity, p); err != nil {
		return nil, fail(ctx, "add-partition", err)
	}
	return respond(ctx, map[string]interface{}{"entity": entity, "name": p.Name()})
}

// ListPartitions handles {"entity"} and returns {"entity", "partitions"}.
func (s *PropertyServer) ListPartitions(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	entity, err := requiredString(req, "entity")
	if err != nil {
		return nil, fail(ctx, "list-partitions", err)
	}
	parts, err := s.service.Partitions(ctx, entity)
	if err != nil {
		return nil, fail(ctx, "list-partitions", err)
	}
	values := make([]*structpb.Value, 0, len(parts))
	for _, p := range parts {
		st, err := partitions.ToStruct(p)
		if err != nil {
			return nil, fail(ctx, "list-partitions", metaerrors.NewInternalError("failed to encode partition", err))
		}
		values = append(values, structpb.NewStructValue(st))
	}
	out, err := respond(ctx, map[string]interface{}{"entity": entity})
	if err != nil {
		return nil, err
	}
	out.Fields["partitions"] = structpb.NewListValue(&structpb.ListValue{Values: values})
	return out, nil
}

func kindAndProperties(req *structpb.Struct) (string, map[string]string, error) {
	kind, err := requiredString(req, "kind")
	if err != nil {
		return "", nil, err
	}
	props := map[string]string{}
	for k, v := range req.GetFields()["properties"].GetStructValue().GetFields() {
		sv, ok := v.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return "", nil, status.Errorf(codes.InvalidArgument, "property %q must be a string", k)
		}
		props[k] = sv.StringValue
	}
	return kind, props, nil
}

func requiredString(req *structpb.Struct, field string) (string, error) {
	v := req.GetFields()[field].GetStringValue()
	if v == "" {
		return "", status.Errorf(codes.InvalidArgument, "%s is required", field)
	}
	return v, nil
}

func stringMap(props map[string]string) map[string]interface{} {
	out := make(map[string]interface{}, len(props))
	for k, v := range props {
		out[k] = v
	}
	return out
}

func propertiesResponse(ctx context.Context, kind, entity string, props map[string]string) (*structpb.Struct, error) {
	body := map[string]interface{}{"kind": kind, "properties": stringMap(props)}
	if entity != "" {
		body["entity"] = entity
	}
	return respond(ctx, body)
}

func respond(ctx context.Context, body map[string]interface{}) (*structpb.Struct, error) {
	body["request_id"] = extractRequestID(ctx)
	out, err := structpb.NewStruct(body)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	return out, nil
}

// fail attaches the structured error fields as trailers so clients can
// rebuild the MetaError.
func fail(ctx context.Context, op string, err error) error {
	var me *metaerrors.MetaError
	if errors.As(err, &me) {
		trailer := metadata.Pairs(
			trailerCategory, string(me.Category),
			trailerCode, me.Code,
			trailerMessage, me.Message,
			trailerProperty, me.Property,
			trailerExpected, me.Expected,
			trailerActual, me.Actual,
		)
		if terr := grpc.SetTrailer(ctx, trailer); terr != nil {
			log.Printf("grpc: failed to set error trailer: %v", terr)
		}
		return me
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	return status.Error(codes.Internal, fmt.Sprintf("%s failed: %v", op, err))
}

// extractRequestID extracts or generates a request ID from the gRPC context.
func extractRequestID(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if ids := md.Get("x-request-id"); len(ids) > 0 {
			return ids[0]
		}
	}
	return uuid.New().String()
}
