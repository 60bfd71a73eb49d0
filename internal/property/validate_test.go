package property

import (
	"errors"
	"testing"

	metaerrors "github.com/arkilian/catalogmeta/internal/errors"
)

func hiveLikeSchema(t *testing.T, opts ...SchemaOption) *Schema {
	t.Helper()
	one := int32(1)
	s, err := NewSchema(
		[]Declaration{StringOptional("comment", "", false, "", false)},
		[]Declaration{
			StringRequired("metastore.uris", "", true, false),
			IntegerOptional("client.pool-size", "", true, &one, false),
			BooleanOptional("impersonation-enable", "", false, false, true),
			StringReserved("owner", "", false),
			EnumImmutable("engine", "", testEngines, "INNODB", false),
		},
		opts...,
	)
	if err != nil {
		t.Fatalf("NewSchema: %v", err)
	}
	return s
}

func TestValidateForCreate(t *testing.T) {
	s := hiveLikeSchema(t)

	tests := []struct {
		name     string
		raw      map[string]string
		wantCode string
		wantProp string
		want     map[string]string
	}{
		{
			name:     "missing required",
			raw:      map[string]string{},
			wantCode: metaerrors.CodeMissingRequiredProperty,
			wantProp: "metastore.uris",
		},
		{
			name: "defaults injected",
			raw:  map[string]string{"metastore.uris": "thrift://host:9083"},
			want: map[string]string{
				"metastore.uris":       "thrift://host:9083",
				"client.pool-size":     "1",
				"impersonation-enable": "false",
				"engine":               "INNODB",
			},
		},
		{
			name: "unknown key passes through",
			raw:  map[string]string{"metastore.uris": "u", "x.custom": "v"},
			want: map[string]string{
				"metastore.uris":       "u",
				"x.custom":             "v",
				"client.pool-size":     "1",
				"impersonation-enable": "false",
				"engine":               "INNODB",
			},
		},
		{
			name:     "reserved wins over missing required",
			raw:      map[string]string{"owner": "alice"},
			wantCode: metaerrors.CodeReservedPropertyAssigned,
			wantProp: "owner",
		},
		{
			name:     "bad integer",
			raw:      map[string]string{"metastore.uris": "u", "client.pool-size": "many"},
			wantCode: metaerrors.CodeTypeCoercion,
			wantProp: "client.pool-size",
		},
		{
			name:     "bad enum",
			raw:      map[string]string{"metastore.uris": "u", "engine": "Aria"},
			wantCode: metaerrors.CodeTypeCoercion,
			wantProp: "engine",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ValidateForCreate(tt.raw)
			if tt.wantCode != "" {
				if err == nil {
					t.Fatalf("expected %s, got result %v", tt.wantCode, got)
				}
				if metaerrors.GetCode(err) != tt.wantCode {
					t.Errorf("code = %s, want %s (%v)", metaerrors.GetCode(err), tt.wantCode, err)
				}
				if metaerrors.GetProperty(err) != tt.wantProp {
					t.Errorf("property = %q, want %q", metaerrors.GetProperty(err), tt.wantProp)
				}
				if got != nil {
					t.Error("a failed validation must not return a partial result")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("%s = %q, want %q", k, got[k], v)
				}
			}
		})
	}
}

func TestValidateForCreate_Strict(t *testing.T) {
	s := hiveLikeSchema(t, WithStrictUnknownKeys(true))
	_, err := s.ValidateForCreate(map[string]string{"metastore.uris": "u", "x.custom": "v"})
	if !errors.Is(err, metaerrors.ErrUnknownProperty) {
		t.Fatalf("expected unknown property error, got %v", err)
	}
	if metaerrors.GetProperty(err) != "x.custom" {
		t.Errorf("property = %q", metaerrors.GetProperty(err))
	}
}

func TestValidateForCreate_DoesNotMutateInput(t *testing.T) {
	s := hiveLikeSchema(t)
	raw := map[string]string{"metastore.uris": "u"}
	if _, err := s.ValidateForCreate(raw); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(raw) != 1 {
		t.Errorf("input map was modified: %v", raw)
	}
}

func TestValidateForAlter(t *testing.T) {
	s := hiveLikeSchema(t)
	current := map[string]string{
		"metastore.uris":   "thrift://a:9083",
		"client.pool-size": "1",
		"engine":           "InnoDB",
		"comment":          "old",
	}

	tests := []struct {
		name     string
		current  map[string]string
		changes  map[string]string
		wantCode string
		want     map[string]string
	}{
		{
			name:    "mutable change",
			current: current,
			changes: map[string]string{"comment": "new"},
			want:    map[string]string{"comment": "new", "metastore.uris": "thrift://a:9083"},
		},
		{
			name:     "immutable change rejected",
			current:  current,
			changes:  map[string]string{"metastore.uris": "thrift://b:9083"},
			wantCode: metaerrors.CodeImmutablePropertyChange,
		},
		{
			name:    "immutable same value accepted",
			current: current,
			changes: map[string]string{"metastore.uris": "thrift://a:9083"},
			want:    map[string]string{"metastore.uris": "thrift://a:9083"},
		},
		{
			name:    "immutable enum compared by variant",
			current: current,
			changes: map[string]string{"engine": "INNODB"},
			want:    map[string]string{"engine": "INNODB"},
		},
		{
			name:    "immutable integer compared numerically",
			current: current,
			changes: map[string]string{"client.pool-size": " 1"},
			want:    map[string]string{"client.pool-size": " 1"},
		},
		{
			name:    "absent immutable compared to default",
			current: map[string]string{"metastore.uris": "u"},
			changes: map[string]string{"client.pool-size": "1"},
			want:    map[string]string{"client.pool-size": "1"},
		},
		{
			name:     "absent immutable differs from default",
			current:  map[string]string{"metastore.uris": "u"},
			changes:  map[string]string{"client.pool-size": "4"},
			wantCode: metaerrors.CodeImmutablePropertyChange,
		},
		{
			name:     "reserved rejected",
			current:  current,
			changes:  map[string]string{"owner": "bob"},
			wantCode: metaerrors.CodeReservedPropertyAssigned,
		},
		{
			name:     "type checked",
			current:  current,
			changes:  map[string]string{"impersonation-enable": "maybe"},
			wantCode: metaerrors.CodeTypeCoercion,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ValidateForAlter(tt.current, tt.changes)
			if tt.wantCode != "" {
				if metaerrors.GetCode(err) != tt.wantCode {
					t.Fatalf("code = %s, want %s (%v)", metaerrors.GetCode(err), tt.wantCode, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("%s = %q, want %q", k, got[k], v)
				}
			}
			for k := range tt.current {
				if _, ok := got[k]; !ok {
					t.Errorf("key %q omitted from changes must be kept", k)
				}
			}
		})
	}
}

func TestDisplay(t *testing.T) {
	s := hiveLikeSchema(t)
	got := s.Display(map[string]string{
		"metastore.uris":       "u",
		"impersonation-enable": "true",
		"owner":                "system",
		"x.custom":             "v",
	})

	if _, ok := got["impersonation-enable"]; ok {
		t.Error("hidden property must not be displayed")
	}
	if _, ok := got["owner"]; ok {
		t.Error("reserved property must not be displayed")
	}
	if got["client.pool-size"] != "1" || got["engine"] != "INNODB" {
		t.Errorf("defaults should be filled for display: %v", got)
	}
	if got["x.custom"] != "v" {
		t.Error("undeclared keys pass through display")
	}
}

func TestNativeValues(t *testing.T) {
	s := hiveLikeSchema(t)
	got, err := s.NativeValues(map[string]string{"engine": "MYISAM", "x": "y"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["engine"] != "MyISAM" || got["x"] != "y" {
		t.Errorf("got %v", got)
	}
}
