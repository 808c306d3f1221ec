package node

import (
	"testing"

	corev3 "github.com/envoyproxy/go-control-plane/envoy/config/core/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"
)

// testNode builds a discovery node with the given metadata fields.
func testNode(t *testing.T, metadata map[string]interface{}) *corev3.Node {
	t.Helper()

	md, err := structpb.NewStruct(metadata)
	require.NoError(t, err)

	return &corev3.Node{
		Id:       "test-node",
		Metadata: md,
	}
}

func TestFromProto_NilNode(t *testing.T) {
	t.Parallel()

	md := FromProto(nil)

	assert.Empty(t, md.ServiceName)
	assert.False(t, md.ADS)
	assert.Equal(t, 0, md.Dependencies.Len())
}

func TestFromProto_NoMetadata(t *testing.T) {
	t.Parallel()

	md := FromProto(&corev3.Node{Id: "bare-node"})

	assert.Empty(t, md.ServiceName)
	assert.False(t, md.ADS)
	assert.Equal(t, 0, md.Dependencies.Len())
}

func TestFromProto_FullMetadata(t *testing.T) {
	t.Parallel()

	n := testNode(t, map[string]interface{}{
		"service_name": "orders",
		"ads":          true,
		"proxy_settings": map[string]interface{}{
			"outgoing": map[string]interface{}{
				"dependencies": []interface{}{
					map[string]interface{}{"service": "billing"},
					map[string]interface{}{"service": "inventory"},
				},
			},
		},
	})

	md := FromProto(n)

	assert.Equal(t, "orders", md.ServiceName)
	assert.True(t, md.ADS)
	assert.Equal(t, []string{"billing", "inventory"}, md.Dependencies.Values())
}

func TestFromProto_WildcardDependency(t *testing.T) {
	t.Parallel()

	n := testNode(t, map[string]interface{}{
		"service_name": "gateway",
		"proxy_settings": map[string]interface{}{
			"outgoing": map[string]interface{}{
				"dependencies": []interface{}{
					map[string]interface{}{"service": "*"},
				},
			},
		},
	})

	md := FromProto(n)

	assert.True(t, md.Dependencies.HasWildcard())
	assert.False(t, md.ADS)
}

func TestFromProto_BareStringDependencies(t *testing.T) {
	t.Parallel()

	n := testNode(t, map[string]interface{}{
		"service_name": "orders",
		"proxy_settings": map[string]interface{}{
			"outgoing": map[string]interface{}{
				"dependencies": []interface{}{"billing", "inventory"},
			},
		},
	})

	md := FromProto(n)

	assert.Equal(t, []string{"billing", "inventory"}, md.Dependencies.Values())
}

func TestFromProto_MalformedEntries(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		metadata map[string]interface{}
		want     []string
	}{
		{
			name: "numeric entries skipped",
			metadata: map[string]interface{}{
				"proxy_settings": map[string]interface{}{
					"outgoing": map[string]interface{}{
						"dependencies": []interface{}{42, "billing"},
					},
				},
			},
			want: []string{"billing"},
		},
		{
			name: "object without service field skipped",
			metadata: map[string]interface{}{
				"proxy_settings": map[string]interface{}{
					"outgoing": map[string]interface{}{
						"dependencies": []interface{}{
							map[string]interface{}{"name": "billing"},
							map[string]interface{}{"service": "inventory"},
						},
					},
				},
			},
			want: []string{"inventory"},
		},
		{
			name: "dependencies not a list",
			metadata: map[string]interface{}{
				"proxy_settings": map[string]interface{}{
					"outgoing": map[string]interface{}{
						"dependencies": "billing",
					},
				},
			},
			want: nil,
		},
		{
			name: "outgoing not an object",
			metadata: map[string]interface{}{
				"proxy_settings": map[string]interface{}{
					"outgoing": "nonsense",
				},
			},
			want: nil,
		},
		{
			name: "ads has wrong type",
			metadata: map[string]interface{}{
				"ads": "yes",
			},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			md := FromProto(testNode(t, tt.metadata))

			if tt.want == nil {
				assert.Equal(t, 0, md.Dependencies.Len())
			} else {
				assert.Equal(t, tt.want, md.Dependencies.Values())
			}
			assert.False(t, md.ADS)
		})
	}
}

func TestFromProto_XDSTransport(t *testing.T) {
	t.Parallel()

	n := testNode(t, map[string]interface{}{
		"service_name": "orders",
		"ads":          false,
	})

	md := FromProto(n)

	assert.Equal(t, "orders", md.ServiceName)
	assert.False(t, md.ADS)
}
