package ports

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_DescriptionAndContext(t *testing.T) {
	tests := []struct {
		name        string
		status      Status
		description string
		context     string
	}{
		{
			name:        "not served",
			status:      Status{LocalPort: 3000},
			description: "not served",
			context:     "port",
		},
		{
			name:        "served, not exposed",
			status:      Status{LocalPort: 3000, Served: true},
			description: "detecting...",
			context:     "served-port",
		},
		{
			name:        "exposed private",
			status:      Status{LocalPort: 3000, Served: true, Exposed: &Exposure{Visibility: VisibilityPrivate}},
			description: "open (private)",
			context:     "private-exposed-served-port",
		},
		{
			name:        "exposed public",
			status:      Status{LocalPort: 3000, Served: true, Exposed: &Exposure{Visibility: VisibilityPublic}},
			description: "open (public)",
			context:     "public-exposed-served-port",
		},
		{
			name:        "exposed but no longer served",
			status:      Status{LocalPort: 3000, Exposed: &Exposure{Visibility: VisibilityPublic}},
			description: "not served",
			context:     "public-exposed-port",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.description, tt.status.Description())
			assert.Equal(t, tt.context, tt.status.ContextValue())
		})
	}
}

func TestStatus_CloneIsDeep(t *testing.T) {
	orig := Status{LocalPort: 1, Exposed: &Exposure{URL: "https://a"}}
	c := orig.Clone()
	c.Exposed.URL = "https://b"
	assert.Equal(t, "https://a", orig.Exposed.URL)
}

func TestParseVisibility(t *testing.T) {
	v, err := ParseVisibility("Public")
	require.NoError(t, err)
	assert.Equal(t, VisibilityPublic, v)

	v, err = ParseVisibility(" private ")
	require.NoError(t, err)
	assert.Equal(t, VisibilityPrivate, v)

	_, err = ParseVisibility("internal")
	assert.Error(t, err)
}

func TestEnumStrings(t *testing.T) {
	assert.Equal(t, "public", VisibilityPublic.String())
	assert.Equal(t, "notify-private", ActionNotifyPrivate.String())
	assert.Equal(t, "unknown(9)", ExposedAction(9).String())
}
