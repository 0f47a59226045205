package frontmatter

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseMCPServerPayloadCommand(t *testing.T) {
	payload, err := ParseMCPServerPayload([]byte(`{"command":"node","args":["server.js"],"env":{"KEY":"value"}}`))
	require.NoError(t, err)
	require.Equal(t, "node", payload.Command)
	require.Equal(t, []string{"server.js"}, payload.Args)
}

func TestParseMCPServerPayloadURL(t *testing.T) {
	payload, err := ParseMCPServerPayload([]byte(`{"url":"https://example.com/mcp"}`))
	require.NoError(t, err)
	require.Equal(t, "https://example.com/mcp", payload.URL)
}

func TestParseMCPServerPayloadRequiresCommandOrURL(t *testing.T) {
	_, err := ParseMCPServerPayload([]byte(`{"args":["x"]}`))
	require.Error(t, err)
}

func TestParseMCPServerPayloadInvalidJSON(t *testing.T) {
	_, err := ParseMCPServerPayload([]byte(`not json`))
	require.Error(t, err)
}
