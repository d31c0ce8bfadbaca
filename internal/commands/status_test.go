package commands

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func TestNormalizeFlagType(t *testing.T) {
	require.Equal(t, "integer", normalizeFlagType("int64"))
	require.Equal(t, "boolean", normalizeFlagType("bool"))
	require.Equal(t, "string", normalizeFlagType("duration"))
	require.Equal(t, "string", normalizeFlagType("string"))
}

func TestTypedFlagDefault(t *testing.T) {
	require.Equal(t, true, typedFlagDefault("bool", "true"))
	require.Equal(t, 42, typedFlagDefault("int", "42"))
	require.Equal(t, "oops", typedFlagDefault("int", "oops"))
	require.Equal(t, "abc", typedFlagDefault("string", "abc"))
}

func TestIsRequiredFlag(t *testing.T) {
	reqByAnnotation := &pflag.Flag{Annotations: map[string][]string{cobra.BashCompOneRequiredFlag: {"true"}}}
	require.True(t, isRequiredFlag(reqByAnnotation))

	reqByUsage := &pflag.Flag{Usage: "Handoff id (required)"}
	require.True(t, isRequiredFlag(reqByUsage))

	notReq := &pflag.Flag{Usage: "optional flag"}
	require.False(t, isRequiredFlag(notReq))
}

func TestParseEnumValues(t *testing.T) {
	require.Equal(t, []string{"pending", "processing", "completed", "failed"}, parseEnumValues("Status: pending|processing|completed|failed"))
	require.Equal(t, []string{"chat", "email"}, parseEnumValues("Channel to route (chat, email)"))
	require.Nil(t, parseEnumValues("Example only (e.g. foo, bar)"))
	require.Nil(t, parseEnumValues(""))
}

func TestNormalizeEnumParts(t *testing.T) {
	require.Equal(t, []string{"a", "b"}, normalizeEnumParts([]string{" a ", "[b]", "skip me", "1.2"}))
	require.Nil(t, normalizeEnumParts([]string{"onlyone"}))
}

func TestBuildCommandSchema_CollectsFlagsAndRequired(t *testing.T) {
	root := &cobra.Command{Use: "agentcore"}
	root.PersistentFlags().String("tenant", "", "Tenant ID (required)")

	child := &cobra.Command{Use: "event", Short: "Event operations"}
	child.Flags().String("status", "pending", "Status: pending|processing|completed|failed")
	child.Flags().String("hidden-flag", "x", "hidden")
	require.NoError(t, child.Flags().MarkHidden("hidden-flag"))
	root.AddCommand(child)

	schema := buildCommandSchema(child)
	require.Equal(t, "agentcore event", schema.Command)
	require.Equal(t, "Event operations", schema.Description)

	props, ok := schema.ArgsSchema["properties"].(map[string]interface{})
	require.True(t, ok)
	require.Contains(t, props, "tenant")
	require.Contains(t, props, "status")
	require.NotContains(t, props, "hidden-flag")

	statusSchema, ok := props["status"].(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, []string{"pending", "processing", "completed", "failed"}, statusSchema["enum"])
	require.Equal(t, "pending", statusSchema["default"])

	required, ok := schema.ArgsSchema["required"].([]string)
	require.True(t, ok)
	require.Equal(t, []string{"tenant"}, required)
}

func TestCollectCommandSchemas_SkipsRootAndHidden(t *testing.T) {
	root := &cobra.Command{Use: "agentcore"}
	visible := &cobra.Command{Use: "handoff", Short: "Handoff operations"}
	hidden := &cobra.Command{Use: "internal", Hidden: true}
	root.AddCommand(visible, hidden)

	schemas := make([]commandArgSchema, 0)
	collectCommandSchemas(root, &schemas)

	require.Len(t, schemas, 1)
	require.Equal(t, "agentcore handoff", schemas[0].Command)
}
