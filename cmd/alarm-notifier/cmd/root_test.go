package cmd

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestPublishCommand_Flags verifies the publish subcommand is wired with its flags.
func TestPublishCommand_Flags(t *testing.T) {
	t.Parallel()

	command, _, err := rootCmd.Find([]string{"publish"})
	require.NoError(t, err)
	require.Equal(t, "publish", command.Name())

	for _, name := range []string{"server", "active", "acked", "confirmed"} {
		require.NotNil(t, command.Flags().Lookup(name), name)
	}

	require.NotNil(t, rootCmd.PersistentFlags().Lookup("config"))
	require.NotNil(t, rootCmd.Flags().Lookup("retained-file"))
}
