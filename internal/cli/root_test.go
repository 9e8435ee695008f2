package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd(t *testing.T) {
	t.Run("should expose the expected subcommands", func(t *testing.T) {
		names := map[string]bool{}
		for _, c := range RootCmd().Commands() {
			names[c.Name()] = true
		}
		assert.True(t, names["chat"])
		assert.True(t, names["ask"])
		assert.True(t, names["status"])
	})

	t.Run("should print the version", func(t *testing.T) {
		var out bytes.Buffer
		cmd := RootCmd()
		cmd.SetOut(&out)
		cmd.SetArgs([]string{"--version"})

		require.NoError(t, cmd.Execute())
		assert.Contains(t, out.String(), version)
	})
}
