package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/openmined/chunksync/internal/version"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

func TestVersionCommand_PrintsDetailedVersion(t *testing.T) {
	cmd := &cobra.Command{Use: "chunksync"}
	cmd.AddCommand(newVersionCmd())

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())
	require.Equal(t, version.Detailed(), strings.TrimSpace(out.String()))
}

func TestVersionCommand_System(t *testing.T) {
	out, code := runCLI(t, "version", "--system")
	require.Equal(t, 0, code, out)
	require.Contains(t, out, "kernel:")
	require.Contains(t, out, "os:")
}
