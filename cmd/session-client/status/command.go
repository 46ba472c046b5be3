package status

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/openkcm/session-client/internal/business"
	"github.com/openkcm/session-client/internal/cmdutils"
)

func Cmd(buildInfo string) *cobra.Command {
	return cmdutils.CobraCommand(
		"status",
		"Show the session status",
		"Prints the signed-in identity and the session state as YAML",
		buildInfo,
		cmdutils.RunAsJob,
		business.StatusMain(os.Stdout),
	)
}
