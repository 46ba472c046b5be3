package clearcache

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/openkcm/session-client/internal/business"
	"github.com/openkcm/session-client/internal/cmdutils"
)

func Cmd(buildInfo string) *cobra.Command {
	return cmdutils.CobraCommand(
		"clear",
		"Clear the local session cache",
		"Deletes every identity provider entry from the local session cache",
		buildInfo,
		cmdutils.RunAsJob,
		business.ClearMain(os.Stdout),
	)
}
