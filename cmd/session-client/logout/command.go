package logout

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/openkcm/session-client/internal/business"
	"github.com/openkcm/session-client/internal/cmdutils"
)

func Cmd(buildInfo string) *cobra.Command {
	return cmdutils.CobraCommand(
		"logout",
		"Sign out",
		"Signs the user out at the identity provider and clears the local session cache",
		buildInfo,
		cmdutils.RunAsJob,
		business.LogoutMain(os.Stdout),
	)
}
