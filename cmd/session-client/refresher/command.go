package refresher

import (
	"github.com/spf13/cobra"

	"github.com/openkcm/session-client/internal/business"
	"github.com/openkcm/session-client/internal/cmdutils"
)

func Cmd(buildInfo string) *cobra.Command {
	return cmdutils.CobraCommand(
		"refresher",
		"Session Client Token Refresh job",
		"Session Client Token Refresh job keeps the access token of the signed-in user fresh",
		buildInfo,
		cmdutils.RunAsService,
		business.RefresherMain,
	)
}
