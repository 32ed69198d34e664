package cli

import (
	"github.com/spf13/cobra"

	"helixhub/internal/output"
)

func newStatusCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status [client-id]",
		Short: "Show local notice status",
		Long: `Show the local notice status for every client, or the matters of one client.

Only the local store is read; the server is not contacted.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return showNotice(app, args[0])
			}
			return listNotices(app)
		},
	}
}

func listNotices(app *App) error {
	clients, err := app.NoticeReader.ListClients()
	if err != nil {
		app.Printer.Banner(err)
		return NewExitError(1)
	}

	rows := make([]output.NoticeRow, 0, len(clients))
	for _, id := range clients {
		notice, err := app.NoticeReader.GetNotice(id)
		if err != nil {
			app.Printer.Banner(err)
			return NewExitError(1)
		}
		rows = append(rows, output.NoticeRow{
			ClientID: id,
			Status:   string(notice.Status),
			CCLDate:  notice.CCLDate,
			Matters:  len(notice.Matters),
		})
	}

	app.Printer.Notices(rows)
	return nil
}

func showNotice(app *App, clientID string) error {
	notice, err := app.NoticeReader.GetNotice(clientID)
	if err != nil {
		app.Printer.Banner(err)
		return NewExitError(1)
	}

	app.Printer.Notices([]output.NoticeRow{{
		ClientID: clientID,
		Status:   string(notice.Status),
		CCLDate:  notice.CCLDate,
		Matters:  len(notice.Matters),
	}})
	app.Printer.MatterRefs(notice.Matters)
	return nil
}
