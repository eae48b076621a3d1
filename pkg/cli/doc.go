/*
Package cli provides command-line helpers for the governor command.

Output Formatting:

Results are written as indented JSON or, for text output, as a table:

	tbl := cli.KeyValues("State", "read_only_mode", st.ReadOnlyMode)
	if err := cli.Print(os.Stdout, format, st, tbl); err != nil {
		return err
	}

Exit Codes:

ExitCode maps an error to the process exit status by its governance kind:
Invalid exits 2, Blocked 3, NotFound 4 and anything else 1.

Signal Handling:

For graceful shutdown on SIGINT/SIGTERM:

	ctx, stop := cli.SetupSignalHandler(context.Background())
	defer stop()
*/
package cli
