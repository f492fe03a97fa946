package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/trezcool/admissions/core/enrollment"
)

// runBackfill prints the run summary, then one line per learner that was not provisioned.
func (cli *commandLine) runBackfill(ctx context.Context) error {
	report, err := cli.backfill.Run(ctx)
	if err != nil {
		return errors.Wrap(err, "running backfill")
	}

	fmt.Fprintln(cli.out, report.String())
	for _, entry := range report.Entries {
		switch {
		case entry.Outcome != enrollment.OutcomeApplied:
			fmt.Fprintf(cli.out, "  %s: %s (%s)\n", entry.LearnerID, entry.Outcome, entry.Error)
		case !entry.Notified:
			fmt.Fprintf(cli.out, "  %s: account %s created, credentials not delivered\n", entry.LearnerID, entry.AccountID)
		}
	}
	return nil
}
