// Command status is a read-only companion to cmd/driver: it opens the same
// submission-history store and prints whatever slice of it the operator
// asks for. It exists so internal/db's query helpers (GetLatestSolution,
// GetSolutionsByTimeRange, GetSolutionsByOutcome, CountSolutions) have a
// real caller instead of sitting unused behind RecordSubmission.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ChoSanghyuk/dexdriver/configs"
	"github.com/ChoSanghyuk/dexdriver/internal/db"
)

func main() {
	configPath := flag.String("config", "configs/config.yml", "path to config.yml")
	latest := flag.Bool("latest", false, "print the most recent submission")
	since := flag.String("since", "", "RFC3339 start of a time-range query, e.g. 2026-07-01T00:00:00Z")
	until := flag.String("until", "", "RFC3339 end of a time-range query; defaults to now if -since is set")
	outcome := flag.String("outcome", "", "filter by outcome: submitted, cancelled, or skipped")
	count := flag.Bool("count", false, "print the total number of recorded submissions")
	flag.Parse()

	cfg, err := configs.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}

	recorder, err := db.NewMySQLRecorder(cfg.Database.DSN)
	if err != nil {
		fmt.Fprintln(os.Stderr, "connect to submission history store:", err)
		os.Exit(1)
	}
	defer recorder.Close()

	ran := false

	if *count {
		ran = true
		n, err := recorder.CountSolutions()
		if err != nil {
			fmt.Fprintln(os.Stderr, "count:", err)
			os.Exit(1)
		}
		fmt.Printf("total submissions recorded: %d\n", n)
	}

	if *outcome != "" {
		ran = true
		records, err := recorder.GetSolutionsByOutcome(db.Outcome(*outcome))
		if err != nil {
			fmt.Fprintln(os.Stderr, "query by outcome:", err)
			os.Exit(1)
		}
		printRecords(records)
	}

	if *since != "" {
		ran = true
		start, err := time.Parse(time.RFC3339, *since)
		if err != nil {
			fmt.Fprintln(os.Stderr, "parse -since:", err)
			os.Exit(1)
		}
		end := time.Now()
		if *until != "" {
			end, err = time.Parse(time.RFC3339, *until)
			if err != nil {
				fmt.Fprintln(os.Stderr, "parse -until:", err)
				os.Exit(1)
			}
		}
		records, err := recorder.GetSolutionsByTimeRange(start, end)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query by time range:", err)
			os.Exit(1)
		}
		printRecords(records)
	}

	if *latest || !ran {
		record, err := recorder.GetLatestSolution()
		if err != nil {
			fmt.Fprintln(os.Stderr, "latest submission:", err)
			os.Exit(1)
		}
		printRecords([]db.SubmittedSolutionRecord{*record})
	}
}

func printRecords(records []db.SubmittedSolutionRecord) {
	for _, r := range records {
		fmt.Printf("%s  batch=%d  outcome=%-9s  mined=%-5t  gas_price=%s  tx=%s\n",
			r.Timestamp.Format(time.RFC3339), r.BatchID, r.Outcome, r.Mined, r.GasPrice, r.TxHash)
	}
}
