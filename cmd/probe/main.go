// cmd/probe/main.go
//
// probe runs a single filtered fetch against the Knack API so operators can
// verify credentials and filter fields before pointing the portal at them.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/vespa-academy/homepage-backend/internal/knack"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	var (
		object = flag.String("object", getenv("STUDENT_OBJECT", "object_3"), "Knack object to query")
		field  = flag.String("field", getenv("TARGET_FILTER_FIELD", "field_122"), "filter field code")
		value  = flag.String("value", "", "filter value (required)")
		rows   = flag.Int("rows", 5, "rows per page")
		page   = flag.Int("page", 1, "page to fetch")
	)
	flag.Parse()

	if *value == "" {
		logger.Error("missing -value")
		flag.Usage()
		os.Exit(2)
	}

	creds := knack.Credentials{
		ApplicationID: getenv("KNACK_APPLICATION_ID", ""),
		APIKey:        getenv("KNACK_API_KEY", ""),
	}
	if !creds.Valid() {
		logger.Error("KNACK_APPLICATION_ID and KNACK_API_KEY must be set")
		os.Exit(2)
	}

	client := knack.NewClient(getenv("KNACK_API_URL", knack.DefaultBaseURL))
	filter := knack.EqualityFilter(*field, *value)

	result, err := client.FetchRecords(context.Background(), creds, *object, filter, *page, *rows)
	if err != nil {
		logger.Error("fetch failed", "object", *object, "field", *field, "err", err)
		os.Exit(1)
	}

	logger.Info("fetch succeeded",
		"object", *object,
		"field", *field,
		"total_records", result.TotalRecords,
		"records_returned", len(result.Records),
	)
	for i, rec := range result.Records {
		logger.Info("sample record", "index", i, "id", rec.ID())
	}
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}
