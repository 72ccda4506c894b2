package datakit_test

import (
	"context"
	"fmt"
	"log"

	datakit "github.com/behaviorlab/datakit"
	"github.com/behaviorlab/datakit/config"
	"github.com/behaviorlab/datakit/ingest"
	"github.com/behaviorlab/datakit/table"
)

func Example() {
	ctx := context.Background()

	svc, err := datakit.Open(config.Default(), datakit.WithLogger(datakit.NoopLogger()))
	if err != nil {
		log.Fatal(err)
	}
	defer svc.Close()

	csv := "user_id,publish_time,like_count\n" +
		"u1,2026-01-05 09:30:00,100\n" +
		"u1,2026-01-10 22:00:00,50\n" +
		"u2,2026-01-11 08:00:00,5\n"

	handle, err := svc.LoadDataset(ctx,
		ingest.NewUploadSource("posts.csv", []byte(csv)),
		ingest.Options{Mode: table.ModeFull})
	if err != nil {
		log.Fatal(err)
	}

	stats, err := svc.UserStats(ctx, handle)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("users=%d posts=%d top=%s\n",
		stats.TotalUsers, stats.TotalPosts, stats.Users[0].UserID)
	// Output: users=2 posts=3 top=u1
}
