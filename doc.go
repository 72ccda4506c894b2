// Package datakit is the data loading and result caching core for
// behavioral analytics dashboards.
//
// It loads large tabular exports in bounded chunks, identifies every
// dataset by the digest of its content rather than its path, and memoizes
// computation results in a two-tier (memory + disk) cache keyed by the
// fingerprint of (dataset content, computation, parameters).
//
// # Quick start
//
//	cfg := config.Default()
//	cfg.Cache.Dir = "/var/cache/datakit"
//
//	svc, err := datakit.Open(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer svc.Close()
//
//	handle, err := svc.LoadDataset(ctx, ingest.NewFileSource("posts.csv"),
//	    ingest.Options{Mode: table.ModeFull})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	stats, err := svc.UserStats(ctx, handle)
//
// Reloading the same bytes, from any path or upload, reuses every cached
// result; editing the file in place invalidates them all.
//
// Custom computations run through the gate with the same memoization and
// single-flight guarantees:
//
//	result, err := gate.Do(ctx, svc.Gate(), gate.Request{
//	    DatasetDigest: handle.Digest,
//	    ComputationID: "province_histogram",
//	    Params:        fingerprint.Params{"min_posts": 10},
//	}, computeHistogram)
package datakit
