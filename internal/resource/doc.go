// Package resource enforces the process-wide memory and disk IO budgets
// shared by the chunked ingestor and the cache tiers.
package resource
