// Package pagination walks paged Graph collections.
//
// Graph returns at most $top items per page and, when more remain, an
// absolute "@odata.nextLink" URL that already carries every query option
// plus an opaque $skiptoken. The walker issues the first request with the
// caller's query, then follows each continuation verbatim until none is
// returned.
//
// Example usage:
//
//	walker := pagination.NewWalker(graphClient, pagination.DefaultConfig(), logger)
//	items, err := walker.FetchAll(ctx, "users", partition.TopQuery(999))
//
// The walker:
//   - Appends items in page order
//   - Stops after the first page when chasing is disabled
//   - Fails with ErrTooManyPages when MaxPages is exceeded
//   - Returns the first error unchanged (no partial data)
package pagination
