// Package tool holds the outbound web helpers used by the canvas agent.
//
// WebFetch and ResourceFetcher download a page and reduce it to visible text
// with goquery. ResourceFetcher never returns an error: any failure is
// reported as the FetchError sentinel so callers can drop the resource.
//
//	f := tool.NewResourceFetcher(30 * time.Second)
//	if content := f.Fetch(ctx, "https://example.com"); content != tool.FetchError {
//		// use content
//	}
//
// BraveSearch queries the Brave Search API and returns plain-text results.
// The sanitizing helpers wrap shared bluemonday policies.
package tool
