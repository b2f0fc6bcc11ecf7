// Package pagination provides lazy retrieval of offset/limit paginated collections.
//
// Sources such as the Zotero web API declare the collection size on every
// response (Total-Results) and accept start/limit parameters. The paginator
// requests the first page at offset 0, freezes the declared total, and keeps
// requesting pages until the offset reaches it.
//
// Example usage:
//
//	p := pagination.New[item.Item](zoteroClient, pagination.DefaultConfig())
//	for it, err := range p.FetchAll(ctx, "collections/ABCD1234/items") {
//		if err != nil {
//			return err // *failure.FetchError
//		}
//		...
//	}
//
// The paginator:
//   - Fetches one page at a time by default
//   - Optionally fetches pages concurrently and reorders them before yielding
//   - Rejects pages that contradict the frozen total (protocol error)
//   - Treats any page error as fatal (no retry, no partial success)
package pagination
