// Package query implements the batch query engine for the MediaWiki Action
// API: chunking of oversized title lists, continuation-following drivers,
// concurrent batch aggregation, and lazy result streaming.
//
// The API caps the number of titles per request (50, or 500 with bot rights)
// and pages large result sets through opaque "continue" cursors. This package
// hides both mechanisms behind two consumption models:
//
//   - Aggregate: run one descriptor over any number of titles and get back a
//     single map from title to results, with chunking and continuation
//     handled internally.
//   - Stream: scan one unbounded query (e.g. all members of a category)
//     through a pull iterator that fetches pages on demand.
//
// Example usage:
//
//	actions := query.NewActions(apiClient, query.DefaultOptions())
//	cats, err := actions.CategoriesOnPage(ctx, titles)
//
//	members := actions.CategoryMembers("Category:Maps", "")
//	for members.Next(ctx) {
//		fmt.Println(members.Unit().Item.Title)
//	}
//	if err := members.Err(); err != nil {
//		return err
//	}
//
// The engine:
//   - Splits title lists into order-preserving chunks within the size limit
//   - Runs one continuation driver per chunk, bounded by a concurrency limit
//   - Merges partial results keyed by the original (denormalized) title
//   - Caps continuation steps as a safety net against runaway pagination
//
// Transport, retry and caching live behind the Invoker interface; the engine
// issues logical requests and never touches HTTP.
package query
