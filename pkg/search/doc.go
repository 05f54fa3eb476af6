// Package search combines a search provider with the history store.
//
// # Overview
//
// Service is the single entry point used by the HTTP API. A search asks the
// provider for results and, only when the provider succeeds, records the
// query in the history. The history write runs in the background: a slow or
// failing disk never delays or fails the search response, it is only logged.
//
// History management (list, remove, clear) passes straight through to the
// repository and reports its errors to the caller.
//
// # Usage
//
//	svc := search.NewService(provider.NewDuckDuckGo(provider.DuckDuckGoConfig{}), store)
//	defer svc.Wait()
//
//	q, err := search.ValidateQuery(r.URL.Query().Get("q"))
//	if err != nil {
//		// 400
//	}
//	results, err := svc.Search(ctx, q)
//
// # Query validation
//
// ValidateQuery trims surrounding whitespace and accepts between 1 and
// core.MaxQueryLength characters. Anything else is reported as
// ErrInvalidQuery so transports can map it to a client error.
package search
