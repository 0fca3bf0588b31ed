// Package commerce is the boundary to the hosted commerce API.
//
// Ownership boundary:
// - catalog, cart, checkout, payment and customer calls
// - translation between the remote wire shape and local types
// - mapping every remote failure to *UpstreamError
//
// The package owns no state. Products, carts, prices and orders live in the
// remote service; nothing here retries, caches or validates business rules.
package commerce
