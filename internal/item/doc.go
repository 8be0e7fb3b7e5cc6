// Package item provides the typed record model persisted by cnvyr.
//
// An item type is declared once with Define, which produces a Descriptor: the
// ordered list of fields with their kinds and nullability. Descriptors are
// built at definition time and reused; nothing is inspected per call.
//
// Items are immutable values. New validates every field against the
// descriptor, so an Item that exists is always well typed. Equality and
// hashing compare content only; the surrogate id assigned by the store is
// carried alongside but never participates.
//
// Every descriptor starts with the identity fields:
//   - created: creation time, normalized to UTC
//   - digest: content digest of the payload the item refers to
//
// Both are required and can never be changed by an update.
package item
