// Package tenant maps tenant identifiers onto the storage namespaces that
// back them and keeps request handling pinned to the right one.
//
// Every tenant gets a namespace id derived from its enterprise UUID, and
// from that a relational schema and a document database name. Resolution
// goes through a Resolver that checks the id against live enterprises and
// memoizes the answer; request handlers then check out schema-pinned
// connections with ScopedConn. The Provisioner creates and drops the
// per-tenant schemas themselves and is only reachable from operator
// tooling.
package tenant
