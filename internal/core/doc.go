// Package core provides the business logic for policy import jobs.
//
// This package contains the import pipeline independent of any transport.
// It is used by the HTTP server, the policyctl CLI and tests without
// modification.
//
// # Architecture
//
//   - Entity Definitions: registered via the registry (see package tables),
//     each kind has a table, columns with normalizers, and a unique key.
//   - Resolver: get-or-create by unique key, and upsert.
//   - RowProcessor: normalizes one row and resolves agent, user, account,
//     line of business and carrier before upserting the policy.
//   - ProcessFile: decodes a whole file and drives the rows, reporting
//     progress every [ProgressInterval] rows.
//   - Spawn / Await: run ProcessFile in an isolated worker with its own store
//     connection and translate its message stream into a [Response].
//   - Service: job registry with a concurrency limit, subscriptions and
//     result retention.
//   - QueryService: search, per-user aggregation and store status.
//
// # Entity Registry
//
// Entities are registered at init time using [Register]:
//
//	core.Register(core.EntityDefinition{
//	    Info:      core.EntityInfo{Kind: core.KindCarrier, Table: "carriers"},
//	    Columns:   []core.Column{{Name: core.ColCompanyName, Normalizer: strings.TrimSpace}},
//	    UniqueKey: []string{core.ColCompanyName},
//	})
//
// # Worker Protocol
//
// A worker emits progress messages, then exactly one complete or error
// message, then closes its channel:
//
//	{"type":"progress","message":"Processing 250 records..."}
//	{"type":"progress","message":"Processed 100/250 records..."}
//	{"type":"progress","message":"Processed 200/250 records..."}
//	{"type":"complete","processed":249,"total":250,"errors":[{"row":7,"error":"..."}]}
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each error category has a code for support reference (DB, VAL, FILE, UPL,
// QRY, RATE).
package core
