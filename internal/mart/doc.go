// Package mart provides the transform-and-load core of the report pipeline.
//
// This package has no I/O dependencies of its own: extractors hand it typed
// records, and it hands a coerced row set to whatever [Connector] the caller
// wires in. It can be driven by the CLI, the HTTP trigger, the cron scheduler
// or tests without modification.
//
// # Stages
//
// The core is three pure transformations and one load step:
//
//  1. [Aggregate] groups [TelemetrySignal] rows by (user_id, date,
//     prosthesis_type, muscle_group) into [AggregatedTelemetryRecord] rows.
//  2. [BuildMart] left-joins the aggregates with the CRM dimension
//     ([CrmSet]) on user_id and projects the fixed [MartColumns] list.
//  3. [Coerce] converts every [MartRecord] into a store-ready [LoadRow].
//  4. [Loader.Load] coerces, opens one connection, appends all rows and
//     closes the connection.
//
// Each stage's output is the next stage's only input. There is no shared
// state between stages.
//
// # Join Gaps
//
// Telemetry for a user with no CRM row still produces a mart row; its CRM
// fields are nil. What happens to such a row is decided in exactly one place,
// the coercion step, by the configured [GapPolicy]:
//
//   - [GapFail]: the run fails with a [*CoercionError] wrapping [ErrJoinGap].
//   - [GapDefault]: the CRM fields load as "" and 0.
//
// # Error Kinds
//
//   - [ErrSourceMissing]: an input file does not exist.
//   - [ErrJoinGap]: a mart row has no CRM match.
//   - [*CoercionError]: a value cannot be cast to its column type.
//   - [*SinkWriteError]: the store rejected the batch.
package mart
