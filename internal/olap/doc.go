// Package olap stores and reads the report mart in ClickHouse.
//
// Connector satisfies mart.Connector for the loader. Reader serves the
// per-user report queries of the HTTP API. Table names are validated before
// they are placed into SQL; every other value is bound as a parameter.
package olap
