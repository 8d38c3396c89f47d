// Package internaldefs holds the metric names and bucket boundaries shared by
// the credflow exporters.
//
// Both the Prometheus and OTel exporters read from here so they publish
// identical names. Changing a definition changes every exporter.
//
// # What this package must NOT do
//
//   - Import any exporter package.
//   - Perform I/O.
package internaldefs
