// Package txtrack maintains the authoritative local record of every
// submitted transfer and its lifecycle state. Records move strictly forward
// through INITIATED, SENT and the terminal COMPLETED/FAILED states; a
// settlement watcher reconciles SENT records against the eventually
// consistent ledger through a pluggable confirmation queue. Storage drivers
// exist for memory, SQLite and MySQL.
package txtrack
