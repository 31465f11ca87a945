// Package ledger abstracts the synchronization-aware wallet client that the
// gateway's tools talk to. It defines the client interface, the sync status
// view used to qualify verification answers, and the decimal-string amount
// arithmetic shared by every implementation. Concrete chain clients live in
// subpackages such as ledger/ethereum.
package ledger
