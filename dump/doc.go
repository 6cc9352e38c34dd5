/*
Package dump provides I/O operations for the collected ledger states.

A dump holds registered contracts along with their storage items at some
ledger height. Dumps are meant for audit of the snapshot history and for
reproduction of the ledger state in tests. The package works with dumps
stored in the file system using human-readable encoding.
*/
package dump
