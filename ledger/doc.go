/*
Package ledger provides the execution host the registry contracts run on.

The host keeps all contract data in a single neo-go storage.Store. Every
contract registered with Deploy gets a numeric ID and two storage tiers carved
out of the store by key prefix:

  - instance storage for small, frequently read scalars (admin, pause flag,
    latest epoch pointer);
  - persistent storage for the full historical data.

State-changing calls go through Invoke. An invocation verifies the witness of
its sender before running the method body, executes the body over a private
MemCachedStore and either persists all of its writes in one batch or drops
them, so callers never observe partial results. Invocations are serialized,
there is exactly one writer at a time. Read calls go through Read and never
change the store.

# Storage layout

	0x01                          current height (uint32 LE)
	0x02                          timestamp of the last invocation (uint64 LE)
	0x03 | name                   contract ID (int32 LE)
	0x04                          next contract ID (int32 LE)
	0x70 | ID (int32 LE) | tier | key   contract storage item

Tier byte is 'i' for instance and 'p' for persistent storage.
*/
package ledger
