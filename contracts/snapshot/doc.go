/*
Package snapshot contains implementation of the snapshot history contract.

The contract keeps an append-only history of network snapshots indexed by
epoch. Each epoch can be recorded once, records are never overwritten or
deleted. The greatest recorded epoch is tracked separately, so the latest
snapshot is available without history traversal; submissions may arrive in
any epoch order.

Submissions are allowed for the admin set on initialization or, if the
admin has bound the access control contract, for accounts permitted to call
submitSnapshot there. The binding is kept in the contract storage, so clients
cannot grant themselves access by providing another access control contract. The admin can pause the contract: paused contract rejects
every submission, while reads are never gated.

# Contract notifications

Initialized notification. This notification is produced once when the admin
is set.

	Initialized
	  - name: admin
	    type: Hash160

SnapshotSubmitted notification. This notification is produced when a new
epoch is recorded.

	SnapshotSubmitted
	  - name: epoch
	    type: Integer
	  - name: hash
	    type: Hash256
	  - name: recordedAt
	    type: Integer

Paused notification. This notification is produced when the active contract
is paused.

	Paused
	  - name: admin
	    type: Hash160

Unpaused notification. This notification is produced when the paused contract
is resumed.

	Unpaused
	  - name: admin
	    type: Hash160

AccessControlBound notification. This notification is produced when the
admin binds the access control contract.

	AccessControlBound
	  - name: contract
	    type: Integer

AccessControlUnbound notification. This notification is produced when the
admin removes the binding.

	AccessControlUnbound
	  - name: contract
	    type: Integer

# Contract storage scheme

Instance storage:

	| Key             | Value                                  |
	+-----------------+----------------------------------------+
	| "admin"         | admin script hash                      |
	| "paused"        | 0x01 if paused, 0x00 otherwise         |
	| "latestEpoch"   | greatest recorded epoch (8 bytes)      |
	| "version"       | contract version (uint32 BE)           |
	| "accessControl" | bound access control ID (int32 LE)     |

Persistent storage:

	| Key                         | Value                        |
	+-----------------------------+------------------------------+
	| 's' + epoch (8 bytes, BE)   | serialized Metadata struct   |
*/
package snapshot
