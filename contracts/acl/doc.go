/*
Package acl contains implementation of the access control contract.

The contract is a role-based authorization oracle reusable by any protected
method of any contract on the same ledger. Roles are attached to accounts,
permissions to call named methods are attached to roles. The root admin set
on initialization, as well as any holder of the Admin role, passes every
permission check without explicit grants.

Protected methods of other contracts authenticate the sender first (the
ledger does it before the method body runs) and then ask the contract through
Permitted within the same invocation, so a failed check aborts the whole call
before any write.

All mutations are admin only and idempotent.

# Contract notifications

RoleGranted notification. This notification is produced when the account
receives a role it did not hold.

	RoleGranted
	  - name: account
	    type: Hash160
	  - name: role
	    type: Integer

RoleRevoked notification. This notification is produced when the account
loses a role it held.

	RoleRevoked
	  - name: account
	    type: Hash160
	  - name: role
	    type: Integer

PermissionGranted notification. This notification is produced when the role
is allowed to call the method.

	PermissionGranted
	  - name: role
	    type: Integer
	  - name: method
	    type: String

PermissionRevoked notification. This notification is produced when the
method is taken away from the role.

	PermissionRevoked
	  - name: role
	    type: Integer
	  - name: method
	    type: String

# Contract storage scheme

Instance storage:

	| Key       | Value                        |
	+-----------+------------------------------+
	| "admin"   | root admin script hash       |
	| "version" | contract version (uint32 BE) |

Persistent storage:

	| Key                           | Value |
	+-------------------------------+-------+
	| 'r' + account (20) + role (1) | 0x01  |
	| 'p' + role (1) + method       | 0x01  |
*/
package acl
