package ledger

import (
	"fmt"

	"github.com/nspcc-dev/neo-go/pkg/crypto/keys"
	"github.com/nspcc-dev/neo-go/pkg/util"
)

// Signer provides witnesses for invocations made on behalf of a single
// account. The account is identified by the script hash of the public key.
type Signer interface {
	// PublicKey returns the key the account is derived from.
	PublicKey() *keys.PublicKey

	// SignHash signs the invocation digest.
	SignHash(digest util.Uint256) ([]byte, error)
}

type keySigner struct {
	key *keys.PrivateKey
}

// NewSigner returns Signer backed by the given private key.
func NewSigner(key *keys.PrivateKey) Signer {
	return keySigner{key: key}
}

func (x keySigner) PublicKey() *keys.PublicKey {
	return x.key.PublicKey()
}

func (x keySigner) SignHash(digest util.Uint256) ([]byte, error) {
	return x.key.SignHash(digest), nil
}

// AuthContext carries the identity of the invocation sender. It is produced
// by the Ledger only after the sender's witness has been verified, so its
// Caller can be trusted by the method body. Read calls have an empty
// AuthContext.
type AuthContext struct {
	caller util.Uint160
	key    *keys.PublicKey
}

// Caller returns script hash of the verified sender.
func (x AuthContext) Caller() util.Uint160 {
	return x.caller
}

// PublicKey returns public key of the verified sender.
func (x AuthContext) PublicKey() *keys.PublicKey {
	return x.key
}

// Verified checks whether the context belongs to a verified sender.
func (x AuthContext) Verified() bool {
	return x.key != nil
}

// authenticate requests a witness for the digest from the signer and
// verifies it.
func authenticate(s Signer, digest util.Uint256) (AuthContext, error) {
	if s == nil {
		return AuthContext{}, fmt.Errorf("%w: missing signer", ErrWitnessFailed)
	}

	pub := s.PublicKey()
	if pub == nil {
		return AuthContext{}, fmt.Errorf("%w: missing public key", ErrWitnessFailed)
	}

	sig, err := s.SignHash(digest)
	if err != nil {
		return AuthContext{}, fmt.Errorf("%w: sign invocation: %v", ErrWitnessFailed, err)
	}

	if !pub.Verify(sig, digest.BytesBE()) {
		return AuthContext{}, fmt.Errorf("%w: invalid signature of %s", ErrWitnessFailed, pub.Address())
	}

	return AuthContext{
		caller: pub.GetScriptHash(),
		key:    pub,
	}, nil
}
