package password

import (
	"errors"
	"strings"
	"testing"

	"github.com/kubeusers/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestHasher(t *testing.T, algorithm string) *Hasher {
	t.Helper()
	h, err := NewHasher(algorithm, bcrypt.MinCost)
	require.NoError(t, err)
	// keep argon2 cheap in tests
	h.argon2.Memory = 1024
	return h
}

func TestNewHasher(t *testing.T) {
	tests := []struct {
		name          string
		algorithm     string
		cost          int
		expectedError bool
	}{
		{name: "bcrypt", algorithm: AlgorithmBcrypt, cost: bcrypt.DefaultCost},
		{name: "argon2id", algorithm: AlgorithmArgon2id, cost: 0},
		{name: "bcrypt cost too low", algorithm: AlgorithmBcrypt, cost: 1, expectedError: true},
		{name: "unknown algorithm", algorithm: "md5", cost: 10, expectedError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := NewHasher(tt.algorithm, tt.cost)
			if tt.expectedError {
				assert.Error(t, err)
				assert.Nil(t, h)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, h)
			}
		})
	}
}

func TestHasher_HashAndVerify(t *testing.T) {
	tests := []struct {
		name      string
		algorithm string
		prefix    string
	}{
		{name: "bcrypt", algorithm: AlgorithmBcrypt, prefix: "$2a$"},
		{name: "argon2id", algorithm: AlgorithmArgon2id, prefix: "$argon2id$v=19$"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHasher(t, tt.algorithm)

			hash, err := h.Hash("s3cret")
			require.NoError(t, err)

			assert.True(t, strings.HasPrefix(hash, tt.prefix), hash)
			assert.NotEqual(t, "s3cret", hash)
			assert.NotContains(t, hash, "s3cret")
			assert.True(t, h.Verify("s3cret", hash))
			assert.False(t, h.Verify("s3cret ", hash))
			assert.False(t, h.Verify("", hash))

			again, err := h.Hash("s3cret")
			require.NoError(t, err)
			assert.NotEqual(t, hash, again, "hashes must be salted")
		})
	}
}

func TestHasher_VerifyAcrossAlgorithms(t *testing.T) {
	bcryptHasher := newTestHasher(t, AlgorithmBcrypt)
	argonHasher := newTestHasher(t, AlgorithmArgon2id)

	bcryptHash, err := bcryptHasher.Hash("pw")
	require.NoError(t, err)
	argonHash, err := argonHasher.Hash("pw")
	require.NoError(t, err)

	assert.True(t, argonHasher.Verify("pw", bcryptHash))
	assert.True(t, bcryptHasher.Verify("pw", argonHash))
}

func TestHasher_VerifyMalformed(t *testing.T) {
	h := newTestHasher(t, AlgorithmBcrypt)

	for _, hash := range []string{
		"",
		"plaintext",
		"$2a$04$short",
		"$argon2id$v=19$m=1024,t=1,p=4$onlysalt",
		"$argon2id$v=18$m=1024,t=1,p=4$c2FsdA$a2V5",
		"$argon2id$v=19$m=x,t=1,p=4$c2FsdA$a2V5",
		"$argon2id$v=19$m=1024,t=1,p=4$!!!$a2V5",
		"$argon2id$v=19$m=65536,t=0,p=4$c2FsdHNhbHQ$a2V5a2V5a2V5",
		"$argon2id$v=19$m=65536,t=1,p=0$c2FsdHNhbHQ$a2V5a2V5a2V5",
		"$argon2id$v=19$m=0,t=1,p=4$c2FsdHNhbHQ$a2V5a2V5a2V5",
		"$argon2id$v=19$m=4294967295,t=1,p=4$c2FsdHNhbHQ$a2V5a2V5a2V5",
		"$argon2id$v=19$m=1024,t=4294967295,p=4$c2FsdHNhbHQ$a2V5a2V5a2V5",
		"$argon2id$v=19$m=1024,t=1,p=4$$a2V5a2V5a2V5",
	} {
		assert.False(t, h.Verify("pw", hash), hash)
	}
}

func TestHasher_PasswordTooLong(t *testing.T) {
	h := newTestHasher(t, AlgorithmBcrypt)

	_, err := h.Hash(strings.Repeat("a", 73))

	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrValidation))
}
