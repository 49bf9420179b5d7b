package katanaerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesByKindOnly(t *testing.T) {
	err := Wrap(KindIntegrityCrc, "verify", "a.katana", errors.New("boom"))
	assert.True(t, errors.Is(err, ErrIntegrityCrc))
	assert.False(t, errors.Is(err, ErrIntegrityHmac))
}

func TestUnwrapExposesCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(KindIo, "write", "out.katana", cause)
	assert.Same(t, cause, errors.Unwrap(err))
}

func TestErrorMessageOmitsUnsetFields(t *testing.T) {
	err := New(KindConfig, "", "")
	assert.Equal(t, "config", err.Error())
}

func TestErrorMessageIncludesContext(t *testing.T) {
	err := WrapShard(KindIntegrityCrc, "verify", 3, errors.New("mismatch"))
	msg := err.Error()
	assert.Contains(t, msg, "integrity_crc")
	assert.Contains(t, msg, "verify")
	assert.Contains(t, msg, "shard 3")
	assert.Contains(t, msg, "mismatch")
}

func TestKindStringUnknown(t *testing.T) {
	assert.Equal(t, "unknown", Kind(999).String())
}
