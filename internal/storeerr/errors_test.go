package storeerr

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeDriverError struct{ code string }

func (e fakeDriverError) Error() string { return "fake driver error " + e.code }

func init() {
	RegisterExtractor(func(err error) (string, bool) {
		var fe fakeDriverError
		if errors.As(err, &fe) {
			return "fake:" + fe.code, true
		}
		return "", false
	})
	RegisterStorageCode("fake:dup", ErrCodeConflict)
}

func TestError_Message(t *testing.T) {
	err := NewConflict("roads", "r1", "expected state differs")
	assert.Equal(t, "CONFLICT: expected state differs (collection=roads, id=r1)", err.Error())

	nf := NewCollectionNotFound("roads")
	assert.Equal(t, "COLLECTION_NOT_FOUND: collection does not exist (collection=roads)", nf.Error())
}

func TestPredicates_SeeThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("write batch: %w", NewDuplicate("roads", "r1"))
	assert.True(t, IsDuplicate(wrapped))
	assert.False(t, IsConflict(wrapped))
	assert.Equal(t, ErrCodeDuplicateOperation, CodeOf(wrapped))
	assert.Equal(t, Code(""), CodeOf(errors.New("plain")))
}

func TestNewExecution_TranslatesRegisteredCodes(t *testing.T) {
	err := NewExecution("roads", "insert head", fakeDriverError{code: "dup"})
	assert.True(t, IsConflict(err))
	assert.ErrorIs(t, err, err.Err)

	other := NewExecution("roads", "insert head", fakeDriverError{code: "io"})
	assert.True(t, IsExecution(other))
	assert.True(t, strings.Contains(other.Error(), "fake driver error io"))
}

func TestTranslate_Nil(t *testing.T) {
	_, ok := Translate(nil)
	assert.False(t, ok)
}
