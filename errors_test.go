package near

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStorageError(t *testing.T) {
	cause := errors.New("disk on fire")
	err := WrapStorage("put", 7, cause)

	assert.ErrorIs(t, err, ErrStorageUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "storage put 7: disk on fire", err.Error())

	// Wrapping twice keeps the first operation.
	again := WrapStorage("scan", 0, fmt.Errorf("load: %w", err))
	var se *StorageError
	assert.ErrorAs(t, again, &se)
	assert.Equal(t, "put", se.Op)

	assert.NoError(t, WrapStorage("get", 1, nil))
}

func TestIsExpected(t *testing.T) {
	assert.True(t, IsExpected(fmt.Errorf("flat: %w", ErrDuplicateID)))
	assert.True(t, IsExpected(ErrNotFound))
	assert.False(t, IsExpected(ErrStorageUnavailable))
	assert.False(t, IsExpected(&DimensionMismatchError{Expected: 1, Actual: 2}))
}

func TestValidateK(t *testing.T) {
	assert.NoError(t, ValidateK(1))
	assert.ErrorIs(t, ValidateK(0), ErrInvalidK)
	assert.ErrorIs(t, ValidateK(-3), ErrInvalidK)
}

func TestSortResults(t *testing.T) {
	res := []Result{{ID: 3, Distance: 1}, {ID: 1, Distance: 2}, {ID: 2, Distance: 1}, {ID: 0, Distance: 0.5}}
	SortResults(res)
	assert.Equal(t, []Result{{ID: 0, Distance: 0.5}, {ID: 2, Distance: 1}, {ID: 3, Distance: 1}, {ID: 1, Distance: 2}}, res)
}

func TestSortResultsNaNLast(t *testing.T) {
	res := []Result{{ID: 1, Distance: math.NaN()}, {ID: 3, Distance: 4}, {ID: 2, Distance: -1}}
	SortResults(res)
	assert.Equal(t, []ID{2, 3, 1}, []ID{res[0].ID, res[1].ID, res[2].ID})
	assert.True(t, math.IsNaN(res[2].Distance))
}

func TestRecordClone(t *testing.T) {
	r := Record{ID: 1, Vector: []float32{1, 2}, Metadata: []byte("m")}
	c := r.Clone()
	c.Vector[0] = 9
	c.Metadata[0] = 'x'
	assert.Equal(t, []float32{1, 2}, r.Vector)
	assert.Equal(t, []byte("m"), r.Metadata)
}
