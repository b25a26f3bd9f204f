package op

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestParseKind tests name resolution for operation kinds.
func TestParseKind(t *testing.T) {
	tests := []struct {
		in   string
		want Kind
		err  bool
	}{
		{"insert", Insert, false},
		{"InsertOrUpdate", InsertOrUpdate, false},
		{"insert-or-update-or-delete", InsertOrUpdateOrDelete, false},
		{" Truncate ", Truncate, false},
		{"merge", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseKind(tt.in)
			if tt.err {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// TestKind_MatchesRows tests which kinds require a match key.
func TestKind_MatchesRows(t *testing.T) {
	assert.False(t, Insert.MatchesRows())
	assert.False(t, Truncate.MatchesRows())
	assert.True(t, Update.MatchesRows())
	assert.True(t, Read.MatchesRows())
	assert.True(t, InsertOrUpdateOrDelete.MatchesRows())
}

// TestOptions_Defaults tests the baseline switches and derived values.
func TestOptions_Defaults(t *testing.T) {
	o := Defaults()
	assert.True(t, o.PreserveInsertOrder)
	assert.True(t, o.WithHoldlock)
	assert.True(t, o.UniqueTableNameTempDB)
	assert.Equal(t, DefaultBatchSize, o.EffectiveBatchSize())
	assert.Equal(t, DefaultBatchSize, o.EffectiveNotifyAfter())

	o.BatchSize = 0
	o.NotifyAfter = 10
	assert.Equal(t, DefaultBatchSize, o.EffectiveBatchSize())
	assert.Equal(t, 10, o.EffectiveNotifyAfter())

	assert.False(t, o.SkipUpdate())
	o.PropertiesToIncludeOnUpdate = []string{""}
	assert.True(t, o.SkipUpdate())
}

// TestError_Is tests sentinel matching through wrapping.
func TestError_Is(t *testing.T) {
	err := fmt.Errorf("failed to merge: %w", Unsupported(InsertOrUpdateOrDelete, "mysql"))

	assert.True(t, errors.Is(err, ErrUnsupportedOperation))
	assert.False(t, errors.Is(err, ErrInvalidConfig))
	assert.Contains(t, err.Error(), "insert_or_update_or_delete is not supported on mysql")

	var bulkErr *Error
	assert.True(t, errors.As(err, &bulkErr))
	assert.Equal(t, "mysql", bulkErr.Engine)
}

// TestError_Keys tests that ambiguous key tuples are listed in the message.
func TestError_Keys(t *testing.T) {
	err := &Error{Reason: ReasonAmbiguousOutputIdentity, Message: "2 keys matched more than one row", Keys: []string{"(A)", "(B)"}}
	assert.Equal(t, "bulk: ambiguous-output-identity: 2 keys matched more than one row (keys: (A), (B))", err.Error())
}

// TestStats_Add tests summing stats.
func TestStats_Add(t *testing.T) {
	s := Stats{Inserted: 1, Updated: 2}.Add(Stats{Deleted: 3, Inserted: 1})
	assert.Equal(t, Stats{Inserted: 2, Updated: 2, Deleted: 3}, s)
	assert.Equal(t, int64(7), s.Total())
}
