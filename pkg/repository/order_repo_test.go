package repository

import (
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestIsDuplicateError(t *testing.T) {
	dup := &mysql.MySQLError{Number: 1062, Message: "Duplicate entry '1001-5' for key 'uk_user_voucher'"}

	assert.True(t, isDuplicateError(dup))
	// errors.As 能穿透包装层
	assert.True(t, isDuplicateError(errors.Wrap(dup, "insert order")))

	assert.False(t, isDuplicateError(&mysql.MySQLError{Number: 1213, Message: "Deadlock found"}))
	assert.False(t, isDuplicateError(errors.New("not a mysql error")))
	assert.False(t, isDuplicateError(nil))
}
