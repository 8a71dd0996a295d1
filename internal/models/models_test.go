package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotIDAcceptsNumbersAndStrings(t *testing.T) {
	var rec SnapshotEnrollment
	require.NoError(t, json.Unmarshal([]byte(`{"id":7,"student_id":"abc","course_id":12,"enroll_date":null}`), &rec))
	assert.Equal(t, SnapshotID("7"), rec.ID)
	assert.Equal(t, SnapshotID("abc"), rec.StudentID)
	assert.Equal(t, SnapshotID("12"), rec.CourseID)
	assert.Nil(t, rec.EnrollDate)
}

func TestSnapshotPaymentNullCourse(t *testing.T) {
	var rec SnapshotPayment
	require.NoError(t, json.Unmarshal([]byte(`{"id":1,"student_id":2,"course_id":null,"amount_due":"150.50","amount_paid":100}`), &rec))
	assert.Nil(t, rec.CourseID)
	assert.Nil(t, rec.CategoryID)
	assert.InDelta(t, 150.5, float64(rec.AmountDue), 0.0001)
	assert.InDelta(t, 100, float64(rec.AmountPaid), 0.0001)
}

func TestFlexFloatRejectsGarbage(t *testing.T) {
	var f FlexFloat
	assert.Error(t, json.Unmarshal([]byte(`"abc"`), &f))
}

func TestPaymentDerivedAmounts(t *testing.T) {
	d := PaymentDetail{Payment: Payment{AmountDue: 200, AmountPaid: 50}}
	d.Derive()
	assert.Equal(t, 150.0, d.RemainingAmount)
	assert.Equal(t, 25.0, d.PaidPercentage)

	zero := Payment{AmountPaid: 10}
	assert.Equal(t, 0.0, zero.Percentage())
}

func TestAttendanceCountsPercent(t *testing.T) {
	c := AttendanceCounts{Present: 3, Absent: 1, Total: 4}
	c.ComputePercent()
	assert.Equal(t, 75.0, c.Percent)

	empty := AttendanceCounts{}
	empty.ComputePercent()
	assert.Equal(t, 0.0, empty.Percent)
}

func TestResetScopeValid(t *testing.T) {
	assert.True(t, ResetAll.Valid())
	assert.True(t, ResetScope("payment_categories").Valid())
	assert.False(t, ResetScope("users").Valid())
}

func TestStudentFullName(t *testing.T) {
	assert.Equal(t, "Ada Lovelace", Student{FirstName: "Ada", LastName: "Lovelace"}.FullName())
	assert.Equal(t, "Ada", Student{FirstName: "Ada"}.FullName())
}

func TestAuditLogBuilder(t *testing.T) {
	entry := NewAuditLog(AuditActionPaymentDelete, "payment").
		ByClaims(&JWTClaims{UserID: "u-1"}).
		On("p-9").
		FromSystem("payment-service").
		Change(map[string]int{"amount": 500}, nil)

	require.NotNil(t, entry.UserID)
	assert.Equal(t, "u-1", *entry.UserID)
	require.NotNil(t, entry.ResourceID)
	assert.Equal(t, "p-9", *entry.ResourceID)
	assert.Equal(t, "system", entry.IPAddress)
	assert.Equal(t, "payment-service", entry.UserAgent)
	assert.JSONEq(t, `{"amount":500}`, string(entry.OldValues))
	assert.Nil(t, entry.NewValues)
}

func TestAuditLogBuilderAnonymous(t *testing.T) {
	entry := NewAuditLog(AuditActionLogin, "auth").ByClaims(nil).On("")
	assert.Nil(t, entry.UserID)
	assert.Nil(t, entry.ResourceID)
}

func TestParseRole(t *testing.T) {
	role, ok := ParseRole(" Accountant ")
	assert.True(t, ok)
	assert.Equal(t, RoleAccountant, role)

	_, ok = ParseRole("principal")
	assert.False(t, ok)
}

func TestNewPaginationClamps(t *testing.T) {
	p := NewPagination(0, 500, 45)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, DefaultPageSize, p.PageSize)
	assert.Equal(t, 3, p.TotalPages)
	assert.Equal(t, 0, p.Offset())

	assert.Equal(t, 40, NewPagination(3, 20, 45).Offset())
	assert.Equal(t, 0, NewPagination(1, 10, 0).TotalPages)
}
