package appointment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOverlaps(t *testing.T) {
	tests := []struct {
		name           string
		a1, a2, b1, b2 string
		want           bool
	}{
		{"partial overlap", "09:00", "09:30", "09:15", "09:45", true},
		{"adjacent after", "09:00", "09:30", "09:30", "10:00", false},
		{"adjacent before", "09:30", "10:00", "09:00", "09:30", false},
		{"contained", "09:00", "10:00", "09:15", "09:30", true},
		{"identical", "09:00", "09:30", "09:00", "09:30", true},
		{"disjoint", "09:00", "09:30", "11:00", "11:30", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a1, _ := ParseClock(tt.a1)
			a2, _ := ParseClock(tt.a2)
			b1, _ := ParseClock(tt.b1)
			b2, _ := ParseClock(tt.b2)
			assert.Equal(t, tt.want, Overlaps(a1, a2, b1, b2))
			assert.Equal(t, tt.want, Overlaps(b1, b2, a1, a2))
		})
	}
}

func TestConflictsOnlyCountsActiveConsultations(t *testing.T) {
	c := fixedChecker()

	surgery := Appointment{ID: "s", Date: "2025-03-10", StartTime: "09:00", EndTime: "11:00", Type: "surgery"}
	cancelled := consultation("x", "2025-03-10", "09:00")
	cancelled.StatusCode = StatusCancelled
	otherDay := consultation("o", "2025-03-11", "09:00")
	booked := consultation("b", "2025-03-10", "09:15")

	conflicts, err := c.Conflicts("2025-03-10", "09:00", []Appointment{surgery, cancelled, otherDay, booked})
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "b", conflicts[0].ID)
}

func TestIsFreeRejectsBadClock(t *testing.T) {
	_, err := fixedChecker().IsFree("2025-03-10", "9am", nil)
	assert.Error(t, err)
}

func TestAvailableSlotsExcludesWeekendsAndPast(t *testing.T) {
	c := fixedChecker()

	for _, date := range []string{"2025-03-08", "2025-03-09", "2025-03-06", "2024-12-31"} {
		slots, err := c.AvailableSlots(date, nil)
		require.NoError(t, err)
		assert.Empty(t, slots, date)
	}
}

func TestAvailableSlotsTodayIsBookable(t *testing.T) {
	slots, err := fixedChecker().AvailableSlots("2025-03-07", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, slots)
}

func TestAvailableSlotsSkipsBookedIntervals(t *testing.T) {
	c := fixedChecker()
	existing := []Appointment{consultation("a", "2025-03-10", "09:00")}

	slots, err := c.AvailableSlots("2025-03-10", existing)
	require.NoError(t, err)

	// 09:00..16:30 in 15 minute steps is 31 candidates; 09:00 and 09:15 clash.
	require.Len(t, slots, 29)
	assert.Equal(t, Slot{Date: "2025-03-10", StartTime: "09:30", EndTime: "10:00"}, slots[0])
	assert.Equal(t, "16:30", slots[len(slots)-1].StartTime)
	assert.Equal(t, "17:00", slots[len(slots)-1].EndTime)
}

func TestAvailableSlotsRejectsBadDate(t *testing.T) {
	_, err := fixedChecker().AvailableSlots("10/03/2025", nil)
	assert.Error(t, err)
}

func TestInWindow(t *testing.T) {
	c := DefaultChecker()

	assert.True(t, c.InWindow("09:00"))
	assert.True(t, c.InWindow("16:30"))
	assert.False(t, c.InWindow("16:45"))
	assert.False(t, c.InWindow("08:45"))
	assert.False(t, c.InWindow("garbage"))
}

func TestNewCheckerValidatesWindow(t *testing.T) {
	_, err := NewChecker("17:00", "09:00", nil)
	assert.Error(t, err)

	c, err := NewChecker("08:00", "12:00", nil)
	require.NoError(t, err)
	assert.Equal(t, 8*60, c.DayStart)
	assert.Equal(t, 12*60, c.DayEnd)
}

func TestExclude(t *testing.T) {
	records := []Appointment{consultation("a", "2025-03-10", "09:00"), consultation("b", "2025-03-10", "10:00")}
	assert.Equal(t, []string{"b"}, ids(Exclude(records, "a")))
	assert.Len(t, records, 2)
}
