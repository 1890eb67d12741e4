package messaging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/swimdesk/lesson-notify/internal/domain"
)

func TestRender(t *testing.T) {
	vars := map[string]string{
		"parent_name": "Maria",
		"child_name":  "Sofia",
	}

	tests := []struct {
		name     string
		template string
		want     string
	}{
		{
			name:     "substitutes known variables",
			template: "Hi {{parent_name}}, {{child_name}} has class today.",
			want:     "Hi Maria, Sofia has class today.",
		},
		{
			name:     "absent key renders empty",
			template: "Lesson: {{lesson_name}}!",
			want:     "Lesson: !",
		},
		{
			name:     "repeated token substituted everywhere",
			template: "{{child_name}} and {{child_name}}",
			want:     "Sofia and Sofia",
		},
		{
			name:     "malformed token left verbatim",
			template: "literal {{not a var}} stays",
			want:     "literal {{not a var}} stays",
		},
		{
			name:     "no tokens",
			template: "plain text",
			want:     "plain text",
		},
		{
			name:     "empty template",
			template: "",
			want:     "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Render(tt.template, vars))
		})
	}
}

func TestRecipientVariables(t *testing.T) {
	client := &domain.Client{ParentName: "Maria Alvarez", ChildName: "Sofia"}
	now := time.Date(2026, time.March, 9, 8, 0, 0, 0, time.UTC)

	t.Run("with lesson", func(t *testing.T) {
		lesson := &domain.Lesson{Name: "Guppies (Level 1)", StartTime: "16:30"}

		vars := RecipientVariables(client, lesson, now)

		assert.Equal(t, "Maria Alvarez", vars[VarParentName])
		assert.Equal(t, "Sofia", vars[VarChildName])
		assert.Equal(t, "Guppies (Level 1)", vars[VarLessonName])
		assert.Equal(t, "4:30 PM", vars[VarLessonTime])
		assert.Equal(t, "Monday, March 9, 2026", vars[VarDate])
	})

	t.Run("without lesson renders lesson variables empty", func(t *testing.T) {
		vars := RecipientVariables(client, nil, now)

		rendered := Render("{{lesson_name}} at {{lesson_time}}", vars)
		assert.Equal(t, " at ", rendered)
	})
}

func TestClockTime(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"00:15", "12:15 AM"},
		{"09:00", "9:00 AM"},
		{"12:00", "12:00 PM"},
		{"16:30", "4:30 PM"},
		{"23:59", "11:59 PM"},
		{"noon", "noon"},
		{"25:00", "25:00"},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ClockTime(tt.in), "input %q", tt.in)
	}
}

func TestLongDate(t *testing.T) {
	d := time.Date(2026, time.July, 4, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "Saturday, July 4, 2026", LongDate(d))
}
