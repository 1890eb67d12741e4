package messaging

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/swimdesk/lesson-notify/internal/domain"
)

// Variable names recognized in batch subject and body templates.
const (
	VarParentName = "parent_name"
	VarChildName  = "child_name"
	VarLessonName = "lesson_name"
	VarLessonTime = "lesson_time"
	VarDate       = "date"
)

var templateVarRe = regexp.MustCompile(`\{\{([A-Za-z_][A-Za-z0-9_]*)\}\}`)

// Render substitutes {{key}} tokens in template with values from vars.
// Absent keys render as the empty string. Tokens whose contents are not
// a plain identifier are left verbatim. Pure function, no I/O.
func Render(template string, vars map[string]string) string {
	return templateVarRe.ReplaceAllStringFunc(template, func(token string) string {
		key := token[2 : len(token)-2]
		return vars[key]
	})
}

// RecipientVariables assembles the variable map for one recipient.
// lesson may be nil; its variables then render empty. The date variable
// is recomputed per send, not frozen at batch-creation time.
func RecipientVariables(client *domain.Client, lesson *domain.Lesson, now time.Time) map[string]string {
	vars := map[string]string{
		VarParentName: client.ParentName,
		VarChildName:  client.ChildName,
		VarDate:       LongDate(now),
	}
	if lesson != nil {
		vars[VarLessonName] = lesson.Name
		vars[VarLessonTime] = ClockTime(lesson.StartTime)
	}
	return vars
}

// LongDate formats a date the way it appears in parent-facing messages,
// e.g. "Monday, January 2, 2006".
func LongDate(t time.Time) string {
	return t.Format("Monday, January 2, 2006")
}

// ClockTime converts a 24-hour "HH:MM" lesson time to a 12-hour form,
// e.g. "16:30" -> "4:30 PM". Unparseable input is returned unchanged.
func ClockTime(hhmm string) string {
	parts := strings.SplitN(hhmm, ":", 2)
	if len(parts) != 2 {
		return hhmm
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return hhmm
	}

	meridiem := "AM"
	if hour >= 12 {
		meridiem = "PM"
	}
	display := hour % 12
	if display == 0 {
		display = 12
	}

	return fmt.Sprintf("%d:%s %s", display, parts[1], meridiem)
}
