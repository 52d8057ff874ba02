package application

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	maxTitleLength = 255
	dateLayout     = "2006-01-02"
	// DefaultColor is applied when a caller leaves the color empty.
	DefaultColor = "bg-blue-100"
)

var allowedColors = map[string]struct{}{
	"bg-blue-100":   {},
	"bg-green-100":  {},
	"bg-yellow-100": {},
	"bg-red-100":    {},
	"bg-purple-100": {},
	"bg-pink-100":   {},
	"bg-indigo-100": {},
	"bg-gray-100":   {},
	"bg-orange-100": {},
	"bg-teal-100":   {},
}

// ValidColor reports whether color is one of the supported tags.
func ValidColor(color string) bool {
	_, ok := allowedColors[color]
	return ok
}

func validatePrincipal(principal Principal) error {
	if strings.TrimSpace(principal.UserID) == "" || !principal.UserType.Valid() {
		return ErrUnauthorized
	}
	return nil
}

func validateTitle(title string, vErr *ValidationError) {
	trimmed := strings.TrimSpace(title)
	switch {
	case trimmed == "":
		vErr.add("title", "제목을 입력해 주세요")
	case utf8.RuneCountInString(trimmed) > maxTitleLength:
		vErr.add("title", fmt.Sprintf("제목은 %d자 이하여야 합니다", maxTitleLength))
	}
}

func normalizeColor(color string, vErr *ValidationError) string {
	color = strings.TrimSpace(color)
	if color == "" {
		return DefaultColor
	}
	if !ValidColor(color) {
		vErr.add("color", "지원하지 않는 색상입니다")
	}
	return color
}

func parseDate(value string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(dateLayout, strings.TrimSpace(value), loc)
}

func normalizeOptionalString(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
