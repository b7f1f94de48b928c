package timetable

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	// maxNameLength is the longest accepted timetable name, in characters.
	maxNameLength = 100

	// maxIDLength is the longest generated or accepted timetable ID.
	maxIDLength = 64

	// fallbackID is used when a name contains nothing usable for an ID.
	fallbackID = "timetable"
)

// ValidateName checks a timetable display name and returns it trimmed.
func ValidateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: name is required", ErrInvalidName)
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return "", fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return name, nil
}

// ValidateID checks that id is a non-empty slug of [a-z0-9_].
func ValidateID(id string) error {
	if id == "" || len(id) > maxIDLength {
		return fmt.Errorf("%w: id must be 1-%d characters", ErrInvalidName, maxIDLength)
	}
	for _, r := range id {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '_' {
			return fmt.Errorf("%w: id %q may only contain a-z, 0-9 and _", ErrInvalidName, id)
		}
	}
	return nil
}

// GenerateSlug creates an ID from a display name.
// "Hall Lights (Evening)" becomes "hall_lights_evening".
func GenerateSlug(name string) string {
	slug := strings.ToLower(name)
	slug = strings.ReplaceAll(slug, " ", "_")
	slug = strings.ReplaceAll(slug, "-", "_")

	var result strings.Builder
	for _, r := range slug {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			result.WriteRune(r)
		}
	}
	slug = result.String()

	slug = strings.Trim(slug, "_")
	for strings.Contains(slug, "__") {
		slug = strings.ReplaceAll(slug, "__", "_")
	}

	if len(slug) > maxIDLength {
		slug = slug[:maxIDLength]
		slug = strings.TrimRight(slug, "_")
	}
	if slug == "" {
		return fallbackID
	}
	return slug
}

// uniqueSlug returns base, or base_2, base_3, ... whichever is not taken.
func uniqueSlug(base string, taken func(string) bool) string {
	if !taken(base) {
		return base
	}
	for n := 2; ; n++ {
		suffix := fmt.Sprintf("_%d", n)
		candidate := base
		if len(candidate)+len(suffix) > maxIDLength {
			candidate = strings.TrimRight(candidate[:maxIDLength-len(suffix)], "_")
		}
		candidate += suffix
		if !taken(candidate) {
			return candidate
		}
	}
}
