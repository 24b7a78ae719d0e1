package storage

import (
	"fmt"
	"path"
	"regexp"
	"time"
)

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

const (
	InteractionFile = "interaction.json"
	ResultFile      = "result.parquet"
)

// BuildInteractionPath returns prefix/date=YYYY-MM-DD/<id>/<file> using the
// UTC date of at.
func BuildInteractionPath(prefix string, at time.Time, interactionID, file string) (string, error) {
	if err := validatePathComponent(prefix, "archive prefix"); err != nil {
		return "", err
	}
	if err := validatePathComponent(interactionID, "interaction id"); err != nil {
		return "", err
	}
	if err := validatePathComponent(file, "file name"); err != nil {
		return "", err
	}
	ts := at.UTC()
	return path.Join(
		prefix,
		fmt.Sprintf("date=%04d-%02d-%02d", ts.Year(), ts.Month(), ts.Day()),
		interactionID,
		file,
	), nil
}

// ValidateTableName accepts names usable as dataset view names.
func ValidateTableName(name string) error {
	return validatePathComponent(name, "table name")
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
