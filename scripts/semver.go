package main

import (
	"fmt"
	"regexp"
	"strconv"
)

type SemanticVersion struct {
	major int
	minor int
	patch int
}

var semverPattern = regexp.MustCompile(`^v(\d+)\.(\d+)\.(\d+)$`)

func ParseSemVer(s string) (SemanticVersion, error) {
	m := semverPattern.FindStringSubmatch(s)
	if m == nil {
		return SemanticVersion{}, fmt.Errorf("invalid semantic version: '%s'", s)
	}

	var sv SemanticVersion
	var err error
	if sv.major, err = strconv.Atoi(m[1]); err != nil {
		return SemanticVersion{}, err
	}
	if sv.minor, err = strconv.Atoi(m[2]); err != nil {
		return SemanticVersion{}, err
	}
	if sv.patch, err = strconv.Atoi(m[3]); err != nil {
		return SemanticVersion{}, err
	}
	return sv, nil
}

// Bump returns the version after sv for part "major", "minor" or
// "patch". Any other value must be an exact version such as v1.2.3.
func (sv SemanticVersion) Bump(part string) (SemanticVersion, error) {
	switch part {
	case "major":
		return SemanticVersion{major: sv.major + 1}, nil
	case "minor":
		return SemanticVersion{major: sv.major, minor: sv.minor + 1}, nil
	case "patch":
		return SemanticVersion{major: sv.major, minor: sv.minor, patch: sv.patch + 1}, nil
	}
	return ParseSemVer(part)
}

func (sv SemanticVersion) String() string {
	return fmt.Sprintf("v%d.%d.%d", sv.major, sv.minor, sv.patch)
}
