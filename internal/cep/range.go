package cep

import (
	"fmt"
	"regexp"
	"strconv"
)

// DefaultMaxRange bounds how many codes a single crawl may cover.
const DefaultMaxRange = 10000

var cepPattern = regexp.MustCompile(`^\d{8}$`)

// ValidCEP reports whether s is an 8-digit numeric code.
func ValidCEP(s string) bool {
	return cepPattern.MatchString(s)
}

// ValidateRange checks start/end format, ordering and range size, in
// that order, returning the first tagged error. maxRange <= 0 falls
// back to DefaultMaxRange.
func ValidateRange(start, end string, maxRange int) error {
	if maxRange <= 0 {
		maxRange = DefaultMaxRange
	}
	if !ValidCEP(start) {
		return NewError(KindInvalidFormat, "cep_start must be 8 numeric digits")
	}
	if !ValidCEP(end) {
		return NewError(KindInvalidFormat, "cep_end must be 8 numeric digits")
	}
	startNum, _ := strconv.Atoi(start)
	endNum, _ := strconv.Atoi(end)
	if startNum > endNum {
		return NewError(KindInvalidOrder, "cep_start must be less than or equal to cep_end")
	}
	if size := endNum - startNum + 1; size > maxRange {
		return NewError(KindRangeTooLarge, fmt.Sprintf("range exceeds maximum of %d codes", maxRange))
	}
	return nil
}

// ExpandRange returns every zero-padded code from start to end
// inclusive, in ascending numeric order. It validates first and
// propagates ValidateRange errors verbatim.
func ExpandRange(start, end string, maxRange int) ([]string, error) {
	if err := ValidateRange(start, end, maxRange); err != nil {
		return nil, err
	}
	startNum, _ := strconv.Atoi(start)
	endNum, _ := strconv.Atoi(end)

	codes := make([]string, 0, endNum-startNum+1)
	for n := startNum; n <= endNum; n++ {
		codes = append(codes, fmt.Sprintf("%08d", n))
	}
	return codes, nil
}
