// Package gridref converts Ordnance Survey national grid references
// (e.g. "SK078993") into British National Grid easting/northing metres.
package gridref

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalid is returned for references that cannot be converted.
var ErrInvalid = errors.New("invalid grid reference")

// Point is a BNG coordinate pair in metres.
type Point struct {
	Easting  int
	Northing int
}

// ToBNG converts a grid reference with two square letters followed by an
// even number of digits (up to ten). Whitespace is ignored.
func ToBNG(ngr string) (Point, error) {
	ref := strings.ToUpper(strings.Join(strings.Fields(ngr), ""))
	if len(ref) < 2 {
		return Point{}, fmt.Errorf("%w: %q", ErrInvalid, ngr)
	}

	l1, ok1 := letterIndex(ref[0])
	l2, ok2 := letterIndex(ref[1])
	if !ok1 || !ok2 {
		return Point{}, fmt.Errorf("%w: %q", ErrInvalid, ngr)
	}

	// 500km square from the first letter, 100km square from the second,
	// with the false origin at SV.
	e100km := ((l1-2)%5)*5 + l2%5
	n100km := (19 - (l1/5)*5) - l2/5
	if e100km < 0 || e100km > 6 || n100km < 0 || n100km > 12 {
		return Point{}, fmt.Errorf("%w: %q outside grid", ErrInvalid, ngr)
	}

	digits := ref[2:]
	if len(digits)%2 != 0 || len(digits) > 10 {
		return Point{}, fmt.Errorf("%w: %q", ErrInvalid, ngr)
	}
	half := len(digits) / 2
	e, err := padMetres(digits[:half])
	if err != nil {
		return Point{}, fmt.Errorf("%w: %q", ErrInvalid, ngr)
	}
	n, err := padMetres(digits[half:])
	if err != nil {
		return Point{}, fmt.Errorf("%w: %q", ErrInvalid, ngr)
	}

	return Point{
		Easting:  e100km*100000 + e,
		Northing: n100km*100000 + n,
	}, nil
}

// letterIndex maps A..Z to 0..24, skipping I.
func letterIndex(c byte) (int, bool) {
	if c < 'A' || c > 'Z' || c == 'I' {
		return 0, false
	}
	i := int(c - 'A')
	if i > 7 {
		i--
	}
	return i, true
}

func padMetres(s string) (int, error) {
	v := 0
	for i := 0; i < 5; i++ {
		v *= 10
		if i < len(s) {
			c := s[i]
			if c < '0' || c > '9' {
				return 0, ErrInvalid
			}
			v += int(c - '0')
		}
	}
	return v, nil
}
