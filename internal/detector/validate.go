package detector

import (
	"fmt"
	"net"
)

func validator(name string) (func(string) bool, error) {
	switch name {
	case "":
		return nil, nil
	case "luhn":
		return func(s string) bool { return luhnValid(stripNonDigits(s)) }, nil
	case "ip":
		return func(s string) bool { return net.ParseIP(s) != nil }, nil
	}
	return nil, fmt.Errorf("unknown validation %q", name)
}

// luhnValid checks a digit string against the Luhn checksum (ISO/IEC 7812).
func luhnValid(number string) bool {
	if len(number) < 2 {
		return false
	}
	sum := 0
	alt := false
	for i := len(number) - 1; i >= 0; i-- {
		d := int(number[i] - '0')
		if alt {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		alt = !alt
	}
	return sum%10 == 0
}

func stripNonDigits(s string) string {
	b := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			b = append(b, s[i])
		}
	}
	return string(b)
}
