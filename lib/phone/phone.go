package phone

import "strings"

// strips everything except digits so "(555) 123-4567" and
// "555.123.4567" compare equal
func Digits(s string) string {
	var out strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			out.WriteRune(r)
		}
	}
	return out.String()
}

func Equal(a, b string) bool {
	da := Digits(a)
	db := Digits(b)
	return da != "" && da == db
}
