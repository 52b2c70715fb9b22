package extract

import (
	"sort"
	"strings"
)

// sortNatural orders entries by name with numeric runs compared by value, so
// page2 sorts before page10.
func sortNatural(entries []pageEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return naturalLess(entries[i].name, entries[j].name)
	})
}

func naturalLess(a, b string) bool {
	a, b = strings.ToLower(a), strings.ToLower(b)
	for len(a) > 0 && len(b) > 0 {
		if isDigit(a[0]) && isDigit(b[0]) {
			aNum, aRest := splitLeadingDigits(a)
			bNum, bRest := splitLeadingDigits(b)
			aTrim := strings.TrimLeft(aNum, "0")
			bTrim := strings.TrimLeft(bNum, "0")
			if len(aTrim) != len(bTrim) {
				return len(aTrim) < len(bTrim)
			}
			if aTrim != bTrim {
				return aTrim < bTrim
			}
			// Equal values; fewer leading zeros sorts first.
			if aNum != bNum {
				return len(aNum) < len(bNum)
			}
			a, b = aRest, bRest
			continue
		}
		if a[0] != b[0] {
			return a[0] < b[0]
		}
		a, b = a[1:], b[1:]
	}
	return len(a) < len(b)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func splitLeadingDigits(s string) (string, string) {
	i := 0
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	return s[:i], s[i:]
}
