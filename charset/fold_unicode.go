package charset

import "unicode"

// unicodeSimpleFold returns the next code unit in c's simple case-fold
// orbit that differs from c, clamped to the 16-bit code unit space the DFA
// operates over (spec §1 Non-goals: no code points beyond a 16-bit code
// unit). If the orbit's next member falls outside that space or wraps back
// to c without finding one, it reports false.
func unicodeSimpleFold(c rune) (rune, bool) {
	if c > 0xFFFF {
		return 0, false
	}
	next := unicode.SimpleFold(c)
	for next != c {
		if next <= 0xFFFF {
			return next, true
		}
		next = unicode.SimpleFold(next)
	}
	return 0, false
}
