package telephony

// NormalizePhone reduces a raw phone string to its digits.
//
// A leading US country code is dropped from 11-digit numbers ("16145550101" -> "6145550101").
// An input with no digits ("", "anonymous", "+") yields "".
// The function is total and idempotent: NormalizePhone(NormalizePhone(s)) == NormalizePhone(s).
func NormalizePhone(raw string) string {
	digits := make([]byte, 0, len(raw))
	for i := 0; i < len(raw); i++ {
		if c := raw[i]; c >= '0' && c <= '9' {
			digits = append(digits, c)
		}
	}
	if len(digits) == 11 && digits[0] == '1' {
		digits = digits[1:]
	}
	return string(digits)
}
