package lending

// Amount expresses a requested token quantity at the interface boundary:
// either an exact amount or "everything the position allows". Keeping the
// sentinel out of the numeric domain keeps the arithmetic below free of
// magic values.
type Amount struct {
	value uint64
	all   bool
}

// Exact requests precisely the given amount.
func Exact(value uint64) Amount {
	return Amount{value: value}
}

// All requests the maximum the position and balances permit.
func All() Amount {
	return Amount{all: true}
}

// IsAll reports whether the maximum was requested.
func (a Amount) IsAll() bool { return a.all }

// Value returns the exact amount requested; zero when All was requested.
func (a Amount) Value() uint64 { return a.value }

// resolve collapses the request against a computed maximum.
func (a Amount) resolve(max uint64) uint64 {
	if a.all {
		return max
	}
	return a.value
}

func (a Amount) valid() bool {
	return a.all || a.value > 0
}
