package domain

// Side represents the direction of a trade (BUY or SELL).
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// IsValid reports whether the side is one of the two known values.
func (s Side) IsValid() bool {
	return s == Buy || s == Sell
}
