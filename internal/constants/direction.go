package constants

// Direction selects which side of a feature an influence query looks at.
type Direction string

const (
	// DirectionIncoming follows edges to features in earlier layers.
	DirectionIncoming Direction = "incoming"

	// DirectionOutgoing follows edges to features in later layers.
	DirectionOutgoing Direction = "outgoing"
)

// Valid returns true if the direction is a recognized value.
func (d Direction) Valid() bool {
	switch d {
	case DirectionIncoming, DirectionOutgoing:
		return true
	}
	return false
}

// String returns the string representation of the direction.
func (d Direction) String() string {
	return string(d)
}
