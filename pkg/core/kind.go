// pkg/core/kind.go
package core

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ShipKind identifies one of the four agent kinds.
type ShipKind uint8

const (
	KindCargo ShipKind = iota
	KindPatrol
	KindPirate
	KindCapture

	// KindCount is the number of ship kinds. Tables indexed by kind use it as their length.
	KindCount
)

var kindNames = [KindCount]string{
	KindCargo:   "Cargo",
	KindPatrol:  "Patrol",
	KindPirate:  "Pirate",
	KindCapture: "Capture",
}

// SpawnKinds are the kinds that enter the grid at a boundary, in the order
// they are drawn each tick.
var SpawnKinds = []ShipKind{KindCargo, KindPirate, KindPatrol}

func (k ShipKind) String() string {
	if k < KindCount {
		return kindNames[k]
	}
	return fmt.Sprintf("ShipKind(%d)", uint8(k))
}

// Valid reports whether k is one of the four defined kinds.
func (k ShipKind) Valid() bool {
	return k < KindCount
}

// ParseShipKind accepts the exported name of a kind, case-insensitively.
func ParseShipKind(s string) (ShipKind, error) {
	for k, name := range kindNames {
		if strings.EqualFold(name, strings.TrimSpace(s)) {
			return ShipKind(k), nil
		}
	}
	return 0, fmt.Errorf("unknown ship kind %q", s)
}

// MarshalJSON writes the kind as its name.
func (k ShipKind) MarshalJSON() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("cannot marshal %s", k)
	}
	return json.Marshal(kindNames[k])
}

// UnmarshalJSON reads a kind name. Unknown names are an error.
func (k *ShipKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("ship kind: %w", err)
	}
	parsed, err := ParseShipKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
