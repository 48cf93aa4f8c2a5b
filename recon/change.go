package recon

import "fmt"

// =============================================================================
// CHANGE KIND - Closed set of change categories
// =============================================================================

// ChangeKind is the category of a change-log entry. The zero value is not a
// valid kind so an uninitialised entry is detectable.
type ChangeKind int

const (
	ForecastAdded ChangeKind = iota + 1
	ForecastRemoved
	ForecastModified
	ActualAdded
	ActualModified
	ConvertedToOrder
	Delayed
)

// ChangeKinds lists every kind in declaration order.
func ChangeKinds() []ChangeKind {
	return []ChangeKind{
		ForecastAdded, ForecastRemoved, ForecastModified,
		ActualAdded, ActualModified, ConvertedToOrder, Delayed,
	}
}

var changeKindNames = map[ChangeKind]string{
	ForecastAdded:    "forecast_added",
	ForecastRemoved:  "forecast_removed",
	ForecastModified: "forecast_modified",
	ActualAdded:      "actual_added",
	ActualModified:   "actual_modified",
	ConvertedToOrder: "converted_to_order",
	Delayed:          "delayed",
}

// Labels as printed in the planning reports.
var changeKindLabels = map[ChangeKind]string{
	ForecastAdded:    "新增需求",
	ForecastRemoved:  "需求取消",
	ForecastModified: "需求變動",
	ActualAdded:      "下單確認",
	ActualModified:   "訂單變動",
	ConvertedToOrder: "轉正式訂單",
	Delayed:          "需求延後",
}

func (k ChangeKind) String() string {
	if s, ok := changeKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("ChangeKind(%d)", int(k))
}

// Label returns the report label for the kind.
func (k ChangeKind) Label() string {
	if s, ok := changeKindLabels[k]; ok {
		return s
	}
	return k.String()
}

// IsOrder reports whether the kind describes a confirmed order.
func (k ChangeKind) IsOrder() bool {
	return k == ActualAdded || k == ActualModified || k == ConvertedToOrder
}

func (k ChangeKind) Valid() bool {
	_, ok := changeKindNames[k]
	return ok
}

func (k ChangeKind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("invalid change kind %d", int(k))
	}
	return []byte(k.String()), nil
}

func (k *ChangeKind) UnmarshalText(b []byte) error {
	kind, err := ParseChangeKind(string(b))
	if err != nil {
		return err
	}
	*k = kind
	return nil
}

// ParseChangeKind is the inverse of String.
func ParseChangeKind(s string) (ChangeKind, error) {
	for k, name := range changeKindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown change kind %q", s)
}
