package capability

import (
	"context"

	"manualqa/internal"
)

// Picker is a host-provided file picker on touch and browser runtimes. It
// returns ok == false when the user dismisses it.
type Picker interface {
	Pick(ctx context.Context, constraints internal.FileConstraints) (uri string, ok bool, err error)
}

// PickerSelector delegates selection to the host picker and enforces the
// constraints on whatever it returns.
type PickerSelector struct {
	fileAccess
	picker Picker
}

// NewPickerSelector wraps a host picker
func NewPickerSelector(picker Picker) *PickerSelector {
	return &PickerSelector{picker: picker}
}

func (s *PickerSelector) SelectFile(ctx context.Context, constraints internal.FileConstraints) (*internal.FileSelection, error) {
	uri, ok, err := s.picker.Pick(ctx, constraints)
	if err != nil {
		return nil, err
	}
	if !ok || uri == "" {
		return nil, nil
	}
	return describeFile(uri, constraints)
}
