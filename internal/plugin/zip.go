package plugin

import (
	"fmt"

	"github.com/nerrad567/remapd/internal/device"
)

// ZipBindingList compacts a slot list loaded from an older store.
//
// Older saves wrote every slot twice, so a legacy list is exactly twice the
// declared length and entry i+declared holds the current resolution fields
// of slot i. Those are copied onto the first half and the second half is
// dropped. Lists at or below the declared length are returned unchanged.
// Any other excess is truncated and reported as ErrSlotCountMismatch.
func ZipBindingList(list []*device.Binding, declared int) ([]*device.Binding, error) {
	stored := len(list)
	if stored <= declared {
		return list, nil
	}

	if stored != 2*declared {
		return list[:declared:declared], fmt.Errorf("%w: stored %d, declared %d",
			ErrSlotCountMismatch, stored, declared)
	}

	for i := 0; i < declared; i++ {
		list[i].SetDescriptor(list[i+declared].Descriptor())
	}
	return list[:declared:declared], nil
}
