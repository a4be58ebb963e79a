package wizard

import (
	"onboard/internal/domain"
	"onboard/pkg/errors"
)

// ImageSlot is one of the document image inputs on the documents step.
type ImageSlot string

const (
	SlotAadhaarFront ImageSlot = "aadhaar_front"
	SlotAadhaarBack  ImageSlot = "aadhaar_back"
	SlotPAN          ImageSlot = "pan"
)

func ParseImageSlot(s string) (ImageSlot, error) {
	switch slot := ImageSlot(s); slot {
	case SlotAadhaarFront, SlotAadhaarBack, SlotPAN:
		return slot, nil
	default:
		return "", errors.ErrInvalidImageSlot
	}
}

// update returns the field update that stores url in this slot.
func (s ImageSlot) update(url string) FieldUpdate {
	switch s {
	case SlotAadhaarFront:
		return SetAadhaarImage{Side: domain.ImageSideFront, URL: url}
	case SlotAadhaarBack:
		return SetAadhaarImage{Side: domain.ImageSideBack, URL: url}
	default:
		return SetPANImage{URL: url}
	}
}

// stagedURL marks a slot whose file is held for upload at submit time.
func stagedURL(s ImageSlot) string {
	return "staged://" + string(s)
}
