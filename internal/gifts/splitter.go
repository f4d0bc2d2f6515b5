package gifts

import (
	pkgerrors "github.com/angelmondragon/gogift-backend/pkg/errors"
)

// Request is a recipient's share as declared at checkout.
type Request struct {
	RecipientName  string
	RecipientEmail string
	Message        string
	Quantity       int
}

// Share is the slice of a line's codes routed to one allocation, by index.
type Share struct {
	Index int
	Codes []string
}

// Partition is the final distribution of a line's codes.
type Partition struct {
	Buyer []string
	Gifts []Share
}

// Validate checks the declared gift quantities against the line quantity.
func Validate(lineQty int, requests []Request) error {
	total := 0
	for i, r := range requests {
		if r.Quantity <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "gift quantity must be positive").
				WithDetails(map[string]any{"gift_index": i})
		}
		total += r.Quantity
	}
	if total > lineQty {
		return pkgerrors.New(pkgerrors.CodeOverAllocatedGift, "gift quantities exceed line quantity").
			WithDetails(map[string]any{"line_quantity": lineQty, "gift_quantity": total})
	}
	return nil
}

// Split walks quantities in declared order. Each gift takes the next codes up
// to its quantity; whatever is left belongs to the buyer. When fewer codes
// than purchased exist, later gifts and then the buyer receive fewer.
func Split(codes []string, quantities []int) Partition {
	remaining := codes
	out := Partition{Gifts: make([]Share, 0, len(quantities))}
	for i, qty := range quantities {
		take := qty
		if take > len(remaining) {
			take = len(remaining)
		}
		if take < 0 {
			take = 0
		}
		share := make([]string, take)
		copy(share, remaining[:take])
		out.Gifts = append(out.Gifts, Share{Index: i, Codes: share})
		remaining = remaining[take:]
	}
	out.Buyer = append([]string(nil), remaining...)
	return out
}
