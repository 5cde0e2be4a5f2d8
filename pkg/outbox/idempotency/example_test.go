package idempotency

import (
	"context"
	"fmt"
	"time"
)

func ExampleGuard_Claim() {
	ctx := context.Background()
	guard, _ := NewGuard(newMapStore(), "notifications", 7*24*time.Hour)
	eventID := "f47ac10b-58cc-4372-a567-0e02b2c3d479"

	for i := 0; i < 2; i++ {
		if claimed, _ := guard.Claim(ctx, eventID); !claimed {
			fmt.Println("duplicate delivery skipped")
			continue
		}
		fmt.Println("processing event")
	}
	// Output:
	// processing event
	// duplicate delivery skipped
}
