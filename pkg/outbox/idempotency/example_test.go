package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

func ExampleGuard_Claim() {
	ctx := context.Background()
	guard, _ := NewGuard(newMemoryStore(), 7*24*time.Hour)
	eventID := uuid.MustParse("f47ac10b-58cc-4372-a567-0e02b2c3d479")

	first, _ := guard.Claim(ctx, "sms-pipeline", eventID)
	second, _ := guard.Claim(ctx, "sms-pipeline", eventID)
	other, _ := guard.Claim(ctx, "notifications", eventID)
	fmt.Println(first, second, other)

	_ = guard.Release(ctx, "sms-pipeline", eventID)
	again, _ := guard.Claim(ctx, "sms-pipeline", eventID)
	fmt.Println(again)
	// Output:
	// true false true
	// true
}
