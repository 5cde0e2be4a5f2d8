package enums

import "testing"

func TestParseRole(t *testing.T) {
	role, err := ParseRole("admin")
	if err != nil || role != RoleAdmin {
		t.Fatalf("expected admin, got %q err=%v", role, err)
	}
	if _, err := ParseRole("superuser"); err == nil {
		t.Fatal("expected error for unknown role")
	}
	if Role("").IsValid() {
		t.Fatal("empty role should be invalid")
	}
}

func TestAudienceIncludes(t *testing.T) {
	tests := []struct {
		audience Audience
		role     Role
		want     bool
	}{
		{AudienceAll, RoleCustomer, true},
		{AudienceCustomer, RoleSeller, false},
		{AudienceSeller, RoleSeller, true},
		{AudienceSeller, RoleAdmin, true},
		{Audience("vip"), RoleAdmin, false},
	}
	for _, tt := range tests {
		if got := tt.audience.Includes(tt.role); got != tt.want {
			t.Fatalf("%s includes %s: expected %v got %v", tt.audience, tt.role, tt.want, got)
		}
	}
}

func TestParseOutboxEventType(t *testing.T) {
	for _, raw := range []string{"order_paid", "payment_failed", "invoice_generated", "product_reviewed", "notification_requested"} {
		if _, err := ParseOutboxEventType(raw); err != nil {
			t.Fatalf("unexpected error for %s: %v", raw, err)
		}
	}
	if _, err := ParseOutboxEventType("order_created"); err == nil {
		t.Fatal("expected error for unknown event")
	}
}
