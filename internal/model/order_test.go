package model

import "testing"

func TestOrderIsTerminal(t *testing.T) {
	cases := []struct {
		status string
		want   bool
	}{
		{OrderStatusPending, false},
		{OrderStatusPaid, true},
		{OrderStatusFailed, true},
		{OrderStatusCancelled, true},
	}
	for _, c := range cases {
		o := Order{Status: c.status}
		if got := o.IsTerminal(); got != c.want {
			t.Errorf("Order{Status: %q}.IsTerminal() = %v, want %v", c.status, got, c.want)
		}
	}
}
