package data

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeMessage(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Your payment for order 42.", "Your payment for order 42."},
		{"accents", "Bestelling café à Liège", "Bestelling cafe a Liege"},
		{"tags", "<b>Order</b> <i>42</i>", "Order 42"},
		{"script dropped", "Order<script>alert(1)</script> 42", "Order 42"},
		{"entities", "Fish &amp; Chips", "Fish & Chips"},
		{"whitespace", "  Order\t\n42  ", "Order 42"},
		{"control chars", "Order\x0042\x07", "Order42"},
		{"non latin dropped", "Order 42 ✓ 注文", "Order 42"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeMessage(tt.in))
		})
	}
}
