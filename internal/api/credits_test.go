package api

import (
	"testing"

	"github.com/revivelabs/photorestore/internal/models"
)

func intp(v int) *int { return &v }

func TestCreditFieldsUpdate(t *testing.T) {
	tests := []struct {
		name   string
		fields creditFields
		res    models.Resolution
		want   CreditUpdate
	}{
		{
			name:   "split fields pass through",
			fields: creditFields{RemainingStandardCredits: intp(4), RemainingHDCredits: intp(2)},
			res:    models.ResolutionStandard,
			want:   CreditUpdate{Standard: intp(4), HD: intp(2)},
		},
		{
			name:   "single bucket maps to standard",
			fields: creditFields{RemainingCredits: intp(7), RemainingToday: intp(3)},
			res:    models.ResolutionStandard,
			want:   CreditUpdate{Standard: intp(7), RemainingTodayStandard: intp(3)},
		},
		{
			name:   "single bucket maps to hd for hd requests",
			fields: creditFields{RemainingCredits: intp(1), RemainingToday: intp(0)},
			res:    models.ResolutionHD,
			want:   CreditUpdate{HD: intp(1), RemainingTodayHD: intp(0)},
		},
		{
			name: "split fields win over single bucket",
			fields: creditFields{
				RemainingCredits:         intp(99),
				RemainingStandardCredits: intp(5),
				RemainingHDCredits:       intp(6),
			},
			res:  models.ResolutionStandard,
			want: CreditUpdate{Standard: intp(5), HD: intp(6)},
		},
		{
			name:   "empty response touches nothing",
			fields: creditFields{},
			res:    models.ResolutionStandard,
			want:   CreditUpdate{},
		},
		{
			name:   "split daily counters",
			fields: creditFields{RemainingTodayStandard: intp(2), RemainingTodayHD: intp(1)},
			res:    models.ResolutionHD,
			want:   CreditUpdate{RemainingTodayStandard: intp(2), RemainingTodayHD: intp(1)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.fields.update(tt.res)
			assertIntp(t, "Standard", got.Standard, tt.want.Standard)
			assertIntp(t, "HD", got.HD, tt.want.HD)
			assertIntp(t, "RemainingTodayStandard", got.RemainingTodayStandard, tt.want.RemainingTodayStandard)
			assertIntp(t, "RemainingTodayHD", got.RemainingTodayHD, tt.want.RemainingTodayHD)
		})
	}
}

func assertIntp(t *testing.T, field string, got, want *int) {
	t.Helper()
	switch {
	case got == nil && want == nil:
	case got == nil || want == nil:
		t.Errorf("%s = %v, want %v", field, fmtIntp(got), fmtIntp(want))
	case *got != *want:
		t.Errorf("%s = %d, want %d", field, *got, *want)
	}
}

func fmtIntp(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}
